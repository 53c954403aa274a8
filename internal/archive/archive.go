// Package archive writes accepted artifacts to the on-disk tree
// <root>/<domain>/<year>/<filename>.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

// DefaultMinBytes is the smallest artifact kept.
const DefaultMinBytes = 50

// ErrTooSmall is returned when a body is below the size floor. Nothing is
// left on disk in that case.
var ErrTooSmall = errors.New("artifact below minimum size")

// Hasher names artifacts whose URL has no usable final path segment.
type Hasher interface {
	Hash(data []byte) string
}

// YearResolver picks the year directory for an artifact.
type YearResolver interface {
	Resolve(body []byte, rawURL, filename string) string
}

// Mirror receives a copy of every archived artifact.
type Mirror interface {
	PutObject(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}

// Config captures the archive parameters.
type Config struct {
	Root     string
	MinBytes int
}

// Artifact describes a file written to the archive.
type Artifact struct {
	URL         string
	Domain      string
	Year        string
	Filename    string
	Path        string
	Size        int64
	ContentType string
	// MirrorURI is set when a mirror accepted the upload.
	MirrorURI string
}

// Writer saves artifacts under Root.
type Writer struct {
	root     string
	minBytes int
	hasher   Hasher
	years    YearResolver
	mirror   Mirror
	logger   *zap.Logger
}

// Option customises a Writer.
type Option func(*Writer)

// WithMirror uploads every saved artifact to m as well.
func WithMirror(m Mirror) Option {
	return func(w *Writer) {
		w.mirror = m
	}
}

// New creates the archive root if needed and returns a Writer.
func New(cfg Config, hasher Hasher, years YearResolver, logger *zap.Logger, opts ...Option) (*Writer, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, fmt.Errorf("archive root is required")
	}
	if hasher == nil || years == nil {
		return nil, fmt.Errorf("hasher and year resolver are required")
	}
	info, err := os.Stat(cfg.Root)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.Root, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create archive root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat archive root: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("archive root %s is not a directory", cfg.Root)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	minBytes := cfg.MinBytes
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}
	w := &Writer{
		root:     cfg.Root,
		minBytes: minBytes,
		hasher:   hasher,
		years:    years,
		logger:   logger.Named("archive"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the archive root directory.
func (w *Writer) Root() string {
	return w.root
}

// Save stores body for rawURL under domain.
//
// The body is staged in a temporary file inside the domain directory, checked
// against the size floor, and only then renamed into its year directory.
func (w *Writer) Save(ctx context.Context, rawURL, domain, contentType string, body []byte) (Artifact, error) {
	domainDir, err := w.domainDir(domain)
	if err != nil {
		return Artifact{}, err
	}
	if err := os.MkdirAll(domainDir, 0o750); err != nil {
		return Artifact{}, fmt.Errorf("failed to create domain directory: %w", err)
	}

	tmp, err := os.CreateTemp(domainDir, ".download-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			if rmErr := os.Remove(tmpPath); rmErr != nil && !os.IsNotExist(rmErr) {
				w.logger.Warn("failed to remove staging file", zap.String("path", tmpPath), zap.Error(rmErr))
			}
		}
	}()

	n, writeErr := tmp.Write(body)
	closeErr := tmp.Close()
	if writeErr != nil {
		return Artifact{}, fmt.Errorf("failed to write staging file: %w", writeErr)
	}
	if closeErr != nil {
		return Artifact{}, fmt.Errorf("failed to close staging file: %w", closeErr)
	}
	if n < w.minBytes {
		metrics.ObserveRejection("too_small")
		return Artifact{}, fmt.Errorf("%s is %d bytes: %w", rawURL, n, ErrTooSmall)
	}

	filename := DeriveFilename(rawURL, contentType, w.hasher)
	year := w.years.Resolve(body, rawURL, filename)
	yearDir := filepath.Join(domainDir, year)
	if err := os.MkdirAll(yearDir, 0o750); err != nil {
		return Artifact{}, fmt.Errorf("failed to create year directory: %w", err)
	}
	finalPath := filepath.Join(yearDir, filename)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Artifact{}, fmt.Errorf("failed to move artifact into place: %w", err)
	}
	committed = true

	art := Artifact{
		URL:         rawURL,
		Domain:      domain,
		Year:        year,
		Filename:    filename,
		Path:        finalPath,
		Size:        int64(n),
		ContentType: contentType,
	}
	metrics.ObserveArtifact(domain, art.Size)

	if w.mirror != nil {
		objectPath := path.Join(domain, year, filename)
		uri, err := w.mirror.PutObject(ctx, objectPath, contentType, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("mirror upload failed", zap.String("object", objectPath), zap.Error(err))
		} else {
			art.MirrorURI = uri
		}
	}
	return art, nil
}

func (w *Writer) domainDir(domain string) (string, error) {
	if strings.TrimSpace(domain) == "" || domain == "." || domain == ".." ||
		strings.ContainsAny(domain, `/\`) {
		return "", fmt.Errorf("invalid domain %q", domain)
	}
	dir := filepath.Join(w.root, domain)
	cleanRoot := filepath.Clean(w.root)
	if !strings.HasPrefix(filepath.Clean(dir), cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for domain %q", domain)
	}
	return dir, nil
}

var hasExtension = regexp.MustCompile(`\.\w+$`)

// DeriveFilename names the artifact for rawURL. The final path segment is
// used when present, otherwise the hex MD5 of the URL. A name without an
// extension gets one from the declared content type, then the URL path,
// then ".bin".
func DeriveFilename(rawURL, contentType string, hasher Hasher) string {
	urlPath := ""
	if u, err := url.Parse(rawURL); err == nil {
		urlPath = u.Path
	}

	name := ""
	if urlPath != "" && !strings.HasSuffix(urlPath, "/") {
		name = path.Base(urlPath)
	}
	if name == "" || name == "." || name == "/" {
		name = hasher.Hash([]byte(rawURL))
	}
	if hasExtension.MatchString(name) {
		return name
	}

	lowerType := strings.ToLower(contentType)
	switch {
	case strings.Contains(lowerType, "pdf"):
		return name + ".pdf"
	case strings.Contains(lowerType, "xml"):
		return name + ".xml"
	}
	if ext := path.Ext(strings.TrimSuffix(urlPath, "/")); hasExtension.MatchString(ext) {
		return name + ext
	}
	return name + ".bin"
}
