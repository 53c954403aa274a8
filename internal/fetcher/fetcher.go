// Package fetcher selects between the retrieval tiers: direct document
// download, rendered page, and raw HTTP fallback.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

// Tier identifies which retrieval path produced a Document.
type Tier string

const (
	// TierDirect downloads a document URL over plain HTTP.
	TierDirect Tier = "direct"
	// TierRendered drives a headless browser.
	TierRendered Tier = "rendered"
	// TierRaw is the plain HTTP fallback for pages.
	TierRaw Tier = "raw"
)

// DocumentExtensions are the URL suffixes treated as direct documents.
var DocumentExtensions = []string{".pdf", ".xml"}

// ErrStatus marks a response with a status other than 200.
var ErrStatus = errors.New("unexpected http status")

// ErrTruncated marks a body that reached the configured size cap.
var ErrTruncated = errors.New("response body truncated at size limit")

// ErrEmptyRender is returned when a rendered page has no markup.
var ErrEmptyRender = errors.New("rendered page is empty")

// StatusError carries the offending status code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is makes StatusError match ErrStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrStatus
}

// Document is the transient result of a fetch.
type Document struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Body        []byte
	Tier        Tier
}

// BaseURL returns the URL relative links should resolve against.
func (d Document) BaseURL() string {
	if d.FinalURL != "" {
		return d.FinalURL
	}
	return d.URL
}

// HTTPFetcher performs a plain GET.
type HTTPFetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// Renderer returns browser-rendered markup.
type Renderer interface {
	Render(ctx context.Context, url string) (Document, error)
}

// IsDocumentURL reports whether rawURL's path ends in a document extension.
func IsDocumentURL(rawURL string) bool {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	p = strings.ToLower(p)
	for _, ext := range DocumentExtensions {
		if strings.HasSuffix(p, ext) {
			return true
		}
	}
	return false
}

// Engine routes URLs to the right tier. The renderer is optional.
type Engine struct {
	raw      HTTPFetcher
	renderer Renderer
	logger   *zap.Logger
}

// NewEngine builds an Engine. A nil renderer sends every page to the raw tier.
func NewEngine(raw HTTPFetcher, renderer Renderer, logger *zap.Logger) (*Engine, error) {
	if raw == nil {
		return nil, fmt.Errorf("raw fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{raw: raw, renderer: renderer, logger: logger.Named("fetch")}, nil
}

// FetchDocument downloads a document URL.
func (e *Engine) FetchDocument(ctx context.Context, rawURL string) (Document, error) {
	doc, err := e.raw.Fetch(ctx, rawURL)
	if err != nil {
		metrics.ObserveFetch(string(TierDirect), "error")
		return Document{}, fmt.Errorf("direct fetch: %w", err)
	}
	doc.Tier = TierDirect
	metrics.ObserveFetch(string(TierDirect), "ok")
	return doc, nil
}

// FetchPage renders rawURL, falling back to a plain GET when rendering
// fails or yields nothing.
func (e *Engine) FetchPage(ctx context.Context, rawURL string) (Document, error) {
	if e.renderer != nil {
		doc, err := e.renderer.Render(ctx, rawURL)
		if err == nil && len(doc.Body) == 0 {
			err = ErrEmptyRender
		}
		if err == nil {
			doc.Tier = TierRendered
			metrics.ObserveFetch(string(TierRendered), "ok")
			return doc, nil
		}
		metrics.ObserveFetch(string(TierRendered), "error")
		if ctx.Err() != nil {
			return Document{}, fmt.Errorf("render: %w", ctx.Err())
		}
		e.logger.Warn("render failed; falling back to raw fetch", zap.String("url", rawURL), zap.Error(err))
	}

	doc, err := e.raw.Fetch(ctx, rawURL)
	if err != nil {
		metrics.ObserveFetch(string(TierRaw), "error")
		return Document{}, fmt.Errorf("raw fetch: %w", err)
	}
	doc.Tier = TierRaw
	metrics.ObserveFetch(string(TierRaw), "ok")
	if LooksUnrendered(doc.Body) {
		metrics.ObserveFetch(string(TierRaw), "unrendered_shell")
		e.logger.Warn("raw page looks like an unrendered app shell; links may be missing",
			zap.String("url", rawURL),
			zap.Bool("renderer", e.renderer != nil),
		)
	}
	return doc, nil
}

// DefaultUserAgents is the browser identity pool used when none is configured.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
}

// PickUserAgent returns a random entry of pool, or "" for an empty pool.
func PickUserAgent(pool []string) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.IntN(len(pool))] //nolint:gosec // not security sensitive
}
