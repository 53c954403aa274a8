package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/standards-harvester/internal/hash/md5"
)

type staticYears string

func (s staticYears) Resolve([]byte, string, string) string { return string(s) }

type recordingMirror struct {
	paths  []string
	bodies [][]byte
	err    error
}

func (m *recordingMirror) PutObject(_ context.Context, objectPath, _ string, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.paths = append(m.paths, objectPath)
	m.bodies = append(m.bodies, b)
	return "mem://" + objectPath, nil
}

func newWriter(t *testing.T, opts ...Option) *Writer {
	t.Helper()
	w, err := New(Config{Root: t.TempDir()}, md5.New(), staticYears("2022"), zap.NewNop(), opts...)
	require.NoError(t, err)
	return w
}

func TestNew(t *testing.T) {
	_, err := New(Config{}, md5.New(), staticYears("2022"), nil)
	assert.Error(t, err)

	root := filepath.Join(t.TempDir(), "nested", "downloads")
	w, err := New(Config{Root: root}, md5.New(), staticYears("2022"), nil)
	require.NoError(t, err)
	assert.DirExists(t, root)
	assert.Equal(t, DefaultMinBytes, w.minBytes)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	_, err = New(Config{Root: file}, md5.New(), staticYears("2022"), nil)
	assert.Error(t, err)
}

func TestSaveWritesIntoYearDirectory(t *testing.T) {
	w := newWriter(t)
	body := bytes.Repeat([]byte("a"), 120)

	art, err := w.Save(context.Background(), "https://example.com/2022/doc.pdf", "example.com", "application/pdf", body)
	require.NoError(t, err)

	want := filepath.Join(w.Root(), "example.com", "2022", "doc.pdf")
	assert.Equal(t, want, art.Path)
	assert.Equal(t, "2022", art.Year)
	assert.Equal(t, int64(120), art.Size)
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, body, got)

	entries, err := os.ReadDir(filepath.Join(w.Root(), "example.com"))
	require.NoError(t, err)
	require.Len(t, entries, 1, "staging file should be renamed away")
	assert.Equal(t, "2022", entries[0].Name())
}

func TestSaveSizeFloor(t *testing.T) {
	w := newWriter(t)

	_, err := w.Save(context.Background(), "https://example.com/a.pdf", "example.com", "application/pdf", bytes.Repeat([]byte("x"), 49))
	require.ErrorIs(t, err, ErrTooSmall)
	assert.NoDirExists(t, filepath.Join(w.Root(), "example.com", "2022"))
	entries, err := os.ReadDir(filepath.Join(w.Root(), "example.com"))
	require.NoError(t, err)
	assert.Empty(t, entries)

	art, err := w.Save(context.Background(), "https://example.com/a.pdf", "example.com", "application/pdf", bytes.Repeat([]byte("x"), 50))
	require.NoError(t, err)
	assert.FileExists(t, art.Path)
}

func TestSaveRejectsUnsafeDomains(t *testing.T) {
	w := newWriter(t)
	body := bytes.Repeat([]byte("a"), 100)
	for _, domain := range []string{"", "..", "../etc", "a/b", `a\b`} {
		_, err := w.Save(context.Background(), "https://example.com/a.pdf", domain, "application/pdf", body)
		assert.Error(t, err, "domain %q", domain)
	}
}

func TestSaveMirrors(t *testing.T) {
	mirror := &recordingMirror{}
	w := newWriter(t, WithMirror(mirror))
	body := bytes.Repeat([]byte("m"), 64)

	art, err := w.Save(context.Background(), "https://example.com/rules/part1.xml", "example.com", "text/xml", body)
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com/2022/part1.xml"}, mirror.paths)
	assert.Equal(t, body, mirror.bodies[0])
	assert.Equal(t, "mem://example.com/2022/part1.xml", art.MirrorURI)
}

func TestSaveMirrorFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	w, err := New(Config{Root: t.TempDir()}, md5.New(), staticYears("2021"), zap.New(core),
		WithMirror(&recordingMirror{err: errors.New("bucket gone")}))
	require.NoError(t, err)

	art, err := w.Save(context.Background(), "https://example.com/a.pdf", "example.com", "application/pdf", bytes.Repeat([]byte("a"), 80))
	require.NoError(t, err)
	assert.FileExists(t, art.Path)
	assert.Empty(t, art.MirrorURI)
	assert.Equal(t, 1, logs.FilterMessage("mirror upload failed").Len())
}

func TestDeriveFilename(t *testing.T) {
	hasher := md5.New()
	rootHash := hasher.Hash([]byte("https://example.com/"))

	tests := []struct {
		name        string
		url         string
		contentType string
		want        string
	}{
		{"keeps basename", "https://example.com/2022/doc.pdf", "application/pdf", "doc.pdf"},
		{"ignores query", "https://example.com/files/rule.xml?download=1", "", "rule.xml"},
		{"adds pdf extension", "https://example.com/getdoc", "application/pdf", "getdoc.pdf"},
		{"adds xml extension", "https://example.com/feed", "application/atom+xml", "feed.xml"},
		{"falls back to bin", "https://example.com/download", "application/octet-stream", "download.bin"},
		{"hashes empty path", "https://example.com/", "text/html", rootHash + ".bin"},
		{"hashes directory path", "https://example.com/docs/", "application/pdf", hasher.Hash([]byte("https://example.com/docs/")) + ".pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFilename(tt.url, tt.contentType, hasher)
			assert.Equal(t, tt.want, got)
			assert.False(t, strings.Contains(got, "/"))
		})
	}
}
