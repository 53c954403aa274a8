package gcs_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/standards-harvester/internal/archive/gcs"
)

func newTestMirror(t *testing.T, cfg gcs.Config, handler http.Handler) *gcs.Mirror {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	mirror, err := gcs.New(client, cfg)
	require.NoError(t, err)
	return mirror
}

func TestNewValidation(t *testing.T) {
	_, err := gcs.New(nil, gcs.Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = gcs.New(client, gcs.Config{Bucket: " "})
	assert.Error(t, err)
}

func TestPutObject(t *testing.T) {
	payload := "%PDF-1.4 mirrored artifact"
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/harvest-bucket/o")
		assert.Equal(t, "archive/example.com/2022/doc.pdf", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), payload)
		assert.Contains(t, string(body), "application/pdf")
		fmt.Fprintln(w, `{"name": "archive/example.com/2022/doc.pdf", "bucket": "harvest-bucket"}`)
	})

	mirror := newTestMirror(t, gcs.Config{Bucket: "harvest-bucket", Prefix: "/archive/"}, handler)
	uri, err := mirror.PutObject(context.Background(), "example.com/2022/doc.pdf", "application/pdf", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "gs://harvest-bucket/archive/example.com/2022/doc.pdf", uri)
}

func TestPutObjectErrors(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mirror := newTestMirror(t, gcs.Config{Bucket: "harvest-bucket"}, handler)

	_, err := mirror.PutObject(context.Background(), "example.com/2022/doc.pdf", "", strings.NewReader("data"))
	assert.Error(t, err)

	_, err = mirror.PutObject(context.Background(), "  ", "", strings.NewReader("data"))
	assert.Error(t, err)
}
