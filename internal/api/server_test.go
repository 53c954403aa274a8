package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/standards-harvester/internal/crawler"
	"github.com/JakeFAU/standards-harvester/internal/eventlog"
	"github.com/JakeFAU/standards-harvester/internal/eventlog/memory"
	"github.com/JakeFAU/standards-harvester/internal/frontier"
	memfrontier "github.com/JakeFAU/standards-harvester/internal/frontier/memory"
)

type fakeSession struct {
	stats crawler.Stats
}

func (f fakeSession) Stats() crawler.Stats { return f.stats }

type brokenFrontier struct{}

func (brokenFrontier) Len(context.Context) (int64, error) { return 0, errors.New("redis down") }

type brokenReader struct{}

func (brokenReader) Recent(context.Context, int) ([]eventlog.Entry, error) {
	return nil, errors.New("boom")
}

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, memfrontier.New(), zap.NewNop())

	rec := serve(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(t, s, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)

	down := NewServer(nil, nil, brokenFrontier{}, zap.NewNop())
	rec = serve(t, down, "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusReportsSessionStats(t *testing.T) {
	t.Parallel()

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	session := fakeSession{stats: crawler.Stats{
		RunID:          "run-1",
		State:          "CRAWLING",
		StartedAt:      started,
		Processed:      7,
		Saved:          3,
		AllowedDomains: []string{"example.com"},
	}}
	s := NewServer(session, nil, nil, zap.NewNop())

	rec := serve(t, s, "/v1/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got crawler.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, int64(3), got.Saved)
	assert.True(t, started.Equal(got.StartedAt))

	empty := NewServer(nil, nil, nil, zap.NewNop())
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, empty, "/v1/status").Code)
}

func TestDownloadsNewestFirstWithLimit(t *testing.T) {
	t.Parallel()

	log := memory.New()
	ctx := context.Background()
	for i, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		require.NoError(t, log.Record(ctx, eventlog.Entry{
			Timestamp: time.Unix(int64(i), 0).UTC(),
			URL:       "https://example.com/" + name,
			Domain:    "example.com",
			Year:      "2020",
			FilePath:  "example.com/2020/" + name,
		}))
	}
	s := NewServer(nil, log, nil, zap.NewNop())

	rec := serve(t, s, "/v1/downloads?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Downloads []eventlog.Entry `json:"downloads"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "https://example.com/c.pdf", body.Downloads[0].URL)
	assert.Equal(t, "https://example.com/b.pdf", body.Downloads[1].URL)
}

func TestDownloadsErrors(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := NewServer(nil, brokenReader{}, nil, zap.New(core))

	assert.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/downloads?limit=zero").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/downloads?limit=-4").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, s, "/v1/downloads").Code)
	assert.Equal(t, 1, logs.FilterMessage("list downloads failed").Len())

	unreadable := NewServer(nil, nil, nil, zap.NewNop())
	assert.Equal(t, http.StatusNotFound, serve(t, unreadable, "/v1/downloads").Code)
}

func TestFrontierDepth(t *testing.T) {
	t.Parallel()

	f := memfrontier.New()
	ctx := context.Background()
	_, err := f.Enqueue(ctx, "https://example.com/a.pdf", frontier.PriorityHead)
	require.NoError(t, err)
	_, err = f.Enqueue(ctx, "https://example.com/", frontier.PriorityTail)
	require.NoError(t, err)

	rec := serve(t, NewServer(nil, nil, f, zap.NewNop()), "/v1/frontier")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pending":2}`, rec.Body.String())

	rec = serve(t, NewServer(nil, nil, brokenFrontier{}, zap.NewNop()), "/v1/frontier")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, zap.NewNop())
	_ = serve(t, s, "/healthz")

	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.ErrorLevel)
	s := NewServer(nil, nil, nil, zap.New(core))
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestParseLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{"", defaultDownloadsLimit, false},
		{"10", 10, false},
		{"5000", maxDownloadsLimit, false},
		{"0", 0, true},
		{"ten", 0, true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw)
		if tt.wantErr {
			assert.Error(t, err, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestLoggingMiddlewareRecordsStatus(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	s := NewServer(nil, nil, nil, zap.New(core))

	rec := serve(t, s, "/v1/status")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusServiceUnavailable), fields["status"])
	assert.Equal(t, "/v1/status", fields["path"])
	assert.NotEmpty(t, fields["request_id"])
}
