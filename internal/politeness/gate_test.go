package politeness

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func robotsServer(t *testing.T, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGateEvaluatesWildcardGroup(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := robotsServer(t, "User-agent: *\nDisallow: /private\n", &hits)
	var requested []string
	gate := NewGate(
		GateConfig{InsecureTLS: true, Timeout: time.Second},
		Deriver{Mode: DomainModePublicSuffix},
		zap.NewNop(),
		WithRobotsLocator(func(domain string) string {
			requested = append(requested, domain)
			return srv.URL + "/robots.txt"
		}),
	)

	ctx := context.Background()
	assert.Equal(t, Allowed, gate.Check(ctx, "https://www.example.com/public/doc.pdf"))
	assert.Equal(t, Denied, gate.Check(ctx, "https://docs.example.com/private/doc.pdf"))
	assert.True(t, gate.CanFetch(ctx, "https://example.com/"))
	assert.False(t, gate.CanFetch(ctx, "https://example.com/private"))

	assert.Equal(t, int32(1), hits.Load(), "robots file should be fetched once per domain")
	assert.Equal(t, []string{"example.com"}, requested)
}

func TestGateRejectsUntrustedCertWhenStrict(t *testing.T) {
	t.Parallel()

	srv := robotsServer(t, "User-agent: *\nDisallow: /\n", nil)
	gate := NewGate(
		GateConfig{InsecureTLS: false, Timeout: time.Second},
		Deriver{},
		zap.NewNop(),
		WithRobotsLocator(func(string) string { return srv.URL + "/robots.txt" }),
	)
	assert.Equal(t, Inconclusive, gate.Check(context.Background(), "https://example.com/x"))
}

func TestGateInconclusivePolicies(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	deadURL := srv.URL
	srv.Close()

	core, logs := observer.New(zap.InfoLevel)
	locator := WithRobotsLocator(func(string) string { return deadURL + "/robots.txt" })

	allow := NewGate(GateConfig{Timeout: time.Second}, Deriver{}, zap.New(core), locator)
	assert.Equal(t, Inconclusive, allow.Check(context.Background(), "https://example.com/a"))
	assert.True(t, allow.CanFetch(context.Background(), "https://example.com/a"))
	assert.NotZero(t, logs.FilterMessage("robots check failed").Len())
	assert.NotZero(t, logs.FilterMessage("allowing url after inconclusive robots check").Len())

	deny := NewGate(GateConfig{Timeout: time.Second, Policy: InconclusiveDeny}, Deriver{}, zap.NewNop(), locator)
	assert.False(t, deny.CanFetch(context.Background(), "https://example.com/a"))
}

func TestGateDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if fail.Load() {
			// Hijack and drop the connection so the fetch itself errors.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			_ = conn.Close()
			return
		}
		fmt.Fprint(w, "User-agent: *\nAllow: /\n")
	}))
	defer srv.Close()

	gate := NewGate(GateConfig{Timeout: time.Second}, Deriver{}, zap.NewNop(),
		WithRobotsLocator(func(string) string { return srv.URL + "/robots.txt" }))
	ctx := context.Background()

	assert.Equal(t, Inconclusive, gate.Check(ctx, "https://example.com/x"))
	fail.Store(false)
	assert.Equal(t, Allowed, gate.Check(ctx, "https://example.com/x"))
}

func TestGateInvalidURL(t *testing.T) {
	t.Parallel()

	gate := NewGate(GateConfig{}, Deriver{}, zap.NewNop())
	assert.Equal(t, Inconclusive, gate.Check(context.Background(), "http://%zz"))
	assert.Equal(t, "inconclusive", Inconclusive.String())
	assert.Equal(t, "allowed", Allowed.String())
	assert.Equal(t, "denied", Denied.String())
}
