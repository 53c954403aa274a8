package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

var retryBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// retryTransport retries bodiless requests that fail on a slow TLS handshake
// or a dial timeout. Any other error, and any response, is returned as is.
type retryTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
}

func newRetryTransport(base http.RoundTripper) *retryTransport {
	return &retryTransport{base: base, backoff: retryBackoff}
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("retry transport received nil request")
	}
	if req.Body != nil && req.Body != http.NoBody {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("retry transport roundtrip: %w", err)
		}
		return resp, nil
	}

	var lastErr error
	for attempt := 0; attempt <= len(t.backoff); attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !isTransientTLSError(err) || attempt == len(t.backoff) {
			break
		}
		metrics.ObserveTransportRetry(req.URL.Host)
		if err := sleepWithContext(req.Context(), t.backoff[attempt]); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("retry transport roundtrip: %w", lastErr)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff sleep: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func isTransientTLSError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout") ||
		strings.Contains(err.Error(), "TLS handshake timeout")
}
