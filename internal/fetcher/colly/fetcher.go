// Package collyfetcher implements the plain HTTP tiers using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/JakeFAU/standards-harvester/internal/fetcher"
)

// Config controls collector behavior.
type Config struct {
	// UserAgents is the pool a request's User-Agent is drawn from. When
	// empty, colly's random browser agent generator is used instead.
	UserAgents []string
	Timeout    time.Duration
	// MaxBodySize caps a response in bytes. A body that reaches it is
	// rejected with fetcher.ErrTruncated. Zero means unlimited.
	MaxBodySize int
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// Fetcher implements fetcher.HTTPFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

var _ fetcher.HTTPFetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	transport := cfg.Transport
	if transport == nil {
		transport = newRetryTransport(newHTTPTransport())
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)
	if len(cfg.UserAgents) == 0 {
		extensions.RandomUserAgent(c)
	}

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Redirects are followed; anything but a
// final 200 is reported as a *fetcher.StatusError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (fetcher.Document, error) {
	var (
		result   fetcher.Document
		fetchErr error
	)
	collector := f.buildCollector(rawURL, &result, &fetchErr)
	if err := f.runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return fetcher.Document{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(rawURL string, result *fetcher.Document, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	if len(f.cfg.UserAgents) == 0 {
		// Clone drops callbacks, so the random agent hook is re-registered.
		extensions.RandomUserAgent(collector)
	}
	f.configureCollectorHooks(collector, rawURL, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	rawURL string,
	result *fetcher.Document,
	fetchErr *error,
) {
	pool := f.cfg.UserAgents
	hooks.OnRequest(func(r *colly.Request) {
		if ua := fetcher.PickUserAgent(pool); ua != "" {
			r.Headers.Set("User-Agent", ua)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		if r.StatusCode != http.StatusOK {
			*fetchErr = &fetcher.StatusError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		// Colly cuts the body at MaxBodySize without reporting it.
		if limit := f.cfg.MaxBodySize; limit > 0 && len(r.Body) >= limit {
			*fetchErr = fmt.Errorf("%s: %w (%d bytes)", rawURL, fetcher.ErrTruncated, limit)
			return
		}
		doc := fetcher.Document{
			URL:        rawURL,
			FinalURL:   rawURL,
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
		if r.Headers != nil {
			doc.ContentType = r.Headers.Get("Content-Type")
		}
		if r.Request != nil && r.Request.URL != nil {
			doc.FinalURL = r.Request.URL.String()
		}
		*result = doc
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && r.StatusCode != http.StatusOK {
			*fetchErr = &fetcher.StatusError{URL: rawURL, StatusCode: r.StatusCode}
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, rawURL string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
