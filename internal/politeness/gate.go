package politeness

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/metrics"
)

// Verdict is the outcome of a robots exclusion check.
type Verdict int

const (
	// Inconclusive means robots.txt could not be fetched or parsed.
	Inconclusive Verdict = iota
	// Allowed means the rules permit the wildcard agent to fetch the URL.
	Allowed
	// Denied means the rules exclude the URL.
	Denied
)

func (v Verdict) String() string {
	switch v {
	case Allowed:
		return "allowed"
	case Denied:
		return "denied"
	default:
		return "inconclusive"
	}
}

// InconclusivePolicy decides what CanFetch does with an Inconclusive verdict.
type InconclusivePolicy string

const (
	// InconclusiveAllow proceeds with the crawl and logs the failure.
	InconclusiveAllow InconclusivePolicy = "allow"
	// InconclusiveDeny skips the URL.
	InconclusiveDeny InconclusivePolicy = "deny"
)

// GateConfig configures robots evaluation.
type GateConfig struct {
	Timeout     time.Duration
	Policy      InconclusivePolicy
	InsecureTLS bool
	// UserAgent is the robots group evaluated; "*" unless overridden.
	UserAgent string
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithHTTPClient replaces the robots HTTP client.
func WithHTTPClient(client *http.Client) GateOption {
	return func(g *Gate) {
		if client != nil {
			g.client = client
		}
	}
}

// WithRobotsLocator overrides where the robots file for a domain lives.
func WithRobotsLocator(locate func(domain string) string) GateOption {
	return func(g *Gate) {
		if locate != nil {
			g.locate = locate
		}
	}
}

// Gate evaluates robots.txt of a URL's registrable domain. Parsed files are
// cached per domain for the life of the process; failures are not cached.
type Gate struct {
	cfg     GateConfig
	deriver Deriver
	client  *http.Client
	locate  func(domain string) string
	cache   sync.Map
	logger  *zap.Logger
}

// NewGate builds a Gate.
func NewGate(cfg GateConfig, deriver Deriver, logger *zap.Logger, opts ...GateOption) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Policy == "" {
		cfg.Policy = InconclusiveAllow
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "*"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureTLS {
		// Misconfigured certificates are common on standards sites.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // crawl completeness over transport validation
	}
	g := &Gate{
		cfg:     cfg,
		deriver: deriver,
		client:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		locate:  defaultRobotsURL,
		logger:  logger.Named("robots"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func defaultRobotsURL(domain string) string {
	return "https://" + domain + "/robots.txt"
}

// Check evaluates rawURL against its domain's robots file.
func (g *Gate) Check(ctx context.Context, rawURL string) Verdict {
	verdict := g.check(ctx, rawURL)
	metrics.ObserveRobots(verdict.String())
	return verdict
}

func (g *Gate) check(ctx context.Context, rawURL string) Verdict {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		g.logger.Warn("robots check on unparseable url", zap.String("url", rawURL), zap.Error(err))
		return Inconclusive
	}
	domain := g.deriver.Derive(rawURL)
	if domain == "" {
		g.logger.Warn("robots check without host", zap.String("url", rawURL))
		return Inconclusive
	}
	data, err := g.load(ctx, domain)
	if err != nil {
		g.logger.Warn("robots check failed", zap.String("domain", domain), zap.Error(err))
		return Inconclusive
	}
	if data.TestAgent(parsed.RequestURI(), g.cfg.UserAgent) {
		return Allowed
	}
	return Denied
}

// CanFetch applies the configured inconclusive policy to Check.
func (g *Gate) CanFetch(ctx context.Context, rawURL string) bool {
	switch g.Check(ctx, rawURL) {
	case Allowed:
		return true
	case Denied:
		return false
	default:
		if g.cfg.Policy == InconclusiveDeny {
			g.logger.Info("skipping url after inconclusive robots check", zap.String("url", rawURL))
			return false
		}
		g.logger.Info("allowing url after inconclusive robots check", zap.String("url", rawURL))
		return true
	}
}

func (g *Gate) load(ctx context.Context, domain string) (*robotstxt.RobotsData, error) {
	if data, ok := g.cache.Load(domain); ok {
		cached, assertOK := data.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", data)
		}
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.locate(domain), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			g.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	g.cache.Store(domain, data)
	return data, nil
}
