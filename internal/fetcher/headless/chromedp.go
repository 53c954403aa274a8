// Package headless renders pages in a shared headless Chrome via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/fetcher"
)

// ErrNotStarted is returned by Render before Start succeeds or after Close.
var ErrNotStarted = errors.New("renderer not started")

// Config controls the behavior of the headless renderer.
type Config struct {
	ExecPath          string
	UserAgents        []string
	NavigationTimeout time.Duration
	PreviewSelector   string
	PreviewTimeout    time.Duration
	Settle            time.Duration
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 120 * time.Second
	}
	if c.PreviewTimeout <= 0 {
		c.PreviewTimeout = 10 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	}
	if len(c.UserAgents) == 0 {
		c.UserAgents = fetcher.DefaultUserAgents
	}
	return c
}

// Renderer keeps one browser for the process and opens a fresh tab per page.
type Renderer struct {
	cfg    Config
	logger *zap.Logger

	mu              sync.Mutex
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc
}

var _ fetcher.Renderer = (*Renderer)(nil)

// New builds a Renderer. The browser is launched by Start.
func New(cfg Config, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{cfg: cfg.withDefaults(), logger: logger.Named("render")}
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// Start launches the browser. Calling Start on a running renderer is a no-op.
func (r *Renderer) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx != nil {
		return nil
	}
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(r.cfg)...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("chromedp warmup: %w", err)
	}
	r.allocatorCancel = allocatorCancel
	r.browserCtx = browserCtx
	r.browserCancel = browserCancel
	r.logger.Info("headless browser started")
	return nil
}

// Close tears down the browser and allocator.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx == nil {
		return nil
	}
	r.browserCancel()
	r.allocatorCancel()
	r.browserCtx = nil
	return nil
}

func (r *Renderer) browser() (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browserCtx == nil {
		return nil, ErrNotStarted
	}
	return r.browserCtx, nil
}

// Render opens rawURL in a new tab, waits for the network to go idle, clicks
// the preview control when present, lets the page settle and returns the
// document markup. The tab is closed before returning.
func (r *Renderer) Render(ctx context.Context, rawURL string) (fetcher.Document, error) {
	browserCtx, err := r.browser()
	if err != nil {
		return fetcher.Document{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	idle := make(chan struct{}, 1)
	meta := &responseMeta{}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventLifecycleEvent:
			if e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		case *network.EventResponseReceived:
			meta.capture(e)
		}
	})

	var (
		html     string
		finalURL string
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		page.Enable(),
		page.SetLifecycleEventsEnabled(true),
		emulation.SetUserAgentOverride(fetcher.PickUserAgent(r.cfg.UserAgents)),
		drain(idle),
		chromedp.Navigate(rawURL),
		waitNetworkIdle(idle),
		r.clickPreview(rawURL),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, tasks); err != nil {
		if ctx.Err() != nil {
			return fetcher.Document{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		return fetcher.Document{}, fmt.Errorf("chromedp run: %w", err)
	}

	if finalURL == "" {
		finalURL = rawURL
	}
	return fetcher.Document{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  meta.statusOr(200),
		ContentType: meta.contentType(),
		Body:        []byte(html),
		Tier:        fetcher.TierRendered,
	}, nil
}

// clickPreview waits briefly for the preview control and clicks it. Any
// failure is logged and swallowed.
func (r *Renderer) clickPreview(rawURL string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if r.cfg.PreviewSelector == "" {
			return nil
		}
		clickCtx, cancel := context.WithTimeout(ctx, r.cfg.PreviewTimeout)
		defer cancel()
		err := chromedp.Tasks{
			chromedp.WaitVisible(r.cfg.PreviewSelector, chromedp.ByQuery),
			chromedp.Click(r.cfg.PreviewSelector, chromedp.ByQuery),
		}.Do(clickCtx)
		if err != nil {
			r.logger.Debug("no preview control", zap.String("url", rawURL), zap.Error(err))
		}
		return nil
	})
}

func drain(idle chan struct{}) chromedp.Action {
	return chromedp.ActionFunc(func(context.Context) error {
		select {
		case <-idle:
		default:
		}
		return nil
	})
}

func waitNetworkIdle(idle <-chan struct{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		select {
		case <-idle:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("wait for network idle: %w", ctx.Err())
		}
	})
}

type responseMeta struct {
	mu     sync.Mutex
	status int
	ctype  string
}

func (m *responseMeta) capture(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeDocument || ev.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(ev.Response.Status)
	m.ctype = ev.Response.MimeType
}

func (m *responseMeta) statusOr(fallback int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == 0 {
		return fallback
	}
	return m.status
}

func (m *responseMeta) contentType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctype
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
