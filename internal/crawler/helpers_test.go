package crawler

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/archive"
	"github.com/JakeFAU/standards-harvester/internal/classify"
	"github.com/JakeFAU/standards-harvester/internal/eventlog/memory"
	"github.com/JakeFAU/standards-harvester/internal/fetcher"
	memfrontier "github.com/JakeFAU/standards-harvester/internal/frontier/memory"
	"github.com/JakeFAU/standards-harvester/internal/hash/md5"
	"github.com/JakeFAU/standards-harvester/internal/politeness"
	"github.com/JakeFAU/standards-harvester/internal/yearres"
)

// testEmptyWait is distinct from every politeness delay the tests draw, so
// the fake clock can recognise the idle sleep.
const testEmptyWait = 7 * time.Minute

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// idleStops cancels the run on the n-th idle sleep.
	idleStops int
	idles     int
	cancel    context.CancelFunc
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), idleStops: 1}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	if d == testEmptyWait {
		c.idles++
		if c.cancel != nil && c.idles >= c.idleStops {
			c.cancel()
		}
	}
}

func (c *fakeClock) delays() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, d := range c.sleeps {
		if d != testEmptyWait {
			out = append(out, d)
		}
	}
	return out
}

type fakeGate struct {
	denied map[string]bool
}

func (g fakeGate) CanFetch(_ context.Context, url string) bool {
	return !g.denied[url]
}

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]fetcher.Document
	pages map[string]fetcher.Document
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{docs: map[string]fetcher.Document{}, pages: map[string]fetcher.Document{}}
}

var errNotFound = errors.New("not found")

func (f *fakeFetcher) FetchDocument(_ context.Context, url string) (fetcher.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "doc "+url)
	doc, ok := f.docs[url]
	if !ok {
		return fetcher.Document{}, &fetcher.StatusError{URL: url, StatusCode: 404}
	}
	doc.URL = url
	doc.Tier = fetcher.TierDirect
	return doc, nil
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (fetcher.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "page "+url)
	doc, ok := f.pages[url]
	if !ok {
		return fetcher.Document{}, errNotFound
	}
	doc.URL = url
	doc.Tier = fetcher.TierRendered
	return doc, nil
}

func (f *fakeFetcher) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeBrowser struct {
	startErr error
	started  bool
	closed   bool
}

func (b *fakeBrowser) Start(context.Context) error {
	b.started = true
	return b.startErr
}

func (b *fakeBrowser) Close() error {
	b.closed = true
	return nil
}

type staticIDs string

func (s staticIDs) NewID() (string, error) { return string(s), nil }

type staticSource struct {
	urls []string
	err  error
}

func (s staticSource) Documents(context.Context) ([]string, error) { return s.urls, s.err }

type harness struct {
	root     string
	frontier *memfrontier.Frontier
	fetcher  *fakeFetcher
	clock    *fakeClock
	events   *memory.Log
	browser  *fakeBrowser
	deps     Deps
	cfg      Config
}

func newHarness(t *testing.T, seeds ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	seedFile := filepath.Join(dir, "urls_to_crawl.txt")
	require.NoError(t, os.WriteFile(seedFile, []byte(strings.Join(seeds, "\n")+"\n"), 0o600))

	clock := newFakeClock()
	root := filepath.Join(dir, "downloads")
	writer, err := archive.New(archive.Config{Root: root}, md5.New(), yearres.NewResolver(clock), zap.NewNop())
	require.NoError(t, err)

	h := &harness{
		root:     root,
		frontier: memfrontier.New(),
		fetcher:  newFakeFetcher(),
		clock:    clock,
		events:   memory.New(),
		browser:  &fakeBrowser{},
		cfg: Config{
			SeedFile:    seedFile,
			DelayMean:   3 * time.Second,
			DelayStdDev: time.Second,
			DelayFloor:  2 * time.Second,
			EmptyWait:   testEmptyWait,
		},
	}
	h.deps = Deps{
		Frontier:  h.frontier,
		Gate:      fakeGate{},
		Fetcher:   h.fetcher,
		Validator: classify.NewValidator(zap.NewNop()),
		Archive:   writer,
		Events:    h.events,
		Deriver:   politeness.Deriver{Mode: politeness.DomainModePublicSuffix},
		Clock:     clock,
		IDs:       staticIDs("run-test"),
		Browser:   h.browser,
		Rand:      rand.New(rand.NewPCG(1, 2)),
		Logger:    zap.NewNop(),
	}
	return h
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s, err := New(h.cfg, h.deps)
	require.NoError(t, err)
	return s
}

// run executes the session until the first idle wait.
func (h *harness) run(t *testing.T, s *Session) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	h.clock.mu.Lock()
	h.clock.cancel = cancel
	h.clock.mu.Unlock()
	return s.Run(ctx)
}
