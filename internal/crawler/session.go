package crawler

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/eventlog"
	"github.com/JakeFAU/standards-harvester/internal/fetcher"
	"github.com/JakeFAU/standards-harvester/internal/frontier"
	"github.com/JakeFAU/standards-harvester/internal/metrics"
	"github.com/JakeFAU/standards-harvester/internal/politeness"
	"github.com/JakeFAU/standards-harvester/internal/telemetry"
)

// State is a phase of the session lifecycle.
type State int32

// Session states, in lifecycle order.
const (
	StateInit State = iota
	StateSeeding
	StateCrawling
	StateEmptyWait
	StateStopped
)

var stateNames = map[State]string{
	StateInit:      "INIT",
	StateSeeding:   "SEEDING",
	StateCrawling:  "CRAWLING",
	StateEmptyWait: "EMPTY_WAIT",
	StateStopped:   "STOPPED",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Deps are the collaborators a Session drives. Browser, Sources and Rand
// are optional.
type Deps struct {
	Frontier  frontier.Frontier
	Gate      Gate
	Fetcher   Fetcher
	Validator Validator
	Archive   Archive
	Events    eventlog.Sink
	Deriver   politeness.Deriver
	Clock     Clock
	IDs       IDGenerator
	Browser   Browser
	Sources   []Source
	Rand      *rand.Rand
	Logger    *zap.Logger
}

// Stats is a point-in-time view of a session.
type Stats struct {
	RunID          string    `json:"run_id"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"started_at"`
	Processed      int64     `json:"processed"`
	Succeeded      int64     `json:"succeeded"`
	Saved          int64     `json:"saved"`
	Rejected       int64     `json:"rejected"`
	AllowedDomains []string  `json:"allowed_domains"`
}

// Session is one crawl run. It owns the allow-list and the state machine;
// everything else is reached through Deps.
type Session struct {
	cfg       Config
	runID     string
	startedAt time.Time

	frontier  frontier.Frontier
	gate      Gate
	fetcher   Fetcher
	validator Validator
	archive   Archive
	events    eventlog.Sink
	deriver   politeness.Deriver
	clock     Clock
	browser   Browser
	sources   []Source
	logger    *zap.Logger
	tracer    trace.Tracer

	rngMu sync.Mutex
	rng   *rand.Rand

	allowedMu sync.RWMutex
	allowed   politeness.AllowedDomains

	state     atomic.Int32
	processed atomic.Int64
	succeeded atomic.Int64
	saved     atomic.Int64
	rejected  atomic.Int64
}

// New validates cfg and deps and returns a Session in StateInit.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	switch {
	case deps.Frontier == nil:
		return nil, fmt.Errorf("frontier is required")
	case deps.Gate == nil:
		return nil, fmt.Errorf("politeness gate is required")
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Validator == nil:
		return nil, fmt.Errorf("validator is required")
	case deps.Archive == nil:
		return nil, fmt.Errorf("archive is required")
	case deps.Events == nil:
		return nil, fmt.Errorf("event log is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	runID, err := deps.IDs.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rng := deps.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // jitter only
	}
	s := &Session{
		cfg:       cfg,
		runID:     runID,
		startedAt: deps.Clock.Now(),
		frontier:  deps.Frontier,
		gate:      deps.Gate,
		fetcher:   deps.Fetcher,
		validator: deps.Validator,
		archive:   deps.Archive,
		events:    deps.Events,
		deriver:   deps.Deriver,
		clock:     deps.Clock,
		browser:   deps.Browser,
		sources:   deps.Sources,
		rng:       rng,
		logger:    logger.Named("crawler").With(zap.String("run_id", runID)),
		tracer:    otel.Tracer(telemetry.TracerName),
	}
	s.state.Store(int32(StateInit))
	return s, nil
}

// RunID identifies this session.
func (s *Session) RunID() string {
	return s.runID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Debug("state change", zap.Stringer("from", prev), zap.Stringer("to", next))
	}
}

// AllowedDomains returns the allow-list computed during seeding.
func (s *Session) AllowedDomains() politeness.AllowedDomains {
	s.allowedMu.RLock()
	defer s.allowedMu.RUnlock()
	return s.allowed
}

// Stats reports counters for the status server.
func (s *Session) Stats() Stats {
	return Stats{
		RunID:          s.runID,
		State:          s.State().String(),
		StartedAt:      s.startedAt,
		Processed:      s.processed.Load(),
		Succeeded:      s.succeeded.Load(),
		Saved:          s.saved.Load(),
		Rejected:       s.rejected.Load(),
		AllowedDomains: s.AllowedDomains().List(),
	}
}

// Run drives the session until ctx is cancelled. Start-up failures
// (browser launch, frontier reset, unreadable seed file) are returned
// immediately; after that, per-URL failures are logged and the loop goes
// on. The returned error wraps ctx.Err() on a normal stop.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	if err := s.init(ctx); err != nil {
		return err
	}
	if err := s.seed(ctx); err != nil {
		return err
	}

	s.setState(StateCrawling)
	s.logger.Info("starting crawl loop")
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("crawl stopped: %w", err)
		}
		url, ok, err := s.frontier.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("dequeue failed", zap.Error(err))
			s.idle(ctx)
			continue
		}
		if !ok {
			s.logger.Info("frontier is empty; waiting", zap.Duration("wait", s.cfg.EmptyWait))
			s.idle(ctx)
			continue
		}
		if !s.ProcessURL(ctx, url) {
			s.logger.Warn("failed to process url", zap.String("url", url))
		}
	}
}

func (s *Session) idle(ctx context.Context) {
	s.setState(StateEmptyWait)
	s.clock.Sleep(ctx, s.cfg.EmptyWait)
	if ctx.Err() == nil {
		s.setState(StateCrawling)
	}
}

func (s *Session) init(ctx context.Context) error {
	s.logger.Info("initializing session")
	if s.browser != nil {
		if err := s.browser.Start(ctx); err != nil {
			return fmt.Errorf("start browser: %w", err)
		}
	}
	if err := s.frontier.Reset(ctx); err != nil {
		return fmt.Errorf("reset frontier: %w", err)
	}
	return nil
}

func (s *Session) seed(ctx context.Context) error {
	s.setState(StateSeeding)
	seeds, err := ReadSeeds(s.cfg.SeedFile)
	if err != nil {
		return err
	}
	if s.cfg.Shuffle {
		s.rngMu.Lock()
		s.rng.Shuffle(len(seeds), func(i, j int) { seeds[i], seeds[j] = seeds[j], seeds[i] })
		s.rngMu.Unlock()
	}

	allowed := politeness.NewAllowedDomains(s.deriver, seeds)
	s.allowedMu.Lock()
	s.allowed = allowed
	s.allowedMu.Unlock()
	s.logger.Info("allowed domains", zap.Strings("domains", allowed.List()))

	for _, url := range seeds {
		if _, err := s.enqueue(ctx, url); err != nil {
			return fmt.Errorf("seed %s: %w", url, err)
		}
	}
	s.logger.Info("seeded frontier", zap.Int("seeds", len(seeds)))

	for _, src := range s.sources {
		urls, err := src.Documents(ctx)
		if err != nil {
			s.logger.Warn("document source failed", zap.Int("partial", len(urls)), zap.Error(err))
		}
		added := 0
		for _, url := range urls {
			ok, err := s.enqueue(ctx, url)
			if err != nil {
				s.logger.Warn("failed to enqueue source document", zap.String("url", url), zap.Error(err))
				continue
			}
			if ok {
				added++
			}
		}
		s.logger.Info("seeded from document source", zap.Int("listed", len(urls)), zap.Int("added", added))
	}
	return nil
}

func (s *Session) teardown() {
	s.setState(StateStopped)
	if s.browser != nil {
		if err := s.browser.Close(); err != nil {
			s.logger.Warn("failed to close browser", zap.Error(err))
		}
	}
	s.logger.Info("session stopped",
		zap.Int64("processed", s.processed.Load()),
		zap.Int64("saved", s.saved.Load()))
}

// enqueue admits url at the head when it is a direct document and at the
// tail otherwise.
func (s *Session) enqueue(ctx context.Context, url string) (bool, error) {
	priority := PriorityFor(url)
	added, err := s.frontier.Enqueue(ctx, url, priority)
	if err != nil {
		return false, fmt.Errorf("enqueue: %w", err)
	}
	metrics.ObserveEnqueue(priority.String(), added)
	if added {
		s.logger.Debug("added to queue", zap.String("url", url), zap.Stringer("priority", priority))
	}
	return added, nil
}

// PriorityFor returns the frontier priority of url.
func PriorityFor(url string) frontier.Priority {
	if fetcher.IsDocumentURL(url) {
		return frontier.PriorityHead
	}
	return frontier.PriorityTail
}

// politeDelay draws the pre-fetch delay.
func (s *Session) politeDelay() time.Duration {
	s.rngMu.Lock()
	n := s.rng.NormFloat64()
	s.rngMu.Unlock()
	d := s.cfg.DelayMean + time.Duration(n*float64(s.cfg.DelayStdDev))
	return max(d, s.cfg.DelayFloor)
}
