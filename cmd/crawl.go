package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/api"
	"github.com/JakeFAU/standards-harvester/internal/apisource"
	"github.com/JakeFAU/standards-harvester/internal/archive"
	"github.com/JakeFAU/standards-harvester/internal/classify"
	"github.com/JakeFAU/standards-harvester/internal/clock/system"
	"github.com/JakeFAU/standards-harvester/internal/config"
	"github.com/JakeFAU/standards-harvester/internal/crawler"
	"github.com/JakeFAU/standards-harvester/internal/fetcher"
	collyfetcher "github.com/JakeFAU/standards-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/standards-harvester/internal/fetcher/headless"
	"github.com/JakeFAU/standards-harvester/internal/hash/md5"
	"github.com/JakeFAU/standards-harvester/internal/id/uuid"
	"github.com/JakeFAU/standards-harvester/internal/metrics"
	"github.com/JakeFAU/standards-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/standards-harvester/internal/politeness"
	"github.com/JakeFAU/standards-harvester/internal/telemetry"
	"github.com/JakeFAU/standards-harvester/internal/yearres"
)

const serviceName = "standards-harvester"

func newCrawlCmd() *cobra.Command {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs the harvester until interrupted",
		Long: `Loads the seed list, derives the allowed domains from it, and crawls
until SIGINT or SIGTERM. Documents are archived as they are found and
every download is appended to the configured download logs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if seedFile != "" {
				rt.cfg.Crawler.SeedFile = seedFile
			}
			return runCrawl(cmd.Context(), rt.cfg, rt.logger)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seeds", "", "seed file, overriding crawler.seed_file")
	return cmd
}

func runCrawl(parent context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	svc, err := buildServices(ctx, cfg, logger)
	defer svc.Close()
	if err != nil {
		return err
	}

	session, err := buildSession(cfg, svc, logger)
	if err != nil {
		return err
	}

	tp, err := telemetry.InitTracerProvider(ctx, serviceName, session.RunID())
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	var srv *http.Server
	if cfg.Server.Enabled {
		apiServer := api.NewServer(session, svc.reader, svc.frontier, logger.Named("api"))
		srv = &http.Server{
			Addr:              cfg.Server.Addr(),
			Handler:           apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("http server started", zap.Int("port", cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	runErr := session.Run(ctx)
	logger.Info("shutdown initiated", zap.Any("stats", session.Stats()))

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run crawler: %w", runErr)
	}
	logger.Info("shutdown complete")
	return nil
}

func buildSession(cfg config.Config, svc *services, logger *zap.Logger) (*crawler.Session, error) {
	clock := system.New()
	deriver := politeness.Deriver{Mode: politeness.DomainMode(cfg.Politeness.DomainMode)}

	gate := politeness.NewGate(politeness.GateConfig{
		Timeout:     cfg.Politeness.RobotsTimeout,
		Policy:      politeness.InconclusivePolicy(cfg.Politeness.InconclusivePolicy),
		InsecureTLS: cfg.Politeness.InsecureTLS,
	}, deriver, logger)

	raw := collyfetcher.New(collyfetcher.Config{
		UserAgents:  cfg.Fetch.UserAgents,
		Timeout:     cfg.Fetch.Timeout,
		MaxBodySize: cfg.Fetch.MaxBodyBytes,
	})

	var (
		renderer fetcher.Renderer
		browser  crawler.Browser
	)
	if cfg.Render.Enabled {
		r := headless.New(headless.Config{
			ExecPath:          cfg.Render.ExecPath,
			UserAgents:        cfg.Fetch.UserAgents,
			NavigationTimeout: cfg.Render.NavTimeout,
			PreviewSelector:   cfg.Render.PreviewSelector,
			PreviewTimeout:    cfg.Render.PreviewTimeout,
			Settle:            cfg.Render.Settle,
		}, logger)
		renderer, browser = r, r
	}
	engine, err := fetcher.NewEngine(raw, renderer, logger)
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	var opts []archive.Option
	if svc.mirror != nil {
		opts = append(opts, archive.WithMirror(svc.mirror))
	}
	store, err := archive.New(archive.Config{
		Root:     cfg.Crawler.OutputDir,
		MinBytes: cfg.Crawler.MinFileBytes,
	}, md5.New(), yearres.NewResolver(clock), logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}

	var sources []crawler.Source
	if cfg.APISource.Enabled {
		limiter := ratelimit.New(ratelimit.Config{DefaultRPS: cfg.APISource.RPS, DefaultBurst: 1})
		client, err := apisource.New(apisource.Config{
			Endpoint: cfg.APISource.Endpoint,
			APIKey:   cfg.APISource.APIKey,
			Sort:     cfg.APISource.Sort,
			PageSize: cfg.APISource.PageSize,
			MaxPages: cfg.APISource.MaxPages,
			Timeout:  cfg.APISource.Timeout,
		}, nil, limiter, logger)
		if err != nil {
			return nil, fmt.Errorf("init api source: %w", err)
		}
		sources = append(sources, client)
	}

	session, err := crawler.New(crawler.Config{
		SeedFile:    cfg.Crawler.SeedFile,
		DelayMean:   cfg.Crawler.DelayMean,
		DelayStdDev: cfg.Crawler.DelayStdDev,
		DelayFloor:  cfg.Crawler.DelayFloor,
		EmptyWait:   cfg.Crawler.EmptyWait,
		Shuffle:     cfg.Crawler.Shuffle,
	}, crawler.Deps{
		Frontier:  svc.frontier,
		Gate:      gate,
		Fetcher:   engine,
		Validator: classify.NewValidator(logger),
		Archive:   store,
		Events:    svc.events,
		Deriver:   deriver,
		Clock:     clock,
		IDs:       uuid.New(),
		Browser:   browser,
		Sources:   sources,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}
	return session, nil
}
