package cmd

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/standards-harvester/internal/archive"
	"github.com/JakeFAU/standards-harvester/internal/archive/gcs"
	"github.com/JakeFAU/standards-harvester/internal/config"
	"github.com/JakeFAU/standards-harvester/internal/eventlog"
	memlog "github.com/JakeFAU/standards-harvester/internal/eventlog/memory"
	pglog "github.com/JakeFAU/standards-harvester/internal/eventlog/postgres"
	pubsublog "github.com/JakeFAU/standards-harvester/internal/eventlog/pubsub"
	redislog "github.com/JakeFAU/standards-harvester/internal/eventlog/redis"
	"github.com/JakeFAU/standards-harvester/internal/frontier"
	memfrontier "github.com/JakeFAU/standards-harvester/internal/frontier/memory"
	redisfrontier "github.com/JakeFAU/standards-harvester/internal/frontier/redis"
)

// services holds the stateful infrastructure shared by the commands.
type services struct {
	frontier frontier.Frontier
	events   eventlog.Sink
	// reader is the most durable readable log: Postgres, then Redis, then memory.
	reader eventlog.Reader
	mirror archive.Mirror

	logger  *zap.Logger
	closers []func()
}

// buildServices connects to every configured backend. The caller must Close
// the result even when an error is returned.
func buildServices(ctx context.Context, cfg config.Config, logger *zap.Logger) (*services, error) {
	svc := &services{logger: logger}
	var sinks []eventlog.Sink

	switch cfg.Frontier.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Frontier.RedisAddr,
			Password: cfg.Frontier.RedisPassword,
			DB:       cfg.Frontier.RedisDB,
		})
		svc.addCloser("redis", func() error { return client.Close() })
		if err := client.Ping(ctx).Err(); err != nil {
			return svc, fmt.Errorf("redis ping %s: %w", cfg.Frontier.RedisAddr, err)
		}
		f, err := redisfrontier.New(client, redisfrontier.Config{
			QueueKey: cfg.Frontier.QueueKey,
			SeenKey:  cfg.Frontier.SeenKey,
		})
		if err != nil {
			return svc, fmt.Errorf("redis frontier: %w", err)
		}
		downloads, err := redislog.New(client, cfg.Frontier.DownloadsKey)
		if err != nil {
			return svc, fmt.Errorf("redis download log: %w", err)
		}
		svc.frontier = f
		svc.reader = downloads
		sinks = append(sinks, downloads)
	default:
		downloads := memlog.New()
		svc.frontier = memfrontier.New()
		svc.reader = downloads
		sinks = append(sinks, downloads)
	}

	if cfg.EventLog.PostgresDSN != "" {
		pg, err := pglog.New(ctx, pglog.Config{
			DSN:   cfg.EventLog.PostgresDSN,
			Table: cfg.EventLog.PostgresTable,
		})
		if err != nil {
			return svc, fmt.Errorf("postgres download log: %w", err)
		}
		svc.closers = append(svc.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return svc, fmt.Errorf("postgres schema: %w", err)
		}
		svc.reader = pg
		sinks = append(sinks, pg)
	}

	if cfg.EventLog.PubSubTopic != "" {
		client, err := pubsub.NewClient(ctx, cfg.EventLog.PubSubProject)
		if err != nil {
			return svc, fmt.Errorf("pubsub client: %w", err)
		}
		svc.addCloser("pubsub", client.Close)
		publisher, err := pubsublog.New(client.Topic(cfg.EventLog.PubSubTopic))
		if err != nil {
			return svc, fmt.Errorf("pubsub download log: %w", err)
		}
		// Registered after the client so the topic flushes first.
		svc.closers = append(svc.closers, publisher.Close)
		sinks = append(sinks, publisher)
	}

	if cfg.Mirror.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return svc, fmt.Errorf("gcs client: %w", err)
		}
		svc.addCloser("gcs", client.Close)
		mirror, err := gcs.New(client, gcs.Config{
			Bucket: cfg.Mirror.GCSBucket,
			Prefix: cfg.Mirror.Prefix,
		})
		if err != nil {
			return svc, fmt.Errorf("gcs mirror: %w", err)
		}
		svc.mirror = mirror
	}

	svc.events = eventlog.NewMulti(sinks...)
	logger.Info("services ready",
		zap.String("frontier", cfg.Frontier.Backend),
		zap.Int("download_sinks", len(sinks)),
		zap.Bool("gcs_mirror", svc.mirror != nil),
	)
	return svc, nil
}

func (s *services) addCloser(name string, closeFn func() error) {
	s.closers = append(s.closers, func() {
		if err := closeFn(); err != nil {
			s.logger.Warn("close failed", zap.String("service", name), zap.Error(err))
		}
	})
}

// Close releases backends in reverse order of construction.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
