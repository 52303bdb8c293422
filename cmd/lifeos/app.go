package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/lifeos/config"
	"github.com/mohammad-safakhou/lifeos/internal/agents"
	"github.com/mohammad-safakhou/lifeos/internal/cache"
	"github.com/mohammad-safakhou/lifeos/internal/classify"
	"github.com/mohammad-safakhou/lifeos/internal/credentials"
	"github.com/mohammad-safakhou/lifeos/internal/dispatch"
	"github.com/mohammad-safakhou/lifeos/internal/executor"
	"github.com/mohammad-safakhou/lifeos/internal/inference"
	"github.com/mohammad-safakhou/lifeos/internal/logging"
	"github.com/mohammad-safakhou/lifeos/internal/perception"
	"github.com/mohammad-safakhou/lifeos/internal/pipeline"
	"github.com/mohammad-safakhou/lifeos/internal/queue/streams"
	"github.com/mohammad-safakhou/lifeos/internal/router"
	"github.com/mohammad-safakhou/lifeos/internal/search"
	"github.com/mohammad-safakhou/lifeos/internal/store"
	"github.com/mohammad-safakhou/lifeos/internal/telemetry"
	"github.com/mohammad-safakhou/lifeos/provider"
	"github.com/mohammad-safakhou/lifeos/tools/web_fetch"
	"github.com/mohammad-safakhou/lifeos/tools/web_search"
)

const memoryCacheEntries = 10_000

// recordBackend is everything the process persists: records, action items
// and sealed credentials.
type recordBackend interface {
	store.RecordStore
	executor.ItemStore
	credentials.Backend
}

// app holds the wired process dependencies shared by serve and worker.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *telemetry.Metrics
	store    recordBackend
	health   func(ctx context.Context) error
	rdb      redis.UniversalClient
	index    *search.Index
	registry *streams.SchemaRegistry
	pipeline *pipeline.Pipeline

	closers []func()
}

func loadConfig(path string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if cfg.Telemetry.Enabled {
		a.metrics = telemetry.New()
	}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	if cfg.Pipeline.Mode == "queue" || cfg.Storage.Cache == "redis" {
		rc := cfg.Storage.Redis
		a.rdb = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       []string{rc.Addr()},
			Password:    rc.Password,
			DB:          rc.DB,
			DialTimeout: rc.Timeout,
		})
		a.closers = append(a.closers, func() { _ = a.rdb.Close() })
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis connection failed (%s): %w", rc.Addr(), err)
		}
		if a.registry, err = streams.NewBaseRegistry(); err != nil {
			return nil, err
		}
		logger.Debug("stream schemas registered", zap.Strings("schemas", a.registry.Known()))
	}

	fpCache, err := a.fingerprintCache()
	if err != nil {
		return nil, err
	}

	svc, err := provider.NewProvider(ctx, cfg.Inference)
	if err != nil {
		return nil, err
	}
	engine := inference.NewEngine(
		inference.NewLimited(svc, cfg.Inference.RequestsPerSecond, cfg.Inference.Burst),
		inference.WithMaxRetries(cfg.Pipeline.MaxRetries),
		inference.WithBackoffBase(cfg.Pipeline.BackoffBase),
		inference.WithLogger(logger.Named("inference")),
		inference.WithMetrics(a.metrics),
	)

	var tokens executor.TokenSource
	if cfg.Credentials.SecretKey != "" {
		creds, err := credentials.New(a.store, cfg.Credentials.SecretKey, credentials.WithLogger(logger.Named("credentials")))
		if err != nil {
			return nil, err
		}
		tokens = creds
	}
	actions, err := executor.FromConfig(cfg.Executors, a.store, tokens,
		executor.WithMetrics(a.metrics), executor.WithLogger(logger.Named("executor")))
	if err != nil {
		return nil, err
	}

	var pacer dispatch.Pacer = dispatch.NoDelay{}
	if cfg.Pipeline.InterHandlerDelay > 0 {
		pacer = dispatch.NewLimiter(cfg.Pipeline.InterHandlerDelay, 1)
	}
	dispatcher := dispatch.New(dispatch.WithPacer(pacer), dispatch.WithLogger(logger.Named("dispatch")))

	searcher, err := web_search.FromConfig(cfg.Sources.WebSearch)
	if err != nil && !errors.Is(err, web_search.ErrNotConfigured) {
		return nil, err
	}
	fetcher, err := web_fetch.FromConfig(cfg.Sources.Fetch)
	if err != nil {
		return nil, err
	}

	if a.index, err = search.Open(cfg.Storage.IndexPath, logger.Named("search")); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.index.Close() })

	a.pipeline = pipeline.New(
		a.store,
		perception.New(engine, fpCache, cfg.Pipeline.CacheMaxAge,
			perception.WithLogger(logger.Named("perception")), perception.WithMetrics(a.metrics)),
		classify.New(engine, logger.Named("classify")),
		router.New(actions, engine,
			router.WithEventDuration(cfg.Pipeline.DefaultEventDuration), router.WithLogger(logger.Named("router"))),
		dispatcher,
		pipeline.WithIndexer(a.index),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithEnrichmentTimeout(cfg.Pipeline.EnrichmentTimeout),
	)
	a.pipeline.RegisterAgents(agents.Default(agents.Deps{
		Inference:  engine,
		Searcher:   searcher,
		Fetcher:    fetcher,
		Logger:     logger.Named("agents"),
		MaxResults: cfg.Sources.WebSearch.MaxResults,
	}))
	return a, nil
}

// openStore connects to Postgres when configured and otherwise keeps records
// in memory for the life of the process.
func (a *app) openStore(ctx context.Context) error {
	pg := a.cfg.Storage.Postgres
	if !pg.Configured() {
		a.logger.Warn("storage.postgres not configured, records are kept in memory")
		a.store = store.NewMemory()
		return nil
	}
	dsn := pg.DSN()
	if a.cfg.Server.MigrateOnStart {
		if err := store.Migrate(store.DefaultMigrationsDir, dsn, "up", 0); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	st, err := store.NewWithDSN(ctx, dsn)
	if err != nil {
		return err
	}
	a.store, a.health = st, st.Ping
	a.closers = append(a.closers, func() { _ = st.Close() })
	return nil
}

func (a *app) fingerprintCache() (cache.Cache, error) {
	switch a.cfg.Storage.Cache {
	case "none":
		return cache.Nop{}, nil
	case "redis":
		return cache.NewRedis(a.rdb, a.cfg.Pipeline.CacheMaxAge, a.logger.Named("cache")), nil
	default:
		mem, err := cache.NewMemory(memoryCacheEntries, a.cfg.Pipeline.CacheMaxAge, a.logger.Named("cache"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, mem.Close)
		return mem, nil
	}
}

func (a *app) sweeper() (*pipeline.Sweeper, error) {
	opts := []pipeline.SweeperOption{
		pipeline.WithSweepMetrics(a.metrics),
		pipeline.WithSweepLogger(a.logger.Named("sweeper")),
	}
	if a.rdb != nil {
		opts = append(opts, pipeline.WithSweepLock(a.rdb))
	}
	return pipeline.NewSweeper(a.store, a.cfg.Pipeline.SweepCron, a.cfg.Pipeline.StaleAfter, a.cfg.Pipeline.EnrichmentTimeout, opts...)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
