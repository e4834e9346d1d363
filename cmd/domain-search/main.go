package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/kirychukyurii/domain-search/internal/api"
	"github.com/kirychukyurii/domain-search/internal/archive"
	"github.com/kirychukyurii/domain-search/internal/checker"
	"github.com/kirychukyurii/domain-search/internal/config"
	"github.com/kirychukyurii/domain-search/internal/events"
	"github.com/kirychukyurii/domain-search/internal/logger"
	"github.com/kirychukyurii/domain-search/internal/notifier"
	"github.com/kirychukyurii/domain-search/internal/observability"
	"github.com/kirychukyurii/domain-search/internal/pricing"
	"github.com/kirychukyurii/domain-search/internal/provider"
	"github.com/kirychukyurii/domain-search/internal/repository"
	"github.com/kirychukyurii/domain-search/internal/service"
	"github.com/kirychukyurii/domain-search/internal/swarm"
	"github.com/kirychukyurii/domain-search/pkg/httpserver"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the configuration")
	flag.Parse()

	log := logger.New()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn("failed to load env file",
			slog.String("path", *envFile),
			slog.String("error", err.Error()),
		)
	}

	if _, err := os.Stat(*configPath); errors.Is(err, fs.ErrNotExist) {
		log.Info("config file not found, using defaults and environment",
			slog.String("path", *configPath),
		)
		*configPath = ""
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Error("invalid log level", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log = logger.NewWithLevel(level)

	if err := run(cfg, log); err != nil {
		log.Error("service stopped with error",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	log.Info("shutdown complete")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telemetry
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return err
	}
	defer shutdownMetrics(context.Background())

	shutdownTracer, err := observability.InitTracer(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	// Persistence and events
	store, err := newStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// Providers, swarm and availability
	registry := provider.NewRegistryFromConfig(cfg.Providers, cfg.Orchestrator.DefaultBackend, log)
	log.Info("ai backends registered", slog.Any("backends", registry.Names()))

	evaluator := swarm.New(swarm.Options{
		MaxConcurrent:    cfg.Swarm.MaxConcurrent,
		CandidateTimeout: cfg.Swarm.CandidateTimeout,
	}, log)

	limiter := checker.NewLimiter(cfg.Checker.MaxInFlight, cfg.Checker.RatePerSecond, cfg.Checker.Burst)
	rdap := checker.NewRDAP(checker.Options{
		BaseURL:     cfg.Checker.BaseURL,
		MaxAttempts: cfg.Checker.MaxAttempts,
		BaseBackoff: cfg.Checker.BaseBackoff,
		HTTPClient:  newHTTPClient(cfg.Checker.Timeout),
	}, limiter, log)

	// Pricing
	prices := pricing.NewTableFromConfig(&cfg.Pricing)
	refresher := pricing.NewRefresher(&cfg.Pricing, prices,
		pricing.NewHTTPSource(cfg.Pricing.URL, cfg.Pricing.Timeout), log)
	refresher.Start(ctx)
	defer refresher.Stop()

	// Terminal side effects
	notify, err := notifier.New(cfg.Notifier, log)
	if err != nil {
		return err
	}
	defer notify.Close()

	archiver, err := archive.New(cfg.Archive, log)
	if err != nil {
		return err
	}

	opts := service.OptionsFromConfig(cfg)
	if opts.InstanceID == "" {
		host, _ := os.Hostname()
		opts.InstanceID = host + "-" + uuid.NewString()[:8]
	}

	orch := service.New(service.Dependencies{
		Store:    store,
		Events:   publisher,
		Backends: registry,
		Swarm:    evaluator,
		Checker:  rdap,
		Prices:   prices,
		Notifier: notify,
		Archiver: archiver,
		Policy:   service.NewFollowupPolicy(cfg.Orchestrator.Followup),
		Metrics:  metrics,
	}, opts, log)

	if err := metrics.ObserveGauge("domain_search.runners.active", "Live job runners",
		func() int64 { return int64(orch.ActiveRunners()) }); err != nil {
		return err
	}
	if err := metrics.ObserveGauge("domain_search.checker.in_flight", "Availability lookups in flight",
		limiter.InFlight); err != nil {
		return err
	}

	recovered, err := orch.Recover(ctx)
	if err != nil {
		log.Error("failed to recover active jobs",
			slog.String("error", err.Error()),
		)
	}
	log.Info("orchestrator started",
		slog.String("instance_id", opts.InstanceID),
		slog.Int("recovered", recovered),
	)

	handler := api.NewHandler(orch, api.Options{
		BasePath:    cfg.Server.BasePath,
		KeepAlive:   cfg.Events.SSEKeepAlive,
		CreateRate:  cfg.Server.CreateRate,
		CreateBurst: cfg.Server.CreateBurst,
		Metrics:     metricsHandler,
	}, log)

	srv := httpserver.New(
		cfg.Server.Addr,
		handler.Router(),
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		log,
	)

	log.Info("starting domain-search service")
	serveErr := srv.Run(ctx)

	log.Info("shutting down orchestrator")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()
	if err := orch.Shutdown(shutdownCtx); err != nil {
		log.Error("orchestrator shutdown incomplete",
			slog.String("error", err.Error()),
		)
	}

	return serveErr
}

func newStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (repository.JobStore, error) {
	switch cfg.Store.Driver {
	case "etcd":
		return repository.NewEtcdStore(cfg.Store.Etcd, log)
	case "postgres":
		return repository.NewPostgresStore(ctx, cfg.Store.Postgres, log)
	default:
		log.Warn("using in-memory job store, jobs do not survive a restart")
		return repository.NewMemoryStore(), nil
	}
}

func newPublisher(ctx context.Context, cfg *config.Config, log *slog.Logger) (events.Publisher, error) {
	if cfg.Events.Driver == "redis" {
		client, err := events.NewRedisClient(ctx, cfg.Events.Redis)
		if err != nil {
			return nil, err
		}
		log.Info("redis event publisher connected", slog.String("addr", cfg.Events.Redis.Addr))
		return events.NewRedisPublisher(client, cfg.Events.Redis.Prefix, cfg.Events.BufferSize, log), nil
	}
	return events.NewMemoryPublisher(cfg.Events.BufferSize, log), nil
}
