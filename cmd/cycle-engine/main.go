package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/cycle-engine/internal/api"
	"github.com/miradorstack/cycle-engine/internal/cache"
	"github.com/miradorstack/cycle-engine/internal/config"
	"github.com/miradorstack/cycle-engine/internal/engine"
	"github.com/miradorstack/cycle-engine/internal/flags"
	"github.com/miradorstack/cycle-engine/internal/metrics"
	"github.com/miradorstack/cycle-engine/internal/models"
	"github.com/miradorstack/cycle-engine/internal/privacy"
	"github.com/miradorstack/cycle-engine/internal/repo"
	"github.com/miradorstack/cycle-engine/internal/scheduler"
	"github.com/miradorstack/cycle-engine/internal/services"
	"github.com/miradorstack/cycle-engine/internal/snapshot"
	"github.com/miradorstack/cycle-engine/internal/utils"
)

func main() {
	var (
		configPath string
		initDB     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&initDB, "init-db", false, "Create the SQLite history schema at history.path and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	var logFile io.WriteCloser
	if cfg.Logging.File != "" {
		logFile, err = os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			slog.Error("failed to open log file", slog.String("path", cfg.Logging.File), slog.Any("error", err))
			os.Exit(1)
		}
		defer logFile.Close()
	}
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, logFile)
	slog.SetDefault(logger)

	if initDB {
		if err := repo.CreateSQLiteSchema(context.Background(), cfg.History.Path); err != nil {
			logger.Error("failed to create history schema", slog.String("path", cfg.History.Path), slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("history schema created", slog.String("path", cfg.History.Path))
		return
	}

	logger.Info("starting cycle-engine",
		slog.String("address", cfg.Server.Address),
		slog.String("history_backend", cfg.History.Backend),
		slog.String("timezone", cfg.Schedule.Timezone),
	)

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	cacheProvider := buildCache(cfg.Cache, logger)
	defer cacheProvider.Close()

	source, closeSource, err := buildHistory(cfg.History, logger)
	if err != nil {
		logger.Error("failed to open history store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeSource()

	params := engineParams(cfg.Engine)
	store := snapshot.NewStore()
	opts := []engine.Option{engine.WithLocation(cfg.Location())}

	scorer := buildScorer(cfg, params)
	adaptive, err := engine.NewAdaptive(logger, engine.NewRuleBased(params), scorer, params.AdaptiveTimeout)
	if err != nil {
		logger.Error("failed to build adaptive strategy", slog.Any("error", err))
		os.Exit(1)
	}
	opts = append(opts, engine.WithAdaptive(adaptive))
	eng := engine.NewEngine(logger, params, store, opts...)

	filter := privacy.NewFilter(logger, cfg.Privacy.Bucket)
	mirror := repo.NewSnapshotMirror(logger, cacheProvider, filter, cache.Key(cfg.Cache.Prefix, "widget"), cfg.Cache.WidgetTTL)
	remote := flags.NewRemoteOverrides(logger, cacheProvider, cache.Key(cfg.Cache.Prefix, cfg.Flags.RemoteKey))

	insights, err := services.NewInsightsService(services.Options{
		Logger:       logger,
		Source:       source,
		Engine:       eng,
		Store:        store,
		Filter:       filter,
		Mirror:       mirror,
		Flags:        flags.NewResolver(cfg.Flags.Defaults, cfg.Flags.Overrides),
		Remote:       remote,
		TriggerRate:  cfg.Schedule.TriggerRate,
		TriggerBurst: cfg.Schedule.TriggerBurst,
	})
	if err != nil {
		logger.Error("failed to build insights service", slog.Any("error", err))
		os.Exit(1)
	}

	server, err := api.NewServer(cfg.Server, services.NewInsightsGRPC(logger, insights))
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}
	store.Subscribe(func(models.Snapshot) { server.SetReady(true) })

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := insights.Recompute(ctx, services.TriggerManual); err != nil {
		logger.Warn("initial recompute failed; serving after the next trigger", slog.Any("error", err))
	}

	sched, err := scheduler.New(logger, cfg.Location(), scheduler.Jobs{
		RolloverCron:    cfg.Schedule.RolloverCron,
		RefreshInterval: cfg.Schedule.RefreshInterval,
	}, insights.Fire)
	if err != nil {
		logger.Error("failed to create scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	sched.Start()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("cycle-engine stopped", slog.Duration("recompute_p95", insights.LatencyP95()))
}

func buildCache(cfg config.CacheConfig, logger *slog.Logger) cache.Provider {
	switch cfg.Backend {
	case "redis":
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
		})
		if err != nil {
			logger.Warn("redis cache unavailable; widget mirror disabled", slog.Any("error", err))
			return cache.NoopProvider{}
		}
		return provider
	case "memory":
		return cache.NewMemoryProvider(cfg.CleanupInterval)
	default:
		return cache.NoopProvider{}
	}
}

func buildHistory(cfg config.HistoryConfig, logger *slog.Logger) (engine.HistorySource, func(), error) {
	if cfg.Backend == "sqlite" {
		source, err := repo.NewSQLiteHistory(cfg.Path, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite history: %w", err)
		}
		return source, func() { _ = source.Close() }, nil
	}
	return repo.NewFileHistory(cfg.Path, logger), func() {}, nil
}

func buildScorer(cfg *config.Config, params engine.Params) engine.Scorer {
	if cfg.Engine.Scorer == "http" {
		return repo.NewInferenceClient(cfg.Inference.BaseURL, cfg.Inference.PredictPath, cfg.Inference.Timeout)
	}
	return engine.NewTrendScorer(params, cfg.Engine.TrendDecay)
}

func engineParams(cfg config.EngineConfig) engine.Params {
	return engine.Params{
		HistoryWindow:       cfg.HistoryWindow,
		OvulationLead:       cfg.OvulationLead,
		OvulationLag:        cfg.OvulationLag,
		LutealLength:        cfg.LutealLength,
		FertileLead:         cfg.FertileLead,
		FertileLag:          cfg.FertileLag,
		MinRuleConfidence:   cfg.MinRuleConfidence,
		MaxRuleConfidence:   cfg.MaxRuleConfidence,
		MinSample:           cfg.MinSample,
		FrequencyMultiplier: cfg.FrequencyMultiplier,
		PairThreshold:       cfg.PairThreshold,
		AdaptiveTimeout:     cfg.AdaptiveTimeout,
	}
}
