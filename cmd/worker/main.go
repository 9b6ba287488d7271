package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/backend"
	"github.com/noah-isme/backend-pos/internal/config"
	"github.com/noah-isme/backend-pos/internal/jobs"
	"github.com/noah-isme/backend-pos/internal/obs"
	"github.com/noah-isme/backend-pos/internal/pricesplit"
	"github.com/noah-isme/backend-pos/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "pos"), nil)

	if cfg.BackendServiceToken == "" {
		logger.Fatal().Msg("BACKEND_SERVICE_TOKEN is required for snapshot refresh")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	breaker := resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
		WithTarget("inventory").
		WithLogger(logger)
	inventory := &backend.Client{
		BaseURL: cfg.BackendBaseURL,
		HTTP: resilience.HTTPClient{
			Client:      backend.NewHTTPClient(cfg.BackendTimeout),
			Breaker:     breaker,
			BaseBackoff: cfg.BackendRetryBase,
			MaxAttempts: cfg.BackendRetryMaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.BackendTimeout,
			Target:      "inventory",
			Logger:      &logger,
		},
		Logger: &logger,
	}
	splitSvc := pricesplit.NewService(inventory, pricesplit.NewCache(redisClient, cfg.SnapshotCacheTTL), cfg.BackendServiceToken, &logger)
	refreshJob := &jobs.SnapshotRefreshJob{Refresher: splitSvc, Logger: &logger}

	refreshTask, err := jobs.NewSnapshotRefreshTask(jobs.TriggerSchedule)
	if err != nil {
		logger.Fatal().Err(err).Msg("build refresh task")
	}
	asynqOpts, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for asynq")
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynqOpts,
		Concurrency: envInt("WORKER_CONCURRENCY", 2),
		Logger:      &logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSnapshotRefresh, Handler: refreshJob.Handle},
		},
		Cron: []jobs.CronRegistration{{
			Spec: jobs.EverySpec(cfg.SnapshotRefreshInterval),
			Task: refreshTask,
			// Unique keeps overlapping schedulers from stacking refreshes.
			Options: []asynq.Option{asynq.MaxRetry(1), asynq.Unique(cfg.SnapshotRefreshInterval)},
		}},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init worker")
	}

	logger.Info().Dur("refresh_interval", cfg.SnapshotRefreshInterval).Msg("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
