package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/opd-token-allocation/internal/allocation"
	"github.com/hackgods/opd-token-allocation/internal/api"
	"github.com/hackgods/opd-token-allocation/internal/config"
	"github.com/hackgods/opd-token-allocation/internal/db"
	"github.com/hackgods/opd-token-allocation/internal/lock"
	"github.com/hackgods/opd-token-allocation/internal/logging"
	"github.com/hackgods/opd-token-allocation/internal/metrics"
	redisclient "github.com/hackgods/opd-token-allocation/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api-server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	logger.Info("api-server starting up",
		zap.String("http_port", cfg.HTTPPort),
		zap.Duration("lock_ttl", cfg.LockTTL),
		zap.Duration("lock_wait", cfg.LockWait),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		checks []api.DependencyCheck
		opts   []allocation.Option
	)

	// Postgres only backs the audit trail.
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		cancelPg()
		if err != nil {
			return fmt.Errorf("postgres connection: %w", err)
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres, audit events enabled")

		opts = append(opts, allocation.WithEventSink(allocation.NewPgEventSink(pgPool)))
		checks = append(checks, api.DependencyCheck{Name: "postgres", Ping: pgPool.Ping})
	} else {
		logger.Info("POSTGRES_DSN not set, audit events disabled")
	}

	locker := lock.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return fmt.Errorf("redis connection: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("error closing redis", zap.Error(err))
			}
		}()
		logger.Info("connected to Redis, provider locks are shared", zap.String("addr", cfg.RedisAddr))

		locker = redisclient.NewRedisProviderLocker(rdb, cfg.LockTTL, cfg.LockWait)
		checks = append(checks, api.DependencyCheck{
			Name:     "redis",
			Critical: true,
			Ping:     func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	allocMetrics, err := metrics.NewAllocation(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	opts = append(opts, allocation.WithObserver(allocMetrics))

	svc := allocation.NewService(allocation.NewMemoryStore(), locker, logger.Named("allocation"), opts...)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		Logger:  logger.Named("http"),
		Checks:  checks,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down api-server", zap.Duration("timeout", cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	logger.Info("api-server stopped cleanly")
	return nil
}
