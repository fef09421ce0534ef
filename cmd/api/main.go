package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/congo-pay/minipay/internal/config"
	"github.com/congo-pay/minipay/internal/infra"
	"github.com/congo-pay/minipay/internal/logging"
	"github.com/congo-pay/minipay/internal/metrics"
	"github.com/congo-pay/minipay/internal/middleware"
	"github.com/congo-pay/minipay/internal/reconcile"
	"github.com/congo-pay/minipay/internal/routes"
	"github.com/congo-pay/minipay/internal/server"
	"github.com/congo-pay/minipay/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppEnv)
	slog.SetDefault(logger)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.MigrateOnStart {
			if err := infra.Migrate(cfg.DatabaseURL, logger); err != nil {
				logger.Error("run migrations", "error", err)
				os.Exit(1)
			}
		}
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{
			AppName:  cfg.AppName,
			MaxConns: cfg.DBMaxConns,
		})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	var st store.Store
	if db != nil {
		st = store.NewPostgres(db, cfg.TxMaxRetries, logger)
	} else {
		logger.Warn("DATABASE_URL not set, balances live in memory only")
		st = store.NewMemory()
	}

	keyHash, err := middleware.HashAPIKey(cfg.APIKey, bcrypt.DefaultCost)
	if err != nil {
		logger.Error("hash api key", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	srv, err := server.New(routes.Deps{
		Cfg:        cfg,
		DB:         db,
		Cache:      cache,
		Logger:     logger,
		Store:      st,
		Metrics:    m,
		APIKeyHash: keyHash,
	})
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	scheduler := cron.New()
	if cfg.ReconcileSchedule != "" {
		if _, err := reconcile.New(st, m, logger).Schedule(scheduler, cfg.ReconcileSchedule); err != nil {
			logger.Error("schedule reconciler", "error", err)
			os.Exit(1)
		}
	}
	scheduler.Start()

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		<-scheduler.Stop().Done()
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("reconciler still running at shutdown")
	}

	logger.Info("server exited cleanly")
}
