package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/carzavenue/backend/internal/cron"
	"github.com/carzavenue/backend/internal/ledger"
	"github.com/carzavenue/backend/pkg/config"
	"github.com/carzavenue/backend/pkg/db"
	"github.com/carzavenue/backend/pkg/instance"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/metrics"
	"github.com/carzavenue/backend/pkg/migrate"
	"github.com/carzavenue/backend/pkg/outbox"
	"github.com/carzavenue/backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ledgerMetrics := metrics.NewLedgerMetrics(prometheus.DefaultRegisterer)
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	outboxRepo := outbox.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledgerRepo,
		DB:      dbClient,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Config:  cfg.Ledger,
		Logger:  logg,
		Metrics: ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	reconcileJob, err := cron.NewBalanceReconcileJob(cron.BalanceReconcileJobParams{
		Logger:   logg,
		Accounts: ledgerRepo,
		Verifier: ledgerService,
		Metrics:  ledgerMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile job", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(reconcileJob, retentionJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.ReconcileInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
		"lock_key":    lock.Key(),
	})
	logg.Info(ctx, "starting cron worker")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return service.Run(gctx)
	})
	g.Go(func() error {
		return metrics.Serve(gctx, cfg.Service.MetricsAddr, metrics.NewHandler(), logg)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
