package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/carzavenue/backend/api/routes"
	"github.com/carzavenue/backend/internal/ledger"
	"github.com/carzavenue/backend/internal/paymentconfig"
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
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Outbox:  outboxService,
		Config:  cfg.Ledger,
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	packageCharger, err := ledger.NewPackageCharger(ledgerService, cfg.Ledger)
	if err != nil {
		logg.Error(context.Background(), "failed to create package charger", err)
		os.Exit(1)
	}

	paymentConfigService, err := paymentconfig.NewService(paymentconfig.ServiceParams{
		Repo:     paymentconfig.NewRepository(dbClient.DB()),
		DB:       dbClient,
		Outbox:   outboxService,
		Cache:    redisClient,
		CacheTTL: cfg.PaymentConfig.CacheTTL,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment config service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			ledgerService,
			packageCharger,
			paymentConfigService,
			promhttp.Handler(),
		),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}
