package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/vendor-payouts/internal/cron"
	"github.com/angelmondragon/vendor-payouts/internal/ledger"
	"github.com/angelmondragon/vendor-payouts/internal/payouts"
	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/db"
	"github.com/angelmondragon/vendor-payouts/pkg/disburse"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
	"github.com/angelmondragon/vendor-payouts/pkg/metrics"
	"github.com/angelmondragon/vendor-payouts/pkg/migrate"
	"github.com/angelmondragon/vendor-payouts/pkg/pubsub"
	"github.com/angelmondragon/vendor-payouts/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "payout-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "payout-worker"

	logg = logger.New(logger.Options{
		ServiceName: "payout-worker",
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

	provider, err := disburse.NewClient(context.Background(), cfg.Provider, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap disbursement client", err)
		os.Exit(1)
	}

	var alerts *pubsub.Client
	if cfg.Alerts.Enabled() {
		alerts, err = pubsub.NewClient(context.Background(), cfg.GCP, cfg.Alerts, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to bootstrap alert publisher", err)
			os.Exit(1)
		}
		defer func() {
			if err := alerts.Close(); err != nil {
				logg.Error(context.Background(), "error closing alert publisher", err)
			}
		}()
	}

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	payoutMetrics := metrics.NewPayoutMetrics(prometheus.DefaultRegisterer)
	engine, err := payouts.NewService(payouts.Params{
		Logger:      logg,
		Tx:          dbClient,
		Repo:        payouts.NewRepository(dbClient.DB()),
		Ledger:      ledgerService,
		Provider:    provider,
		Metrics:     payoutMetrics,
		DefaultRate: cfg.Payout.Rate(),
		Currency:    cfg.Payout.Currency,
		DryRun:      cfg.Payout.DryRun,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payout engine", err)
		os.Exit(1)
	}

	jobParams := cron.PayoutJobParams{Logger: logg, Engine: engine}
	if alerts != nil {
		jobParams.Alerts = alerts
	}
	payoutJob, err := cron.NewPayoutJob(jobParams)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("payout-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create run lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(payoutJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Payout.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create scheduler", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	httpServer := startHTTPServer(ctx, cfg, logg, dbClient, redisClient)
	defer func() {
		if err := httpServer.Shutdown(context.Background()); err != nil {
			logg.Error(ctx, "error shutting down http server", err)
		}
	}()

	logg.Info(ctx, "starting payout worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "payout worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "payout worker shutting down gracefully")
}

// startHTTPServer exposes liveness and metrics for the worker.
func startHTTPServer(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient db.Pinger, redisClient redis.Pinger) *http.Server {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbClient.Ping(r.Context()); err != nil {
			http.Error(w, "database unreachable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(r.Context()); err != nil {
			http.Error(w, "redis unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: ":" + cfg.App.Port, Handler: router}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "http server stopped unexpectedly", err)
		}
	}()
	return server
}
