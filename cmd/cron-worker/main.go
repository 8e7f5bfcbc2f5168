package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopsphere-backend/internal/cron"
	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	"github.com/angelmondragon/shopsphere-backend/pkg/config"
	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/lock"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/metrics"
	"github.com/angelmondragon/shopsphere-backend/pkg/migrate"
	"github.com/angelmondragon/shopsphere-backend/pkg/outbox"
	"github.com/angelmondragon/shopsphere-backend/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

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

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
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

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)

	locker, err := lock.NewRedisLocker(redisClient.Raw(), "", lock.RedisOptions{TTL: cfg.Cron.LockTTL})
	if err != nil {
		logg.Error(context.Background(), "failed to create redis locker", err)
		os.Exit(1)
	}
	cronLock, err := cron.NewLockerLock(locker, redisClient.LockKey("cron-worker", envName(cfg.App.Env)))
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	// The audit only reads, so a process-local locker is enough here.
	ledgerService, err := ledger.NewService(dbClient, ledger.NewRepository(dbClient.DB()), lock.NewLocalLocker(cfg.Ledger.LockTTL))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	auditJob, err := cron.NewLedgerAuditJob(cron.LedgerAuditJobParams{
		Logger:    logg,
		Ledger:    ledgerService,
		Metrics:   metricsCollector,
		BatchSize: cfg.Cron.AuditBatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger audit job", err)
		os.Exit(1)
	}
	reconcileJob, err := cron.NewSettlementReconcileJob(cron.SettlementReconcileJobParams{
		Logger:         logg,
		Operations:     settlement.NewRepository(dbClient.DB()),
		Metrics:        metricsCollector,
		PendingTimeout: cfg.Settlement.PendingTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement reconcile job", err)
		os.Exit(1)
	}
	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Cron.OutboxRetention,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(reconcileJob, auditJob, retentionJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     cronLock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
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
	})

	if *once {
		logg.Info(ctx, "running single cron cycle")
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
