package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopsphere-backend/api/routes"
	"github.com/angelmondragon/shopsphere-backend/internal/inventory"
	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/internal/purchases"
	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	"github.com/angelmondragon/shopsphere-backend/internal/vendors"
	"github.com/angelmondragon/shopsphere-backend/pkg/config"
	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/env"
	"github.com/angelmondragon/shopsphere-backend/pkg/lock"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/metrics"
	"github.com/angelmondragon/shopsphere-backend/pkg/migrate"
	"github.com/angelmondragon/shopsphere-backend/pkg/outbox"
	"github.com/angelmondragon/shopsphere-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	vendorLocker, err := newVendorLocker(cfg.Ledger, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor locker", err)
		os.Exit(1)
	}

	vendorService, err := vendors.NewService(vendors.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor service", err)
		os.Exit(1)
	}
	purchaseService, err := purchases.NewService(purchases.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create purchase service", err)
		os.Exit(1)
	}
	inventoryService, err := inventory.NewService(dbClient, inventory.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}
	ledgerService, err := ledger.NewService(dbClient, ledger.NewRepository(dbClient.DB()), vendorLocker)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	settlementService, err := settlement.NewService(settlement.ServiceParams{
		DB:         dbClient,
		Config:     cfg.Settlement,
		Vendors:    vendorService,
		Inventory:  inventoryService,
		Purchases:  purchaseService,
		Ledger:     ledgerService,
		Operations: settlement.NewRepository(dbClient.DB()),
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Locker:     vendorLocker,
		Logger:     logg,
		Metrics:    metrics.NewSettlementMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create settlement service", err)
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
		"env":             cfg.App.Env,
		"addr":            addr,
		"instance":        env.Instance(),
		"settlement_mode": cfg.Settlement.Mode,
		"lock_backend":    cfg.Ledger.LockBackend,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, prometheus.DefaultGatherer, routes.Services{
			Vendors:    vendorService,
			Purchases:  purchaseService,
			Ledger:     ledgerService,
			Settlement: settlementService,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

// newVendorLocker picks the per-vendor lock backend. Redis serializes postings
// across API replicas; the local locker only covers a single process.
func newVendorLocker(cfg config.LedgerConfig, redisClient *redis.Client) (lock.Locker, error) {
	if cfg.UsesRedisLock() {
		return lock.NewRedisLocker(redisClient.Raw(), redisClient.LockKey("", "")+":", lock.RedisOptions{
			TTL:        cfg.LockTTL,
			RetryEvery: cfg.LockRetryEvery,
			MaxRetries: cfg.LockMaxRetries,
		})
	}
	return lock.NewLocalLocker(cfg.LockRetryEvery * time.Duration(cfg.LockMaxRetries)), nil
}
