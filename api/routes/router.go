package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopsphere-backend/api/controllers"
	"github.com/angelmondragon/shopsphere-backend/api/middleware"
	"github.com/angelmondragon/shopsphere-backend/internal/ledger"
	"github.com/angelmondragon/shopsphere-backend/internal/purchases"
	"github.com/angelmondragon/shopsphere-backend/internal/settlement"
	"github.com/angelmondragon/shopsphere-backend/internal/vendors"
	"github.com/angelmondragon/shopsphere-backend/pkg/config"
	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/enums"
	"github.com/angelmondragon/shopsphere-backend/pkg/logger"
	"github.com/angelmondragon/shopsphere-backend/pkg/redis"
)

// RedisDeps is the part of the Redis client the HTTP layer needs.
type RedisDeps interface {
	redis.Pinger
	redis.IdempotencyStore
}

// Services groups the domain services exposed over HTTP.
type Services struct {
	Vendors    vendors.Service
	Purchases  purchases.Service
	Ledger     ledger.Service
	Settlement settlement.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient RedisDeps,
	gatherer prometheus.Gatherer,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{
			"database": dbP,
			"redis":    redisClient,
		}, logg))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.App.CORSOrigins))
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))
		r.Use(middleware.Idempotency(redisClient, cfg.Idempotency.TTL, logg))

		r.Route("/vendors", func(r chi.Router) {
			r.Post("/", controllers.RegisterVendor(svcs.Vendors, logg))
			r.Get("/", controllers.ListVendors(svcs.Vendors, logg))
			r.Get("/{vendor}", controllers.GetVendor(svcs.Vendors, logg))
		})
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", controllers.PlacePurchase(svcs.Settlement, logg))
			r.Get("/{vendor}", controllers.ListVendorPurchases(svcs.Purchases, logg))
		})
		r.Route("/settlements", func(r chi.Router) {
			r.Post("/", controllers.SettleCashIn(svcs.Settlement, logg))
			r.Get("/operations/{operationId}", controllers.GetSettlementOperation(svcs.Settlement, logg))
		})
		r.Route("/ledger/{vendor}", func(r chi.Router) {
			r.Get("/", controllers.GetLedgerStatement(svcs.Ledger, logg))
			r.Post("/advances", controllers.RecordAdvance(svcs.Ledger, svcs.Vendors, logg))
		})
		r.Get("/payments", controllers.ListPaymentsDue(svcs.Purchases, logg))
	})

	return r
}
