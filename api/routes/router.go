package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carzavenue/backend/api/controllers"
	"github.com/carzavenue/backend/api/middleware"
	"github.com/carzavenue/backend/internal/paymentconfig"
	"github.com/carzavenue/backend/pkg/config"
	"github.com/carzavenue/backend/pkg/logger"
	"github.com/carzavenue/backend/pkg/redis"
)

// LedgerService is the ledger surface exposed over HTTP.
type LedgerService interface {
	controllers.LedgerReader
	controllers.LedgerWriter
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	ledgerService LedgerService,
	packageBiller controllers.PackageBiller,
	paymentConfigService paymentconfig.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	var (
		redisPinger controllers.Pinger
		idemStore   redis.IdempotencyStore
	)
	if redisClient != nil {
		redisPinger = redisClient
		idemStore = redisClient
	}
	idempotent := middleware.Idempotency(idemStore, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisPinger))
	})

	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/accounts", controllers.MyAccounts(ledgerService, logg))
		r.Get("/ledger", controllers.MyLedger(ledgerService, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireStaff(logg))

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/accounts", controllers.AdminUserAccounts(ledgerService, logg))
			r.Get("/ledger", controllers.AdminUserLedger(ledgerService, logg))
			r.With(idempotent).Post("/charges", controllers.AdminChargeUser(ledgerService, logg))
			r.With(idempotent).Post("/credits", controllers.AdminCreditUser(ledgerService, logg))
			r.Post("/package-charges", controllers.AdminChargeListingPackages(packageBiller, logg))
		})

		r.Get("/payment-config", controllers.AdminGetPaymentConfig(paymentConfigService, logg))
		r.With(idempotent).Put("/payment-config", controllers.AdminUpdatePaymentConfig(paymentConfigService, logg))
	})

	return r
}
