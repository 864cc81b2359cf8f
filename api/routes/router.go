package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/webhooks"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	stripewebhook "github.com/angelmondragon/marketplace-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/stripe"
)

// Dependencies are the services the HTTP surface is wired to.
type Dependencies struct {
	DB                   controllers.Pinger
	Redis                controllers.Pinger
	IdempotencyStore     redis.IdempotencyStore
	Gatherer             prometheus.Gatherer
	Orders               orders.Service
	StripeClient         *stripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.ReplayGuard
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    deps.DB,
			"redis": deps.Redis,
		}))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/api/v1/webhooks/stripe", webhookcontrollers.StripeWebhook(
		deps.StripeWebhookService, deps.StripeClient, deps.StripeWebhookGuard, logg,
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.IdempotencyStore, logg))

		staff := middleware.RequireRole(logg, enums.ActorRoleDelivery, enums.ActorRoleStaff)
		customer := middleware.RequireRole(logg, enums.ActorRoleCustomer)

		r.With(customer).Post("/orders", ordercontrollers.Create(deps.Orders, logg))
		r.With(staff).Get("/orders", ordercontrollers.List(deps.Orders, logg))
		r.Get("/orders/publisher-key", ordercontrollers.PublisherKey(deps.StripeClient, logg))
		r.With(staff).Get("/orders/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		r.With(staff).Patch("/orders/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
		r.With(customer).Get("/customers/me/orders", ordercontrollers.MyOrders(deps.Orders, logg))
	})

	return r
}
