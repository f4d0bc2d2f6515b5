package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gogift-backend/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/gogift-backend/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/gogift-backend/api/controllers/orders"
	validationcontrollers "github.com/angelmondragon/gogift-backend/api/controllers/validation"
	webhookcontrollers "github.com/angelmondragon/gogift-backend/api/controllers/webhooks"
	"github.com/angelmondragon/gogift-backend/api/middleware"
	"github.com/angelmondragon/gogift-backend/internal/checkout"
	"github.com/angelmondragon/gogift-backend/internal/orders"
	"github.com/angelmondragon/gogift-backend/internal/payments"
	"github.com/angelmondragon/gogift-backend/internal/redemption"
	"github.com/angelmondragon/gogift-backend/pkg/config"
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/angelmondragon/gogift-backend/pkg/logger"
	"github.com/angelmondragon/gogift-backend/pkg/pagination"
	pkgredis "github.com/angelmondragon/gogift-backend/pkg/redis"
)

type CheckoutService interface {
	Execute(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

type OrdersService interface {
	Get(ctx context.Context, buyerID, orderID uuid.UUID) (*orders.OrderView, error)
	ListForBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) (*orders.OrderList, error)
	ListSalesForEnterprise(ctx context.Context, q orders.SalesQuery) (*orders.SalesPage, error)
}

type RedemptionService interface {
	Lookup(ctx context.Context, enterpriseID uuid.UUID, value string) (*redemption.CodeDetails, error)
	Redeem(ctx context.Context, req redemption.RedeemRequest) (*redemption.RedeemResult, error)
	History(ctx context.Context, enterpriseID uuid.UUID, status enums.OrderLineStatus, params pagination.Params) (*redemption.HistoryPage, error)
}

type NotificationParser interface {
	ParseNotification(payload []byte, signature string) (payments.Notification, error)
}

type WebhookService interface {
	HandleNotification(ctx context.Context, n payments.Notification) (*orders.Result, error)
}

type WebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// RedisStore backs request idempotency and rate limiting.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Dependencies are the collaborators the HTTP surface needs. Ready lists
// what /health/ready pings.
type Dependencies struct {
	Checkout     CheckoutService
	Orders       OrdersService
	Redemption   RedemptionService
	Gateway      NotificationParser
	Webhooks     WebhookService
	WebhookGuard WebhookGuard
	Redis        RedisStore
	Ready        map[string]controllers.Pinger
	Metrics      http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.FrontendURL),
	)

	metrics := deps.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Gateway, deps.Webhooks, deps.WebhookGuard, logg))
	})

	var store pkgredis.IdempotencyStore
	var limiter middleware.RateLimiter
	if deps.Redis != nil {
		store = deps.Redis
		limiter = deps.Redis
	}
	validationPolicy := middleware.RateLimitPolicy{
		Name:   "validation",
		Window: cfg.RateLimit.ValidationWindow,
		Limit:  cfg.RateLimit.ValidationLimit,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		// Mounted per endpoint so the middleware sees the full route pattern.
		idempotent := middleware.Idempotency(store, logg)

		r.With(middleware.RequireRole(logg, enums.ActorRoleBuyer, enums.ActorRoleEnterprise), idempotent).
			Post("/checkout", checkoutcontrollers.Create(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/me", ordercontrollers.Mine(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})

		r.With(middleware.RequireRole(logg, enums.ActorRoleEnterprise)).
			Get("/sales", ordercontrollers.Sales(deps.Orders, logg))

		r.Route("/validation", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleEnterprise))
			r.Use(middleware.RateLimit(validationPolicy, limiter, logg))
			r.Get("/history", validationcontrollers.History(deps.Redemption, logg))
			r.Get("/{code}", validationcontrollers.Lookup(deps.Redemption, logg))
			r.With(idempotent).Put("/{code}/use", validationcontrollers.Use(deps.Redemption, logg))
		})
	})

	return r
}
