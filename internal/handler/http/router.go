package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/health"
	"github.com/muhsiltomsher-cloud/asl-storefront/pkg/middleware"
)

// Services groups what the router dispatches to.
type Services struct {
	Cart     CartAPI
	Checkout CheckoutAPI
	Gifts    GiftAPI
	Bundles  BundleAPI
	MCP      http.Handler
}

// RouterConfig holds router-level settings.
type RouterConfig struct {
	ServiceName    string
	CORSOrigins    []string
	PprofCIDRs     []string
	Tokens         middleware.TokenValidator
	RateLimitRPS   float64
	RateLimitBurst int
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all storefront routes registered. ctx
// bounds the rate limiter's background sweeper.
func NewRouter(
	ctx context.Context,
	svcs Services,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "storefront"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	r.Use(chimw.Compress(5))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	if svcs.MCP != nil {
		r.Handle("/mcp", svcs.MCP)
	}

	cart := NewCartHandler(svcs.Cart, logger)
	checkout := NewCheckoutHandler(svcs.Checkout, logger)
	gifts := NewGiftHandler(svcs.Gifts, logger)
	bundles := NewBundleHandler(svcs.Bundles, logger)

	limited := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimitRPS > 0 {
		limited = middleware.RateLimit(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst, logger)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
		r.Use(ContentTypeJSON)
		r.Use(middleware.OptionalAuth(cfg.Tokens))
		r.Use(middleware.RequestLogger(logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.NoStore)

			r.Get("/cart", cart.GetCart)
			r.Post("/cart", cart.CartAction)
			r.Get("/shipping", cart.ShippingRates)
			r.Post("/shipping", cart.SelectShipping)

			r.Get("/free-gifts/progress", gifts.Progress)
			r.Post("/free-gifts/reconcile", gifts.Reconcile)
			r.Post("/bundles/{productID}/compose", bundles.Compose)

			r.Get("/orders", checkout.GetOrder)
			r.Put("/orders", checkout.UpdateOrder)
			r.Get("/customers/email-check", checkout.CheckEmail)

			r.With(limited).Post("/orders", checkout.PlaceOrder)
			r.With(limited).Post("/payments/verify", checkout.VerifyPayment)
			r.With(limited).Post("/payments/retry", checkout.RetryPayment)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(60))

			r.Get("/coupons", cart.Coupons)
			r.Get("/payment-gateways", checkout.PaymentGateways)
			r.Get("/free-gifts", gifts.Rules)
			r.Get("/bundles/{productID}/candidates", bundles.Candidates)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Tokens))
			r.Use(middleware.RequireRole(middleware.RoleAdmin))
			r.Use(middleware.NoStore)

			r.Post("/free-gifts/invalidate", gifts.InvalidateRules)

			r.Get("/bundles", bundles.ListConfigs)
			r.Post("/bundles/options/filter", bundles.FilterOptions)
			r.Route("/bundles/{productID}", func(r chi.Router) {
				r.Get("/", bundles.GetConfig)
				r.Put("/", bundles.SaveConfig)
				r.Delete("/", bundles.DeleteConfig)
				r.Post("/items", bundles.AddItem)
				r.Put("/items/{index}", bundles.UpdateItem)
				r.Delete("/items/{index}", bundles.RemoveItem)
				r.Post("/items/{index}/duplicate", bundles.DuplicateItem)
			})
		})
	})

	return r
}
