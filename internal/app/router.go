package app

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/acp-checkout/internal/catalog"
	"github.com/noah-isme/acp-checkout/internal/checkout"
	"github.com/noah-isme/acp-checkout/internal/health"
	"github.com/noah-isme/acp-checkout/internal/obs"
	"github.com/noah-isme/acp-checkout/internal/ratelimit"
	"github.com/noah-isme/acp-checkout/internal/security"
)

const maxBodyBytes = 1 << 20

// RouterOptions toggles the observability middleware.
type RouterOptions struct {
	Tracing     bool
	HTTPMetrics *obs.HTTPMetrics
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// NewRouter mounts every HTTP endpoint on a chi router.
func NewRouter(d *Dependencies, opts RouterOptions) http.Handler {
	cfg := d.Config

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Idempotency-Key"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: cfg.IsProduction()}.Middleware)

	if opts.MetricsHandler != nil {
		r.Handle("/metrics", opts.MetricsHandler)
	}

	healthHandler := health.Handler{Probes: d.Probes}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	provider := checkout.DefaultPaymentProvider()
	r.Method(http.MethodGet, "/.well-known/agentic-commerce.json", checkout.Discovery{
		BaseURL:      cfg.PublicBaseURL,
		MerchantName: cfg.MerchantName,
		Provider:     provider,
	})

	feed := &catalog.FeedHandler{
		Source:       d.Catalog,
		BaseURL:      cfg.PublicBaseURL,
		MerchantName: cfg.MerchantName,
		Currency:     cfg.Currency,
	}
	r.Get("/api/feed/products.json", feed.JSON)
	r.Get("/api/feed/products.xml", feed.XML)

	checkoutHandler := &checkout.Handler{Svc: d.CheckoutService()}
	limit := ratelimit.Handler{
		Limiter: d.Limiter,
		OnError: func(err error) { d.Logger.Warn().Err(err).Msg("rate_limit_store_error") },
	}
	r.Route("/api/acp/checkout_sessions", func(cs chi.Router) {
		cs.Use(limit.Middleware)
		cs.Use(security.BodyLimit{Max: maxBodyBytes}.Middleware)
		cs.Use(security.Headers{Enable: true, NoStore: true}.Middleware)
		checkoutHandler.Routes(cs)
	})
	return r
}

// DefaultMetricsHandler exposes the default prometheus registry.
func DefaultMetricsHandler() http.Handler {
	return promhttp.Handler()
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
