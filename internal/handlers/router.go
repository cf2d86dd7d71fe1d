package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

const (
	defaultAPIPrefix = "/api"
	defaultTimeout   = 60 * time.Second
)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	orders  RouteRegistrar
	returns RouteRegistrar
	admin   RouteRegistrar

	defaultLimiter rateLimiter
	webhookLimiter rateLimiter
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

// NewRouter constructs the chi router with shared middleware and route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	if cfg.defaultLimiter != nil {
		r.Use(rateLimitMiddleware(cfg.defaultLimiter))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		api.Route("/orders", func(group chi.Router) {
			if cfg.webhookLimiter != nil {
				// The webhook route carries its own, tighter limit; it is
				// registered by the orders registrar, so the limiter wraps
				// the whole group keyed per caller.
				group.Use(webhookRateLimit(cfg.webhookLimiter, cfg.basePath+"/orders/webhook"))
			}
			if cfg.orders != nil {
				cfg.orders(group)
			}
			if cfg.returns != nil {
				cfg.returns(group)
			}
		})
		api.Route("/admin", func(group chi.Router) {
			if cfg.admin != nil {
				cfg.admin(group)
			}
		})
	})

	return r
}

// webhookRateLimit applies the limiter only to the given webhook path inside
// the orders group.
func webhookRateLimit(limiter rateLimiter, path string) func(http.Handler) http.Handler {
	limit := rateLimitMiddleware(limiter)
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == path {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithBasePath overrides the prefix the API groups mount under.
func WithBasePath(path string) Option {
	return func(cfg *routerConfig) {
		if path != "" {
			cfg.basePath = path
		}
	}
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealth overrides the health handlers.
func WithHealth(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithOrderRoutes mounts the customer-facing order endpoints.
func WithOrderRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = registrar
	}
}

// WithReturnRoutes mounts the return workflow endpoints.
func WithReturnRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.returns = registrar
	}
}

// WithAdminRoutes mounts the back-office endpoints.
func WithAdminRoutes(registrar RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.admin = registrar
	}
}

// WithRateLimits installs the global and webhook request limiters.
func WithRateLimits(perMinute, webhookPerMinute int, clock func() time.Time) Option {
	return func(cfg *routerConfig) {
		cfg.defaultLimiter = newWindowLimiter(perMinute, clock)
		cfg.webhookLimiter = newWindowLimiter(webhookPerMinute, clock)
	}
}
