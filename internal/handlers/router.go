package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shoplane/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	guest    RouteRegistrar
	cart     RouteRegistrar
	orders   RouteRegistrar
	search   RouteRegistrar
	catalog  RouteRegistrar
	webhooks RouteRegistrar

	ownerMiddlewares    []func(http.Handler) http.Handler
	mutationMiddlewares []func(http.Handler) http.Handler
	searchMiddlewares   []func(http.Handler) http.Handler
	webhookMiddlewares  []func(http.Handler) http.Handler
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix  = "/api/v1"
	defaultTimeout    = 60 * time.Second
	errorNotFoundCode = "NOT_FOUND"
)

// NewRouter constructs the chi router with shared middleware and the expected
// route groups. Groups without a registrar answer 501 so a partially wired
// deployment fails loudly instead of quietly 404ing.
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
		cfg.health = NewHealthHandlers(nil)
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("METHOD_NOT_ALLOWED", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar, name string, groupMW ...[]func(http.Handler) http.Handler) {
			api.Route(path, func(group chi.Router) {
				for _, set := range groupMW {
					for _, mw := range set {
						if mw != nil {
							group.Use(mw)
						}
					}
				}
				if registrar != nil {
					registrar(group)
					return
				}
				registerNotImplemented(group, name)
			})
		}

		mount("/guest", cfg.guest, "guest")
		mount("/cart", cfg.cart, "cart", cfg.ownerMiddlewares, cfg.mutationMiddlewares)
		mount("/orders", cfg.orders, "orders", cfg.ownerMiddlewares, cfg.mutationMiddlewares)
		mount("/search", cfg.search, "search", cfg.searchMiddlewares)
		if cfg.catalog != nil {
			cfg.catalog(api)
		}
		mount("/webhooks", cfg.webhooks, "webhooks", cfg.webhookMiddlewares)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz endpoints.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithGuestRoutes configures the registrar responsible for guest session endpoints.
func WithGuestRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.guest = reg
	}
}

// WithCartRoutes configures the registrar responsible for cart endpoints.
func WithCartRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
	}
}

// WithOrderRoutes configures the registrar responsible for order endpoints.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.orders = reg
	}
}

// WithSearchRoutes configures the registrar responsible for search endpoints.
func WithSearchRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.search = reg
	}
}

// WithCatalogRoutes configures the registrar for shop and product detail
// endpoints, mounted directly under the API prefix.
func WithCatalogRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.catalog = reg
	}
}

// WithWebhookRoutes configures the registrar responsible for webhook endpoints.
func WithWebhookRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.webhooks = reg
	}
}

// WithOwnerMiddlewares configures middleware applied to the owner-scoped
// /cart and /orders groups, typically credential resolution.
func WithOwnerMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.ownerMiddlewares = append(cfg.ownerMiddlewares, mw...)
	}
}

// WithMutationMiddlewares configures middleware applied to the mutating
// /cart and /orders groups, typically idempotency-key replay.
func WithMutationMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.mutationMiddlewares = append(cfg.mutationMiddlewares, mw...)
	}
}

// WithSearchMiddlewares configures middleware applied to the /search group,
// typically rate limiting.
func WithSearchMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.searchMiddlewares = append(cfg.searchMiddlewares, mw...)
	}
}

// WithWebhookMiddlewares configures middlewares applied to the /webhooks group.
func WithWebhookMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.webhookMiddlewares = append(cfg.webhookMiddlewares, mw...)
	}
}

// NewRateLimitMiddleware adapts the shared limiter into per-client HTTP
// middleware keyed on the caller's resolved IP.
func NewRateLimitMiddleware(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow(r.RemoteAddr) {
				httpx.WriteError(r.Context(), w, httpx.NewError("RATE_LIMITED", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewSearchRateLimiter builds the limiter used in front of the search group.
func NewSearchRateLimiter(perMinute int) rateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return newClientLimiter(perMinute)
}

func registerNotImplemented(r chi.Router, name string) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("NOT_IMPLEMENTED", fmt.Sprintf("%s routes not implemented", name), http.StatusNotImplemented))
	}
	r.HandleFunc("/*", handler)
	r.HandleFunc("/", handler)
	r.NotFound(handler)
	r.MethodNotAllowed(handler)
}
