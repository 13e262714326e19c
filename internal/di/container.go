package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shoplane/api/internal/payments"
	"github.com/shoplane/api/internal/platform/auth"
	"github.com/shoplane/api/internal/platform/config"
	"github.com/shoplane/api/internal/repositories"
	"github.com/shoplane/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Cart    services.CartService
	Orders  services.OrderService
	Catalog services.CatalogService
	System  services.SystemService
}

// Container wires repositories, services, and platform infrastructure for
// runtime use.
type Container struct {
	Config        config.Config
	Repositories  repositories.Registry
	Services      Services
	Payments      payments.Provider
	GuestSessions *auth.GuestSessionManager
	Logger        *zap.Logger
}

// Option customises container construction, letting tests inject fakes.
type Option func(*containerDeps)

type containerDeps struct {
	logger    *zap.Logger
	clock     func() time.Time
	payments  payments.Provider
	events    services.OrderEventPublisher
	guestIDFn func() string
}

// WithLogger sets the structured logger shared across services.
func WithLogger(logger *zap.Logger) Option {
	return func(d *containerDeps) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock overrides the clock used by all services.
func WithClock(clock func() time.Time) Option {
	return func(d *containerDeps) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithPaymentProvider overrides the payment gateway adapter. Without this
// option a Stripe provider is built from the configuration.
func WithPaymentProvider(provider payments.Provider) Option {
	return func(d *containerDeps) {
		d.payments = provider
	}
}

// WithOrderEventPublisher sets the publisher for order lifecycle events.
func WithOrderEventPublisher(publisher services.OrderEventPublisher) Option {
	return func(d *containerDeps) {
		d.events = publisher
	}
}

// WithGuestIDGenerator overrides guest session id generation.
func WithGuestIDGenerator(fn func() string) Option {
	return func(d *containerDeps) {
		d.guestIDFn = fn
	}
}

// NewContainer assembles the runtime dependency graph on top of the provided
// repository registry.
func NewContainer(ctx context.Context, cfg config.Config, reg repositories.Registry, opts ...Option) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	deps := containerDeps{
		logger: zap.NewNop(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	provider := deps.payments
	if provider == nil && cfg.Payments.StripeAPIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.Payments.StripeAPIKey,
			WebhookSecret: cfg.Payments.StripeWebhookSecret,
			Logger:        eventLogger(deps.logger.Named("stripe")),
			Clock:         deps.clock,
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		provider = stripeProvider
	}

	guestOpts := []auth.GuestOption{
		auth.WithGuestTTL(cfg.Guest.SessionTTL),
		auth.WithGuestClock(deps.clock),
	}
	if deps.guestIDFn != nil {
		guestOpts = append(guestOpts, auth.WithGuestIDGenerator(deps.guestIDFn))
	}
	guests, err := auth.NewGuestSessionManager([]byte(cfg.Guest.SigningKey), guestOpts...)
	if err != nil {
		return nil, fmt.Errorf("build guest session manager: %w", err)
	}

	svc, err := buildServices(cfg, reg, provider, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:        cfg,
		Repositories:  reg,
		Services:      svc,
		Payments:      provider,
		GuestSessions: guests,
		Logger:        deps.logger,
	}, nil
}

// Close releases repository clients and any other held resources.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, provider payments.Provider, deps containerDeps) (Services, error) {
	var svc Services

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Carts:    reg.Carts(),
		Products: reg.Products(),
		Shops:    reg.Shops(),
		Clock:    deps.clock,
		TTL:      cfg.Carts.TTL,
		Logger:   eventLogger(deps.logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		Carts:      reg.Carts(),
		Products:   reg.Products(),
		Shops:      reg.Shops(),
		Counters:   reg.Counters(),
		UnitOfWork: reg,
		Payments:   provider,
		Currency:   cfg.Payments.Currency,
		Clock:      deps.clock,
		Events:     deps.events,
		Logger:     eventLogger(deps.logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: reg.Products(),
		Shops:    reg.Shops(),
		Logger:   eventLogger(deps.logger.Named("catalog")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Counters:         reg.Counters(),
		Clock:            deps.clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = systemSvc

	return svc, nil
}

// eventLogger adapts the zap logger to the service-layer logging callback.
func eventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
