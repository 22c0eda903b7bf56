package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maplecart/api/internal/platform/config"
	"github.com/maplecart/api/internal/repositories"
	"github.com/maplecart/api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Cart          services.CartService
	Checkout      services.CheckoutService
	Orders        services.OrderService
	Rules         services.RuleSetService
	Notifications services.NotificationService
	System        services.SystemService

	// Events is the fan-out every lifecycle transition flows through. It is
	// exposed so callers can publish synthetic events in tooling or tests.
	Events *services.OrderEventFanout
}

// Deps carries the externally constructed collaborators the container wires together.
type Deps struct {
	Config   config.Config
	Registry repositories.Registry
	Logger   *zap.Logger

	// Bridge forwards lifecycle events to the message broker. Optional: when
	// nil, events only feed the in-process notification dispatcher.
	Bridge services.OrderEventBridge
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring provides the
// Firestore-backed registry, while tests can supply in-memory registries.
func NewContainer(ctx context.Context, deps Deps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       deps.Config,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases resources such as repository clients, background workers, or caches.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, deps Deps) (Services, error) {
	var svc Services
	reg := deps.Registry
	cfg := deps.Config

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	notificationSvc, err := services.NewNotificationService(services.NotificationServiceDeps{
		Repository: reg.Notifications(),
		Clock:      time.Now,
		Logger:     eventLogger(logger.Named("notifications")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build notification service: %w", err)
	}
	svc.Notifications = notificationSvc

	fanout, err := services.NewOrderEventFanout(services.OrderEventFanoutDeps{
		Notifications: notificationSvc,
		Bridge:        deps.Bridge,
		Logger:        eventLogger(logger.Named("events")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order event fanout: %w", err)
	}
	svc.Events = fanout

	checkoutSvc, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Rules:             reg.RuleSets(),
		Carts:             reg.Carts(),
		Products:          reg.Products(),
		Orders:            reg.Orders(),
		Counters:          reg.Counters(),
		Engine:            services.NewCartPricingEngine(),
		UnitOfWork:        reg,
		Clock:             time.Now,
		Events:            fanout,
		Logger:            eventLogger(logger.Named("checkout")),
		OrderNumberPrefix: cfg.Orders.NumberPrefix,
		OrderCounterID:    cfg.Orders.CounterID,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkoutSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Clock:      time.Now,
		Events:     fanout,
		Logger:     eventLogger(logger.Named("orders")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	cartSvc, err := services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Clock:      time.Now,
		Logger:     eventLogger(logger.Named("cart")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cartSvc

	ruleSvc, err := services.NewRuleSetService(services.RuleSetServiceDeps{
		Repository: reg.RuleSets(),
		Clock:      time.Now,
		Logger:     eventLogger(logger.Named("rules")),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rule set service: %w", err)
	}
	svc.Rules = ruleSvc

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Counters:         reg.Counters(),
			Clock:            time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}

func eventLogger(logger *zap.Logger) func(context.Context, string, map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service event", zFields...)
	}
}
