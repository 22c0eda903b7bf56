package repositories

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	RuleSets() RuleSetRepository
	Carts() CartRepository
	Products() ProductRepository
	Orders() OrderRepository
	Notifications() NotificationRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RuleSetRepository stores the singleton merchant pricing configuration.
type RuleSetRepository interface {
	Get(ctx context.Context) (domain.RuleSet, error)
	Save(ctx context.Context, rules domain.RuleSet) (domain.RuleSet, error)
}

// CartRepository owns per-user cart persistence. Carts are keyed by user and
// hold at most one line per product.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	Clear(ctx context.Context, userID string, now time.Time) error
}

// ProductRepository reads catalog prices. The catalog itself is maintained
// by an external collaborator; this engine only ever reads from it. Products
// absent from the catalog are omitted from the result rather than failing
// the whole lookup.
type ProductRepository interface {
	FindPrices(ctx context.Context, productIDs []string) (map[string]domain.ProductPrice, error)
}

// OrderRepository persists order aggregates. Update enforces the optimistic
// version check: the stored document must carry exactly expectedVersion or
// the call fails with a conflict categorised RepositoryError.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order, expectedVersion int64) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, filter OrderListFilter) ([]domain.Order, error)
}

// OrderListFilter narrows order listings for users and operators.
type OrderListFilter struct {
	Status []domain.OrderStatus
	Limit  int
}

// NotificationRepository stores per-user notifications and store-wide broadcasts.
type NotificationRepository interface {
	Insert(ctx context.Context, notification domain.Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
	MarkRead(ctx context.Context, notificationID string, userID string, now time.Time) (domain.Notification, error)
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
