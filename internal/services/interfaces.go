package services

import (
	"context"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Money               = domain.Money
	Method              = domain.Method
	RuleSet             = domain.RuleSet
	Cart                = domain.Cart
	CartLine            = domain.CartLine
	PricedCartLine      = domain.PricedCartLine
	Order               = domain.Order
	OrderStatus         = domain.OrderStatus
	OrderTotals         = domain.OrderTotals
	StatusChange        = domain.StatusChange
	ShippingAddressKind = domain.ShippingAddressKind
	Notification        = domain.Notification
	NotificationType    = domain.NotificationType
	SystemHealthReport  = domain.SystemHealthReport
)

// PricingEngine computes an itemized, authoritative total for a priced cart
// snapshot against the current rule set. It performs no I/O.
type PricingEngine interface {
	Quote(lines []PricedCartLine, selection PricingSelection, rules RuleSet) (Quote, error)
}

// CheckoutService validates a checkout submission against the authoritative
// quote and, on success, persists the order and clears the customer's cart.
// It is the only code path allowed to create an order.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error)
	PreviewQuote(ctx context.Context, cmd QuoteCommand) (Quote, error)
}

// OrderService owns the order lifecycle state machine and read access to orders.
type OrderService interface {
	GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error)
	ListOrders(ctx context.Context, userID string, filter OrderListFilter) ([]Order, error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	RequestCancellation(ctx context.Context, cmd CancelOrderCommand) (Order, error)
}

// CartService manages the authenticated user's stored cart, including the
// merge of a pre-login anonymous cart.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	SetLine(ctx context.Context, cmd SetCartLineCommand) (Cart, error)
	RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (Cart, error)
	MergeAnonymous(ctx context.Context, cmd MergeCartCommand) (Cart, error)
}

// RuleSetService exposes the merchant pricing rules for checkout previews and
// guards operator edits against breaking identifiers referenced by past orders.
type RuleSetService interface {
	CurrentRules(ctx context.Context) (RuleSet, error)
	ReplaceRules(ctx context.Context, cmd ReplaceRulesCommand) (RuleSet, error)
}

// NotificationService persists customer notifications: one per order lifecycle
// transition, plus operator-authored broadcasts.
type NotificationService interface {
	DispatchOrderEvent(ctx context.Context, event OrderEventMessage) (Notification, error)
	Broadcast(ctx context.Context, cmd BroadcastCommand) (Notification, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error)
}

// SystemService aggregates utility surfaces (dependency health, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// OrderEventPublisher receives exactly one lifecycle event per accepted order
// status transition. Implementations must tolerate at-least-once delivery.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) error
}

// OrderEventMessage is the lifecycle event payload emitted by the order state
// machine and consumed by the notification dispatcher and the Pub/Sub bridge.
type OrderEventMessage struct {
	OrderID     string    `json:"orderId"`
	OrderNumber string    `json:"orderNumber"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Command and DTO definitions ------------------------------------------------

// PricingSelection carries the checkout options the customer chose.
type PricingSelection struct {
	PaymentMethodID  string
	DeliveryMethodID string
	GiftWrap         bool
}

// Quote is the itemized pricing breakdown returned by the engine. All money
// values are rounded at the point of computation.
type Quote struct {
	CartTotal             Money
	FreeShippingQualified bool
	PaymentFee            Money
	DeliveryFee           Money
	GiftWrapFee           Money
	TaxAmount             Money
	GrandTotal            Money
}

// Totals converts the quote into the snapshot frozen onto an order.
func (q Quote) Totals() OrderTotals {
	return OrderTotals{
		CartTotal:   q.CartTotal,
		PaymentFee:  q.PaymentFee,
		DeliveryFee: q.DeliveryFee,
		GiftWrapFee: q.GiftWrapFee,
		TaxAmount:   q.TaxAmount,
		GrandTotal:  q.GrandTotal,
	}
}

// QuoteCommand prices an ad-hoc cart snapshot without creating an order.
type QuoteCommand struct {
	Lines     []PricedCartLine
	Selection PricingSelection
}

// CheckoutCommand is a checkout submission. The priced cart snapshot is not
// part of the command: Checkout resolves it from the account's stored cart
// and the catalog prices. AssertedTotal is the client-computed grand total,
// carried only for the anti-tampering comparison.
type CheckoutCommand struct {
	UserID              string
	Selection           PricingSelection
	ShippingAddressKind ShippingAddressKind
	AssertedTotal       Money
}

type GetOrderCommand struct {
	OrderID string
	// UserID scopes the read; empty means an operator read.
	UserID string
}

type OrderListFilter = repositories.OrderListFilter

type OrderStatusTransitionCommand struct {
	OrderID         string
	TargetStatus    OrderStatus
	ExpectedVersion int64
	ActorID         string
}

type CancelOrderCommand struct {
	OrderID         string
	UserID          string
	Reason          string
	ExpectedVersion int64
}

type SetCartLineCommand struct {
	UserID    string
	ProductID string
	Quantity  int
}

type RemoveCartLineCommand struct {
	UserID    string
	ProductID string
}

type MergeCartCommand struct {
	UserID         string
	AnonymousLines []CartLine
}

type ReplaceRulesCommand struct {
	Rules   RuleSet
	ActorID string
}

type BroadcastCommand struct {
	Message string
	Link    string
	ActorID string
}

type MarkNotificationReadCommand struct {
	NotificationID string
	UserID         string
}

type CounterCommand struct {
	CounterID string
	Step      int64
}
