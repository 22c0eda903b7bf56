package domain

import (
	"strings"
	"time"
)

// Method describes a merchant-configured payment or delivery option. The
// identifier is stable for the lifetime of the store: orders persist the
// identifier together with the fee frozen at checkout, so an identifier must
// never be reused or renamed once any order references it.
type Method struct {
	ID          string
	Label       string
	Fee         Money
	Description string
}

// RuleSet is the merchant-configurable pricing configuration. It is stored as
// a singleton document, read once per quote or checkout, and never consulted
// again for existing orders.
type RuleSet struct {
	PaymentMethods        []Method
	DeliveryMethods       []Method
	GiftWrapFee           Money
	TaxRate               float64
	FreeShippingThreshold Money
	FreeDeliveryMethodID  string
	UpdatedAt             time.Time
}

// PaymentMethod looks up a payment method by identifier.
func (r RuleSet) PaymentMethod(id string) (Method, bool) {
	return findMethod(r.PaymentMethods, id)
}

// DeliveryMethod looks up a delivery method by identifier.
func (r RuleSet) DeliveryMethod(id string) (Method, bool) {
	return findMethod(r.DeliveryMethods, id)
}

func findMethod(methods []Method, id string) (Method, bool) {
	target := strings.TrimSpace(id)
	for _, m := range methods {
		if m.ID == target {
			return m, true
		}
	}
	return Method{}, false
}

// CartLine is a single product entry in a mutable cart. Carts hold at most
// one line per product.
type CartLine struct {
	ProductID string
	Quantity  int
}

// Cart aggregates the stored shopping cart for a user.
type Cart struct {
	UserID    string
	Lines     []CartLine
	UpdatedAt time.Time
}

// LineFor returns the index of the line for the given product, or -1.
func (c Cart) LineFor(productID string) int {
	for i, line := range c.Lines {
		if line.ProductID == productID {
			return i
		}
	}
	return -1
}

// ProductPrice is the catalog-owned price data for one product. Checkout
// reads it server-side and freezes it into the order's priced lines; it is
// never accepted from a client.
type ProductPrice struct {
	UnitPrice       Money
	DiscountPercent float64
	DiscountPrice   Money
}

// PricedCartLine is a cart line with server-resolved pricing. UnitPrice is
// the product's regular price; DiscountPrice applies only while
// 0 < DiscountPercent < 100 and DiscountPrice > 0. Orders freeze these values
// at creation time and never re-read the live product catalogue.
type PricedCartLine struct {
	ProductID       string
	UnitPrice       Money
	DiscountPercent float64
	DiscountPrice   Money
	Quantity        int
}

// EffectivePrice returns the per-unit price actually charged for the line.
func (l PricedCartLine) EffectivePrice() Money {
	if l.DiscountPercent > 0 && l.DiscountPercent < 100 && l.DiscountPrice > 0 {
		return l.DiscountPrice
	}
	return l.UnitPrice
}

// ShippingAddressKind enumerates the accepted shipping-address selectors.
type ShippingAddressKind string

const (
	// ShippingAddressHome ships to the account's registered home address.
	ShippingAddressHome ShippingAddressKind = "home"
	// ShippingAddressDelivery ships to the separately stored delivery address.
	ShippingAddressDelivery ShippingAddressKind = "delivery"
)

// Valid reports whether the kind is a member of the fixed enum.
func (k ShippingAddressKind) Valid() bool {
	switch k {
	case ShippingAddressHome, ShippingAddressDelivery:
		return true
	}
	return false
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state assigned at checkout.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPlaced indicates an operator confirmed the order.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusInTransit indicates the order has been handed to the carrier.
	OrderStatusInTransit OrderStatus = "in_transit"
	// OrderStatusCompleted indicates delivery was confirmed. Terminal.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusRefundRequest indicates the customer asked to cancel while pending.
	OrderStatusRefundRequest OrderStatus = "refund_request"
	// OrderStatusCancelled indicates an operator approved the cancellation. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid reports whether the status is a member of the lifecycle enum.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPlaced, OrderStatusInTransit,
		OrderStatusCompleted, OrderStatusRefundRequest, OrderStatusCancelled:
		return true
	}
	return false
}

// StatusChange is one entry of an order's append-only status history.
type StatusChange struct {
	Status OrderStatus
	At     time.Time
}

// OrderTotals holds the frozen monetary breakdown computed at checkout.
type OrderTotals struct {
	CartTotal   Money
	PaymentFee  Money
	DeliveryFee Money
	GiftWrapFee Money
	TaxAmount   Money
	GrandTotal  Money
}

// Order is the checkout-created aggregate. Lines and totals are immutable
// after creation; only the state machine appends to StatusHistory. Status is
// always derived from the last history entry, and Version increases by one on
// every accepted transition.
type Order struct {
	ID                  string
	OrderNumber         string
	UserID              string
	Lines               []PricedCartLine
	Totals              OrderTotals
	PaymentMethodID     string
	DeliveryMethodID    string
	GiftWrap            bool
	ShippingAddressKind ShippingAddressKind
	StatusHistory       []StatusChange
	Status              OrderStatus
	CancelReason        *string
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// HasStatus reports whether the history contains an entry with the status.
func (o Order) HasStatus(status OrderStatus) bool {
	for _, change := range o.StatusHistory {
		if change.Status == status {
			return true
		}
	}
	return false
}

// NotificationType classifies stored notifications.
type NotificationType string

const (
	// NotificationTypeOrder marks order lifecycle notifications.
	NotificationTypeOrder NotificationType = "order"
	// NotificationTypePromotion marks store-wide promotional broadcasts.
	NotificationTypePromotion NotificationType = "promotion"
)

// Notification is a stored message for a user. A nil UserID denotes a
// store-wide broadcast visible to every user.
type Notification struct {
	ID        string
	UserID    *string
	Type      NotificationType
	Message   string
	Link      string
	IsRead    bool
	CreatedAt time.Time
}

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates a dependency is failing non-fatally.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	GeneratedAt time.Time
}
