package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	defaultOrderNumberPrefix = "MC"
	defaultOrderCounterID    = "orders"

	// totalToleranceCents is the accepted absolute difference between the
	// authoritative grand total and the client-asserted total. Clients
	// computing with binary floats can land one cent off a correct total.
	totalToleranceCents = domain.Money(1)
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrInvalidShippingAddressKind is returned when the shipping-address
	// selector is not a member of the fixed enum.
	ErrInvalidShippingAddressKind = errors.New("checkout: invalid shipping address kind")
	// ErrTotalMismatch is returned when the client-asserted total diverges
	// from the recomputed grand total beyond the tolerance.
	ErrTotalMismatch = errors.New("checkout: total mismatch")
)

// TotalMismatchError carries both totals so the client can diagnose and
// resubmit. The server never silently corrects the asserted value.
type TotalMismatchError struct {
	ExpectedTotal Money
	AssertedTotal Money
}

func (e *TotalMismatchError) Error() string {
	return fmt.Sprintf("checkout: total mismatch: expected %s, asserted %s",
		e.ExpectedTotal.Decimal(), e.AssertedTotal.Decimal())
}

func (e *TotalMismatchError) Unwrap() error {
	return ErrTotalMismatch
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Rules       repositories.RuleSetRepository
	Carts       repositories.CartRepository
	Products    repositories.ProductRepository
	Orders      repositories.OrderRepository
	Counters    repositories.CounterRepository
	Engine      PricingEngine
	UnitOfWork  repositories.UnitOfWork
	Clock       func() time.Time
	IDGenerator func() string
	Events      OrderEventPublisher
	Logger      func(ctx context.Context, event string, fields map[string]any)

	// OrderNumberPrefix and OrderCounterID default to "MC" and "orders".
	OrderNumberPrefix string
	OrderCounterID    string
}

type checkoutService struct {
	rules      repositories.RuleSetRepository
	carts      repositories.CartRepository
	products   repositories.ProductRepository
	orders     repositories.OrderRepository
	counters   repositories.CounterRepository
	engine     PricingEngine
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	newID      func() string
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)

	numberPrefix string
	counterID    string
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Rules == nil {
		return nil, errors.New("checkout service: rule set repository is required")
	}
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("checkout service: product repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("checkout service: counter repository is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("checkout service: pricing engine is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	prefix := strings.TrimSpace(deps.OrderNumberPrefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	counterID := strings.TrimSpace(deps.OrderCounterID)
	if counterID == "" {
		counterID = defaultOrderCounterID
	}

	return &checkoutService{
		rules:      deps.Rules,
		carts:      deps.Carts,
		products:   deps.Products,
		orders:     deps.Orders,
		counters:   deps.Counters,
		engine:     deps.Engine,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:        idGen,
		events:       deps.Events,
		logger:       logger,
		numberPrefix: prefix,
		counterID:    counterID,
	}, nil
}

func (s *checkoutService) PreviewQuote(ctx context.Context, cmd QuoteCommand) (Quote, error) {
	rules, err := s.currentRules(ctx)
	if err != nil {
		return Quote{}, err
	}
	return s.engine.Quote(cmd.Lines, cmd.Selection, rules)
}

// Checkout prices the account's stored cart against the current rule set and
// creates the pending order. The priced snapshot is resolved entirely
// server-side: product membership and quantities come from the stored cart,
// unit prices from the catalog. The request contributes only the selection,
// the shipping-address kind, and the asserted total.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if !cmd.ShippingAddressKind.Valid() {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidShippingAddressKind, cmd.ShippingAddressKind)
	}

	lines, err := s.resolveCartSnapshot(ctx, userID)
	if err != nil {
		return Order{}, err
	}

	rules, err := s.currentRules(ctx)
	if err != nil {
		return Order{}, err
	}

	quote, err := s.engine.Quote(lines, cmd.Selection, rules)
	if err != nil {
		return Order{}, err
	}

	if domain.AbsDiff(quote.GrandTotal, cmd.AssertedTotal) > totalToleranceCents {
		return Order{}, &TotalMismatchError{
			ExpectedTotal: quote.GrandTotal,
			AssertedTotal: cmd.AssertedTotal,
		}
	}

	now := s.clock()

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	order := Order{
		ID:                  orderIDPrefix + s.newID(),
		OrderNumber:         number,
		UserID:              userID,
		Lines:               lines,
		Totals:              quote.Totals(),
		PaymentMethodID:     cmd.Selection.PaymentMethodID,
		DeliveryMethodID:    cmd.Selection.DeliveryMethodID,
		GiftWrap:            cmd.Selection.GiftWrap,
		ShippingAddressKind: cmd.ShippingAddressKind,
		StatusHistory:       []StatusChange{{Status: domain.OrderStatusPending, At: now}},
		Status:              domain.OrderStatusPending,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Insert(txCtx, order); err != nil {
			return mapOrderRepositoryError(err)
		}
		if err := s.carts.Clear(txCtx, userID, now); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

// resolveCartSnapshot turns the stored cart into priced lines using catalog
// prices. An empty or missing cart, and any cart line whose product is gone
// from the catalog, refuse the checkout.
func (s *checkoutService) resolveCartSnapshot(ctx context.Context, userID string) ([]PricedCartLine, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidInput)
		}
		return nil, fmt.Errorf("checkout: load cart: %w", err)
	}
	if len(cart.Lines) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidInput)
	}

	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	prices, err := s.products.FindPrices(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("checkout: resolve prices: %w", err)
	}

	lines := make([]PricedCartLine, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		price, ok := prices[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s is no longer available", ErrCheckoutInvalidInput, line.ProductID)
		}
		lines = append(lines, PricedCartLine{
			ProductID:       line.ProductID,
			UnitPrice:       price.UnitPrice,
			DiscountPercent: price.DiscountPercent,
			DiscountPrice:   price.DiscountPrice,
			Quantity:        line.Quantity,
		})
	}
	return lines, nil
}

// currentRules reads the rule set singleton. Any failure, including a missing
// document, refuses checkout outright rather than defaulting to zero fees.
func (s *checkoutService) currentRules(ctx context.Context) (RuleSet, error) {
	rules, err := s.rules.Get(ctx)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", ErrRuleSetUnavailable, err)
	}
	return rules, nil
}

func (s *checkoutService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, s.counterID, 1)
	if err != nil {
		return "", mapOrderRepositoryError(err)
	}
	return fmt.Sprintf("%s-%04d-%06d", s.numberPrefix, now.Year(), seq), nil
}

func (s *checkoutService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}
