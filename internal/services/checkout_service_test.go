package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

type stubRuleSetRepo struct {
	getFn  func(context.Context) (domain.RuleSet, error)
	saveFn func(context.Context, domain.RuleSet) (domain.RuleSet, error)
}

func (s *stubRuleSetRepo) Get(ctx context.Context) (domain.RuleSet, error) {
	if s.getFn != nil {
		return s.getFn(ctx)
	}
	return testRules(), nil
}

func (s *stubRuleSetRepo) Save(ctx context.Context, rules domain.RuleSet) (domain.RuleSet, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, rules)
	}
	return rules, nil
}

type stubCartRepo struct {
	getFn   func(context.Context, string) (domain.Cart, error)
	saveFn  func(context.Context, domain.Cart) (domain.Cart, error)
	clearFn func(context.Context, string, time.Time) error
}

func (s *stubCartRepo) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.Cart{UserID: userID}, nil
}

func (s *stubCartRepo) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.saveFn != nil {
		return s.saveFn(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepo) Clear(ctx context.Context, userID string, now time.Time) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID, now)
	}
	return nil
}

type stubProductRepo struct {
	findFn func(context.Context, []string) (map[string]domain.ProductPrice, error)
}

func (s *stubProductRepo) FindPrices(ctx context.Context, productIDs []string) (map[string]domain.ProductPrice, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productIDs)
	}
	return checkoutCatalog(), nil
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

func (s *stubCounterRepo) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

// checkoutCart and checkoutCatalog price to a 25990 grand total against
// testRules: two units at an effective 10000, standard delivery 2000, card
// fee 0, gift wrap 1000, 13% tax on 23000.
func checkoutCart() domain.Cart {
	return domain.Cart{UserID: "user-1", Lines: []domain.CartLine{
		{ProductID: "prod-1", Quantity: 2},
	}}
}

func checkoutCatalog() map[string]domain.ProductPrice {
	return map[string]domain.ProductPrice{
		"prod-1": {UnitPrice: 12000, DiscountPercent: 20, DiscountPrice: 10000},
	}
}

func checkoutSelection() PricingSelection {
	return PricingSelection{PaymentMethodID: "card", DeliveryMethodID: "standard", GiftWrap: true}
}

func newTestCheckoutService(t *testing.T, deps CheckoutServiceDeps) CheckoutService {
	t.Helper()
	if deps.Rules == nil {
		deps.Rules = &stubRuleSetRepo{}
	}
	if deps.Carts == nil {
		deps.Carts = &stubCartRepo{
			getFn: func(context.Context, string) (domain.Cart, error) { return checkoutCart(), nil },
		}
	}
	if deps.Products == nil {
		deps.Products = &stubProductRepo{}
	}
	if deps.Orders == nil {
		deps.Orders = &stubOrderRepo{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubCounterRepo{
			nextFn: func(context.Context, string, int64) (int64, error) { return 42, nil },
		}
	}
	if deps.Engine == nil {
		deps.Engine = NewCartPricingEngine()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC) }
	}
	if deps.IDGenerator == nil {
		deps.IDGenerator = func() string { return "000TEST" }
	}

	svc, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	return svc
}

func TestCheckoutCreatesPendingOrder(t *testing.T) {
	ctx := context.Background()
	events := &captureOrderEvents{}

	var inserted []domain.Order
	var clearedUser string

	orders := &stubOrderRepo{
		insertFn: func(_ context.Context, order domain.Order) error {
			inserted = append(inserted, order)
			return nil
		},
	}
	carts := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return checkoutCart(), nil
		},
		clearFn: func(_ context.Context, userID string, _ time.Time) error {
			clearedUser = userID
			return nil
		},
	}
	counters := &stubCounterRepo{
		nextFn: func(_ context.Context, counterID string, step int64) (int64, error) {
			if counterID != "orders" {
				t.Fatalf("unexpected counter id %s", counterID)
			}
			if step != 1 {
				t.Fatalf("unexpected step %d", step)
			}
			return 42, nil
		},
	}

	svc := newTestCheckoutService(t, CheckoutServiceDeps{
		Orders:   orders,
		Carts:    carts,
		Counters: counters,
		Events:   events,
	})

	order, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           checkoutSelection(),
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       25990,
	})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if order.ID != "ord_000TEST" {
		t.Fatalf("unexpected order id %s", order.ID)
	}
	if order.OrderNumber != "MC-2025-000042" {
		t.Fatalf("unexpected order number %s", order.OrderNumber)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending got %s", order.Status)
	}
	if len(order.StatusHistory) != 1 || order.StatusHistory[0].Status != domain.OrderStatusPending {
		t.Fatalf("unexpected history %+v", order.StatusHistory)
	}
	if order.Version != 1 {
		t.Fatalf("expected version 1 got %d", order.Version)
	}
	if len(order.Lines) != 1 {
		t.Fatalf("expected one frozen line got %+v", order.Lines)
	}
	line := order.Lines[0]
	if line.ProductID != "prod-1" || line.Quantity != 2 {
		t.Fatalf("line must come from the stored cart, got %+v", line)
	}
	if line.UnitPrice != 12000 || line.DiscountPrice != 10000 {
		t.Fatalf("line prices must come from the catalog, got %+v", line)
	}
	if order.Totals.GrandTotal != 25990 || order.Totals.TaxAmount != 2990 {
		t.Fatalf("unexpected totals %+v", order.Totals)
	}
	if len(inserted) != 1 {
		t.Fatalf("expected one inserted order got %d", len(inserted))
	}
	if clearedUser != "user-1" {
		t.Fatalf("expected cart clear for user-1 got %q", clearedUser)
	}
	if len(events.events) != 1 || events.events[0].Status != string(domain.OrderStatusPending) {
		t.Fatalf("expected one pending event got %+v", events.events)
	}
}

func TestCheckoutToleratesOneCentDifference(t *testing.T) {
	ctx := context.Background()

	for _, asserted := range []domain.Money{25989, 25990, 25991} {
		svc := newTestCheckoutService(t, CheckoutServiceDeps{})
		_, err := svc.Checkout(ctx, CheckoutCommand{
			UserID:              "user-1",
			Selection:           checkoutSelection(),
			ShippingAddressKind: domain.ShippingAddressHome,
			AssertedTotal:       asserted,
		})
		if err != nil {
			t.Fatalf("asserted %d must be accepted: %v", asserted, err)
		}
	}
}

func TestCheckoutRejectsMismatchedTotal(t *testing.T) {
	ctx := context.Background()

	insertCalled := false
	orders := &stubOrderRepo{
		insertFn: func(context.Context, domain.Order) error {
			insertCalled = true
			return nil
		},
	}
	svc := newTestCheckoutService(t, CheckoutServiceDeps{Orders: orders})

	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           checkoutSelection(),
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       26000,
	})
	if !errors.Is(err, ErrTotalMismatch) {
		t.Fatalf("expected ErrTotalMismatch got %v", err)
	}

	var mismatch *TotalMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TotalMismatchError got %T", err)
	}
	if mismatch.ExpectedTotal != 25990 || mismatch.AssertedTotal != 26000 {
		t.Fatalf("unexpected mismatch payload %+v", mismatch)
	}
	if insertCalled {
		t.Fatal("no order may be persisted on a total mismatch")
	}
}

// A caller cannot steer pricing towards a product its cart does not hold:
// the snapshot is rebuilt from the stored cart, so a total asserted for a
// cheaper catalog product fails the reconciliation.
func TestCheckoutPricesOnlyStoredCartLines(t *testing.T) {
	ctx := context.Background()

	insertCalled := false
	orders := &stubOrderRepo{
		insertFn: func(context.Context, domain.Order) error {
			insertCalled = true
			return nil
		},
	}
	carts := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{UserID: "user-1", Lines: []domain.CartLine{
				{ProductID: "prod-1", Quantity: 1},
			}}, nil
		},
	}
	products := &stubProductRepo{
		findFn: func(context.Context, []string) (map[string]domain.ProductPrice, error) {
			return map[string]domain.ProductPrice{
				"prod-1":     {UnitPrice: 12000, DiscountPercent: 20, DiscountPrice: 10000},
				"prod-promo": {UnitPrice: 1},
			}, nil
		},
	}
	svc := newTestCheckoutService(t, CheckoutServiceDeps{Orders: orders, Carts: carts, Products: products})

	// 2261 is the grand total a single one-cent prod-promo unit would price
	// to; the stored cart holds prod-1, which prices to 13560.
	selection := PricingSelection{PaymentMethodID: "card", DeliveryMethodID: "standard"}
	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           selection,
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       2261,
	})
	if !errors.Is(err, ErrTotalMismatch) {
		t.Fatalf("expected ErrTotalMismatch got %v", err)
	}

	var mismatch *TotalMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TotalMismatchError got %T", err)
	}
	if mismatch.ExpectedTotal != 13560 {
		t.Fatalf("expected total must reflect the stored cart, got %+v", mismatch)
	}
	if insertCalled {
		t.Fatal("no order may be persisted for a mispriced cart")
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	ctx := context.Background()

	for name, getFn := range map[string]func(context.Context, string) (domain.Cart, error){
		"missing": func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{}, &stubRepoError{notFound: true}
		},
		"empty": func(context.Context, string) (domain.Cart, error) {
			return domain.Cart{UserID: "user-1"}, nil
		},
	} {
		svc := newTestCheckoutService(t, CheckoutServiceDeps{Carts: &stubCartRepo{getFn: getFn}})
		_, err := svc.Checkout(ctx, CheckoutCommand{
			UserID:              "user-1",
			Selection:           checkoutSelection(),
			ShippingAddressKind: domain.ShippingAddressHome,
			AssertedTotal:       25990,
		})
		if !errors.Is(err, ErrCheckoutInvalidInput) {
			t.Fatalf("%s cart: expected ErrCheckoutInvalidInput got %v", name, err)
		}
	}
}

func TestCheckoutRejectsDelistedProduct(t *testing.T) {
	ctx := context.Background()

	products := &stubProductRepo{
		findFn: func(context.Context, []string) (map[string]domain.ProductPrice, error) {
			return map[string]domain.ProductPrice{}, nil
		},
	}
	svc := newTestCheckoutService(t, CheckoutServiceDeps{Products: products})

	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           checkoutSelection(),
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       25990,
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput got %v", err)
	}
}

func TestCheckoutRejectsUnknownShippingAddressKind(t *testing.T) {
	ctx := context.Background()
	svc := newTestCheckoutService(t, CheckoutServiceDeps{})

	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           checkoutSelection(),
		ShippingAddressKind: "office",
		AssertedTotal:       25990,
	})
	if !errors.Is(err, ErrInvalidShippingAddressKind) {
		t.Fatalf("expected ErrInvalidShippingAddressKind got %v", err)
	}
}

func TestCheckoutRefusesWithoutRuleSet(t *testing.T) {
	ctx := context.Background()
	rules := &stubRuleSetRepo{
		getFn: func(context.Context) (domain.RuleSet, error) {
			return domain.RuleSet{}, &stubRepoError{unavailable: true}
		},
	}
	svc := newTestCheckoutService(t, CheckoutServiceDeps{Rules: rules})

	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           checkoutSelection(),
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       25990,
	})
	if !errors.Is(err, ErrRuleSetUnavailable) {
		t.Fatalf("expected ErrRuleSetUnavailable got %v", err)
	}
}

func TestCheckoutPassesThroughPricingErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestCheckoutService(t, CheckoutServiceDeps{})

	selection := checkoutSelection()
	selection.DeliveryMethodID = "free"

	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           selection,
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       25990,
	})
	if !errors.Is(err, ErrNotEligibleForFreeShipping) {
		t.Fatalf("expected ErrNotEligibleForFreeShipping got %v", err)
	}
}

func TestCheckoutRollsBackWhenCartClearFails(t *testing.T) {
	ctx := context.Background()

	carts := &stubCartRepo{
		getFn: func(context.Context, string) (domain.Cart, error) {
			return checkoutCart(), nil
		},
		clearFn: func(context.Context, string, time.Time) error {
			return &stubRepoError{unavailable: true}
		},
	}
	events := &captureOrderEvents{}
	svc := newTestCheckoutService(t, CheckoutServiceDeps{Carts: carts, Events: events})

	_, err := svc.Checkout(ctx, CheckoutCommand{
		UserID:              "user-1",
		Selection:           checkoutSelection(),
		ShippingAddressKind: domain.ShippingAddressHome,
		AssertedTotal:       25990,
	})
	if err == nil {
		t.Fatal("expected checkout to fail when the unit of work fails")
	}
	if len(events.events) != 0 {
		t.Fatal("no event may be emitted for a failed checkout")
	}
}
