package services

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrPricingInvalidInput signals bad request data such as non-positive quantities or negative prices.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrInvalidMethod is returned when a selected payment or delivery identifier is not in the rule set.
	ErrInvalidMethod = errors.New("pricing: unknown method identifier")
	// ErrNotEligibleForFreeShipping is returned when the free delivery method is
	// selected but the cart total is below the free-shipping threshold.
	ErrNotEligibleForFreeShipping = errors.New("pricing: not eligible for free shipping")
)

// CartPricingEngine computes the authoritative checkout total from a priced
// cart snapshot and the merchant rule set. It performs no I/O and is
// deterministic for fixed inputs, which the checkout validator relies on.
type CartPricingEngine struct{}

// NewCartPricingEngine constructs the pure pricing engine.
func NewCartPricingEngine() *CartPricingEngine {
	return &CartPricingEngine{}
}

// Quote prices the cart snapshot against the rule set. Every money value in
// the result is rounded at the point of computation, half away from zero.
func (e *CartPricingEngine) Quote(lines []PricedCartLine, selection PricingSelection, rules RuleSet) (Quote, error) {
	if err := validateQuoteInput(lines, rules); err != nil {
		return Quote{}, err
	}

	var cartTotal Money
	for _, line := range lines {
		quantity := int64(line.Quantity)
		unit := int64(line.EffectivePrice())
		if unit > 0 && quantity > 0 && unit > math.MaxInt64/quantity {
			return Quote{}, fmt.Errorf("%w: product %s subtotal overflow", ErrPricingInvalidInput, line.ProductID)
		}
		cartTotal += Money(unit * quantity)
	}

	freeShippingQualified := cartTotal >= rules.FreeShippingThreshold

	payment, ok := rules.PaymentMethod(selection.PaymentMethodID)
	if !ok {
		return Quote{}, fmt.Errorf("%w: payment method %q", ErrInvalidMethod, selection.PaymentMethodID)
	}
	delivery, ok := rules.DeliveryMethod(selection.DeliveryMethodID)
	if !ok {
		return Quote{}, fmt.Errorf("%w: delivery method %q", ErrInvalidMethod, selection.DeliveryMethodID)
	}

	if rules.FreeDeliveryMethodID != "" && delivery.ID == rules.FreeDeliveryMethodID && !freeShippingQualified {
		return Quote{}, fmt.Errorf("%w: cart total %s below threshold %s",
			ErrNotEligibleForFreeShipping, cartTotal.Decimal(), rules.FreeShippingThreshold.Decimal())
	}

	giftWrapFee := Money(0)
	if selection.GiftWrap {
		giftWrapFee = rules.GiftWrapFee
	}

	fees := payment.Fee + delivery.Fee + giftWrapFee
	taxAmount := (cartTotal + fees).MulFloat(rules.TaxRate)
	grandTotal := cartTotal + fees + taxAmount

	return Quote{
		CartTotal:             cartTotal,
		FreeShippingQualified: freeShippingQualified,
		PaymentFee:            payment.Fee,
		DeliveryFee:           delivery.Fee,
		GiftWrapFee:           giftWrapFee,
		TaxAmount:             taxAmount,
		GrandTotal:            grandTotal,
	}, nil
}

func validateQuoteInput(lines []PricedCartLine, rules RuleSet) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: cart is empty", ErrPricingInvalidInput)
	}
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if line.ProductID == "" {
			return fmt.Errorf("%w: missing product id", ErrPricingInvalidInput)
		}
		if _, dup := seen[line.ProductID]; dup {
			return fmt.Errorf("%w: duplicate line for product %s", ErrPricingInvalidInput, line.ProductID)
		}
		seen[line.ProductID] = struct{}{}
		if line.Quantity < 1 {
			return fmt.Errorf("%w: product %s quantity must be at least 1", ErrPricingInvalidInput, line.ProductID)
		}
		if line.UnitPrice < 0 || line.DiscountPrice < 0 {
			return fmt.Errorf("%w: product %s price cannot be negative", ErrPricingInvalidInput, line.ProductID)
		}
	}
	if rules.TaxRate < 0 || rules.TaxRate > 1 {
		return fmt.Errorf("%w: tax rate %v outside [0,1]", ErrPricingInvalidInput, rules.TaxRate)
	}
	return nil
}

var _ PricingEngine = (*CartPricingEngine)(nil)
