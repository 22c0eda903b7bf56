package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrRuleSetInvalid signals an operator submitted a rule set that fails validation.
	ErrRuleSetInvalid = errors.New("ruleset: invalid rule set")
	// ErrRuleSetUnavailable indicates the pricing rules could not be read.
	// Checkout must refuse all orders while this holds; it never defaults to
	// zero fees.
	ErrRuleSetUnavailable = errors.New("ruleset: unavailable")
)

// RuleSetServiceDeps bundles collaborators required to construct the rule set service.
type RuleSetServiceDeps struct {
	Repository repositories.RuleSetRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type ruleSetService struct {
	repo   repositories.RuleSetRepository
	clock  func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewRuleSetService constructs a RuleSetService enforcing dependency validation.
func NewRuleSetService(deps RuleSetServiceDeps) (RuleSetService, error) {
	if deps.Repository == nil {
		return nil, errors.New("ruleset service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &ruleSetService{
		repo:   deps.Repository,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *ruleSetService) CurrentRules(ctx context.Context) (RuleSet, error) {
	rules, err := s.repo.Get(ctx)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", ErrRuleSetUnavailable, err)
	}
	return rules, nil
}

// ReplaceRules validates and stores a new rule set revision. Method
// identifiers carried by the previous revision may not be removed or renamed:
// existing orders reference identifiers, not method records.
func (s *ruleSetService) ReplaceRules(ctx context.Context, cmd ReplaceRulesCommand) (RuleSet, error) {
	rules := normaliseRules(cmd.Rules)
	if err := validateRules(rules); err != nil {
		return RuleSet{}, err
	}

	previous, err := s.repo.Get(ctx)
	switch {
	case err == nil:
		if err := checkIdentifierStability("payment", previous.PaymentMethods, rules.PaymentMethods); err != nil {
			return RuleSet{}, err
		}
		if err := checkIdentifierStability("delivery", previous.DeliveryMethods, rules.DeliveryMethods); err != nil {
			return RuleSet{}, err
		}
	case isRepoNotFound(err):
		// First revision; nothing to preserve.
	default:
		return RuleSet{}, fmt.Errorf("%w: %v", ErrRuleSetUnavailable, err)
	}

	rules.UpdatedAt = s.clock()

	saved, err := s.repo.Save(ctx, rules)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%w: %v", ErrRuleSetUnavailable, err)
	}

	s.logger(ctx, "ruleset.replaced", map[string]any{
		"paymentMethods":  len(saved.PaymentMethods),
		"deliveryMethods": len(saved.DeliveryMethods),
		"actor":           cmd.ActorID,
	})

	return saved, nil
}

func normaliseRules(rules RuleSet) RuleSet {
	rules.PaymentMethods = normaliseMethods(rules.PaymentMethods)
	rules.DeliveryMethods = normaliseMethods(rules.DeliveryMethods)
	rules.FreeDeliveryMethodID = strings.TrimSpace(rules.FreeDeliveryMethodID)
	return rules
}

func normaliseMethods(methods []Method) []Method {
	out := make([]Method, len(methods))
	for i, m := range methods {
		m.ID = strings.TrimSpace(m.ID)
		m.Label = strings.TrimSpace(m.Label)
		out[i] = m
	}
	return out
}

func validateRules(rules RuleSet) error {
	if len(rules.PaymentMethods) == 0 {
		return fmt.Errorf("%w: at least one payment method is required", ErrRuleSetInvalid)
	}
	if len(rules.DeliveryMethods) == 0 {
		return fmt.Errorf("%w: at least one delivery method is required", ErrRuleSetInvalid)
	}
	if err := validateMethods("payment", rules.PaymentMethods); err != nil {
		return err
	}
	if err := validateMethods("delivery", rules.DeliveryMethods); err != nil {
		return err
	}
	if rules.GiftWrapFee < 0 {
		return fmt.Errorf("%w: gift wrap fee cannot be negative", ErrRuleSetInvalid)
	}
	if rules.TaxRate < 0 || rules.TaxRate > 1 {
		return fmt.Errorf("%w: tax rate must be within [0,1]", ErrRuleSetInvalid)
	}
	if rules.FreeShippingThreshold < 0 {
		return fmt.Errorf("%w: free shipping threshold cannot be negative", ErrRuleSetInvalid)
	}
	if rules.FreeDeliveryMethodID != "" {
		if _, ok := rules.DeliveryMethod(rules.FreeDeliveryMethodID); !ok {
			return fmt.Errorf("%w: free delivery method %q is not a delivery method", ErrRuleSetInvalid, rules.FreeDeliveryMethodID)
		}
	}
	return nil
}

func validateMethods(kind string, methods []Method) error {
	seen := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		if m.ID == "" {
			return fmt.Errorf("%w: %s method identifier is required", ErrRuleSetInvalid, kind)
		}
		if m.Label == "" {
			return fmt.Errorf("%w: %s method %q label is required", ErrRuleSetInvalid, kind, m.ID)
		}
		if m.Fee < 0 {
			return fmt.Errorf("%w: %s method %q fee cannot be negative", ErrRuleSetInvalid, kind, m.ID)
		}
		if _, dup := seen[m.ID]; dup {
			return fmt.Errorf("%w: duplicate %s method identifier %q", ErrRuleSetInvalid, kind, m.ID)
		}
		seen[m.ID] = struct{}{}
	}
	return nil
}

func checkIdentifierStability(kind string, previous, next []Method) error {
	for _, prev := range previous {
		if _, ok := findMethodByID(next, prev.ID); !ok {
			return fmt.Errorf("%w: %s method %q cannot be removed or renamed", ErrRuleSetInvalid, kind, prev.ID)
		}
	}
	return nil
}

func findMethodByID(methods []Method, id string) (Method, bool) {
	for _, m := range methods {
		if m.ID == id {
			return m, true
		}
	}
	return Method{}, false
}
