package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const (
	rulesCollection = "rules"
	rulesDocumentID = "current"
)

type methodDocument struct {
	ID          string `firestore:"id"`
	Label       string `firestore:"label"`
	Fee         int64  `firestore:"feeCents"`
	Description string `firestore:"description,omitempty"`
}

type ruleSetDocument struct {
	PaymentMethods        []methodDocument `firestore:"paymentMethods"`
	DeliveryMethods       []methodDocument `firestore:"deliveryMethods"`
	GiftWrapFee           int64            `firestore:"giftWrapFeeCents"`
	TaxRate               float64          `firestore:"taxRate"`
	FreeShippingThreshold int64            `firestore:"freeShippingThresholdCents"`
	FreeDeliveryMethodID  string           `firestore:"freeDeliveryMethodId"`
	UpdatedAt             time.Time        `firestore:"updatedAt"`
}

// RuleSetRepository stores the singleton pricing configuration under
// rules/current.
type RuleSetRepository struct {
	base *pfirestore.BaseRepository[ruleSetDocument]
}

// NewRuleSetRepository constructs a Firestore-backed rule set repository.
func NewRuleSetRepository(provider *pfirestore.Provider) (*RuleSetRepository, error) {
	if provider == nil {
		return nil, errors.New("ruleset repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[ruleSetDocument](provider, rulesCollection, nil, nil)
	return &RuleSetRepository{base: base}, nil
}

// Get loads the current rule set revision.
func (r *RuleSetRepository) Get(ctx context.Context) (domain.RuleSet, error) {
	if r == nil || r.base == nil {
		return domain.RuleSet{}, errors.New("ruleset repository not initialised")
	}
	doc, err := r.base.Get(ctx, rulesDocumentID)
	if err != nil {
		return domain.RuleSet{}, err
	}
	return decodeRuleSet(doc.Data), nil
}

// Save replaces the current rule set revision.
func (r *RuleSetRepository) Save(ctx context.Context, rules domain.RuleSet) (domain.RuleSet, error) {
	if r == nil || r.base == nil {
		return domain.RuleSet{}, errors.New("ruleset repository not initialised")
	}

	doc := encodeRuleSet(rules)
	result, err := r.base.Set(ctx, rulesDocumentID, doc)
	if err != nil {
		return domain.RuleSet{}, err
	}

	saved := decodeRuleSet(doc)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = result.UpdateTime
	}
	return saved, nil
}

func encodeRuleSet(rules domain.RuleSet) ruleSetDocument {
	return ruleSetDocument{
		PaymentMethods:        encodeMethods(rules.PaymentMethods),
		DeliveryMethods:       encodeMethods(rules.DeliveryMethods),
		GiftWrapFee:           int64(rules.GiftWrapFee),
		TaxRate:               rules.TaxRate,
		FreeShippingThreshold: int64(rules.FreeShippingThreshold),
		FreeDeliveryMethodID:  strings.TrimSpace(rules.FreeDeliveryMethodID),
		UpdatedAt:             rules.UpdatedAt.UTC(),
	}
}

func decodeRuleSet(doc ruleSetDocument) domain.RuleSet {
	return domain.RuleSet{
		PaymentMethods:        decodeMethods(doc.PaymentMethods),
		DeliveryMethods:       decodeMethods(doc.DeliveryMethods),
		GiftWrapFee:           domain.Money(doc.GiftWrapFee),
		TaxRate:               doc.TaxRate,
		FreeShippingThreshold: domain.Money(doc.FreeShippingThreshold),
		FreeDeliveryMethodID:  doc.FreeDeliveryMethodID,
		UpdatedAt:             doc.UpdatedAt,
	}
}

func encodeMethods(methods []domain.Method) []methodDocument {
	out := make([]methodDocument, 0, len(methods))
	for _, m := range methods {
		out = append(out, methodDocument{
			ID:          m.ID,
			Label:       m.Label,
			Fee:         int64(m.Fee),
			Description: m.Description,
		})
	}
	return out
}

func decodeMethods(docs []methodDocument) []domain.Method {
	out := make([]domain.Method, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.Method{
			ID:          d.ID,
			Label:       d.Label,
			Fee:         domain.Money(d.Fee),
			Description: d.Description,
		})
	}
	return out
}

var _ repositories.RuleSetRepository = (*RuleSetRepository)(nil)
