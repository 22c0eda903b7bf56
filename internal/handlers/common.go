package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/services"
)

const defaultMaxBodySize = 64 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func decodeJSONBody(r *http.Request, limit int64, target any) error {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(strings.NewReader(string(body)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return errors.New("invalid JSON payload")
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// pricedLinePayload is the wire form of a priced cart line. All monetary
// fields are integer cents.
type pricedLinePayload struct {
	ProductID       string  `json:"productId"`
	UnitPriceCents  int64   `json:"unitPriceCents"`
	DiscountPercent float64 `json:"discountPercent,omitempty"`
	DiscountCents   int64   `json:"discountPriceCents,omitempty"`
	Quantity        int     `json:"quantity"`
}

func decodePricedLines(payloads []pricedLinePayload) []domain.PricedCartLine {
	lines := make([]domain.PricedCartLine, 0, len(payloads))
	for _, p := range payloads {
		lines = append(lines, domain.PricedCartLine{
			ProductID:       strings.TrimSpace(p.ProductID),
			UnitPrice:       domain.Money(p.UnitPriceCents),
			DiscountPercent: p.DiscountPercent,
			DiscountPrice:   domain.Money(p.DiscountCents),
			Quantity:        p.Quantity,
		})
	}
	return lines
}

func encodePricedLines(lines []domain.PricedCartLine) []pricedLinePayload {
	payloads := make([]pricedLinePayload, 0, len(lines))
	for _, line := range lines {
		payloads = append(payloads, pricedLinePayload{
			ProductID:       line.ProductID,
			UnitPriceCents:  int64(line.UnitPrice),
			DiscountPercent: line.DiscountPercent,
			DiscountCents:   int64(line.DiscountPrice),
			Quantity:        line.Quantity,
		})
	}
	return payloads
}

type selectionPayload struct {
	PaymentMethodID  string `json:"paymentMethodId"`
	DeliveryMethodID string `json:"deliveryMethodId"`
	GiftWrap         bool   `json:"giftWrap"`
}

func decodeSelection(p selectionPayload) services.PricingSelection {
	return services.PricingSelection{
		PaymentMethodID:  strings.TrimSpace(p.PaymentMethodID),
		DeliveryMethodID: strings.TrimSpace(p.DeliveryMethodID),
		GiftWrap:         p.GiftWrap,
	}
}

type quotePayload struct {
	CartTotalCents        int64 `json:"cartTotalCents"`
	FreeShippingQualified bool  `json:"freeShippingQualified"`
	PaymentFeeCents       int64 `json:"paymentFeeCents"`
	DeliveryFeeCents      int64 `json:"deliveryFeeCents"`
	GiftWrapFeeCents      int64 `json:"giftWrapFeeCents"`
	TaxAmountCents        int64 `json:"taxAmountCents"`
	GrandTotalCents       int64 `json:"grandTotalCents"`
}

func encodeQuote(q services.Quote) quotePayload {
	return quotePayload{
		CartTotalCents:        int64(q.CartTotal),
		FreeShippingQualified: q.FreeShippingQualified,
		PaymentFeeCents:       int64(q.PaymentFee),
		DeliveryFeeCents:      int64(q.DeliveryFee),
		GiftWrapFeeCents:      int64(q.GiftWrapFee),
		TaxAmountCents:        int64(q.TaxAmount),
		GrandTotalCents:       int64(q.GrandTotal),
	}
}

type orderTotalsPayload struct {
	CartTotalCents   int64 `json:"cartTotalCents"`
	PaymentFeeCents  int64 `json:"paymentFeeCents"`
	DeliveryFeeCents int64 `json:"deliveryFeeCents"`
	GiftWrapFeeCents int64 `json:"giftWrapFeeCents"`
	TaxAmountCents   int64 `json:"taxAmountCents"`
	GrandTotalCents  int64 `json:"grandTotalCents"`
}

type statusChangePayload struct {
	Status string `json:"status"`
	At     string `json:"at"`
}

type orderPayload struct {
	ID                  string                `json:"id"`
	OrderNumber         string                `json:"orderNumber"`
	UserID              string                `json:"userId"`
	Lines               []pricedLinePayload   `json:"lines"`
	Totals              orderTotalsPayload    `json:"totals"`
	PaymentMethodID     string                `json:"paymentMethodId"`
	DeliveryMethodID    string                `json:"deliveryMethodId"`
	GiftWrap            bool                  `json:"giftWrap"`
	ShippingAddressKind string                `json:"shippingAddressKind"`
	Status              string                `json:"status"`
	StatusHistory       []statusChangePayload `json:"statusHistory"`
	CancelReason        *string               `json:"cancelReason,omitempty"`
	Version             int64                 `json:"version"`
	CreatedAt           string                `json:"createdAt"`
	UpdatedAt           string                `json:"updatedAt"`
}

func encodeOrderPayload(order domain.Order) orderPayload {
	history := make([]statusChangePayload, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangePayload{
			Status: string(change.Status),
			At:     formatTime(change.At),
		})
	}
	return orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Lines:       encodePricedLines(order.Lines),
		Totals: orderTotalsPayload{
			CartTotalCents:   int64(order.Totals.CartTotal),
			PaymentFeeCents:  int64(order.Totals.PaymentFee),
			DeliveryFeeCents: int64(order.Totals.DeliveryFee),
			GiftWrapFeeCents: int64(order.Totals.GiftWrapFee),
			TaxAmountCents:   int64(order.Totals.TaxAmount),
			GrandTotalCents:  int64(order.Totals.GrandTotal),
		},
		PaymentMethodID:     order.PaymentMethodID,
		DeliveryMethodID:    order.DeliveryMethodID,
		GiftWrap:            order.GiftWrap,
		ShippingAddressKind: string(order.ShippingAddressKind),
		Status:              string(order.Status),
		StatusHistory:       history,
		CancelReason:        order.CancelReason,
		Version:             order.Version,
		CreatedAt:           formatTime(order.CreatedAt),
		UpdatedAt:           formatTime(order.UpdatedAt),
	}
}

type methodPayload struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	FeeCents    int64  `json:"feeCents"`
	Description string `json:"description,omitempty"`
}

type ruleSetPayload struct {
	PaymentMethods             []methodPayload `json:"paymentMethods"`
	DeliveryMethods            []methodPayload `json:"deliveryMethods"`
	GiftWrapFeeCents           int64           `json:"giftWrapFeeCents"`
	TaxRate                    float64         `json:"taxRate"`
	FreeShippingThresholdCents int64           `json:"freeShippingThresholdCents"`
	FreeDeliveryMethodID       string          `json:"freeDeliveryMethodId"`
	UpdatedAt                  string          `json:"updatedAt,omitempty"`
}

func encodeRuleSetPayload(rules domain.RuleSet) ruleSetPayload {
	return ruleSetPayload{
		PaymentMethods:             encodeMethodPayloads(rules.PaymentMethods),
		DeliveryMethods:            encodeMethodPayloads(rules.DeliveryMethods),
		GiftWrapFeeCents:           int64(rules.GiftWrapFee),
		TaxRate:                    rules.TaxRate,
		FreeShippingThresholdCents: int64(rules.FreeShippingThreshold),
		FreeDeliveryMethodID:       rules.FreeDeliveryMethodID,
		UpdatedAt:                  formatTime(rules.UpdatedAt),
	}
}

func encodeMethodPayloads(methods []domain.Method) []methodPayload {
	out := make([]methodPayload, 0, len(methods))
	for _, m := range methods {
		out = append(out, methodPayload{
			ID:          m.ID,
			Label:       m.Label,
			FeeCents:    int64(m.Fee),
			Description: m.Description,
		})
	}
	return out
}

func decodeRuleSetPayload(p ruleSetPayload) domain.RuleSet {
	return domain.RuleSet{
		PaymentMethods:        decodeMethodPayloads(p.PaymentMethods),
		DeliveryMethods:       decodeMethodPayloads(p.DeliveryMethods),
		GiftWrapFee:           domain.Money(p.GiftWrapFeeCents),
		TaxRate:               p.TaxRate,
		FreeShippingThreshold: domain.Money(p.FreeShippingThresholdCents),
		FreeDeliveryMethodID:  strings.TrimSpace(p.FreeDeliveryMethodID),
	}
}

func decodeMethodPayloads(payloads []methodPayload) []domain.Method {
	out := make([]domain.Method, 0, len(payloads))
	for _, p := range payloads {
		out = append(out, domain.Method{
			ID:          strings.TrimSpace(p.ID),
			Label:       strings.TrimSpace(p.Label),
			Fee:         domain.Money(p.FeeCents),
			Description: strings.TrimSpace(p.Description),
		})
	}
	return out
}
