package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/services"
)

func newPublicRouter(rules *stubRuleSetService, checkout *stubCheckoutService) http.Handler {
	h := NewPublicHandlers(rules, checkout)
	return NewRouter(WithPublicRoutes(h.Routes))
}

func TestGetRules(t *testing.T) {
	rules := &stubRuleSetService{
		currentFn: func(context.Context) (domain.RuleSet, error) {
			return domain.RuleSet{
				PaymentMethods:        []domain.Method{{ID: "card", Label: "Credit card"}},
				DeliveryMethods:       []domain.Method{{ID: "standard", Label: "Standard", Fee: 2000}},
				TaxRate:               0.13,
				FreeShippingThreshold: 50000,
				FreeDeliveryMethodID:  "free",
			}, nil
		},
	}
	router := newPublicRouter(rules, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/rules", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Rules ruleSetPayload `json:"rules"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Rules.TaxRate != 0.13 || len(payload.Rules.DeliveryMethods) != 1 {
		t.Fatalf("unexpected payload %+v", payload.Rules)
	}
	if payload.Rules.DeliveryMethods[0].FeeCents != 2000 {
		t.Fatalf("expected fee in cents, got %+v", payload.Rules.DeliveryMethods[0])
	}
}

func TestGetRulesUnavailable(t *testing.T) {
	rules := &stubRuleSetService{
		currentFn: func(context.Context) (domain.RuleSet, error) {
			return domain.RuleSet{}, services.ErrRuleSetUnavailable
		},
	}
	router := newPublicRouter(rules, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/rules", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}

func TestPostQuote(t *testing.T) {
	var gotCmd services.QuoteCommand
	checkout := &stubCheckoutService{
		previewFn: func(_ context.Context, cmd services.QuoteCommand) (services.Quote, error) {
			gotCmd = cmd
			return services.Quote{
				CartTotal:   20000,
				DeliveryFee: 2000,
				TaxAmount:   2860,
				GrandTotal:  24860,
			}, nil
		},
	}
	router := newPublicRouter(&stubRuleSetService{}, checkout)

	body := `{
		"lines": [{"productId": "prod-a", "unitPriceCents": 12000, "discountPercent": 20, "discountPriceCents": 10000, "quantity": 2}],
		"selection": {"paymentMethodId": "card", "deliveryMethodId": "standard"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/quote", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if len(gotCmd.Lines) != 1 || gotCmd.Lines[0].UnitPrice != 12000 || gotCmd.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected decoded lines %+v", gotCmd.Lines)
	}
	if gotCmd.Selection.DeliveryMethodID != "standard" {
		t.Fatalf("unexpected selection %+v", gotCmd.Selection)
	}

	var payload struct {
		Quote quotePayload `json:"quote"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if payload.Quote.GrandTotalCents != 24860 {
		t.Fatalf("unexpected quote %+v", payload.Quote)
	}
}

func TestPostQuoteMapsPricingErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid input", services.ErrPricingInvalidInput, http.StatusBadRequest},
		{"unknown method", services.ErrInvalidMethod, http.StatusBadRequest},
		{"free shipping not eligible", services.ErrNotEligibleForFreeShipping, http.StatusBadRequest},
		{"rules unavailable", services.ErrRuleSetUnavailable, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checkout := &stubCheckoutService{
				previewFn: func(context.Context, services.QuoteCommand) (services.Quote, error) {
					return services.Quote{}, tc.err
				},
			}
			router := newPublicRouter(&stubRuleSetService{}, checkout)

			body := `{"lines": [{"productId": "prod-a", "unitPriceCents": 100, "quantity": 1}], "selection": {"paymentMethodId": "card", "deliveryMethodId": "standard"}}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/public/quote", strings.NewReader(body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
		})
	}
}

func TestPostQuoteRejectsMalformedBody(t *testing.T) {
	router := newPublicRouter(&stubRuleSetService{}, &stubCheckoutService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/quote", strings.NewReader("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}
