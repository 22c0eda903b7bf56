package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const (
	maxQuoteBodySize = 64 * 1024

	quoteRateLimit  = 60
	quoteRateWindow = time.Minute
)

// PublicHandlers exposes the unauthenticated storefront endpoints: the current
// pricing rules and the checkout preview quote.
type PublicHandlers struct {
	rules    services.RuleSetService
	checkout services.CheckoutService
	limiter  rateLimiter
}

// NewPublicHandlers constructs the public endpoint handlers.
func NewPublicHandlers(rules services.RuleSetService, checkout services.CheckoutService) *PublicHandlers {
	return &PublicHandlers{
		rules:    rules,
		checkout: checkout,
		limiter:  newSimpleRateLimiter(quoteRateLimit, quoteRateWindow, nil),
	}
}

// Routes wires the /public endpoints onto the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/rules", h.getRules)
	r.Post("/quote", h.postQuote)
}

func (h *PublicHandlers) getRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service is unavailable", http.StatusServiceUnavailable))
		return
	}

	rules, err := h.rules.CurrentRules(ctx)
	if err != nil {
		writeRuleSetError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"rules": encodeRuleSetPayload(rules)})
}

type quoteRequest struct {
	Lines     []pricedLinePayload `json:"lines"`
	Selection selectionPayload    `json:"selection"`
}

func (h *PublicHandlers) postQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("quote_service_unavailable", "quote service is unavailable", http.StatusServiceUnavailable))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(r.RemoteAddr) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many quote requests", http.StatusTooManyRequests))
		return
	}

	var req quoteRequest
	if err := decodeJSONBody(r, maxQuoteBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	quote, err := h.checkout.PreviewQuote(ctx, services.QuoteCommand{
		Lines:     decodePricedLines(req.Lines),
		Selection: decodeSelection(req.Selection),
	})
	if err != nil {
		writePricingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"quote": encodeQuote(quote)})
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writePricingError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrInvalidMethod):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_method", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotEligibleForFreeShipping):
		httpx.WriteError(ctx, w, httpx.NewError("not_eligible_for_free_shipping", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRuleSetUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rules_unavailable", "pricing rules are unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("quote_error", "failed to compute quote", http.StatusInternalServerError))
	}
}

func writeRuleSetError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrRuleSetInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_rules", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrRuleSetUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("rules_unavailable", "pricing rules are unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("rules_error", "failed to load rules", http.StatusInternalServerError))
	}
}
