package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxCheckoutBodySize = 64 * 1024

// OrderHandlers exposes authenticated checkout and order endpoints.
type OrderHandlers struct {
	authn      *auth.GatewayAuthenticator
	checkout   services.CheckoutService
	orders     services.OrderService
	checkoutMW func(http.Handler) http.Handler
}

// NewOrderHandlers constructs the order endpoint handlers. checkoutMW, when
// non-nil, guards POST /checkout; it is where the idempotency middleware is
// attached.
func NewOrderHandlers(authn *auth.GatewayAuthenticator, checkout services.CheckoutService, orders services.OrderService, checkoutMW func(http.Handler) http.Handler) *OrderHandlers {
	return &OrderHandlers{
		authn:      authn,
		checkout:   checkout,
		orders:     orders,
		checkoutMW: checkoutMW,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser)
	}
	if h.checkoutMW != nil {
		r.With(h.checkoutMW).Post("/checkout", h.postCheckout)
	} else {
		r.Post("/checkout", h.postCheckout)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Post("/{orderId}/cancel", h.postCancel)
}

// checkoutRequest deliberately carries no cart lines: the priced snapshot is
// resolved server-side from the stored cart, and the strict decoder rejects
// bodies that try to submit one.
type checkoutRequest struct {
	Selection           selectionPayload `json:"selection"`
	ShippingAddressKind string           `json:"shippingAddressKind"`
	AssertedTotalCents  int64            `json:"assertedTotalCents"`
}

func (h *OrderHandlers) postCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.checkout != nil, "checkout")
	if !ok {
		return
	}

	var req checkoutRequest
	if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.checkout.Checkout(ctx, services.CheckoutCommand{
		UserID:              identity.UID,
		Selection:           decodeSelection(req.Selection),
		ShippingAddressKind: domain.ShippingAddressKind(strings.TrimSpace(req.ShippingAddressKind)),
		AssertedTotal:       domain.Money(req.AssertedTotalCents),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: encodeOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "orders")
	if !ok {
		return
	}

	filter := services.OrderListFilter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.OrderStatus(strings.TrimSpace(part))
			if !status.Valid() {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown status filter "+string(status), http.StatusBadRequest))
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, identity.UID, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, encodeOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"orders": payloads})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "orders")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		UserID:  identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: encodeOrderPayload(order)})
}

type cancelOrderRequest struct {
	Reason          string `json:"reason,omitempty"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

func (h *OrderHandlers) postCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.orders != nil, "orders")
	if !ok {
		return
	}

	req := cancelOrderRequest{}
	if r.ContentLength != 0 {
		if err := decodeJSONBody(r, maxCheckoutBodySize, &req); err != nil && !errors.Is(err, errEmptyBody) {
			writeBodyError(ctx, w, err)
			return
		}
	}

	order, err := h.orders.RequestCancellation(ctx, services.CancelOrderCommand{
		OrderID:         strings.TrimSpace(chi.URLParam(r, "orderId")),
		UserID:          identity.UID,
		Reason:          strings.TrimSpace(req.Reason),
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: encodeOrderPayload(order)})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var mismatch *services.TotalMismatchError
	switch {
	case errors.As(err, &mismatch):
		httpx.WriteError(ctx, w, httpx.NewError("total_mismatch", mismatch.Error(), http.StatusBadRequest).
			WithDetails(map[string]any{
				"expectedTotalCents": int64(mismatch.ExpectedTotal),
				"assertedTotalCents": int64(mismatch.AssertedTotal),
			}))
	case errors.Is(err, services.ErrInvalidShippingAddressKind):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_shipping_address_kind", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingInvalidInput),
		errors.Is(err, services.ErrInvalidMethod),
		errors.Is(err, services.ErrNotEligibleForFreeShipping),
		errors.Is(err, services.ErrRuleSetUnavailable):
		writePricingError(ctx, w, err)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrAlreadyCancelled):
		httpx.WriteError(ctx, w, httpx.NewError("already_cancelled", "a cancellation has already been recorded", http.StatusConflict))
	case errors.Is(err, services.ErrIllegalTransition):
		httpx.WriteError(ctx, w, httpx.NewError("illegal_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrConflictingTransition):
		httpx.WriteError(ctx, w, httpx.NewError("conflicting_transition", "order was modified concurrently; refresh and retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order", http.StatusInternalServerError))
	}
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}
