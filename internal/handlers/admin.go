package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/platform/httpx"
	"github.com/maplecart/api/internal/services"
)

const maxAdminBodySize = 128 * 1024

// AdminHandlers exposes the operator-only back-office endpoints.
type AdminHandlers struct {
	authn         *auth.GatewayAuthenticator
	rules         services.RuleSetService
	orders        services.OrderService
	notifications services.NotificationService
	statusMW      func(http.Handler) http.Handler
}

// NewAdminHandlers constructs the admin endpoint handlers. statusMW, when
// non-nil, guards POST /orders/{orderId}/status; it is where the idempotency
// middleware is attached.
func NewAdminHandlers(authn *auth.GatewayAuthenticator, rules services.RuleSetService, orders services.OrderService, notifications services.NotificationService, statusMW func(http.Handler) http.Handler) *AdminHandlers {
	return &AdminHandlers{
		authn:         authn,
		rules:         rules,
		orders:        orders,
		notifications: notifications,
		statusMW:      statusMW,
	}
}

// Routes wires the /admin endpoints onto the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireOperator)
	}
	r.Put("/rules", h.putRules)
	if h.statusMW != nil {
		r.With(h.statusMW).Post("/orders/{orderId}/status", h.postOrderStatus)
	} else {
		r.Post("/orders/{orderId}/status", h.postOrderStatus)
	}
	r.Post("/notifications/broadcast", h.postBroadcast)
}

type replaceRulesRequest struct {
	Rules ruleSetPayload `json:"rules"`
}

func (h *AdminHandlers) putRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.rules == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rules_service_unavailable", "rules service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req replaceRulesRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	saved, err := h.rules.ReplaceRules(ctx, services.ReplaceRulesCommand{
		Rules:   decodeRuleSetPayload(req.Rules),
		ActorID: operatorSubject(ctx),
	})
	if err != nil {
		writeRuleSetError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"rules": encodeRuleSetPayload(saved)})
}

type orderStatusRequest struct {
	TargetStatus    string `json:"targetStatus"`
	ExpectedVersion int64  `json:"expectedVersion,omitempty"`
}

func (h *AdminHandlers) postOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("orders_service_unavailable", "orders service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req orderStatusRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:         strings.TrimSpace(chi.URLParam(r, "orderId")),
		TargetStatus:    domain.OrderStatus(strings.TrimSpace(req.TargetStatus)),
		ExpectedVersion: req.ExpectedVersion,
		ActorID:         operatorSubject(ctx),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: encodeOrderPayload(order)})
}

type broadcastRequest struct {
	Message string `json:"message"`
	Link    string `json:"link,omitempty"`
}

func (h *AdminHandlers) postBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.notifications == nil {
		httpx.WriteError(ctx, w, httpx.NewError("notifications_service_unavailable", "notification service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req broadcastRequest
	if err := decodeJSONBody(r, maxAdminBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	notification, err := h.notifications.Broadcast(ctx, services.BroadcastCommand{
		Message: req.Message,
		Link:    strings.TrimSpace(req.Link),
		ActorID: operatorSubject(ctx),
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, map[string]any{"notification": buildNotificationPayload(notification)})
}

func operatorSubject(ctx context.Context) string {
	if operator, ok := auth.OperatorFromContext(ctx); ok && operator != nil {
		return operator.Subject
	}
	return ""
}
