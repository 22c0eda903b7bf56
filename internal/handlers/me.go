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

// MeHandlers exposes the authenticated per-user endpoints, currently the
// notification inbox.
type MeHandlers struct {
	authn         *auth.GatewayAuthenticator
	notifications services.NotificationService
}

// NewMeHandlers constructs handlers enforcing gateway authentication before
// invoking the notification service.
func NewMeHandlers(authn *auth.GatewayAuthenticator, notifications services.NotificationService) *MeHandlers {
	return &MeHandlers{
		authn:         authn,
		notifications: notifications,
	}
}

// Routes wires the /me endpoints onto the provided router.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireUser)
	}
	r.Get("/notifications", h.listNotifications)
	r.Post("/notifications/{notificationId}/read", h.markRead)
}

func (h *MeHandlers) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil, "notifications")
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a positive integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	notifications, err := h.notifications.ListForUser(ctx, identity.UID, limit)
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	payloads := make([]notificationPayload, 0, len(notifications))
	for _, n := range notifications {
		payloads = append(payloads, buildNotificationPayload(n))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"notifications": payloads})
}

func (h *MeHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w, h.notifications != nil, "notifications")
	if !ok {
		return
	}

	notification, err := h.notifications.MarkRead(ctx, services.MarkNotificationReadCommand{
		NotificationID: strings.TrimSpace(chi.URLParam(r, "notificationId")),
		UserID:         identity.UID,
	})
	if err != nil {
		writeNotificationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"notification": buildNotificationPayload(notification)})
}

func writeNotificationError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotificationInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotificationNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("notification_not_found", "notification not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("notification_error", "failed to process notification", http.StatusInternalServerError))
	}
}

type notificationPayload struct {
	ID        string `json:"id"`
	UserID    string `json:"userId,omitempty"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Link      string `json:"link,omitempty"`
	IsRead    bool   `json:"isRead"`
	CreatedAt string `json:"createdAt"`
}

func buildNotificationPayload(n domain.Notification) notificationPayload {
	payload := notificationPayload{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead,
		CreatedAt: formatTime(n.CreatedAt),
	}
	if n.UserID != nil {
		payload.UserID = *n.UserID
	}
	return payload
}
