package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/platform/auth"
	"github.com/maplecart/api/internal/services"
)

func newMeRouter(notifications *stubNotificationService) http.Handler {
	h := NewMeHandlers(auth.NewGatewayAuthenticator(), notifications)
	return NewRouter(WithMeRoutes(h.Routes))
}

func TestListNotifications(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	userID := "user-1"
	notifications := &stubNotificationService{
		listFn: func(_ context.Context, uid string, limit int) ([]domain.Notification, error) {
			if uid != "user-1" {
				t.Fatalf("unexpected user %q", uid)
			}
			return []domain.Notification{
				{ID: "ntf_1", UserID: &userID, Type: domain.NotificationTypeOrder, Message: "Your order MC-2025-000042 has been confirmed.", Link: "/orders/ord_1", CreatedAt: now},
				{ID: "ntf_2", Type: domain.NotificationTypePromotion, Message: "Summer sale!", CreatedAt: now.Add(-time.Hour)},
			}, nil
		},
	}
	router := newMeRouter(notifications)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/notifications", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Notifications []notificationPayload `json:"notifications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(payload.Notifications) != 2 {
		t.Fatalf("expected 2 notifications got %d", len(payload.Notifications))
	}
	if payload.Notifications[0].UserID != "user-1" || payload.Notifications[1].UserID != "" {
		t.Fatalf("broadcast must have no user: %+v", payload.Notifications)
	}
}

func TestListNotificationsRejectsBadLimit(t *testing.T) {
	router := newMeRouter(&stubNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/notifications?limit=zero", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestMarkNotificationRead(t *testing.T) {
	userID := "user-1"
	notifications := &stubNotificationService{
		markReadFn: func(_ context.Context, cmd services.MarkNotificationReadCommand) (domain.Notification, error) {
			if cmd.NotificationID != "ntf_1" || cmd.UserID != "user-1" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return domain.Notification{ID: "ntf_1", UserID: &userID, IsRead: true}, nil
		},
	}
	router := newMeRouter(notifications)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/notifications/ntf_1/read", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMarkNotificationReadNotFound(t *testing.T) {
	router := newMeRouter(&stubNotificationService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/me/notifications/ntf_x/read", nil)
	req.Header.Set("X-User-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestNotificationsRequireIdentity(t *testing.T) {
	router := newMeRouter(&stubNotificationService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
