package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

const (
	notificationIDPrefix        = "ntf_"
	defaultNotificationPageSize = 50
)

var (
	// ErrNotificationInvalidInput signals the caller provided invalid data.
	ErrNotificationInvalidInput = errors.New("notification: invalid input")
	// ErrNotificationNotFound indicates the notification does not exist or
	// belongs to another user.
	ErrNotificationNotFound = errors.New("notification: not found")
)

// orderStatusMessages maps each lifecycle status to the customer-facing
// notification copy. The order number is interpolated into the message.
var orderStatusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusPending:       "Your order %s has been received.",
	domain.OrderStatusPlaced:        "Your order %s has been confirmed.",
	domain.OrderStatusInTransit:     "Your order %s is on its way.",
	domain.OrderStatusCompleted:     "Your order %s has been delivered.",
	domain.OrderStatusRefundRequest: "We received the cancellation request for order %s.",
	domain.OrderStatusCancelled:     "Your order %s has been cancelled.",
}

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Repository  repositories.NotificationRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
	// Sanitizer cleans operator-supplied broadcast bodies. Defaults to the
	// bluemonday UGC policy.
	Sanitizer *bluemonday.Policy
}

type notificationService struct {
	repo      repositories.NotificationRepository
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewNotificationService constructs a NotificationService enforcing dependency validation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Repository == nil {
		return nil, errors.New("notification service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.UGCPolicy()
	}

	return &notificationService{
		repo:      deps.Repository,
		clock:     func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
		sanitizer: sanitizer,
	}, nil
}

// DispatchOrderEvent persists the single notification for a lifecycle event.
func (s *notificationService) DispatchOrderEvent(ctx context.Context, event OrderEventMessage) (Notification, error) {
	userID := strings.TrimSpace(event.UserID)
	if userID == "" {
		return Notification{}, fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}
	orderID := strings.TrimSpace(event.OrderID)
	if orderID == "" {
		return Notification{}, fmt.Errorf("%w: order id is required", ErrNotificationInvalidInput)
	}

	status := domain.OrderStatus(strings.TrimSpace(event.Status))
	template, ok := orderStatusMessages[status]
	if !ok {
		return Notification{}, fmt.Errorf("%w: unknown status %q", ErrNotificationInvalidInput, event.Status)
	}

	reference := strings.TrimSpace(event.OrderNumber)
	if reference == "" {
		reference = orderID
	}

	createdAt := event.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = s.clock()
	}

	notification := Notification{
		ID:        notificationIDPrefix + s.newID(),
		UserID:    &userID,
		Type:      domain.NotificationTypeOrder,
		Message:   fmt.Sprintf(template, reference),
		Link:      "/orders/" + orderID,
		CreatedAt: createdAt,
	}

	if err := s.repo.Insert(ctx, notification); err != nil {
		return Notification{}, mapNotificationRepositoryError(err)
	}

	s.logger(ctx, "notification.order.dispatched", map[string]any{
		"order":  orderID,
		"status": string(status),
	})

	return notification, nil
}

// Broadcast stores an operator-authored store-wide notice. Broadcasts carry
// no user reference and are unrelated to order events.
func (s *notificationService) Broadcast(ctx context.Context, cmd BroadcastCommand) (Notification, error) {
	message := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Message))
	if message == "" {
		return Notification{}, fmt.Errorf("%w: message is required", ErrNotificationInvalidInput)
	}

	notification := Notification{
		ID:        notificationIDPrefix + s.newID(),
		Type:      domain.NotificationTypePromotion,
		Message:   message,
		Link:      strings.TrimSpace(cmd.Link),
		CreatedAt: s.clock(),
	}

	if err := s.repo.Insert(ctx, notification); err != nil {
		return Notification{}, mapNotificationRepositoryError(err)
	}

	s.logger(ctx, "notification.broadcast.created", map[string]any{
		"notification": notification.ID,
		"actor":        cmd.ActorID,
	})

	return notification, nil
}

func (s *notificationService) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}
	if limit <= 0 {
		limit = defaultNotificationPageSize
	}

	notifications, err := s.repo.ListForUser(ctx, uid, limit)
	if err != nil {
		return nil, mapNotificationRepositoryError(err)
	}
	return notifications, nil
}

func (s *notificationService) MarkRead(ctx context.Context, cmd MarkNotificationReadCommand) (Notification, error) {
	id := strings.TrimSpace(cmd.NotificationID)
	if id == "" {
		return Notification{}, fmt.Errorf("%w: notification id is required", ErrNotificationInvalidInput)
	}
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Notification{}, fmt.Errorf("%w: user id is required", ErrNotificationInvalidInput)
	}

	notification, err := s.repo.MarkRead(ctx, id, uid, s.clock())
	if err != nil {
		return Notification{}, mapNotificationRepositoryError(err)
	}
	return notification, nil
}

func mapNotificationRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrNotificationNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("notification: repository unavailable: %w", err)
		}
	}

	return err
}
