package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const notificationsCollection = "notifications"

type notificationDocument struct {
	UserID    *string    `firestore:"userId"`
	Type      string     `firestore:"type"`
	Message   string     `firestore:"message"`
	Link      string     `firestore:"link,omitempty"`
	IsRead    bool       `firestore:"isRead"`
	ReadAt    *time.Time `firestore:"readAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
}

// NotificationRepository stores per-user notifications and store-wide
// broadcasts (userId null) under notifications/{id}.
type NotificationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[notificationDocument]
}

// NewNotificationRepository constructs a Firestore-backed notification repository.
func NewNotificationRepository(provider *pfirestore.Provider) (*NotificationRepository, error) {
	if provider == nil {
		return nil, errors.New("notification repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[notificationDocument](provider, notificationsCollection, nil, nil)
	return &NotificationRepository{provider: provider, base: base}, nil
}

// Insert stores the notification document.
func (r *NotificationRepository) Insert(ctx context.Context, notification domain.Notification) error {
	if r == nil || r.base == nil {
		return errors.New("notification repository not initialised")
	}
	id := strings.TrimSpace(notification.ID)
	if id == "" {
		return errors.New("notification repository: notification id is required")
	}

	doc := notificationDocument{
		UserID:    notification.UserID,
		Type:      string(notification.Type),
		Message:   notification.Message,
		Link:      notification.Link,
		IsRead:    notification.IsRead,
		CreatedAt: notification.CreatedAt.UTC(),
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("notifications.insert", err)
	}
	return nil
}

// ListForUser returns the user's notifications merged with store-wide
// broadcasts, newest first, capped at limit.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("notification repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("notification repository: user id is required")
	}
	if limit <= 0 {
		return nil, errors.New("notification repository: limit must be positive")
	}

	// Firestore has no OR across distinct values, so personal notifications
	// and broadcasts are fetched separately and merged.
	personal, err := r.queryByUser(ctx, uid, limit)
	if err != nil {
		return nil, err
	}
	broadcasts, err := r.queryByUser(ctx, "", limit)
	if err != nil {
		return nil, err
	}

	merged := append(personal, broadcasts...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (r *NotificationRepository) queryByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		if userID == "" {
			query = query.Where("userId", "==", nil)
		} else {
			query = query.Where("userId", "==", userID)
		}
		return query.OrderBy("createdAt", firestore.Desc).Limit(limit)
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Notification, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeNotification(doc.ID, doc.Data))
	}
	return out, nil
}

// MarkRead flips the read flag on the user's own notification. Notifications
// belonging to another user are reported as missing.
func (r *NotificationRepository) MarkRead(ctx context.Context, notificationID string, userID string, now time.Time) (domain.Notification, error) {
	if r == nil || r.base == nil {
		return domain.Notification{}, errors.New("notification repository not initialised")
	}
	id := strings.TrimSpace(notificationID)
	uid := strings.TrimSpace(userID)
	if id == "" || uid == "" {
		return domain.Notification{}, errors.New("notification repository: notification id and user id are required")
	}

	var updated domain.Notification
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("notifications.markread", err)
		}
		var doc notificationDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return pfirestore.WrapError("notifications.markread", err)
		}
		if doc.UserID == nil || *doc.UserID != uid {
			return pfirestore.WrapError("notifications.markread", status.Errorf(codes.NotFound,
				"notification %s not found for user", id))
		}

		readAt := now.UTC()
		doc.IsRead = true
		doc.ReadAt = &readAt
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("notifications.markread", err)
		}
		updated = decodeNotification(id, doc)
		return nil
	})
	if err != nil {
		return domain.Notification{}, err
	}
	return updated, nil
}

func decodeNotification(id string, doc notificationDocument) domain.Notification {
	return domain.Notification{
		ID:        id,
		UserID:    doc.UserID,
		Type:      domain.NotificationType(doc.Type),
		Message:   doc.Message,
		Link:      doc.Link,
		IsRead:    doc.IsRead,
		CreatedAt: doc.CreatedAt,
	}
}

var _ repositories.NotificationRepository = (*NotificationRepository)(nil)
