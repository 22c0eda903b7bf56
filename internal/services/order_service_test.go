package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string       { return "stub repository error" }
func (e *stubRepoError) IsNotFound() bool    { return e.notFound }
func (e *stubRepoError) IsConflict() bool    { return e.conflict }
func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

type stubOrderRepo struct {
	insertFn func(context.Context, domain.Order) error
	updateFn func(context.Context, domain.Order, int64) error
	findFn   func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, string, repositories.OrderListFilter) ([]domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return nil
}

func (s *stubOrderRepo) Update(ctx context.Context, order domain.Order, expectedVersion int64) error {
	if s.updateFn != nil {
		return s.updateFn(ctx, order, expectedVersion)
	}
	return nil
}

func (s *stubOrderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findFn != nil {
		return s.findFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepo) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, filter)
	}
	return nil, nil
}

type captureOrderEvents struct {
	events []OrderEventMessage
	err    error
}

func (c *captureOrderEvents) PublishOrderEvent(_ context.Context, event OrderEventMessage) error {
	c.events = append(c.events, event)
	return c.err
}

type stubUnitOfWork struct {
	runFn func(context.Context, func(context.Context) error) error
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.runFn != nil {
		return s.runFn(ctx, fn)
	}
	return fn(ctx)
}

func pendingOrder(now time.Time) domain.Order {
	return domain.Order{
		ID:          "ord_1",
		OrderNumber: "MC-2025-000042",
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		StatusHistory: []domain.StatusChange{
			{Status: domain.OrderStatusPending, At: now},
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newTestOrderService(t *testing.T, repo *stubOrderRepo, events OrderEventPublisher, now time.Time) OrderService {
	t.Helper()
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Clock:  func() time.Time { return now },
		Events: events,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc
}

func TestTransitionStatusAppendsHistoryAndEmitsOneEvent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	events := &captureOrderEvents{}

	var updated *domain.Order
	var updatedExpectedVersion int64

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pendingOrder(now.Add(-time.Hour)), nil
		},
		updateFn: func(_ context.Context, order domain.Order, expectedVersion int64) error {
			updated = &order
			updatedExpectedVersion = expectedVersion
			return nil
		},
	}

	svc := newTestOrderService(t, repo, events, now)

	order, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPlaced,
		ActorID:      "operator",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected status placed got %s", order.Status)
	}
	if len(order.StatusHistory) != 2 {
		t.Fatalf("expected 2 history entries got %d", len(order.StatusHistory))
	}
	if last := order.StatusHistory[len(order.StatusHistory)-1]; last.Status != order.Status || !last.At.Equal(now) {
		t.Fatalf("history tail %+v does not match current status", last)
	}
	if order.Version != 2 {
		t.Fatalf("expected version 2 got %d", order.Version)
	}
	if updated == nil || updatedExpectedVersion != 1 {
		t.Fatalf("expected update with expected version 1 got %d", updatedExpectedVersion)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected exactly one event got %d", len(events.events))
	}
	if events.events[0].Status != string(domain.OrderStatusPlaced) || events.events[0].OrderID != "ord_1" {
		t.Fatalf("unexpected event %+v", events.events[0])
	}
}

func TestStateGraphClosure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	all := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusPlaced,
		domain.OrderStatusInTransit,
		domain.OrderStatusCompleted,
		domain.OrderStatusRefundRequest,
		domain.OrderStatusCancelled,
	}

	legal := map[string]bool{
		"pending->placed":           true,
		"pending->refund_request":   true,
		"placed->in_transit":        true,
		"in_transit->completed":     true,
		"refund_request->cancelled": true,
	}

	for _, from := range all {
		for _, to := range all {
			edge := fmt.Sprintf("%s->%s", from, to)
			t.Run(edge, func(t *testing.T) {
				repo := &stubOrderRepo{
					findFn: func(context.Context, string) (domain.Order, error) {
						order := pendingOrder(now.Add(-time.Hour))
						order.Status = from
						order.StatusHistory = []domain.StatusChange{{Status: from, At: now.Add(-time.Hour)}}
						return order, nil
					},
				}
				svc := newTestOrderService(t, repo, &captureOrderEvents{}, now)

				_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
					OrderID:      "ord_1",
					TargetStatus: to,
				})

				if legal[edge] {
					if err != nil {
						t.Fatalf("legal edge %s failed: %v", edge, err)
					}
					return
				}

				switch {
				case from == domain.OrderStatusCancelled && to == domain.OrderStatusCancelled:
					if !errors.Is(err, ErrAlreadyCancelled) {
						t.Fatalf("edge %s: expected ErrAlreadyCancelled got %v", edge, err)
					}
				default:
					if !errors.Is(err, ErrIllegalTransition) {
						t.Fatalf("edge %s: expected ErrIllegalTransition got %v", edge, err)
					}
				}
			})
		}
	}
}

func TestTransitionStatusStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	updateCalled := false
	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			order := pendingOrder(now)
			order.Version = 3
			return order, nil
		},
		updateFn: func(context.Context, domain.Order, int64) error {
			updateCalled = true
			return nil
		},
	}
	svc := newTestOrderService(t, repo, &captureOrderEvents{}, now)

	_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:         "ord_1",
		TargetStatus:    domain.OrderStatusPlaced,
		ExpectedVersion: 1,
	})
	if !errors.Is(err, ErrConflictingTransition) {
		t.Fatalf("expected ErrConflictingTransition got %v", err)
	}
	if updateCalled {
		t.Fatal("update must not run on a stale version")
	}
}

func TestTransitionStatusMapsRepositoryConflict(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	events := &captureOrderEvents{}

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pendingOrder(now), nil
		},
		updateFn: func(context.Context, domain.Order, int64) error {
			return &stubRepoError{conflict: true}
		},
	}
	svc := newTestOrderService(t, repo, events, now)

	_, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPlaced,
	})
	if !errors.Is(err, ErrConflictingTransition) {
		t.Fatalf("expected ErrConflictingTransition got %v", err)
	}
	if len(events.events) != 0 {
		t.Fatal("no event may be emitted for a rejected transition")
	}
}

func TestRequestCancellation(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	events := &captureOrderEvents{}

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pendingOrder(now.Add(-time.Hour)), nil
		},
	}
	svc := newTestOrderService(t, repo, events, now)

	order, err := svc.RequestCancellation(ctx, CancelOrderCommand{
		OrderID: "ord_1",
		UserID:  "user-1",
		Reason:  "changed my mind",
	})
	if err != nil {
		t.Fatalf("request cancellation: %v", err)
	}

	if order.Status != domain.OrderStatusRefundRequest {
		t.Fatalf("expected refund_request got %s", order.Status)
	}
	if order.CancelReason == nil || *order.CancelReason != "changed my mind" {
		t.Fatalf("unexpected cancel reason %v", order.CancelReason)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected exactly one event got %d", len(events.events))
	}
}

func TestRequestCancellationOnlyWhilePending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			order := pendingOrder(now)
			order.Status = domain.OrderStatusPlaced
			order.StatusHistory = append(order.StatusHistory, domain.StatusChange{Status: domain.OrderStatusPlaced, At: now})
			return order, nil
		},
	}
	svc := newTestOrderService(t, repo, &captureOrderEvents{}, now)

	_, err := svc.RequestCancellation(ctx, CancelOrderCommand{OrderID: "ord_1", UserID: "user-1"})
	if !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition got %v", err)
	}
}

func TestRequestCancellationRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			order := pendingOrder(now)
			order.Status = domain.OrderStatusRefundRequest
			order.StatusHistory = append(order.StatusHistory, domain.StatusChange{Status: domain.OrderStatusRefundRequest, At: now})
			return order, nil
		},
	}
	svc := newTestOrderService(t, repo, &captureOrderEvents{}, now)

	_, err := svc.RequestCancellation(ctx, CancelOrderCommand{OrderID: "ord_1", UserID: "user-1"})
	if !errors.Is(err, ErrAlreadyCancelled) {
		t.Fatalf("expected ErrAlreadyCancelled got %v", err)
	}
}

func TestRequestCancellationHiddenFromOtherUsers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pendingOrder(now), nil
		},
	}
	svc := newTestOrderService(t, repo, &captureOrderEvents{}, now)

	_, err := svc.RequestCancellation(ctx, CancelOrderCommand{OrderID: "ord_1", UserID: "someone-else"})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound got %v", err)
	}
}

func TestHistoryGrowsByOnePerTransition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	events := &captureOrderEvents{}

	stored := pendingOrder(now)
	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return stored, nil
		},
		updateFn: func(_ context.Context, order domain.Order, expectedVersion int64) error {
			if stored.Version != expectedVersion {
				return &stubRepoError{conflict: true}
			}
			stored = order
			return nil
		},
	}
	svc := newTestOrderService(t, repo, events, now)

	path := []domain.OrderStatus{
		domain.OrderStatusPlaced,
		domain.OrderStatusInTransit,
		domain.OrderStatusCompleted,
	}
	for _, target := range path {
		if _, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{OrderID: "ord_1", TargetStatus: target}); err != nil {
			t.Fatalf("transition to %s: %v", target, err)
		}
	}

	if len(stored.StatusHistory) != len(path)+1 {
		t.Fatalf("expected %d history entries got %d", len(path)+1, len(stored.StatusHistory))
	}
	if stored.Status != stored.StatusHistory[len(stored.StatusHistory)-1].Status {
		t.Fatal("current status must equal the last history entry")
	}
	if stored.Version != int64(len(path))+1 {
		t.Fatalf("expected version %d got %d", len(path)+1, stored.Version)
	}
	if len(events.events) != len(path) {
		t.Fatalf("expected %d events got %d", len(path), len(events.events))
	}
}

func TestEventFailureDoesNotRollBackTransition(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	events := &captureOrderEvents{err: errors.New("broker down")}

	var logged []string
	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pendingOrder(now), nil
		},
	}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Clock:  func() time.Time { return now },
		Events: events,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}

	order, err := svc.TransitionStatus(ctx, OrderStatusTransitionCommand{
		OrderID:      "ord_1",
		TargetStatus: domain.OrderStatusPlaced,
	})
	if err != nil {
		t.Fatalf("transition must succeed despite publish failure: %v", err)
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("expected placed got %s", order.Status)
	}
	if len(logged) != 1 || logged[0] != "order.event.publish.failed" {
		t.Fatalf("expected publish failure log got %v", logged)
	}
}

func TestGetOrderScopedToUser(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	repo := &stubOrderRepo{
		findFn: func(context.Context, string) (domain.Order, error) {
			return pendingOrder(now), nil
		},
	}
	svc := newTestOrderService(t, repo, &captureOrderEvents{}, now)

	if _, err := svc.GetOrder(ctx, GetOrderCommand{OrderID: "ord_1", UserID: "user-1"}); err != nil {
		t.Fatalf("owner read: %v", err)
	}
	if _, err := svc.GetOrder(ctx, GetOrderCommand{OrderID: "ord_1", UserID: "intruder"}); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound got %v", err)
	}
	if _, err := svc.GetOrder(ctx, GetOrderCommand{OrderID: "ord_1"}); err != nil {
		t.Fatalf("operator read: %v", err)
	}
}
