package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located or is not
	// visible to the requesting user.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrIllegalTransition indicates the requested status change is not an
	// edge of the lifecycle graph. The order is left unchanged.
	ErrIllegalTransition = errors.New("order: illegal status transition")
	// ErrAlreadyCancelled indicates the order already carries a cancellation
	// entry in its history.
	ErrAlreadyCancelled = errors.New("order: already cancelled")
	// ErrConflictingTransition indicates another writer advanced the order
	// first; the caller should refresh and retry.
	ErrConflictingTransition = errors.New("order: conflicting transition")
)

// orderStateTransitions is the complete lifecycle graph. completed and
// cancelled are terminal and therefore absent as keys.
var orderStateTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:       {domain.OrderStatusPlaced, domain.OrderStatusRefundRequest},
	domain.OrderStatusPlaced:        {domain.OrderStatusInTransit},
	domain.OrderStatusInTransit:     {domain.OrderStatusCompleted},
	domain.OrderStatusRefundRequest: {domain.OrderStatusCancelled},
}

func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderStateTransitions[from], to)
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Events     OrderEventPublisher
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	events     OrderEventPublisher
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:     deps.Orders,
		unitOfWork: unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, cmd GetOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	// Customers only ever see their own orders; an empty UserID is an
	// operator read.
	if cmd.UserID != "" && order.UserID != cmd.UserID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, filter OrderListFilter) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListByUser(ctx, userID, filter)
	if err != nil {
		return nil, mapOrderRepositoryError(err)
	}
	return orders, nil
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.TargetStatus.Valid() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.TargetStatus)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}

	if cmd.ExpectedVersion > 0 && order.Version != cmd.ExpectedVersion {
		return Order{}, fmt.Errorf("%w: expected version %d but was %d", ErrConflictingTransition, cmd.ExpectedVersion, order.Version)
	}

	if cmd.TargetStatus == domain.OrderStatusCancelled && order.HasStatus(domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: order %s", ErrAlreadyCancelled, orderID)
	}

	now := s.now()
	expectedVersion := order.Version
	if err := applyStatusTransition(&order, cmd.TargetStatus, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order, expectedVersion); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

func (s *orderService) RequestCancellation(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapOrderRepositoryError(err)
	}
	if order.UserID != userID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}

	if order.HasStatus(domain.OrderStatusRefundRequest) || order.HasStatus(domain.OrderStatusCancelled) {
		return Order{}, fmt.Errorf("%w: order %s", ErrAlreadyCancelled, orderID)
	}

	if cmd.ExpectedVersion > 0 && order.Version != cmd.ExpectedVersion {
		return Order{}, fmt.Errorf("%w: expected version %d but was %d", ErrConflictingTransition, cmd.ExpectedVersion, order.Version)
	}

	now := s.now()
	expectedVersion := order.Version
	order.CancelReason = optionalString(strings.TrimSpace(cmd.Reason))

	if err := applyStatusTransition(&order, domain.OrderStatusRefundRequest, now); err != nil {
		return Order{}, err
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.orders.Update(txCtx, order, expectedVersion); err != nil {
			return mapOrderRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.publishEvent(ctx, OrderEventMessage{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		OccurredAt:  now,
	})

	return order, nil
}

// applyStatusTransition is the single mutation point for order status. It
// appends the history entry, derives Status from it and bumps Version, so the
// "current status equals last history entry" invariant holds everywhere else
// by construction.
func applyStatusTransition(order *Order, target domain.OrderStatus, now time.Time) error {
	if !canTransition(order.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, order.Status, target)
	}

	order.StatusHistory = append(order.StatusHistory, StatusChange{Status: target, At: now})
	order.Status = target
	order.Version++
	order.UpdatedAt = now
	return nil
}

func mapOrderRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrConflictingTransition, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *orderService) now() time.Time {
	return s.clock()
}

// publishEvent emits the single lifecycle event for an accepted transition.
// Publish failures are logged and never roll back the transition.
func (s *orderService) publishEvent(ctx context.Context, event OrderEventMessage) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"order":  event.OrderID,
			"status": event.Status,
			"error":  err.Error(),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}
