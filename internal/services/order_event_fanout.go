package services

import (
	"context"
	"errors"
	"fmt"
)

// OrderEventBridge forwards lifecycle events to an external broker. The
// Pub/Sub publisher in the platform layer implements this.
type OrderEventBridge interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventFanoutDeps bundles the consumers of lifecycle events.
type OrderEventFanoutDeps struct {
	Notifications NotificationService
	Bridge        OrderEventBridge
	Logger        func(context.Context, string, map[string]any)
}

// OrderEventFanout delivers each lifecycle event to the in-process
// notification dispatcher and, when configured, to the broker bridge. Both
// deliveries are attempted; failures are collected and reported to the
// caller, which logs and continues without rolling back the transition.
type OrderEventFanout struct {
	notifications NotificationService
	bridge        OrderEventBridge
	logger        func(context.Context, string, map[string]any)
}

// NewOrderEventFanout constructs the lifecycle event fan-out.
func NewOrderEventFanout(deps OrderEventFanoutDeps) (*OrderEventFanout, error) {
	if deps.Notifications == nil {
		return nil, errors.New("order event fanout: notification service is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &OrderEventFanout{
		notifications: deps.Notifications,
		bridge:        deps.Bridge,
		logger:        logger,
	}, nil
}

// PublishOrderEvent implements OrderEventPublisher.
func (f *OrderEventFanout) PublishOrderEvent(ctx context.Context, event OrderEventMessage) error {
	var errs []error

	if _, err := f.notifications.DispatchOrderEvent(ctx, event); err != nil {
		errs = append(errs, fmt.Errorf("dispatch notification: %w", err))
	}

	if f.bridge != nil {
		if _, err := f.bridge.PublishOrderEvent(ctx, event); err != nil {
			f.logger(ctx, "order.event.bridge.failed", map[string]any{
				"order": event.OrderID,
				"error": err.Error(),
			})
			errs = append(errs, fmt.Errorf("bridge publish: %w", err))
		}
	}

	return errors.Join(errs...)
}

var _ OrderEventPublisher = (*OrderEventFanout)(nil)
