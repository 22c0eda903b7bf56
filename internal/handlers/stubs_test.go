package handlers

import (
	"context"

	domain "github.com/maplecart/api/internal/domain"
	"github.com/maplecart/api/internal/services"
)

type stubCheckoutService struct {
	checkoutFn func(context.Context, services.CheckoutCommand) (domain.Order, error)
	previewFn  func(context.Context, services.QuoteCommand) (services.Quote, error)
}

func (s *stubCheckoutService) Checkout(ctx context.Context, cmd services.CheckoutCommand) (domain.Order, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return domain.Order{}, nil
}

func (s *stubCheckoutService) PreviewQuote(ctx context.Context, cmd services.QuoteCommand) (services.Quote, error) {
	if s.previewFn != nil {
		return s.previewFn(ctx, cmd)
	}
	return services.Quote{}, nil
}

type stubOrderService struct {
	getFn        func(context.Context, services.GetOrderCommand) (domain.Order, error)
	listFn       func(context.Context, string, services.OrderListFilter) ([]domain.Order, error)
	transitionFn func(context.Context, services.OrderStatusTransitionCommand) (domain.Order, error)
	cancelFn     func(context.Context, services.CancelOrderCommand) (domain.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, cmd services.GetOrderCommand) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, filter services.OrderListFilter) ([]domain.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, filter)
	}
	return nil, nil
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) RequestCancellation(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return domain.Order{}, services.ErrOrderNotFound
}

type stubCartService struct {
	getFn    func(context.Context, string) (domain.Cart, error)
	setFn    func(context.Context, services.SetCartLineCommand) (domain.Cart, error)
	removeFn func(context.Context, services.RemoveCartLineCommand) (domain.Cart, error)
	mergeFn  func(context.Context, services.MergeCartCommand) (domain.Cart, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID)
	}
	return domain.Cart{UserID: userID}, nil
}

func (s *stubCartService) SetLine(ctx context.Context, cmd services.SetCartLineCommand) (domain.Cart, error) {
	if s.setFn != nil {
		return s.setFn(ctx, cmd)
	}
	return domain.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveLine(ctx context.Context, cmd services.RemoveCartLineCommand) (domain.Cart, error) {
	if s.removeFn != nil {
		return s.removeFn(ctx, cmd)
	}
	return domain.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) MergeAnonymous(ctx context.Context, cmd services.MergeCartCommand) (domain.Cart, error) {
	if s.mergeFn != nil {
		return s.mergeFn(ctx, cmd)
	}
	return domain.Cart{UserID: cmd.UserID}, nil
}

type stubRuleSetService struct {
	currentFn func(context.Context) (domain.RuleSet, error)
	replaceFn func(context.Context, services.ReplaceRulesCommand) (domain.RuleSet, error)
}

func (s *stubRuleSetService) CurrentRules(ctx context.Context) (domain.RuleSet, error) {
	if s.currentFn != nil {
		return s.currentFn(ctx)
	}
	return domain.RuleSet{}, nil
}

func (s *stubRuleSetService) ReplaceRules(ctx context.Context, cmd services.ReplaceRulesCommand) (domain.RuleSet, error) {
	if s.replaceFn != nil {
		return s.replaceFn(ctx, cmd)
	}
	return cmd.Rules, nil
}

type stubNotificationService struct {
	dispatchFn func(context.Context, services.OrderEventMessage) (domain.Notification, error)
	broadcast  func(context.Context, services.BroadcastCommand) (domain.Notification, error)
	listFn     func(context.Context, string, int) ([]domain.Notification, error)
	markReadFn func(context.Context, services.MarkNotificationReadCommand) (domain.Notification, error)
}

func (s *stubNotificationService) DispatchOrderEvent(ctx context.Context, event services.OrderEventMessage) (domain.Notification, error) {
	if s.dispatchFn != nil {
		return s.dispatchFn(ctx, event)
	}
	return domain.Notification{}, nil
}

func (s *stubNotificationService) Broadcast(ctx context.Context, cmd services.BroadcastCommand) (domain.Notification, error) {
	if s.broadcast != nil {
		return s.broadcast(ctx, cmd)
	}
	return domain.Notification{}, nil
}

func (s *stubNotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, limit)
	}
	return nil, nil
}

func (s *stubNotificationService) MarkRead(ctx context.Context, cmd services.MarkNotificationReadCommand) (domain.Notification, error) {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, cmd)
	}
	return domain.Notification{}, services.ErrNotificationNotFound
}

type stubSystemService struct {
	reportFn func(context.Context) (domain.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.reportFn != nil {
		return s.reportFn(ctx)
	}
	return domain.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func (s *stubSystemService) NextCounterValue(context.Context, services.CounterCommand) (int64, error) {
	return 0, nil
}
