package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const ordersCollection = "orders"

type pricedLineDocument struct {
	ProductID       string  `firestore:"productId"`
	UnitPrice       int64   `firestore:"unitPriceCents"`
	DiscountPercent float64 `firestore:"discountPercent"`
	DiscountPrice   int64   `firestore:"discountPriceCents"`
	Quantity        int     `firestore:"quantity"`
}

type orderTotalsDocument struct {
	CartTotal   int64 `firestore:"cartTotalCents"`
	PaymentFee  int64 `firestore:"paymentFeeCents"`
	DeliveryFee int64 `firestore:"deliveryFeeCents"`
	GiftWrapFee int64 `firestore:"giftWrapFeeCents"`
	TaxAmount   int64 `firestore:"taxAmountCents"`
	GrandTotal  int64 `firestore:"grandTotalCents"`
}

type statusChangeDocument struct {
	Status string    `firestore:"status"`
	At     time.Time `firestore:"at"`
}

type orderDocument struct {
	OrderNumber         string                 `firestore:"orderNumber"`
	UserID              string                 `firestore:"userId"`
	Lines               []pricedLineDocument   `firestore:"lines"`
	Totals              orderTotalsDocument    `firestore:"totals"`
	PaymentMethodID     string                 `firestore:"paymentMethodId"`
	DeliveryMethodID    string                 `firestore:"deliveryMethodId"`
	GiftWrap            bool                   `firestore:"giftWrap"`
	ShippingAddressKind string                 `firestore:"shippingAddressKind"`
	StatusHistory       []statusChangeDocument `firestore:"statusHistory"`
	Status              string                 `firestore:"status"`
	CancelReason        *string                `firestore:"cancelReason,omitempty"`
	Version             int64                  `firestore:"version"`
	CreatedAt           time.Time              `firestore:"createdAt"`
	UpdatedAt           time.Time              `firestore:"updatedAt"`
}

// OrderRepository persists order aggregates under orders/{orderId}.
type OrderRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil)
	return &OrderRepository{provider: provider, base: base}, nil
}

// Insert creates the order document. Inserting an existing ID fails with a
// conflict categorised error.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := encodeOrder(order)

	if tx, ok := transactionFrom(ctx); ok {
		if err := tx.Create(ref, doc); err != nil {
			return pfirestore.WrapError("orders.insert", err)
		}
		return nil
	}

	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// Update replaces the order document when the stored version still matches
// expectedVersion. A mismatch fails with a conflict categorised error.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order, expectedVersion int64) error {
	if r == nil || r.base == nil {
		return errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		var stored orderDocument
		if err := snapshot.DataTo(&stored); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		if stored.Version != expectedVersion {
			return pfirestore.WrapError("orders.update", status.Errorf(codes.FailedPrecondition,
				"order %s version is %d, expected %d", id, stored.Version, expectedVersion))
		}
		if err := tx.Set(ref, encodeOrder(order)); err != nil {
			return pfirestore.WrapError("orders.update", err)
		}
		return nil
	}

	if tx, ok := transactionFrom(ctx); ok {
		return apply(ctx, tx)
	}
	return r.provider.RunTransaction(ctx, apply)
}

// FindByID loads an order by its document ID.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrder(doc.ID, doc.Data), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("order repository: user id is required")
	}

	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		query = query.Where("userId", "==", uid)
		if len(filter.Status) > 0 {
			statuses := make([]string, 0, len(filter.Status))
			for _, s := range filter.Status {
				statuses = append(statuses, string(s))
			}
			query = query.Where("status", "in", statuses)
		}
		query = query.OrderBy("createdAt", firestore.Desc)
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrder(doc.ID, doc.Data))
	}
	return orders, nil
}

func encodeOrder(order domain.Order) orderDocument {
	lines := make([]pricedLineDocument, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, pricedLineDocument{
			ProductID:       line.ProductID,
			UnitPrice:       int64(line.UnitPrice),
			DiscountPercent: line.DiscountPercent,
			DiscountPrice:   int64(line.DiscountPrice),
			Quantity:        line.Quantity,
		})
	}
	history := make([]statusChangeDocument, 0, len(order.StatusHistory))
	for _, change := range order.StatusHistory {
		history = append(history, statusChangeDocument{Status: string(change.Status), At: change.At.UTC()})
	}
	return orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Lines:       lines,
		Totals: orderTotalsDocument{
			CartTotal:   int64(order.Totals.CartTotal),
			PaymentFee:  int64(order.Totals.PaymentFee),
			DeliveryFee: int64(order.Totals.DeliveryFee),
			GiftWrapFee: int64(order.Totals.GiftWrapFee),
			TaxAmount:   int64(order.Totals.TaxAmount),
			GrandTotal:  int64(order.Totals.GrandTotal),
		},
		PaymentMethodID:     order.PaymentMethodID,
		DeliveryMethodID:    order.DeliveryMethodID,
		GiftWrap:            order.GiftWrap,
		ShippingAddressKind: string(order.ShippingAddressKind),
		StatusHistory:       history,
		Status:              string(order.Status),
		CancelReason:        order.CancelReason,
		Version:             order.Version,
		CreatedAt:           order.CreatedAt.UTC(),
		UpdatedAt:           order.UpdatedAt.UTC(),
	}
}

func decodeOrder(id string, doc orderDocument) domain.Order {
	lines := make([]domain.PricedCartLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.PricedCartLine{
			ProductID:       line.ProductID,
			UnitPrice:       domain.Money(line.UnitPrice),
			DiscountPercent: line.DiscountPercent,
			DiscountPrice:   domain.Money(line.DiscountPrice),
			Quantity:        line.Quantity,
		})
	}
	history := make([]domain.StatusChange, 0, len(doc.StatusHistory))
	for _, change := range doc.StatusHistory {
		history = append(history, domain.StatusChange{Status: domain.OrderStatus(change.Status), At: change.At})
	}
	return domain.Order{
		ID:          id,
		OrderNumber: doc.OrderNumber,
		UserID:      doc.UserID,
		Lines:       lines,
		Totals: domain.OrderTotals{
			CartTotal:   domain.Money(doc.Totals.CartTotal),
			PaymentFee:  domain.Money(doc.Totals.PaymentFee),
			DeliveryFee: domain.Money(doc.Totals.DeliveryFee),
			GiftWrapFee: domain.Money(doc.Totals.GiftWrapFee),
			TaxAmount:   domain.Money(doc.Totals.TaxAmount),
			GrandTotal:  domain.Money(doc.Totals.GrandTotal),
		},
		PaymentMethodID:     doc.PaymentMethodID,
		DeliveryMethodID:    doc.DeliveryMethodID,
		GiftWrap:            doc.GiftWrap,
		ShippingAddressKind: domain.ShippingAddressKind(doc.ShippingAddressKind),
		StatusHistory:       history,
		Status:              domain.OrderStatus(doc.Status),
		CancelReason:        doc.CancelReason,
		Version:             doc.Version,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
