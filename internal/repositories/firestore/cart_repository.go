package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const cartsCollection = "carts"

type cartLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"lines"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists carts keyed by user ID under carts/{userId}.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartsCollection, nil, nil)
	return &CartRepository{base: base}, nil
}

// Get loads the stored cart for the given user.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}

	if tx, ok := transactionFrom(ctx); ok {
		snapshot, err := tx.Get(ref)
		if err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.get", err)
		}
		var doc cartDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.get", err)
		}
		return decodeCart(uid, doc), nil
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(uid, doc.Data), nil
}

// Save replaces the stored cart document for the cart's user.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc := encodeCart(cart)

	if tx, ok := transactionFrom(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return domain.Cart{}, err
		}
		if err := tx.Set(ref, doc); err != nil {
			return domain.Cart{}, pfirestore.WrapError("carts.save", err)
		}
		return decodeCart(uid, doc), nil
	}

	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}
	return decodeCart(uid, doc), nil
}

// Clear empties the stored cart after a successful checkout. Clearing a cart
// that was never stored is a no-op.
func (r *CartRepository) Clear(ctx context.Context, userID string, now time.Time) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	doc := cartDocument{Lines: []cartLineDocument{}, UpdatedAt: now.UTC()}

	if tx, ok := transactionFrom(ctx); ok {
		ref, err := r.base.DocumentRef(ctx, uid)
		if err != nil {
			return err
		}
		if err := tx.Set(ref, doc); err != nil {
			return pfirestore.WrapError("carts.clear", err)
		}
		return nil
	}

	_, err := r.base.Set(ctx, uid, doc)
	return err
}

func encodeCart(cart domain.Cart) cartDocument {
	lines := make([]cartLineDocument, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		lines = append(lines, cartLineDocument{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return cartDocument{Lines: lines, UpdatedAt: cart.UpdatedAt.UTC()}
}

func decodeCart(userID string, doc cartDocument) domain.Cart {
	lines := make([]domain.CartLine, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return domain.Cart{UserID: userID, Lines: lines, UpdatedAt: doc.UpdatedAt}
}

var _ repositories.CartRepository = (*CartRepository)(nil)
