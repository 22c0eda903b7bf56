package firestore

import (
	"context"
	"errors"
	"strings"

	domain "github.com/maplecart/api/internal/domain"
	pfirestore "github.com/maplecart/api/internal/platform/firestore"
	"github.com/maplecart/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	PriceCents         int64   `firestore:"priceCents"`
	DiscountPercent    float64 `firestore:"discountPercent"`
	DiscountPriceCents int64   `firestore:"discountPriceCents"`
}

// ProductRepository reads catalog prices from products/{productId}. The
// documents are written by the catalog collaborator; this engine never
// mutates them.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product price reader.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{base: base}, nil
}

// FindPrices resolves the current catalog price for each requested product.
// Unknown products are left out of the result; the caller decides whether a
// missing product is an error.
func (r *ProductRepository) FindPrices(ctx context.Context, productIDs []string) (map[string]domain.ProductPrice, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("product repository not initialised")
	}

	prices := make(map[string]domain.ProductPrice, len(productIDs))
	for _, id := range productIDs {
		pid := strings.TrimSpace(id)
		if pid == "" {
			continue
		}
		if _, done := prices[pid]; done {
			continue
		}
		doc, err := r.base.Get(ctx, pid)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		prices[pid] = domain.ProductPrice{
			UnitPrice:       domain.Money(doc.Data.PriceCents),
			DiscountPercent: doc.Data.DiscountPercent,
			DiscountPrice:   domain.Money(doc.Data.DiscountPriceCents),
		}
	}
	return prices, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
