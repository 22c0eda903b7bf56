package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/maplecart/api/internal/repositories"
)

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartUnavailable indicates the cart store cannot fulfil the request.
	ErrCartUnavailable = errors.New("cart: unavailable")
)

// CartServiceDeps wires the repository and clock dependencies for cart operations.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo   repositories.CartRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errors.New("cart service: repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:   deps.Repository,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// GetCart loads the stored cart for the user. A user without a stored cart
// gets an empty one; nothing is persisted until a line is set.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.loadOrEmpty(ctx, uid)
}

func (s *cartService) SetLine(ctx context.Context, cmd SetCartLineCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return Cart{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	line := CartLine{ProductID: productID, Quantity: cmd.Quantity}
	if idx := cart.LineFor(productID); idx >= 0 {
		cart.Lines[idx] = line
	} else {
		cart.Lines = append(cart.Lines, line)
	}
	cart.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return Cart{}, mapCartRepositoryError(err)
	}
	return saved, nil
}

func (s *cartService) RemoveLine(ctx context.Context, cmd RemoveCartLineCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	idx := cart.LineFor(productID)
	if idx < 0 {
		return cart, nil
	}

	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
	cart.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return Cart{}, mapCartRepositoryError(err)
	}
	return saved, nil
}

// MergeAnonymous folds a pre-login cart into the account cart. For products
// present in both, the anonymous quantity overwrites the stored one (it is
// the more recent intent); account-only lines are kept and anonymous-only
// lines are appended. The merged result replaces the stored cart.
func (s *cartService) MergeAnonymous(ctx context.Context, cmd MergeCartCommand) (Cart, error) {
	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	seen := make(map[string]struct{}, len(cmd.AnonymousLines))
	for _, line := range cmd.AnonymousLines {
		productID := strings.TrimSpace(line.ProductID)
		if productID == "" {
			return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
		}
		if line.Quantity < 1 {
			return Cart{}, fmt.Errorf("%w: quantity for product %s must be at least 1", ErrCartInvalidInput, productID)
		}
		if _, dup := seen[productID]; dup {
			return Cart{}, fmt.Errorf("%w: duplicate line for product %s", ErrCartInvalidInput, productID)
		}
		seen[productID] = struct{}{}
	}

	cart, err := s.loadOrEmpty(ctx, uid)
	if err != nil {
		return Cart{}, err
	}

	for _, line := range cmd.AnonymousLines {
		productID := strings.TrimSpace(line.ProductID)
		merged := CartLine{ProductID: productID, Quantity: line.Quantity}
		if idx := cart.LineFor(productID); idx >= 0 {
			cart.Lines[idx] = merged
			continue
		}
		cart.Lines = append(cart.Lines, merged)
	}
	cart.UpdatedAt = s.now()

	saved, err := s.repo.Save(ctx, cart)
	if err != nil {
		return Cart{}, mapCartRepositoryError(err)
	}
	return saved, nil
}

func (s *cartService) loadOrEmpty(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.repo.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{UserID: userID}, nil
		}
		return Cart{}, mapCartRepositoryError(err)
	}
	cart.UserID = userID
	return cart, nil
}

func mapCartRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
		}
	}

	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
