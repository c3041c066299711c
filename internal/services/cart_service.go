package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

const maxCartItems = 50

var (
	// ErrCartInvalidInput signals the caller provided invalid data.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the line to remove is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
)

// CartServiceDeps bundles collaborators required to construct the cart service.
type CartServiceDeps struct {
	Carts   repositories.CartRepository
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
}

type cartService struct {
	carts   repositories.CartRepository
	catalog repositories.CatalogRepository
	clock   func() time.Time
}

// NewCartService wires dependencies into a concrete CartService implementation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	return &cartService{
		carts:   deps.Carts,
		catalog: deps.Catalog,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func (s *cartService) UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	label := strings.TrimSpace(cmd.VariantLabel)

	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}

	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return Cart{}, mapCartCatalogError(err)
	}
	if !product.Active {
		return Cart{}, fmt.Errorf("%w: product %s is not available", ErrCartInvalidInput, productID)
	}
	if _, ok := product.UnitPrice(label); !ok {
		if label == "" {
			return Cart{}, fmt.Errorf("%w: product %s requires a variant", ErrCartInvalidInput, productID)
		}
		return Cart{}, fmt.Errorf("%w: product %s has no variant %q", ErrCartInvalidInput, productID, label)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	now := s.clock()
	items := cart.Items
	replaced := false
	for i := range items {
		if items[i].ProductID == productID && items[i].VariantLabel == label {
			items[i].Quantity = cmd.Quantity
			replaced = true
			break
		}
	}
	if !replaced {
		if len(items) >= maxCartItems {
			return Cart{}, fmt.Errorf("%w: cart is full", ErrCartInvalidInput)
		}
		items = append(items, domain.CartItem{
			ProductID:    productID,
			VariantLabel: label,
			Quantity:     cmd.Quantity,
			AddedAt:      now,
		})
	}

	return s.carts.ReplaceItems(ctx, userID, items, now)
}

func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	label := strings.TrimSpace(cmd.VariantLabel)

	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}

	items := make([]domain.CartItem, 0, len(cart.Items))
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID && item.VariantLabel == label {
			removed = true
			continue
		}
		items = append(items, item)
	}
	if !removed {
		return Cart{}, fmt.Errorf("%w: product %s", ErrCartItemNotFound, productID)
	}

	return s.carts.ReplaceItems(ctx, userID, items, s.clock())
}

func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	return s.carts.ClearCart(ctx, userID)
}

func mapCartCatalogError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrProductNotFound, err)
	}
	return err
}
