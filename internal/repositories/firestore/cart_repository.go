package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists server side carts, one document per user.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given user ID. A missing document is
// returned as an empty cart rather than an error.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		if repoErr, ok := err.(*pfirestore.Error); ok && repoErr.IsNotFound() {
			return domain.Cart{UserID: uid, Items: []domain.CartItem{}}, nil
		}
		return domain.Cart{}, err
	}

	items := make([]domain.CartItem, len(doc.Data.Items))
	for i, item := range doc.Data.Items {
		items[i] = domain.CartItem{
			ProductID:    strings.TrimSpace(item.ProductRef),
			VariantLabel: strings.TrimSpace(item.VariantLabel),
			Quantity:     item.Quantity,
			AddedAt:      item.AddedAt,
		}
	}

	return domain.Cart{
		UserID:    uid,
		Items:     items,
		UpdatedAt: doc.Data.UpdatedAt,
	}, nil
}

// ReplaceItems overwrites the cart contents for the user.
func (r *CartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}

	docs := make([]cartItemDocument, len(items))
	for i, item := range items {
		docs[i] = cartItemDocument{
			ProductRef:   strings.TrimSpace(item.ProductID),
			VariantLabel: strings.TrimSpace(item.VariantLabel),
			Quantity:     item.Quantity,
			AddedAt:      item.AddedAt.UTC(),
		}
	}
	doc := cartDocument{
		Items:     docs,
		UpdatedAt: now.UTC(),
	}

	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.Cart{}, err
	}

	saved := domain.Cart{
		UserID:    uid,
		Items:     make([]domain.CartItem, len(items)),
		UpdatedAt: doc.UpdatedAt,
	}
	copy(saved.Items, items)
	return saved, nil
}

// ClearCart removes every item from the user's cart. A missing cart is
// treated as already cleared.
func (r *CartRepository) ClearCart(ctx context.Context, userID string) error {
	if r == nil || r.base == nil {
		return errors.New("cart repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}

	_, err := r.base.Set(ctx, uid, cartDocument{Items: []cartItemDocument{}, UpdatedAt: time.Now().UTC()})
	return err
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductRef   string    `firestore:"productRef"`
	VariantLabel string    `firestore:"variantLabel,omitempty"`
	Quantity     int64     `firestore:"qty"`
	AddedAt      time.Time `firestore:"addedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
