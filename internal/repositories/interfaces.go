package repositories

import (
	"context"
	"time"

	domain "github.com/clovermart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository persists products and owns stock mutations with transactional guarantees.
type CatalogRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)

	// DeductStock decrements stock for every line or none at all. Joins
	// a surrounding transaction when one is carried on the context.
	DeductStock(ctx context.Context, lines []StockLine, now time.Time) error
	// RestoreStock increments stock for a single line. Missing products
	// are reported via a not-found error so callers can skip them.
	RestoreStock(ctx context.Context, line StockLine, now time.Time) error
	// AdjustStock sets the absolute stock level for a product or variant.
	AdjustStock(ctx context.Context, adjustment StockAdjustment, now time.Time) (domain.Product, error)
}

// StockLine identifies a quantity of one product, optionally a variant.
type StockLine struct {
	ProductID    string
	VariantLabel string
	Quantity     int64
}

// StockAdjustment sets an absolute stock level for admin corrections.
type StockAdjustment struct {
	ProductID    string
	VariantLabel string
	NewStock     int64
	Actor        string
}

// ProductListFilter controls catalog list queries.
type ProductListFilter struct {
	Kind       *domain.ProductKind
	Tag        string
	ActiveOnly bool
	Pagination domain.Pagination
}

// OrderRepository persists order documents and the order number guard records.
type OrderRepository interface {
	// Insert creates the order document together with its order number
	// guard. A duplicate number surfaces as a conflict error.
	Insert(ctx context.Context, order domain.Order) error
	// Update persists the order when the stored version matches
	// order.Version-1, failing with a conflict otherwise.
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter controls order list queries.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CartRepository owns the server side cart documents.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// ReviewRepository stores product reviews and their moderation state.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) (domain.Review, error)
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, approvedOnly bool, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update ReviewModerationUpdate) (domain.Review, error)
}

// ReviewModerationUpdate carries moderation metadata for status transitions.
type ReviewModerationUpdate struct {
	ModeratedBy string
	ModeratedAt time.Time
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
