package services

import (
	"context"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Product            = domain.Product
	ProductKind        = domain.ProductKind
	ProductVariant     = domain.ProductVariant
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	PaymentMethod      = domain.PaymentMethod
	PaymentStatus      = domain.PaymentStatus
	PaymentProof       = domain.PaymentProof
	TrackingStep       = domain.TrackingStep
	Address            = domain.Address
	Review             = domain.Review
	ReviewStatus       = domain.ReviewStatus
	SystemHealthReport = domain.SystemHealthReport
)

// CatalogService exposes the public product surface and admin stock adjustments.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	GetProductBySlug(ctx context.Context, slug string) (Product, error)
	AdjustStock(ctx context.Context, cmd StockAdjustCommand) (Product, error)
}

// CartService manages the per-user cart document.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	UpsertItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
}

// CheckoutService turns a priced set of lines into a persisted order,
// deducting stock and verifying payment proofs along the way.
type CheckoutService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
}

// OrderService encapsulates order reads, status transitions, cancellation,
// and courier webhook ingestion.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (Order, error)
	GetOrderByNumber(ctx context.Context, number string) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	TransitionStatus(ctx context.Context, cmd OrderStatusTransitionCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	RecordCourierEvent(ctx context.Context, cmd CourierEventCommand) (Order, error)
}

// ReviewService coordinates review submission and moderation.
type ReviewService interface {
	Create(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.CursorPage[Review], error)
	Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error)
}

// SystemService aggregates utility endpoints such as health checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// Command and DTO definitions ------------------------------------------------

type ProductListFilter = repositories.ProductListFilter

type OrderListFilter = repositories.OrderListFilter

type StockAdjustCommand struct {
	ProductID    string
	VariantLabel string
	NewStock     int64
	ActorID      string
}

type UpsertCartItemCommand struct {
	UserID       string
	ProductID    string
	VariantLabel string
	Quantity     int64
}

type RemoveCartItemCommand struct {
	UserID       string
	ProductID    string
	VariantLabel string
}

// OrderLineInput names a product the buyer wants. ClaimedUnitPrice is what
// the client believes the line costs; it must match the catalog price
// exactly when supplied, and the server price is used either way.
type OrderLineInput struct {
	ProductID        string
	VariantLabel     string
	Quantity         int64
	ClaimedUnitPrice int64
}

type PlaceOrderCommand struct {
	UserID          string
	Items           []OrderLineInput
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentProof    *PaymentProof
	ClaimedTotal    int64
	Notes           string
}

type CreatePaymentIntentCommand struct {
	UserID   string
	Items    []OrderLineInput
	Currency string
}

// PaymentIntent is the client-facing slice of a gateway intent.
type PaymentIntent struct {
	IntentID     string
	Provider     string
	ClientSecret string
	Amount       int64
	Currency     string
}

type OrderStatusTransitionCommand struct {
	OrderID      string
	TargetStatus OrderStatus
	Note         string
	ActorID      string
}

type CancelOrderCommand struct {
	OrderID string
	ActorID string
	Reason  string
	Restock bool
}

type ConfirmPaymentCommand struct {
	OrderID string
	Proof   PaymentProof
	ActorID string
}

// CourierEventCommand carries a shipping partner webhook payload after
// signature validation. StatusText is the partner's free-form status string
// and TrackingNumber the courier's AWB for the shipment.
type CourierEventCommand struct {
	OrderNumber    string
	StatusText     string
	TrackingNumber string
	Note           string
	OccurredAt     time.Time
}

type CreateReviewCommand struct {
	ProductID string
	OrderID   string
	UserID    string
	Rating    int
	Title     string
	Body      string
}

type ListProductReviewsCommand struct {
	ProductID    string
	ApprovedOnly bool
	Pagination   Pagination
}

type ModerateReviewCommand struct {
	ReviewID string
	Status   ReviewStatus
	ActorID  string
}
