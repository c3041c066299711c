package domain

import "time"

// Product is a sellable catalog entry. Combo products bundle other
// products and carry their own price and stock counters.
type Product struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Kind        ProductKind
	Price       int64
	Currency    string
	Stock       int64
	Variants    []ProductVariant
	Components  []ComboComponent
	ImageURLs   []string
	Tags        []string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProductKind distinguishes plain products from combos.
type ProductKind string

const (
	ProductKindStandard ProductKind = "standard"
	ProductKindCombo    ProductKind = "combo"
)

// ProductVariant is a purchasable variation of a product, for example a
// size or a pack count. Each variant tracks its own stock; the product
// level Stock field holds the sum across variants.
type ProductVariant struct {
	Label string
	Price int64
	Stock int64
}

// ComboComponent references a product bundled inside a combo.
type ComboComponent struct {
	ProductID string
	Quantity  int64
}

// HasVariants reports whether the product sells through variants.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Variant returns the variant with the given label.
func (p Product) Variant(label string) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.Label == label {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// UnitPrice resolves the effective unit price for a variant label. An
// empty label resolves to the product level price.
func (p Product) UnitPrice(variantLabel string) (int64, bool) {
	if variantLabel == "" {
		if p.HasVariants() {
			return 0, false
		}
		return p.Price, true
	}
	v, ok := p.Variant(variantLabel)
	if !ok {
		return 0, false
	}
	return v.Price, true
}

// Address is a shipping destination captured on an order.
type Address struct {
	FullName   string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderItem is a priced line on an order. UnitPrice is the server side
// price at placement time, never the client supplied value.
type OrderItem struct {
	ProductID    string
	ProductName  string
	VariantLabel string
	Quantity     int64
	UnitPrice    int64
	LineTotal    int64
}

// PaymentProof carries the gateway references presented for an online
// payment. All three fields must be present for verification.
type PaymentProof struct {
	ProviderOrderID string
	PaymentID       string
	Signature       string
}

// TrackingStep is one entry in an order's fulfilment history. The full
// forward path is materialised at placement; Completed flips as the
// order advances.
type TrackingStep struct {
	Status    OrderStatus
	Completed bool
	Note      string
	Actor     string
	Timestamp time.Time
}

// InitialTrackingSteps builds the forward-path steps for a new order
// with the ordered step already completed.
func InitialTrackingSteps(now time.Time, actor string) []TrackingStep {
	path := StatusesThrough(OrderStatusDelivered)
	steps := make([]TrackingStep, 0, len(path))
	for _, status := range path {
		step := TrackingStep{Status: status}
		if status == OrderStatusOrdered {
			step.Completed = true
			step.Actor = actor
			step.Timestamp = now
		}
		steps = append(steps, step)
	}
	return steps
}

// Order is the ledger record for a placed order.
type Order struct {
	ID                string
	Number            string
	UserID            string
	Items             []OrderItem
	Subtotal          int64
	ShippingFee       int64
	Total             int64
	Currency          string
	Status            OrderStatus
	PaymentMethod     PaymentMethod
	PaymentStatus     PaymentStatus
	PaymentProof      *PaymentProof
	Shipping          Address
	Tracking          []TrackingStep
	TrackingNumber    string
	Notes             string
	CancelledAt       *time.Time
	CancelledBy       string
	CancelReason      string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TrackingStepFor returns the recorded step for a status if present.
func (o Order) TrackingStepFor(status OrderStatus) (TrackingStep, bool) {
	for _, step := range o.Tracking {
		if step.Status == status {
			return step, true
		}
	}
	return TrackingStep{}, false
}

// CartItem is a line held in a user's server side cart.
type CartItem struct {
	ProductID    string
	VariantLabel string
	Quantity     int64
	AddedAt      time.Time
}

// Cart is the server side cart document for a user.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// Review is a customer review on a product. Reviews start pending and
// become visible once approved.
type Review struct {
	ID        string
	ProductID string
	OrderID   string
	UserID    string
	Rating    int
	Title     string
	Body      string
	Status    ReviewStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewStatus is the moderation state of a review.
type ReviewStatus string

const (
	ReviewStatusPending  ReviewStatus = "pending"
	ReviewStatusApproved ReviewStatus = "approved"
	ReviewStatusRejected ReviewStatus = "rejected"
)

// Pagination bounds list queries. Token is an opaque cursor returned by
// a previous page.
type Pagination struct {
	Limit int
	Token string
}

// CursorPage wraps one page of results with the cursor for the next.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// RangeQuery bounds a field between optional From and To values.
type RangeQuery[T any] struct {
	From *T
	To   *T
}
