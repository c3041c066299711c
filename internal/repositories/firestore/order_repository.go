package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/platform/pagination"
	"github.com/clovermart/api/internal/repositories"
)

const (
	ordersCollection       = "orders"
	orderNumbersCollection = "orderNumbers"
)

type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	numbers  *pfirestore.BaseRepository[orderNumberDocument]
}

func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	orders := pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)
	numbers := pfirestore.NewBaseRepository[orderNumberDocument](provider, orderNumbersCollection)
	return &OrderRepository{provider: provider, orders: orders, numbers: numbers}, nil
}

// Insert creates the order document and claims its display number. The
// guard document keyed by the number makes duplicate numbers surface as
// a conflict, which callers retry with a fresh suffix.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order insert: order id is required")
	}
	if strings.TrimSpace(order.Number) == "" {
		return errors.New("order insert: order number is required")
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		orderRef, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		numberRef, err := r.numbers.DocumentRef(ctx, order.Number)
		if err != nil {
			return err
		}
		guard := orderNumberDocument{OrderRef: order.ID, CreatedAt: order.CreatedAt.UTC()}
		if err := tx.Create(numberRef, guard); err != nil {
			return err
		}
		return tx.Create(orderRef, newOrderDocument(order))
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		if err := apply(ctx, tx); err != nil {
			return pfirestore.WrapError("order.insert", err)
		}
		return nil
	}
	return r.provider.RunTransaction(ctx, apply)
}

// Update persists the order only when the stored document still holds the
// previous version, failing with a conflict otherwise.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	if r == nil || r.provider == nil {
		return errors.New("order repository not initialised")
	}
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order update: order id is required")
	}
	if order.Version < 1 {
		return errors.New("order update: version must be >= 1")
	}

	apply := func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.orders.DocumentRef(ctx, order.ID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var stored orderDocument
		if err := snap.DataTo(&stored); err != nil {
			return fmt.Errorf("decode order %s: %w", order.ID, err)
		}
		if stored.Version != order.Version-1 {
			return status.Errorf(codes.FailedPrecondition, "order %s version mismatch: stored %d, expected %d", order.ID, stored.Version, order.Version-1)
		}
		return tx.Set(ref, newOrderDocument(order))
	}

	if tx, ok := pfirestore.TxFromContext(ctx); ok {
		if err := apply(ctx, tx); err != nil {
			return pfirestore.WrapError("order.update", err)
		}
		return nil
	}
	return r.provider.RunTransaction(ctx, apply)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.orders == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, errors.New("order find: order id is required")
	}

	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return domain.Order{}, errors.New("order find by number: order number is required")
	}

	guard, err := r.numbers.Get(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, err
	}
	return r.FindByID(ctx, guard.Data.OrderRef)
}

func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Order]{}, errors.New("order repository not initialised")
	}

	pageSize := filter.Pagination.Limit
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
	}

	query := client.Collection(ordersCollection).Query
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("userRef", "==", userID)
	}
	if len(filter.Status) == 1 {
		query = query.Where("status", "==", filter.Status[0])
	} else if len(filter.Status) > 1 {
		query = query.Where("status", "in", filter.Status)
	}
	if filter.DateRange.From != nil {
		query = query.Where("createdAt", ">=", filter.DateRange.From.UTC())
	}
	if filter.DateRange.To != nil {
		query = query.Where("createdAt", "<", filter.DateRange.To.UTC())
	}
	query = query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	var cursor orderPageToken
	if ok, err := pagination.DecodeToken(filter.Pagination.Token, &cursor); err != nil {
		return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
	} else if ok {
		query = query.StartAfter(cursor.CreatedAt, cursor.OrderID)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var orders []domain.Order
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(orders) > pageSize
	if hasMore {
		orders = orders[:pageSize]
	}
	var nextToken string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		encoded, err := pagination.EncodeToken(orderPageToken{OrderID: last.ID, CreatedAt: last.CreatedAt.UTC()})
		if err != nil {
			return domain.CursorPage[domain.Order]{}, pfirestore.WrapError("order.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Order]{
		Items:         orders,
		NextPageToken: nextToken,
	}, nil
}

// Helper structures ---------------------------------------------------------

type orderDocument struct {
	Number        string                 `firestore:"number"`
	UserRef       string                 `firestore:"userRef"`
	Items         []orderItemDocument    `firestore:"items"`
	Subtotal      int64                  `firestore:"subtotal"`
	ShippingFee   int64                  `firestore:"shippingFee"`
	Total         int64                  `firestore:"total"`
	Currency      string                 `firestore:"currency"`
	Status        string                 `firestore:"status"`
	PaymentMethod string                 `firestore:"paymentMethod"`
	PaymentStatus string                 `firestore:"paymentStatus"`
	PaymentProof  *paymentProofDocument  `firestore:"paymentProof,omitempty"`
	Shipping      addressDocument        `firestore:"shipping"`
	Tracking      []trackingStepDocument `firestore:"tracking"`
	TrackingNo    string                 `firestore:"trackingNumber,omitempty"`
	Notes         string                 `firestore:"notes,omitempty"`
	CancelledAt   *time.Time             `firestore:"cancelledAt,omitempty"`
	CancelledBy   string                 `firestore:"cancelledBy,omitempty"`
	CancelReason  string                 `firestore:"cancelReason,omitempty"`
	EstimatedAt   *time.Time             `firestore:"estimatedDelivery,omitempty"`
	DeliveredAt   *time.Time             `firestore:"deliveredAt,omitempty"`
	Version       int64                  `firestore:"version"`
	CreatedAt     time.Time              `firestore:"createdAt"`
	UpdatedAt     time.Time              `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductRef   string `firestore:"productRef"`
	ProductName  string `firestore:"productName"`
	VariantLabel string `firestore:"variantLabel,omitempty"`
	Quantity     int64  `firestore:"qty"`
	UnitPrice    int64  `firestore:"unitPrice"`
	LineTotal    int64  `firestore:"lineTotal"`
}

type paymentProofDocument struct {
	ProviderOrderID string `firestore:"providerOrderId"`
	PaymentID       string `firestore:"paymentId"`
	Signature       string `firestore:"signature"`
}

type addressDocument struct {
	FullName   string `firestore:"fullName"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type trackingStepDocument struct {
	Status    string     `firestore:"status"`
	Completed bool       `firestore:"completed"`
	Note      string     `firestore:"note,omitempty"`
	Actor     string     `firestore:"actor,omitempty"`
	Timestamp *time.Time `firestore:"timestamp,omitempty"`
}

type orderNumberDocument struct {
	OrderRef  string    `firestore:"orderRef"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, len(order.Items))
	for i, item := range order.Items {
		items[i] = orderItemDocument{
			ProductRef:   strings.TrimSpace(item.ProductID),
			ProductName:  strings.TrimSpace(item.ProductName),
			VariantLabel: strings.TrimSpace(item.VariantLabel),
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
		}
	}
	tracking := make([]trackingStepDocument, len(order.Tracking))
	for i, step := range order.Tracking {
		doc := trackingStepDocument{
			Status:    string(step.Status),
			Completed: step.Completed,
			Note:      step.Note,
			Actor:     strings.TrimSpace(step.Actor),
		}
		if !step.Timestamp.IsZero() {
			ts := step.Timestamp.UTC()
			doc.Timestamp = &ts
		}
		tracking[i] = doc
	}
	var proof *paymentProofDocument
	if order.PaymentProof != nil {
		proof = &paymentProofDocument{
			ProviderOrderID: strings.TrimSpace(order.PaymentProof.ProviderOrderID),
			PaymentID:       strings.TrimSpace(order.PaymentProof.PaymentID),
			Signature:       strings.TrimSpace(order.PaymentProof.Signature),
		}
	}
	return orderDocument{
		Number:        strings.TrimSpace(order.Number),
		UserRef:       strings.TrimSpace(order.UserID),
		Items:         items,
		Subtotal:      order.Subtotal,
		ShippingFee:   order.ShippingFee,
		Total:         order.Total,
		Currency:      strings.TrimSpace(order.Currency),
		Status:        string(order.Status),
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		PaymentProof:  proof,
		Shipping:      newAddressDocument(order.Shipping),
		Tracking:      tracking,
		TrackingNo:    strings.TrimSpace(order.TrackingNumber),
		Notes:         order.Notes,
		CancelledAt:   order.CancelledAt,
		CancelledBy:   strings.TrimSpace(order.CancelledBy),
		CancelReason:  order.CancelReason,
		EstimatedAt:   order.EstimatedDelivery,
		DeliveredAt:   order.DeliveredAt,
		Version:       order.Version,
		CreatedAt:     order.CreatedAt.UTC(),
		UpdatedAt:     order.UpdatedAt.UTC(),
	}
}

func newAddressDocument(addr domain.Address) addressDocument {
	return addressDocument{
		FullName:   strings.TrimSpace(addr.FullName),
		Phone:      strings.TrimSpace(addr.Phone),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      strings.TrimSpace(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.TrimSpace(addr.Country),
	}
}

func (d addressDocument) toDomain() domain.Address {
	return domain.Address{
		FullName:   d.FullName,
		Phone:      d.Phone,
		Line1:      d.Line1,
		Line2:      d.Line2,
		City:       d.City,
		State:      d.State,
		PostalCode: d.PostalCode,
		Country:    d.Country,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.OrderItem{
			ProductID:    item.ProductRef,
			ProductName:  item.ProductName,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
		}
	}
	tracking := make([]domain.TrackingStep, len(d.Tracking))
	for i, step := range d.Tracking {
		converted := domain.TrackingStep{
			Status:    domain.OrderStatus(step.Status),
			Completed: step.Completed,
			Note:      step.Note,
			Actor:     step.Actor,
		}
		if step.Timestamp != nil {
			converted.Timestamp = *step.Timestamp
		}
		tracking[i] = converted
	}
	var proof *domain.PaymentProof
	if d.PaymentProof != nil {
		proof = &domain.PaymentProof{
			ProviderOrderID: d.PaymentProof.ProviderOrderID,
			PaymentID:       d.PaymentProof.PaymentID,
			Signature:       d.PaymentProof.Signature,
		}
	}
	return domain.Order{
		ID:                id,
		Number:            d.Number,
		UserID:            d.UserRef,
		Items:             items,
		Subtotal:          d.Subtotal,
		ShippingFee:       d.ShippingFee,
		Total:             d.Total,
		Currency:          d.Currency,
		Status:            domain.OrderStatus(d.Status),
		PaymentMethod:     domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:     domain.PaymentStatus(d.PaymentStatus),
		PaymentProof:      proof,
		Shipping:          d.Shipping.toDomain(),
		Tracking:          tracking,
		TrackingNumber:    d.TrackingNo,
		Notes:             d.Notes,
		CancelledAt:       d.CancelledAt,
		CancelledBy:       d.CancelledBy,
		CancelReason:      d.CancelReason,
		EstimatedDelivery: d.EstimatedAt,
		DeliveredAt:       d.DeliveredAt,
		Version:           d.Version,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type orderPageToken struct {
	OrderID   string    `json:"orderId"`
	CreatedAt time.Time `json:"createdAt"`
}
