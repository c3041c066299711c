package services

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/repositories"
)

const (
	orderIDPrefix         = "ord_"
	orderNumberPrefix     = "ORD"
	maxOrderLineItems     = 50
	maxLineQuantity       = 100
	insertNumberRetry     = 3
	claimedTotalMargin    = 100
	estimatedDeliveryDays = 5
)

var (
	// ErrCheckoutInvalidInput signals the caller provided invalid data.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrInsufficientStock indicates at least one line could not be covered.
	ErrInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrPaymentProofMissing indicates an online order arrived without a payment proof.
	ErrPaymentProofMissing = errors.New("checkout: payment proof is required")
	// ErrPaymentVerificationFailed indicates the payment proof signature did not verify.
	ErrPaymentVerificationFailed = errors.New("checkout: payment verification failed")
	// ErrCheckoutConflict indicates a persistent write conflict during order placement.
	ErrCheckoutConflict = errors.New("checkout: conflict")
)

// ProofVerifier checks gateway callback signatures before an order is marked paid.
type ProofVerifier interface {
	Verify(providerOrderID, paymentID, signature string) bool
}

// PaymentGateway creates payment intents for online checkouts.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
}

// CheckoutServiceDeps bundles collaborators required to construct the checkout service.
type CheckoutServiceDeps struct {
	Catalog               repositories.CatalogRepository
	Orders                repositories.OrderRepository
	Carts                 repositories.CartRepository
	UnitOfWork            repositories.UnitOfWork
	Verifier              ProofVerifier
	Gateway               PaymentGateway
	Events                OrderEventPublisher
	Clock                 func() time.Time
	IDGenerator           func() string
	Logger                func(ctx context.Context, event string, fields map[string]any)
	Currency              string
	ShippingFlatFee       int64
	FreeShippingThreshold int64
}

type checkoutService struct {
	catalog       repositories.CatalogRepository
	orders        repositories.OrderRepository
	carts         repositories.CartRepository
	unitOfWork    repositories.UnitOfWork
	verifier      ProofVerifier
	gateway       PaymentGateway
	events        OrderEventPublisher
	clock         func() time.Time
	newID         func() string
	logger        func(context.Context, string, map[string]any)
	currency      string
	shippingFee   int64
	freeThreshold int64
}

// NewCheckoutService wires dependencies into a concrete CheckoutService implementation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("checkout service: catalog repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("checkout service: proof verifier is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "INR"
	}

	return &checkoutService{
		catalog:    deps.Catalog,
		orders:     deps.Orders,
		carts:      deps.Carts,
		unitOfWork: unit,
		verifier:   deps.Verifier,
		gateway:    deps.Gateway,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:         idGen,
		logger:        logger,
		currency:      currency,
		shippingFee:   deps.ShippingFlatFee,
		freeThreshold: deps.FreeShippingThreshold,
	}, nil
}

func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if err := validateLineInputs(cmd.Items); err != nil {
		return Order{}, err
	}
	if err := validateShippingAddress(cmd.ShippingAddress); err != nil {
		return Order{}, err
	}

	method, ok := domain.ParsePaymentMethod(string(cmd.PaymentMethod))
	if !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}

	now := s.clock()

	items, subtotal, err := s.priceLines(ctx, cmd.Items)
	if err != nil {
		return Order{}, err
	}

	shippingFee := s.shippingFeeFor(subtotal)
	total := subtotal + shippingFee

	if cmd.ClaimedTotal > 0 && abs64(cmd.ClaimedTotal-total) > claimedTotalMargin {
		s.logger(ctx, "checkout.total.mismatch", map[string]any{
			"user":    userID,
			"claimed": cmd.ClaimedTotal,
			"server":  total,
		})
	}

	paymentStatus := domain.PaymentStatusPending
	var proof *domain.PaymentProof
	if method == domain.PaymentMethodOnline {
		if cmd.PaymentProof == nil {
			return Order{}, ErrPaymentProofMissing
		}
		if !s.verifier.Verify(cmd.PaymentProof.ProviderOrderID, cmd.PaymentProof.PaymentID, cmd.PaymentProof.Signature) {
			return Order{}, ErrPaymentVerificationFailed
		}
		paymentStatus = domain.PaymentStatusPaid
		copied := *cmd.PaymentProof
		proof = &copied
	}

	estimated := now.AddDate(0, 0, estimatedDeliveryDays)
	order := Order{
		ID:                orderIDPrefix + s.newID(),
		UserID:            userID,
		Items:             items,
		Subtotal:          subtotal,
		ShippingFee:       shippingFee,
		Total:             total,
		Currency:          s.currency,
		Status:            domain.OrderStatusOrdered,
		PaymentMethod:     method,
		PaymentStatus:     paymentStatus,
		PaymentProof:      proof,
		Shipping:          cmd.ShippingAddress,
		Notes:             strings.TrimSpace(cmd.Notes),
		Tracking:          domain.InitialTrackingSteps(now, userID),
		EstimatedDelivery: &estimated,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	stockLines := stockLinesFor(items)

	inserted := false
	for attempt := 0; attempt < insertNumberRetry && !inserted; attempt++ {
		order.Number = s.nextOrderNumber(now)
		err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
			if err := s.catalog.DeductStock(txCtx, stockLines, now); err != nil {
				return s.mapStockError(err)
			}
			if err := s.orders.Insert(txCtx, order); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
		if err == nil {
			inserted = true
			break
		}
		if !errors.Is(err, ErrCheckoutConflict) {
			return Order{}, err
		}
		s.logger(ctx, "checkout.order.number.conflict", map[string]any{
			"number":  order.Number,
			"attempt": attempt + 1,
		})
	}
	if !inserted {
		return Order{}, fmt.Errorf("%w: could not allocate an order number", ErrCheckoutConflict)
	}

	s.clearCart(ctx, userID)

	s.publishEvent(ctx, OrderEvent{
		Name:        orderEventCreated,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		UserID:      userID,
		Status:      string(order.Status),
		OccurredAt:  now,
		Payload: map[string]any{
			"total":         order.Total,
			"paymentMethod": string(order.PaymentMethod),
			"paymentStatus": string(order.PaymentStatus),
		},
	})

	return order, nil
}

func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	if s.gateway == nil {
		return PaymentIntent{}, errors.New("checkout: payment gateway not configured")
	}
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return PaymentIntent{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	if err := validateLineInputs(cmd.Items); err != nil {
		return PaymentIntent{}, err
	}

	_, subtotal, err := s.priceLines(ctx, cmd.Items)
	if err != nil {
		return PaymentIntent{}, err
	}
	total := subtotal + s.shippingFeeFor(subtotal)

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	intent, err := s.gateway.CreateIntent(ctx, payments.PaymentContext{Currency: currency}, payments.IntentRequest{
		Amount:   total,
		Currency: currency,
		Metadata: map[string]string{"userId": userID},
	})
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("checkout: create payment intent: %w", err)
	}

	return PaymentIntent{
		IntentID:     intent.ID,
		Provider:     intent.Provider,
		ClientSecret: intent.ClientSecret,
		Amount:       total,
		Currency:     currency,
	}, nil
}

// priceLines re-derives unit prices from the catalog; client-supplied prices
// are never trusted.
func (s *checkoutService) priceLines(ctx context.Context, inputs []OrderLineInput) ([]OrderItem, int64, error) {
	ids := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, line := range inputs {
		id := strings.TrimSpace(line.ProductID)
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, s.mapRepositoryError(err)
	}

	items := make([]OrderItem, 0, len(inputs))
	var subtotal int64
	for _, line := range inputs {
		productID := strings.TrimSpace(line.ProductID)
		product, ok := products[productID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: product %s", ErrProductNotFound, productID)
		}
		if !product.Active {
			return nil, 0, fmt.Errorf("%w: product %s is not available", ErrCheckoutInvalidInput, productID)
		}

		label := strings.TrimSpace(line.VariantLabel)
		unitPrice, ok := product.UnitPrice(label)
		if !ok {
			if label == "" {
				return nil, 0, fmt.Errorf("%w: product %s requires a variant", ErrCheckoutInvalidInput, productID)
			}
			return nil, 0, fmt.Errorf("%w: product %s has no variant %q", ErrCheckoutInvalidInput, productID, label)
		}
		if line.ClaimedUnitPrice > 0 && line.ClaimedUnitPrice != unitPrice {
			return nil, 0, fmt.Errorf("%w: price for product %s does not match the catalog", ErrCheckoutInvalidInput, productID)
		}

		lineTotal := unitPrice * line.Quantity
		items = append(items, OrderItem{
			ProductID:    productID,
			ProductName:  product.Name,
			VariantLabel: label,
			Quantity:     line.Quantity,
			UnitPrice:    unitPrice,
			LineTotal:    lineTotal,
		})
		subtotal += lineTotal
	}

	return items, subtotal, nil
}

func (s *checkoutService) shippingFeeFor(subtotal int64) int64 {
	if s.freeThreshold > 0 && subtotal >= s.freeThreshold {
		return 0
	}
	return s.shippingFee
}

// nextOrderNumber derives the display number from the placement time plus
// a small random suffix; collisions retry with a fresh suffix.
func (s *checkoutService) nextOrderNumber(now time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(s.newID()))
	return fmt.Sprintf("%s%d%03d", orderNumberPrefix, now.UnixMilli(), h.Sum32()%1000)
}

func (s *checkoutService) clearCart(ctx context.Context, userID string) {
	if s.carts == nil {
		return
	}
	if err := s.carts.ClearCart(ctx, userID); err != nil {
		s.logger(ctx, "checkout.cart.clear.failed", map[string]any{
			"user":  userID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish.failed", map[string]any{
			"event": event.Name,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func (s *checkoutService) mapStockError(err error) error {
	if err == nil {
		return nil
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrInsufficientStock, err)
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
	}

	return s.mapRepositoryError(err)
}

func (s *checkoutService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("checkout: repository unavailable: %w", err)
		}
	}

	return err
}

func validateLineInputs(inputs []OrderLineInput) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: at least one item is required", ErrCheckoutInvalidInput)
	}
	if len(inputs) > maxOrderLineItems {
		return fmt.Errorf("%w: too many items", ErrCheckoutInvalidInput)
	}
	for _, line := range inputs {
		if strings.TrimSpace(line.ProductID) == "" {
			return fmt.Errorf("%w: product id is required", ErrCheckoutInvalidInput)
		}
		if line.Quantity <= 0 || line.Quantity > maxLineQuantity {
			return fmt.Errorf("%w: quantity for product %s must be between 1 and %d", ErrCheckoutInvalidInput, line.ProductID, maxLineQuantity)
		}
	}
	return nil
}

func validateShippingAddress(addr Address) error {
	switch {
	case strings.TrimSpace(addr.FullName) == "":
		return fmt.Errorf("%w: shipping name is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.Line1) == "":
		return fmt.Errorf("%w: shipping address line is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.City) == "":
		return fmt.Errorf("%w: shipping city is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.State) == "":
		return fmt.Errorf("%w: shipping state is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.PostalCode) == "":
		return fmt.Errorf("%w: shipping postal code is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(addr.Phone) == "":
		return fmt.Errorf("%w: shipping phone is required", ErrCheckoutInvalidInput)
	}
	return nil
}

func stockLinesFor(items []OrderItem) []repositories.StockLine {
	lines := make([]repositories.StockLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, repositories.StockLine{
			ProductID:    item.ProductID,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
		})
	}
	return lines
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
