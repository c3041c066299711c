package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/repositories"
)

func checkoutCatalog() *stubCatalogRepository {
	products := map[string]domain.Product{
		"prod-1": {
			ID:     "prod-1",
			Slug:   "clover-honey",
			Name:   "Clover Honey",
			Kind:   domain.ProductKindStandard,
			Active: true,
			Variants: []domain.ProductVariant{
				{Label: "250g", Price: 14900, Stock: 10},
				{Label: "500g", Price: 24900, Stock: 8},
			},
			Stock: 18,
		},
		"prod-2": {
			ID:     "prod-2",
			Slug:   "honey-dipper",
			Name:   "Honey Dipper",
			Kind:   domain.ProductKindStandard,
			Price:  9900,
			Stock:  50,
			Active: true,
		},
	}
	return &stubCatalogRepository{
		findByIDsFunc: func(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
			found := make(map[string]domain.Product, len(productIDs))
			for _, id := range productIDs {
				if p, ok := products[id]; ok {
					found[id] = p
				}
			}
			return found, nil
		},
	}
}

func shippingAddress() domain.Address {
	return domain.Address{
		FullName:   "Asha Rao",
		Phone:      "+91 98450 00000",
		Line1:      "12 MG Road",
		City:       "Bengaluru",
		State:      "KA",
		PostalCode: "560001",
		Country:    "IN",
	}
}

func sequenceIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s%014d", prefix, n)
	}
}

func TestCheckoutServicePlaceOrderCODRepricesAndDeducts(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)

	catalog := checkoutCatalog()
	var deducted []repositories.StockLine
	catalog.deductFunc = func(ctx context.Context, lines []repositories.StockLine, deductedAt time.Time) error {
		deducted = lines
		return nil
	}

	var inserted domain.Order
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			inserted = order
			return nil
		},
	}

	cleared := false
	carts := &stubCartRepository{
		clearFunc: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}

	unit := &stubUnitOfWork{}
	publisher := &stubEventPublisher{}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:               catalog,
		Orders:                orders,
		Carts:                 carts,
		UnitOfWork:            unit,
		Verifier:              &stubVerifier{ok: true},
		Events:                publisher,
		Clock:                 func() time.Time { return now },
		IDGenerator:           sequenceIDs("01HZCHECKOUT"),
		Currency:              "inr",
		ShippingFlatFee:       4900,
		FreeShippingThreshold: 49900,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID: "user-1",
		Items: []OrderLineInput{
			{ProductID: "prod-1", VariantLabel: "500g", Quantity: 1, ClaimedUnitPrice: 24900},
			{ProductID: "prod-2", Quantity: 2, ClaimedUnitPrice: 9900},
		},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
		ClaimedTotal:    49600,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if order.Subtotal != 44700 {
		t.Fatalf("expected subtotal 44700, got %d", order.Subtotal)
	}
	if order.ShippingFee != 4900 {
		t.Fatalf("expected flat shipping below threshold, got %d", order.ShippingFee)
	}
	if order.Total != 49600 {
		t.Fatalf("expected total 49600, got %d", order.Total)
	}
	if order.Currency != "INR" {
		t.Fatalf("expected currency INR, got %q", order.Currency)
	}
	if order.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected COD pending, got %q", order.PaymentStatus)
	}
	if !strings.HasPrefix(order.Number, "ORD") {
		t.Fatalf("expected ORD number prefix, got %q", order.Number)
	}
	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ id prefix, got %q", order.ID)
	}
	if order.EstimatedDelivery == nil || !order.EstimatedDelivery.After(now) {
		t.Fatalf("expected estimated delivery date, got %v", order.EstimatedDelivery)
	}

	if len(order.Tracking) != 5 {
		t.Fatalf("expected full tracking path, got %d steps", len(order.Tracking))
	}
	first, _ := order.TrackingStepFor(domain.OrderStatusOrdered)
	if !first.Completed || !first.Timestamp.Equal(now) {
		t.Fatalf("expected ordered step completed at placement, got %+v", first)
	}

	if len(deducted) != 2 {
		t.Fatalf("expected two stock lines, got %d", len(deducted))
	}
	if deducted[0].ProductID != "prod-1" || deducted[0].VariantLabel != "500g" {
		t.Fatalf("unexpected first stock line %+v", deducted[0])
	}
	if unit.calls != 1 {
		t.Fatalf("expected one transaction, got %d", unit.calls)
	}
	if inserted.Number != order.Number {
		t.Fatalf("expected order inserted inside transaction")
	}
	if !cleared {
		t.Fatalf("expected cart cleared after placement")
	}
	if len(publisher.events) != 1 || publisher.events[0].Name != "order.created" {
		t.Fatalf("expected order created event, got %+v", publisher.events)
	}
}

func TestCheckoutServicePlaceOrderOnlineRequiresVerifiedProof(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	verifier := &stubVerifier{ok: false}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:     checkoutCatalog(),
		Orders:      &stubOrderRepository{},
		Verifier:    verifier,
		Clock:       func() time.Time { return now },
		IDGenerator: sequenceIDs("01HZONLINEPAY"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	cmd := PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 1}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodOnline,
	}

	ctx := context.Background()
	if _, err := service.PlaceOrder(ctx, cmd); !errors.Is(err, ErrPaymentProofMissing) {
		t.Fatalf("expected ErrPaymentProofMissing, got %v", err)
	}

	cmd.PaymentProof = &domain.PaymentProof{ProviderOrderID: "prov_1", PaymentID: "pay_1", Signature: "bad"}
	if _, err := service.PlaceOrder(ctx, cmd); !errors.Is(err, ErrPaymentVerificationFailed) {
		t.Fatalf("expected ErrPaymentVerificationFailed, got %v", err)
	}

	verifier.ok = true
	order, err := service.PlaceOrder(ctx, cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected verified online order paid, got %q", order.PaymentStatus)
	}
	if order.PaymentProof == nil || order.PaymentProof.PaymentID != "pay_1" {
		t.Fatalf("expected proof stored on order")
	}
}

func TestCheckoutServicePlaceOrderInsufficientStock(t *testing.T) {
	catalog := checkoutCatalog()
	catalog.deductFunc = func(ctx context.Context, lines []repositories.StockLine, now time.Time) error {
		return repositories.NewStockError(repositories.StockErrorInsufficient, "product prod-2 has 50, want 60", nil)
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:  catalog,
		Orders:   &stubOrderRepository{},
		Verifier: &stubVerifier{ok: true},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 60}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestCheckoutServicePlaceOrderRejectsTamperedPrice(t *testing.T) {
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:  checkoutCatalog(),
		Orders:   &stubOrderRepository{},
		Verifier: &stubVerifier{ok: true},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 1, ClaimedUnitPrice: 100}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput for tampered price, got %v", err)
	}
}

func TestCheckoutServicePlaceOrderRequiresVariantSelection(t *testing.T) {
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:  checkoutCatalog(),
		Orders:   &stubOrderRepository{},
		Verifier: &stubVerifier{ok: true},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-1", Quantity: 1}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput for missing variant, got %v", err)
	}
}

func TestCheckoutServicePlaceOrderRequiresPhoneAndState(t *testing.T) {
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:  checkoutCatalog(),
		Orders:   &stubOrderRepository{},
		Verifier: &stubVerifier{ok: true},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(addr *domain.Address)
	}{
		{"missing phone", func(addr *domain.Address) { addr.Phone = "" }},
		{"missing state", func(addr *domain.Address) { addr.State = "  " }},
	}
	for _, tc := range cases {
		addr := shippingAddress()
		tc.mutate(&addr)

		_, err := service.PlaceOrder(context.Background(), PlaceOrderCommand{
			UserID:          "user-1",
			Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 1, ClaimedUnitPrice: 9900}},
			ShippingAddress: addr,
			PaymentMethod:   domain.PaymentMethodCashOnDelivery,
		})
		if !errors.Is(err, ErrCheckoutInvalidInput) {
			t.Fatalf("%s: expected ErrCheckoutInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestCheckoutServiceFreeShippingAboveThreshold(t *testing.T) {
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:               checkoutCatalog(),
		Orders:                &stubOrderRepository{},
		Verifier:              &stubVerifier{ok: true},
		ShippingFlatFee:       4900,
		FreeShippingThreshold: 49900,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 6}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ShippingFee != 0 {
		t.Fatalf("expected free shipping above threshold, got %d", order.ShippingFee)
	}
	if order.Total != 59400 {
		t.Fatalf("expected total 59400, got %d", order.Total)
	}
}

func TestCheckoutServiceLogsClaimedTotalMismatch(t *testing.T) {
	var logged []string
	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:  checkoutCatalog(),
		Orders:   &stubOrderRepository{},
		Verifier: &stubVerifier{ok: true},
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	_, err = service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 1}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
		ClaimedTotal:    100,
	})
	if err != nil {
		t.Fatalf("expected mismatch to be logged, not fatal: %v", err)
	}

	found := false
	for _, event := range logged {
		if event == "checkout.total.mismatch" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected checkout.total.mismatch logged, got %v", logged)
	}
}

func TestCheckoutServiceRetriesOrderNumberConflict(t *testing.T) {
	attempts := 0
	var numbers []string
	orders := &stubOrderRepository{
		insertFunc: func(ctx context.Context, order domain.Order) error {
			attempts++
			numbers = append(numbers, order.Number)
			if attempts == 1 {
				return &repositoryErrorStub{conflict: true}
			}
			return nil
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:     checkoutCatalog(),
		Orders:      orders,
		Verifier:    &stubVerifier{ok: true},
		IDGenerator: sequenceIDs("01HZRETRYNUM"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	order, err := service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:          "user-1",
		Items:           []OrderLineInput{{ProductID: "prod-2", Quantity: 1}},
		ShippingAddress: shippingAddress(),
		PaymentMethod:   domain.PaymentMethodCashOnDelivery,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if attempts != 2 {
		t.Fatalf("expected retry after number conflict, got %d attempts", attempts)
	}
	if order.Number == "" || order.Number != numbers[1] {
		t.Fatalf("expected returned order to carry the winning number, got %q", order.Number)
	}
}

func TestCheckoutServiceCreatePaymentIntent(t *testing.T) {
	var gotReq payments.IntentRequest
	gateway := &stubGateway{
		createIntentFunc: func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
			gotReq = req
			return payments.Intent{ID: "pi_1", Provider: "stripe", ClientSecret: "secret_1"}, nil
		},
	}

	service, err := NewCheckoutService(CheckoutServiceDeps{
		Catalog:               checkoutCatalog(),
		Orders:                &stubOrderRepository{},
		Verifier:              &stubVerifier{ok: true},
		Gateway:               gateway,
		ShippingFlatFee:       4900,
		FreeShippingThreshold: 49900,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing checkout service: %v", err)
	}

	intent, err := service.CreatePaymentIntent(context.Background(), CreatePaymentIntentCommand{
		UserID: "user-1",
		Items:  []OrderLineInput{{ProductID: "prod-2", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotReq.Amount != 14800 {
		t.Fatalf("expected intent amount to include shipping, got %d", gotReq.Amount)
	}
	if intent.IntentID != "pi_1" || intent.ClientSecret != "secret_1" {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if intent.Currency != "INR" {
		t.Fatalf("expected default currency, got %q", intent.Currency)
	}
}

type stubGateway struct {
	createIntentFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error)
}

func (s *stubGateway) CreateIntent(ctx context.Context, paymentCtx payments.PaymentContext, req payments.IntentRequest) (payments.Intent, error) {
	if s.createIntentFunc != nil {
		return s.createIntentFunc(ctx, paymentCtx, req)
	}
	return payments.Intent{}, errors.New("not implemented")
}
