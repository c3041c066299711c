package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	intent  Intent
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	f.lastOp = "intent"
	return f.intent, f.err
}

func (f *fakeProvider) Refund(ctx context.Context, req RefundRequest) (PaymentDetails, error) {
	f.lastOp = "refund"
	return f.payment, f.err
}

func (f *fakeProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	f.lastOp = "lookup"
	return f.payment, f.err
}

func TestManagerCreateIntentUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{intent: Intent{ID: "pi_stripe"}}
	razorpay := &fakeProvider{intent: Intent{ID: "pi_razorpay"}}

	mgr, err := NewManager(map[string]Provider{
		"stripe":   stripe,
		"razorpay": razorpay,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	intent, err := mgr.CreateIntent(ctx, PaymentContext{PreferredProvider: "Razorpay"}, IntentRequest{Amount: 1000, Currency: "INR"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}

	if intent.Provider != "razorpay" {
		t.Fatalf("expected provider 'razorpay', got %q", intent.Provider)
	}
	if razorpay.lastOp != "intent" {
		t.Fatalf("expected razorpay provider to handle call")
	}
	if stripe.lastOp != "" {
		t.Fatalf("expected stripe provider to remain unused")
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{intent: Intent{ID: "pi_stripe"}}
	razorpay := &fakeProvider{intent: Intent{ID: "pi_razorpay"}}

	mgr, err := NewManager(
		map[string]Provider{
			"stripe":   stripe,
			"razorpay": razorpay,
		},
		WithCurrencyRoutes(map[string]string{"INR": "razorpay"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if _, err := mgr.CreateIntent(ctx, PaymentContext{Currency: "inr"}, IntentRequest{Amount: 500, Currency: "INR"}); err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if razorpay.lastOp != "intent" {
		t.Fatalf("expected currency route to pick razorpay")
	}
	if stripe.lastOp != "" {
		t.Fatalf("expected stripe provider to remain unused")
	}
}

func TestManagerFallsBackToDefaultProvider(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{intent: Intent{ID: "pi_stripe"}}
	razorpay := &fakeProvider{intent: Intent{ID: "pi_razorpay"}}

	mgr, err := NewManager(
		map[string]Provider{
			"stripe":   stripe,
			"razorpay": razorpay,
		},
		WithDefaultProvider("stripe"),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	intent, err := mgr.CreateIntent(ctx, PaymentContext{}, IntentRequest{Amount: 100, Currency: "USD"})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Provider != "stripe" {
		t.Fatalf("expected default provider 'stripe', got %q", intent.Provider)
	}
}

func TestManagerUnresolvedProvider(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}

	mgr, err := NewManager(map[string]Provider{"alpha": provider, "beta": provider})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	_, err = mgr.Refund(ctx, PaymentContext{PreferredProvider: "unknown"}, RefundRequest{PaymentID: "pay_1"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerSingleProviderShortCircuit(t *testing.T) {
	ctx := context.Background()
	stripe := &fakeProvider{payment: PaymentDetails{PaymentID: "pay_1", Status: StatusSucceeded}}

	mgr, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	details, err := mgr.LookupPayment(ctx, PaymentContext{}, LookupRequest{PaymentID: "pay_1"})
	if err != nil {
		t.Fatalf("lookup payment: %v", err)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("expected succeeded status, got %q", details.Status)
	}
	if stripe.lastOp != "lookup" {
		t.Fatalf("expected lookup to reach provider")
	}
}
