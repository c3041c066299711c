package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/clovermart/api/internal/platform/auth"
	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/services"
)

const maxPaymentBodySize = 32 * 1024

// PaymentHandlers exposes the payment intent endpoint for online checkout.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, checkout: checkout}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/intent", h.createIntent)
}

type createIntentRequest struct {
	Items    []orderLineRequest `json:"items"`
	Currency string             `json:"currency,omitempty"`
}

type intentResponse struct {
	IntentID     string `json:"intent_id"`
	Provider     string `json:"provider"`
	ClientSecret string `json:"client_secret,omitempty"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

func (h *PaymentHandlers) createIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req createIntentRequest
	if err := decodeJSONBody(r, maxPaymentBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CreatePaymentIntentCommand{
		UserID:   identity.UID,
		Currency: strings.TrimSpace(req.Currency),
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID:        line.ProductID,
			VariantLabel:     line.VariantLabel,
			Quantity:         line.Quantity,
			ClaimedUnitPrice: line.UnitPrice,
		})
	}

	intent, err := h.checkout.CreatePaymentIntent(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, intentResponse{
		IntentID:     intent.IntentID,
		Provider:     intent.Provider,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
	})
}
