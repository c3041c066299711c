package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/auth"
	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
	maxOrderBodySize     = 64 * 1024

	adminRole = auth.RoleAdmin
)

// OrderHandlers exposes order placement and lifecycle endpoints.
type OrderHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
	limiter  RateLimiter
}

// NewOrderHandlers constructs a new OrderHandlers instance. The limiter
// throttles order placement per user and may be nil.
func NewOrderHandlers(authn *auth.Authenticator, checkout services.CheckoutService, orders services.OrderService, limiter RateLimiter) *OrderHandlers {
	return &OrderHandlers{
		authn:    authn,
		checkout: checkout,
		orders:   orders,
		limiter:  limiter,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/", h.placeOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderRef}", h.getOrder)
	r.Put("/{orderID}/status", h.updateStatus)
	r.Put("/{orderID}/cancel", h.cancelOrder)
	r.Put("/{orderID}/confirm", h.confirmPayment)
}

type placeOrderRequest struct {
	Items           []orderLineRequest   `json:"items"`
	ShippingAddress addressPayload       `json:"shipping_address"`
	PaymentMethod   string               `json:"payment_method"`
	PaymentProof    *paymentProofPayload `json:"payment_proof,omitempty"`
	ClaimedTotal    int64                `json:"claimed_total,omitempty"`
	Notes           string               `json:"notes,omitempty"`
}

type orderLineRequest struct {
	ProductID    string `json:"product_id"`
	VariantLabel string `json:"variant_label,omitempty"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    int64  `json:"unit_price,omitempty"`
}

type paymentProofPayload struct {
	ProviderOrderID string `json:"provider_order_id"`
	PaymentID       string `json:"payment_id"`
	Signature       string `json:"signature"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

type cancelOrderRequest struct {
	Reason  string `json:"reason,omitempty"`
	Restock *bool  `json:"restock,omitempty"`
}

func (h *OrderHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many order attempts, retry later", http.StatusTooManyRequests))
		return
	}

	var req placeOrderRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.PlaceOrderCommand{
		UserID:          identity.UID,
		ShippingAddress: buildAddress(req.ShippingAddress),
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ClaimedTotal:    req.ClaimedTotal,
		Notes:           strings.TrimSpace(req.Notes),
	}
	for _, line := range req.Items {
		cmd.Items = append(cmd.Items, services.OrderLineInput{
			ProductID:        line.ProductID,
			VariantLabel:     line.VariantLabel,
			Quantity:         line.Quantity,
			ClaimedUnitPrice: line.UnitPrice,
		})
	}
	if req.PaymentProof != nil {
		cmd.PaymentProof = &domain.PaymentProof{
			ProviderOrderID: strings.TrimSpace(req.PaymentProof.ProviderOrderID),
			PaymentID:       strings.TrimSpace(req.PaymentProof.PaymentID),
			Signature:       strings.TrimSpace(req.PaymentProof.Signature),
		}
	}

	order, err := h.checkout.PlaceOrder(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	pager, err := parsePagination(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID:     identity.UID,
		Pagination: pager,
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := strings.ToLower(strings.TrimSpace(part))
			if status == "" {
				continue
			}
			if _, ok := domain.ParseOrderStatus(status); !ok {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status filter contains an unknown status", http.StatusBadRequest))
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}

	// Admins may list another user's orders.
	if target := strings.TrimSpace(r.URL.Query().Get("user_id")); target != "" && identity.HasRole(adminRole) {
		filter.UserID = target
	}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderSummary(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "orderRef"))
	if ref == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order reference is required", http.StatusBadRequest))
		return
	}

	order, err := h.lookupOrder(ctx, ref)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if order.UserID != identity.UID && !identity.HasRole(adminRole) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !identity.HasRole(adminRole) {
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "admin role required", http.StatusForbidden))
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req updateOrderStatusRequest
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.TransitionStatus(ctx, services.OrderStatusTransitionCommand{
		OrderID:      orderID,
		TargetStatus: services.OrderStatus(strings.TrimSpace(req.Status)),
		Note:         strings.TrimSpace(req.Note),
		ActorID:      identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req cancelOrderRequest
	if body, err := readLimitedBody(r, maxOrderBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.lookupOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	isAdmin := identity.HasRole(adminRole)
	if order.UserID != identity.UID && !isAdmin {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	restock := true
	if req.Restock != nil && isAdmin {
		restock = *req.Restock
	}

	cancelled, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: order.ID,
		ActorID: identity.UID,
		Reason:  strings.TrimSpace(req.Reason),
		Restock: restock,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(cancelled)})
}

func (h *OrderHandlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	var req paymentProofPayload
	if err := decodeJSONBody(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.lookupOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if order.UserID != identity.UID && !identity.HasRole(adminRole) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	confirmed, err := h.orders.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID: order.ID,
		Proof: domain.PaymentProof{
			ProviderOrderID: strings.TrimSpace(req.ProviderOrderID),
			PaymentID:       strings.TrimSpace(req.PaymentID),
			Signature:       strings.TrimSpace(req.Signature),
		},
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(confirmed)})
}

// lookupOrder resolves an order by document id or display number.
func (h *OrderHandlers) lookupOrder(ctx context.Context, ref string) (services.Order, error) {
	if strings.HasPrefix(ref, "ORD") {
		return h.orders.GetOrderByNumber(ctx, ref)
	}
	return h.orders.GetOrder(ctx, ref)
}

type orderListResponse struct {
	Items         []orderSummaryPayload `json:"items"`
	NextPageToken string                `json:"next_page_token,omitempty"`
}

type orderSummaryPayload struct {
	ID            string `json:"id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`
	Total         int64  `json:"total"`
	CreatedAt     string `json:"created_at"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID                string                `json:"id"`
	OrderNumber       string                `json:"order_number"`
	UserID            string                `json:"user_id"`
	Status            string                `json:"status"`
	PaymentMethod     string                `json:"payment_method"`
	PaymentStatus     string                `json:"payment_status"`
	Currency          string                `json:"currency"`
	Subtotal          int64                 `json:"subtotal"`
	ShippingFee       int64                 `json:"shipping_fee"`
	Total             int64                 `json:"total"`
	Items             []orderItemPayload    `json:"items"`
	ShippingAddress   addressPayload        `json:"shipping_address"`
	Tracking          []trackingStepPayload `json:"tracking"`
	TrackingNumber    string                `json:"awb,omitempty"`
	Notes             string                `json:"notes,omitempty"`
	EstimatedDelivery string                `json:"estimated_delivery_date,omitempty"`
	DeliveredAt       string                `json:"actual_delivery_date,omitempty"`
	CancelledAt       string                `json:"cancelled_at,omitempty"`
	CancelledBy       string                `json:"cancelled_by,omitempty"`
	CancelReason      string                `json:"cancel_reason,omitempty"`
	CreatedAt         string                `json:"created_at"`
	UpdatedAt         string                `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name,omitempty"`
	VariantLabel string `json:"variant_label,omitempty"`
	Quantity     int64  `json:"quantity"`
	UnitPrice    int64  `json:"unit_price"`
	LineTotal    int64  `json:"line_total"`
}

type trackingStepPayload struct {
	Status    string `json:"status"`
	Completed bool   `json:"completed"`
	Note      string `json:"note,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type addressPayload struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country,omitempty"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.Number,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		Currency:      strings.ToUpper(order.Currency),
		Total:         order.Total,
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:                order.ID,
		OrderNumber:       order.Number,
		UserID:            order.UserID,
		Status:            string(order.Status),
		PaymentMethod:     string(order.PaymentMethod),
		PaymentStatus:     string(order.PaymentStatus),
		Currency:          strings.ToUpper(order.Currency),
		Subtotal:          order.Subtotal,
		ShippingFee:       order.ShippingFee,
		Total:             order.Total,
		Items:             make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress:   buildAddressPayload(order.Shipping),
		Tracking:          make([]trackingStepPayload, 0, len(order.Tracking)),
		TrackingNumber:    order.TrackingNumber,
		Notes:             order.Notes,
		EstimatedDelivery: formatTime(pointerTime(order.EstimatedDelivery)),
		DeliveredAt:       formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:       formatTime(pointerTime(order.CancelledAt)),
		CancelledBy:       order.CancelledBy,
		CancelReason:      order.CancelReason,
		CreatedAt:         formatTime(order.CreatedAt),
		UpdatedAt:         formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			VariantLabel: item.VariantLabel,
			Quantity:     item.Quantity,
			UnitPrice:    item.UnitPrice,
			LineTotal:    item.LineTotal,
		})
	}
	for _, step := range order.Tracking {
		entry := trackingStepPayload{
			Status:    string(step.Status),
			Completed: step.Completed,
			Note:      step.Note,
			Actor:     step.Actor,
		}
		if !step.Timestamp.IsZero() {
			entry.Timestamp = formatTime(step.Timestamp)
		}
		payload.Tracking = append(payload.Tracking, entry)
	}
	return payload
}

func buildAddress(payload addressPayload) domain.Address {
	return domain.Address{
		FullName:   strings.TrimSpace(payload.FullName),
		Phone:      strings.TrimSpace(payload.Phone),
		Line1:      strings.TrimSpace(payload.Line1),
		Line2:      strings.TrimSpace(payload.Line2),
		City:       strings.TrimSpace(payload.City),
		State:      strings.TrimSpace(payload.State),
		PostalCode: strings.TrimSpace(payload.PostalCode),
		Country:    strings.TrimSpace(payload.Country),
	}
}

func buildAddressPayload(addr domain.Address) addressPayload {
	return addressPayload{
		FullName:   addr.FullName,
		Phone:      addr.Phone,
		Line1:      addr.Line1,
		Line2:      addr.Line2,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Country:    addr.Country,
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentProofMissing):
		httpx.WriteError(ctx, w, httpx.NewError("payment_proof_missing", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment verification failed", http.StatusPaymentRequired))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPaymentProofMissing):
		httpx.WriteError(ctx, w, httpx.NewError("payment_proof_missing", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_verification_failed", "payment verification failed", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCheckoutConflict):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_conflict", "order could not be allocated, retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to place order", http.StatusInternalServerError))
	}
}
