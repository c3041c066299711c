package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clovermart/api/internal/platform/httpx"
	"github.com/clovermart/api/internal/services"
)

const maxWebhookBodySize = 16 * 1024

// WebhookHandlers receives shipping partner callbacks. HMAC validation is
// applied by the router's webhook middleware, not here.
type WebhookHandlers struct {
	orders services.OrderService
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(orders services.OrderService) *WebhookHandlers {
	return &WebhookHandlers{orders: orders}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/shipping", h.shippingEvent)
}

// shippingEventRequest is the partner's payload. order_id carries the human
// readable order number, awb the courier tracking number.
type shippingEventRequest struct {
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	AWB        string `json:"awb,omitempty"`
	Remark     string `json:"remark,omitempty"`
	OccurredAt string `json:"occurred_at,omitempty"`
}

type shippingEventResponse struct {
	Received bool   `json:"received"`
	OrderID  string `json:"order_id,omitempty"`
	Status   string `json:"status,omitempty"`
}

func (h *WebhookHandlers) shippingEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req shippingEventRequest
	if err := decodeJSONBody(r, maxWebhookBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CourierEventCommand{
		OrderNumber:    strings.TrimSpace(req.OrderID),
		StatusText:     req.Status,
		TrackingNumber: strings.TrimSpace(req.AWB),
		Note:           strings.TrimSpace(req.Remark),
	}
	if raw := strings.TrimSpace(req.OccurredAt); raw != "" {
		occurred, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "occurred_at must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.OccurredAt = occurred.UTC()
	}

	order, err := h.orders.RecordCourierEvent(ctx, cmd)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	// Unknown courier phrasing is acknowledged so the partner stops retrying.
	response := shippingEventResponse{Received: true}
	if order.ID != "" {
		response.OrderID = order.ID
		response.Status = string(order.Status)
	}
	writeJSONResponse(w, http.StatusOK, response)
}
