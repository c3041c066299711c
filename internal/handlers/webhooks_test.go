package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/services"
)

func newWebhookRouter(h *WebhookHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestShippingEventForwardsCommand(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	var gotCmd services.CourierEventCommand
	orders := &stubOrderService{
		courierFunc: func(ctx context.Context, cmd services.CourierEventCommand) (domain.Order, error) {
			gotCmd = cmd
			order := sampleOrder(now)
			order.Status = domain.OrderStatusShipped
			return order, nil
		},
	}
	h := NewWebhookHandlers(orders)

	body := `{"order_id":"ORD1746091800000042","status":"Package dispatched from warehouse","awb":"AWB900123456IN","remark":"left dock 4","occurred_at":"2025-05-01T09:30:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/shipping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.OrderNumber != "ORD1746091800000042" {
		t.Fatalf("unexpected order number %q", gotCmd.OrderNumber)
	}
	if gotCmd.StatusText != "Package dispatched from warehouse" || gotCmd.Note != "left dock 4" {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
	if gotCmd.TrackingNumber != "AWB900123456IN" {
		t.Fatalf("expected awb to be forwarded, got %q", gotCmd.TrackingNumber)
	}
	if !gotCmd.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v, got %v", now, gotCmd.OccurredAt)
	}

	var resp shippingEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received || resp.OrderID != "ord_01" || resp.Status != string(domain.OrderStatusShipped) {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestShippingEventAcksUnknownPhrasing(t *testing.T) {
	orders := &stubOrderService{
		courierFunc: func(ctx context.Context, cmd services.CourierEventCommand) (domain.Order, error) {
			return domain.Order{}, nil
		},
	}
	h := NewWebhookHandlers(orders)

	body := `{"order_id":"ORD1746091800000042","status":"carrier hiccup, see portal"}`
	req := httptest.NewRequest(http.MethodPost, "/shipping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 ack, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp shippingEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Received || resp.OrderID != "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestShippingEventRejectsBadTimestamp(t *testing.T) {
	h := NewWebhookHandlers(&stubOrderService{})

	body := `{"order_id":"ORD1746091800000042","status":"delivered","occurred_at":"01-05-2025"}`
	req := httptest.NewRequest(http.MethodPost, "/shipping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad occurred_at, got %d", rr.Code)
	}
}

func TestShippingEventUnknownOrderReturnsNotFound(t *testing.T) {
	orders := &stubOrderService{
		courierFunc: func(ctx context.Context, cmd services.CourierEventCommand) (domain.Order, error) {
			return domain.Order{}, services.ErrOrderNotFound
		},
	}
	h := NewWebhookHandlers(orders)

	body := `{"order_id":"ORD0000000000000000","status":"delivered"}`
	req := httptest.NewRequest(http.MethodPost, "/shipping", strings.NewReader(body))
	rr := httptest.NewRecorder()
	newWebhookRouter(h).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
