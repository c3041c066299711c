package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/services"
)

func newAdminRouter(h *AdminHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestAdminAdjustStockForwardsCommand(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	var gotCmd services.StockAdjustCommand
	catalog := &stubCatalogService{
		adjustFunc: func(ctx context.Context, cmd services.StockAdjustCommand) (domain.Product, error) {
			gotCmd = cmd
			product := sampleProduct(now)
			product.Stock = 34
			return product, nil
		},
	}
	h := NewAdminHandlers(nil, catalog, nil)

	body := `{"variant_label":"500g","new_stock":20}`
	req := httptest.NewRequest(http.MethodPut, "/products/prod-1/stock", strings.NewReader(body))
	req = withIdentity(req, "staff-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.ProductID != "prod-1" || gotCmd.VariantLabel != "500g" || gotCmd.NewStock != 20 {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
	if gotCmd.ActorID != "staff-1" {
		t.Fatalf("expected actor staff-1, got %q", gotCmd.ActorID)
	}
}

func TestAdminAdjustStockUnknownProduct(t *testing.T) {
	catalog := &stubCatalogService{
		adjustFunc: func(ctx context.Context, cmd services.StockAdjustCommand) (domain.Product, error) {
			return domain.Product{}, services.ErrProductNotFound
		},
	}
	h := NewAdminHandlers(nil, catalog, nil)

	body := `{"new_stock":5}`
	req := httptest.NewRequest(http.MethodPut, "/products/prod-x/stock", strings.NewReader(body))
	req = withIdentity(req, "staff-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(h).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAdminModerateReviewNormalisesStatus(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	var gotCmd services.ModerateReviewCommand
	reviews := &stubReviewService{
		moderateFunc: func(ctx context.Context, cmd services.ModerateReviewCommand) (domain.Review, error) {
			gotCmd = cmd
			return domain.Review{
				ID:        cmd.ReviewID,
				ProductID: "prod-1",
				UserID:    "user-1",
				Rating:    5,
				Body:      "Rich aroma.",
				Status:    cmd.Status,
				CreatedAt: now,
			}, nil
		},
	}
	h := NewAdminHandlers(nil, nil, reviews)

	body := `{"status":"Approved"}`
	req := httptest.NewRequest(http.MethodPut, "/reviews/rev_01", strings.NewReader(body))
	req = withIdentity(req, "staff-1", "admin")
	rr := httptest.NewRecorder()
	newAdminRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotCmd.ReviewID != "rev_01" || gotCmd.Status != domain.ReviewStatusApproved || gotCmd.ActorID != "staff-1" {
		t.Fatalf("unexpected command: %+v", gotCmd)
	}
}

func TestAdminEndpointsRequireIdentity(t *testing.T) {
	h := NewAdminHandlers(nil, &stubCatalogService{}, &stubReviewService{})

	req := httptest.NewRequest(http.MethodPut, "/products/prod-1/stock", strings.NewReader(`{"new_stock":5}`))
	rr := httptest.NewRecorder()
	newAdminRouter(h).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}
