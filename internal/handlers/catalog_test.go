package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/services"
)

func sampleProduct(now time.Time) domain.Product {
	return domain.Product{
		ID:       "prod-1",
		Slug:     "masala-chai",
		Name:     "Masala Chai",
		Kind:     domain.ProductKindStandard,
		Price:    14900,
		Currency: "INR",
		Stock:    14,
		Variants: []domain.ProductVariant{
			{Label: "250g", Price: 14900, Stock: 10},
			{Label: "500g", Price: 24900, Stock: 4},
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newProductRouter(h *ProductHandlers) chi.Router {
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func TestListProductsAppliesFilters(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	var gotFilter services.ProductListFilter
	catalog := &stubCatalogService{
		listFunc: func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[domain.Product], error) {
			gotFilter = filter
			return domain.CursorPage[domain.Product]{
				Items:         []domain.Product{sampleProduct(now)},
				NextPageToken: "tok-2",
			}, nil
		},
	}
	h := NewProductHandlers(catalog)

	req := httptest.NewRequest(http.MethodGet, "/?kind=combo&tag=festive&limit=5", nil)
	rr := httptest.NewRecorder()
	newProductRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotFilter.Kind == nil || *gotFilter.Kind != domain.ProductKindCombo {
		t.Fatalf("kind filter not applied: %+v", gotFilter.Kind)
	}
	if gotFilter.Tag != "festive" || !gotFilter.ActiveOnly || gotFilter.Pagination.Limit != 5 {
		t.Fatalf("unexpected filter: %+v", gotFilter)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["next_page_token"] != "tok-2" {
		t.Fatalf("page token missing: %v", resp)
	}
}

func TestListProductsRejectsUnknownKind(t *testing.T) {
	h := NewProductHandlers(&stubCatalogService{})

	req := httptest.NewRequest(http.MethodGet, "/?kind=bundle", nil)
	rr := httptest.NewRecorder()
	newProductRouter(h).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown kind, got %d", rr.Code)
	}
}

func TestGetProductBySlug(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	catalog := &stubCatalogService{
		slugFunc: func(ctx context.Context, slug string) (domain.Product, error) {
			if slug != "masala-chai" {
				t.Fatalf("unexpected slug %q", slug)
			}
			return sampleProduct(now), nil
		},
	}
	h := NewProductHandlers(catalog)

	req := httptest.NewRequest(http.MethodGet, "/masala-chai", nil)
	rr := httptest.NewRecorder()
	newProductRouter(h).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	product, _ := resp["product"].(map[string]any)
	if product["slug"] != "masala-chai" {
		t.Fatalf("unexpected payload: %v", resp)
	}
	variants, _ := product["variants"].([]any)
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %v", product["variants"])
	}
}

func TestGetProductNotFound(t *testing.T) {
	catalog := &stubCatalogService{
		slugFunc: func(ctx context.Context, slug string) (domain.Product, error) {
			return domain.Product{}, fmt.Errorf("%w: %s", services.ErrProductNotFound, slug)
		},
	}
	h := NewProductHandlers(catalog)

	req := httptest.NewRequest(http.MethodGet, "/missing-slug", nil)
	rr := httptest.NewRecorder()
	newProductRouter(h).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
