package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/cache"
	"github.com/clovermart/api/internal/repositories"
)

const (
	productCacheKeyPrefix = "product:"
	productSlugKeyPrefix  = "product:slug:"

	defaultProductCacheTTL = 5 * time.Minute
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates concurrent stock writes collided.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Catalog  repositories.CatalogRepository
	Cache    cache.Cache
	CacheTTL time.Duration
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	catalog  repositories.CatalogRepository
	cache    cache.Cache
	cacheTTL time.Duration
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultProductCacheTTL
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &catalogService{
		catalog:  deps.Catalog,
		cache:    deps.Cache,
		cacheTTL: ttl,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error) {
	page, err := s.catalog.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	if cached, ok := s.cachedProduct(ctx, productCacheKeyPrefix+productID); ok {
		return cached, nil
	}

	product, err := s.catalog.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.storeProduct(ctx, productCacheKeyPrefix+productID, product)
	return product, nil
}

func (s *catalogService) GetProductBySlug(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Product{}, fmt.Errorf("%w: product slug is required", ErrCatalogInvalidInput)
	}

	if cached, ok := s.cachedProduct(ctx, productSlugKeyPrefix+slug); ok {
		return cached, nil
	}

	product, err := s.catalog.FindBySlug(ctx, slug)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.storeProduct(ctx, productSlugKeyPrefix+slug, product)
	return product, nil
}

func (s *catalogService) AdjustStock(ctx context.Context, cmd StockAdjustCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if cmd.NewStock < 0 {
		return Product{}, fmt.Errorf("%w: stock cannot be negative", ErrCatalogInvalidInput)
	}

	now := s.clock()
	product, err := s.catalog.AdjustStock(ctx, repositories.StockAdjustment{
		ProductID:    productID,
		VariantLabel: strings.TrimSpace(cmd.VariantLabel),
		NewStock:     cmd.NewStock,
		Actor:        strings.TrimSpace(cmd.ActorID),
	}, now)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.invalidateProduct(ctx, product)

	s.logger(ctx, "catalog.stock.adjusted", map[string]any{
		"product": productID,
		"variant": cmd.VariantLabel,
		"stock":   cmd.NewStock,
		"actor":   cmd.ActorID,
	})

	return product, nil
}

func (s *catalogService) cachedProduct(ctx context.Context, key string) (Product, bool) {
	if s.cache == nil {
		return Product{}, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger(ctx, "catalog.cache.read.failed", map[string]any{"key": key, "error": err.Error()})
		}
		return Product{}, false
	}
	var product Product
	if err := json.Unmarshal(raw, &product); err != nil {
		s.logger(ctx, "catalog.cache.decode.failed", map[string]any{"key": key, "error": err.Error()})
		return Product{}, false
	}
	return product, true
}

func (s *catalogService) storeProduct(ctx context.Context, key string, product Product) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.logger(ctx, "catalog.cache.write.failed", map[string]any{"key": key, "error": err.Error()})
	}
}

func (s *catalogService) invalidateProduct(ctx context.Context, product Product) {
	if s.cache == nil {
		return
	}
	keys := []string{productCacheKeyPrefix + product.ID}
	if product.Slug != "" {
		keys = append(keys, productSlugKeyPrefix+product.Slug)
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger(ctx, "catalog.cache.invalidate.failed", map[string]any{"product": product.ID, "error": err.Error()})
	}
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}

	var stockErr *repositories.StockError
	if errors.As(err, &stockErr) {
		switch stockErr.Code {
		case repositories.StockErrorProductNotFound:
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repositories.StockErrorVariantNotFound:
			return fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
		}
	}

	return err
}
