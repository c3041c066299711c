package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/payments"
	"github.com/clovermart/api/internal/repositories"
)

type stubCatalogRepository struct {
	findByIDFunc   func(ctx context.Context, productID string) (domain.Product, error)
	findBySlugFunc func(ctx context.Context, slug string) (domain.Product, error)
	findByIDsFunc  func(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	listFunc       func(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error)
	deductFunc     func(ctx context.Context, lines []repositories.StockLine, now time.Time) error
	restoreFunc    func(ctx context.Context, line repositories.StockLine, now time.Time) error
	adjustFunc     func(ctx context.Context, adjustment repositories.StockAdjustment, now time.Time) (domain.Product, error)
}

func (s *stubCatalogRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if s.findBySlugFunc != nil {
		return s.findBySlugFunc(ctx, slug)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findByIDsFunc != nil {
		return s.findByIDsFunc(ctx, productIDs)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCatalogRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, errors.New("not implemented")
}

func (s *stubCatalogRepository) DeductStock(ctx context.Context, lines []repositories.StockLine, now time.Time) error {
	if s.deductFunc != nil {
		return s.deductFunc(ctx, lines, now)
	}
	return nil
}

func (s *stubCatalogRepository) RestoreStock(ctx context.Context, line repositories.StockLine, now time.Time) error {
	if s.restoreFunc != nil {
		return s.restoreFunc(ctx, line, now)
	}
	return nil
}

func (s *stubCatalogRepository) AdjustStock(ctx context.Context, adjustment repositories.StockAdjustment, now time.Time) (domain.Product, error) {
	if s.adjustFunc != nil {
		return s.adjustFunc(ctx, adjustment, now)
	}
	return domain.Product{}, errors.New("not implemented")
}

type stubOrderRepository struct {
	insertFunc       func(ctx context.Context, order domain.Order) error
	updateFunc       func(ctx context.Context, order domain.Order) error
	findByIDFunc     func(ctx context.Context, orderID string) (domain.Order, error)
	findByNumberFunc func(ctx context.Context, orderNumber string) (domain.Order, error)
	listFunc         func(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
}

func (s *stubOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, order)
	}
	return nil
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) FindByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.findByNumberFunc != nil {
		return s.findByNumberFunc(ctx, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, errors.New("not implemented")
}

type stubCartRepository struct {
	getFunc     func(ctx context.Context, userID string) (domain.Cart, error)
	replaceFunc func(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error)
	clearFunc   func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{UserID: userID}, nil
}

func (s *stubCartRepository) ReplaceItems(ctx context.Context, userID string, items []domain.CartItem, now time.Time) (domain.Cart, error) {
	if s.replaceFunc != nil {
		return s.replaceFunc(ctx, userID, items, now)
	}
	return domain.Cart{UserID: userID, Items: items, UpdatedAt: now}, nil
}

func (s *stubCartRepository) ClearCart(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return nil
}

type stubReviewRepository struct {
	insertFunc        func(ctx context.Context, review domain.Review) (domain.Review, error)
	findByIDFunc      func(ctx context.Context, reviewID string) (domain.Review, error)
	listByProductFunc func(ctx context.Context, productID string, approvedOnly bool, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	updateStatusFunc  func(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewModerationUpdate) (domain.Review, error)
}

func (s *stubReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if s.insertFunc != nil {
		return s.insertFunc(ctx, review)
	}
	return review, nil
}

func (s *stubReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, reviewID)
	}
	return domain.Review{}, errors.New("not implemented")
}

func (s *stubReviewRepository) ListByProduct(ctx context.Context, productID string, approvedOnly bool, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if s.listByProductFunc != nil {
		return s.listByProductFunc(ctx, productID, approvedOnly, pager)
	}
	return domain.CursorPage[domain.Review]{}, errors.New("not implemented")
}

func (s *stubReviewRepository) UpdateStatus(ctx context.Context, reviewID string, status domain.ReviewStatus, update repositories.ReviewModerationUpdate) (domain.Review, error) {
	if s.updateStatusFunc != nil {
		return s.updateStatusFunc(ctx, reviewID, status, update)
	}
	return domain.Review{}, errors.New("not implemented")
}

type stubUnitOfWork struct {
	calls int
}

func (s *stubUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	return fn(ctx)
}

type stubEventPublisher struct {
	events []OrderEvent
	err    error
}

func (s *stubEventPublisher) PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error) {
	s.events = append(s.events, event)
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}

type stubCache struct {
	getFunc    func(ctx context.Context, key string) ([]byte, error)
	setFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	deleteFunc func(ctx context.Context, keys ...string) error
}

func (s *stubCache) Get(ctx context.Context, key string) ([]byte, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, key)
	}
	return nil, errors.New("not implemented")
}

func (s *stubCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.setFunc != nil {
		return s.setFunc(ctx, key, value, ttl)
	}
	return nil
}

func (s *stubCache) Delete(ctx context.Context, keys ...string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, keys...)
	}
	return nil
}

type stubRefundGateway struct {
	refundFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error)
	lookupFunc func(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error)
}

func (s *stubRefundGateway) Refund(ctx context.Context, paymentCtx payments.PaymentContext, req payments.RefundRequest) (payments.PaymentDetails, error) {
	if s.refundFunc != nil {
		return s.refundFunc(ctx, paymentCtx, req)
	}
	return payments.PaymentDetails{}, errors.New("not implemented")
}

func (s *stubRefundGateway) LookupPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.LookupRequest) (payments.PaymentDetails, error) {
	if s.lookupFunc != nil {
		return s.lookupFunc(ctx, paymentCtx, req)
	}
	return payments.PaymentDetails{}, errors.New("not implemented")
}

type stubVerifier struct {
	ok    bool
	calls []string
}

func (s *stubVerifier) Verify(providerOrderID, paymentID, signature string) bool {
	s.calls = append(s.calls, paymentID)
	return s.ok
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}
