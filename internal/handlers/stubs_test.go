package handlers

import (
	"context"
	"errors"
	"net/http"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/platform/auth"
	"github.com/clovermart/api/internal/services"
)

type stubCatalogService struct {
	listFunc   func(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[domain.Product], error)
	getFunc    func(ctx context.Context, productID string) (domain.Product, error)
	slugFunc   func(ctx context.Context, slug string) (domain.Product, error)
	adjustFunc func(ctx context.Context, cmd services.StockAdjustCommand) (domain.Product, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Product]{}, errors.New("not implemented")
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, productID)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) GetProductBySlug(ctx context.Context, slug string) (domain.Product, error) {
	if s.slugFunc != nil {
		return s.slugFunc(ctx, slug)
	}
	return domain.Product{}, errors.New("not implemented")
}

func (s *stubCatalogService) AdjustStock(ctx context.Context, cmd services.StockAdjustCommand) (domain.Product, error) {
	if s.adjustFunc != nil {
		return s.adjustFunc(ctx, cmd)
	}
	return domain.Product{}, errors.New("not implemented")
}

type stubCheckoutService struct {
	placeFunc  func(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error)
	intentFunc func(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (domain.Order, error) {
	if s.placeFunc != nil {
		return s.placeFunc(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubCheckoutService) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	if s.intentFunc != nil {
		return s.intentFunc(ctx, cmd)
	}
	return services.PaymentIntent{}, errors.New("not implemented")
}

type stubOrderService struct {
	getFunc      func(ctx context.Context, orderID string) (domain.Order, error)
	byNumberFunc func(ctx context.Context, orderNumber string) (domain.Order, error)
	listFunc     func(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error)
	statusFunc   func(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error)
	cancelFunc   func(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error)
	confirmFunc  func(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error)
	courierFunc  func(ctx context.Context, cmd services.CourierEventCommand) (domain.Order, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	if s.byNumberFunc != nil {
		return s.byNumberFunc(ctx, orderNumber)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ListOrders(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, errors.New("not implemented")
}

func (s *stubOrderService) TransitionStatus(ctx context.Context, cmd services.OrderStatusTransitionCommand) (domain.Order, error) {
	if s.statusFunc != nil {
		return s.statusFunc(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (domain.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) ConfirmPayment(ctx context.Context, cmd services.ConfirmPaymentCommand) (domain.Order, error) {
	if s.confirmFunc != nil {
		return s.confirmFunc(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) RecordCourierEvent(ctx context.Context, cmd services.CourierEventCommand) (domain.Order, error) {
	if s.courierFunc != nil {
		return s.courierFunc(ctx, cmd)
	}
	return domain.Order{}, errors.New("not implemented")
}

type stubReviewService struct {
	createFunc   func(ctx context.Context, cmd services.CreateReviewCommand) (domain.Review, error)
	listFunc     func(ctx context.Context, cmd services.ListProductReviewsCommand) (domain.CursorPage[domain.Review], error)
	moderateFunc func(ctx context.Context, cmd services.ModerateReviewCommand) (domain.Review, error)
}

func (s *stubReviewService) Create(ctx context.Context, cmd services.CreateReviewCommand) (domain.Review, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return domain.Review{}, errors.New("not implemented")
}

func (s *stubReviewService) ListByProduct(ctx context.Context, cmd services.ListProductReviewsCommand) (domain.CursorPage[domain.Review], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, cmd)
	}
	return domain.CursorPage[domain.Review]{}, errors.New("not implemented")
}

func (s *stubReviewService) Moderate(ctx context.Context, cmd services.ModerateReviewCommand) (domain.Review, error) {
	if s.moderateFunc != nil {
		return s.moderateFunc(ctx, cmd)
	}
	return domain.Review{}, errors.New("not implemented")
}

type stubCartService struct {
	getFunc    func(ctx context.Context, userID string) (domain.Cart, error)
	upsertFunc func(ctx context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error)
	removeFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error)
	clearFunc  func(ctx context.Context, userID string) error
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{UserID: userID}, nil
}

func (s *stubCartService) UpsertItem(ctx context.Context, cmd services.UpsertCartItemCommand) (domain.Cart, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cmd)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (domain.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return nil
}

// withIdentity attaches an authenticated principal to the request, standing
// in for the firebase middleware.
func withIdentity(r *http.Request, uid string, roles ...string) *http.Request {
	identity := &auth.Identity{UID: uid, Roles: roles}
	return r.WithContext(auth.WithIdentity(r.Context(), identity))
}
