package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/clovermart/api/internal/domain"
	"github.com/clovermart/api/internal/repositories"
)

const (
	reviewIDPrefix     = "rev_"
	maxReviewTitleLen  = 120
	maxReviewBodyLen   = 4000
	reviewRatingMin    = 1
	reviewRatingMax    = 5
	reviewEventCreated = "review.created"
)

var (
	// ErrReviewInvalidInput signals the caller provided invalid data.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewNotEligible indicates the order does not entitle the user
	// to review the product.
	ErrReviewNotEligible = errors.New("review: order not eligible")
)

// ReviewServiceDeps bundles collaborators required to construct the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews   repositories.ReviewRepository
	orders    repositories.OrderRepository
	clock     func() time.Time
	idGen     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews: deps.Reviews,
		orders:  deps.Orders,
		clock: func() time.Time {
			return clock().UTC()
		},
		idGen:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

// Create records a pending review. Only the buyer of a delivered order
// containing the product may submit one.
func (s *reviewService) Create(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	if productID == "" {
		return Review{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	if orderID == "" {
		return Review{}, fmt.Errorf("%w: order id is required", ErrReviewInvalidInput)
	}
	if userID == "" {
		return Review{}, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating < reviewRatingMin || cmd.Rating > reviewRatingMax {
		return Review{}, fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, reviewRatingMin, reviewRatingMax)
	}

	title := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Title))
	body := strings.TrimSpace(s.sanitizer.Sanitize(cmd.Body))
	if body == "" {
		return Review{}, fmt.Errorf("%w: review body is required", ErrReviewInvalidInput)
	}
	if len(title) > maxReviewTitleLen {
		return Review{}, fmt.Errorf("%w: title exceeds %d characters", ErrReviewInvalidInput, maxReviewTitleLen)
	}
	if len(body) > maxReviewBodyLen {
		return Review{}, fmt.Errorf("%w: body exceeds %d characters", ErrReviewInvalidInput, maxReviewBodyLen)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	if order.UserID != userID {
		return Review{}, fmt.Errorf("%w: order does not belong to user", ErrReviewNotEligible)
	}
	if order.Status != domain.OrderStatusDelivered {
		return Review{}, fmt.Errorf("%w: order has not been delivered", ErrReviewNotEligible)
	}
	if !orderContainsProduct(order, productID) {
		return Review{}, fmt.Errorf("%w: product not part of order", ErrReviewNotEligible)
	}

	now := s.clock()
	review := domain.Review{
		ID:        reviewIDPrefix + s.idGen(),
		ProductID: productID,
		OrderID:   order.ID,
		UserID:    userID,
		Rating:    cmd.Rating,
		Title:     title,
		Body:      body,
		Status:    domain.ReviewStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, err := s.reviews.Insert(ctx, review)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, reviewEventCreated, map[string]any{
		"reviewId":  stored.ID,
		"productId": stored.ProductID,
		"orderId":   stored.OrderID,
	})
	return stored, nil
}

func (s *reviewService) ListByProduct(ctx context.Context, cmd ListProductReviewsCommand) (domain.CursorPage[Review], error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}

	page, err := s.reviews.ListByProduct(ctx, productID, cmd.ApprovedOnly, cmd.Pagination)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *reviewService) Moderate(ctx context.Context, cmd ModerateReviewCommand) (Review, error) {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	if cmd.Status != domain.ReviewStatusApproved && cmd.Status != domain.ReviewStatusRejected {
		return Review{}, fmt.Errorf("%w: unsupported moderation status %q", ErrReviewInvalidInput, cmd.Status)
	}

	update := repositories.ReviewModerationUpdate{
		ModeratedBy: strings.TrimSpace(cmd.ActorID),
		ModeratedAt: s.clock(),
	}
	review, err := s.reviews.UpdateStatus(ctx, reviewID, cmd.Status, update)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "review.moderated", map[string]any{
		"reviewId": review.ID,
		"status":   string(review.Status),
		"actorId":  update.ModeratedBy,
	})
	return review, nil
}

func orderContainsProduct(order domain.Order, productID string) bool {
	for _, item := range order.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("review: repository unavailable: %w", err)
		}
	}

	return err
}
