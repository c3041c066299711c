package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/clovermart/api/internal/domain"
	pfirestore "github.com/clovermart/api/internal/platform/firestore"
	"github.com/clovermart/api/internal/platform/pagination"
	"github.com/clovermart/api/internal/repositories"
)

const reviewsCollection = "reviews"

type ReviewRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[reviewDocument]
}

func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection)
	return &ReviewRepository{provider: provider, base: base}, nil
}

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	if strings.TrimSpace(review.ID) == "" {
		return domain.Review{}, errors.New("review insert: review id is required")
	}

	doc := newReviewDocument(review)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, review.ID)
		if err != nil {
			return err
		}
		return tx.Create(ref, doc)
	})
	if err != nil {
		return domain.Review{}, err
	}
	return doc.toDomain(review.ID), nil
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	if r == nil || r.base == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review find: review id is required")
	}

	doc, err := r.base.Get(ctx, reviewID)
	if err != nil {
		return domain.Review{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, approvedOnly bool, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.Review]{}, errors.New("review repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[domain.Review]{}, errors.New("review list: product id is required")
	}

	pageSize := pager.Limit
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("review.list", err)
	}

	query := client.Collection(reviewsCollection).Where("productRef", "==", productID)
	if approvedOnly {
		query = query.Where("status", "==", string(domain.ReviewStatusApproved))
	}
	firestoreQuery := query.OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Limit(pageSize + 1)

	var cursor reviewPageToken
	if ok, err := pagination.DecodeToken(pager.Token, &cursor); err != nil {
		return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("review.list", err)
	} else if ok {
		firestoreQuery = firestoreQuery.StartAfter(cursor.CreatedAt, cursor.ReviewID)
	}

	iter := firestoreQuery.Documents(ctx)
	defer iter.Stop()

	var reviews []domain.Review
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("review.list", err)
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.Review]{}, fmt.Errorf("decode review %s: %w", snap.Ref.ID, err)
		}
		reviews = append(reviews, doc.toDomain(snap.Ref.ID))
	}

	hasMore := len(reviews) > pageSize
	if hasMore {
		reviews = reviews[:pageSize]
	}
	var nextToken string
	if hasMore && len(reviews) > 0 {
		last := reviews[len(reviews)-1]
		encoded, err := pagination.EncodeToken(reviewPageToken{ReviewID: last.ID, CreatedAt: last.CreatedAt.UTC()})
		if err != nil {
			return domain.CursorPage[domain.Review]{}, pfirestore.WrapError("review.list", err)
		}
		nextToken = encoded
	}

	return domain.CursorPage[domain.Review]{
		Items:         reviews,
		NextPageToken: nextToken,
	}, nil
}

func (r *ReviewRepository) UpdateStatus(ctx context.Context, reviewID string, newStatus domain.ReviewStatus, update repositories.ReviewModerationUpdate) (domain.Review, error) {
	if r == nil || r.provider == nil {
		return domain.Review{}, errors.New("review repository not initialised")
	}
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return domain.Review{}, errors.New("review update status: review id is required")
	}

	var updated domain.Review
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, reviewID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc reviewDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode review %s: %w", reviewID, err)
		}
		doc.Status = string(newStatus)
		doc.ModeratedBy = strings.TrimSpace(update.ModeratedBy)
		doc.UpdatedAt = update.ModeratedAt.UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc.toDomain(reviewID)
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	return updated, nil
}

// Helper structures ---------------------------------------------------------

type reviewDocument struct {
	ProductRef  string    `firestore:"productRef"`
	OrderRef    string    `firestore:"orderRef"`
	UserRef     string    `firestore:"userRef"`
	Rating      int       `firestore:"rating"`
	Title       string    `firestore:"title,omitempty"`
	Body        string    `firestore:"body"`
	Status      string    `firestore:"status"`
	ModeratedBy string    `firestore:"moderatedBy,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func newReviewDocument(review domain.Review) reviewDocument {
	return reviewDocument{
		ProductRef: strings.TrimSpace(review.ProductID),
		OrderRef:   strings.TrimSpace(review.OrderID),
		UserRef:    strings.TrimSpace(review.UserID),
		Rating:     review.Rating,
		Title:      strings.TrimSpace(review.Title),
		Body:       review.Body,
		Status:     string(review.Status),
		CreatedAt:  review.CreatedAt.UTC(),
		UpdatedAt:  review.UpdatedAt.UTC(),
	}
}

func (d reviewDocument) toDomain(id string) domain.Review {
	return domain.Review{
		ID:        id,
		ProductID: d.ProductRef,
		OrderID:   d.OrderRef,
		UserID:    d.UserRef,
		Rating:    d.Rating,
		Title:     d.Title,
		Body:      d.Body,
		Status:    domain.ReviewStatus(d.Status),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type reviewPageToken struct {
	ReviewID  string    `json:"reviewId"`
	CreatedAt time.Time `json:"createdAt"`
}
