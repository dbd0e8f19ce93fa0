package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const reviewsCollection = "reviews"

type reviewDocument struct {
	ProductID  string    `firestore:"productId"`
	UserID     string    `firestore:"userId"`
	OrderID    string    `firestore:"orderId"`
	Rating     int       `firestore:"rating"`
	Comment    string    `firestore:"comment"`
	IsVerified bool      `firestore:"isVerified"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}

// ReviewRepository stores product reviews.
type ReviewRepository struct {
	base *pfirestore.BaseRepository[reviewDocument]
}

// NewReviewRepository constructs a Firestore-backed review repository.
func NewReviewRepository(provider *pfirestore.Provider) (*ReviewRepository, error) {
	if provider == nil {
		return nil, errors.New("review repository requires firestore provider")
	}
	return &ReviewRepository{
		base: pfirestore.NewBaseRepository[reviewDocument](provider, reviewsCollection, nil),
	}, nil
}

var _ repositories.ReviewRepository = (*ReviewRepository)(nil)

func (r *ReviewRepository) Insert(ctx context.Context, review domain.Review) error {
	return r.base.Create(ctx, review.ID, encodeReview(review))
}

func (r *ReviewRepository) Update(ctx context.Context, review domain.Review) error {
	return r.base.Set(ctx, review.ID, encodeReview(review))
}

func (r *ReviewRepository) Delete(ctx context.Context, reviewID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(reviewID))
}

func (r *ReviewRepository) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(reviewID))
	if err != nil {
		return domain.Review{}, err
	}
	return decodeReview(doc), nil
}

// FindByPurchase returns a not-found error when the user has not reviewed the product for the order.
func (r *ReviewRepository) FindByPurchase(ctx context.Context, productID, userID, orderID string) (domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).
			Where("userId", "==", userID).
			Where("orderId", "==", orderID).
			Limit(1)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if len(docs) == 0 {
		return domain.Review{}, pfirestore.NotFound("reviews.findByPurchase", "review not found")
	}
	return decodeReview(docs[0]), nil
}

func (r *ReviewRepository) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	var queryErr error
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q, queryErr = newestFirst(q.Where("productId", "==", productID), pager)
		return q
	})
	if queryErr != nil {
		return domain.CursorPage[domain.Review]{}, queryErr
	}
	if err != nil {
		return domain.CursorPage[domain.Review]{}, err
	}
	return trimPage(decodeReviews(docs), pager.PageSize, reviewKey)
}

func (r *ReviewRepository) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID).OrderBy(fieldCreatedAt, firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	return decodeReviews(docs), nil
}

// Ratings returns the star rating of every review for the product.
func (r *ReviewRepository) Ratings(ctx context.Context, productID string) ([]int, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productId", "==", productID).Select("rating")
	})
	if err != nil {
		return nil, err
	}
	ratings := make([]int, 0, len(docs))
	for _, doc := range docs {
		ratings = append(ratings, doc.Data.Rating)
	}
	return ratings, nil
}

// ReviewedProductIDs lists the distinct products with at least one review.
func (r *ReviewRepository) ReviewedProductIDs(ctx context.Context) ([]string, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Select("productId")
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(docs))
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		if _, ok := seen[doc.Data.ProductID]; ok {
			continue
		}
		seen[doc.Data.ProductID] = struct{}{}
		ids = append(ids, doc.Data.ProductID)
	}
	slices.Sort(ids)
	return ids, nil
}

func reviewKey(r domain.Review) (time.Time, string) { return r.CreatedAt, r.ID }

func encodeReview(r domain.Review) reviewDocument {
	return reviewDocument{
		ProductID:  r.ProductID,
		UserID:     r.UserID,
		OrderID:    r.OrderID,
		Rating:     r.Rating,
		Comment:    r.Comment,
		IsVerified: r.IsVerified,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

func decodeReviews(docs []pfirestore.Document[reviewDocument]) []domain.Review {
	out := make([]domain.Review, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeReview(doc))
	}
	return out
}

func decodeReview(doc pfirestore.Document[reviewDocument]) domain.Review {
	d := doc.Data
	return domain.Review{
		ID:         doc.ID,
		ProductID:  d.ProductID,
		UserID:     d.UserID,
		OrderID:    d.OrderID,
		Rating:     d.Rating,
		Comment:    d.Comment,
		IsVerified: d.IsVerified,
		CreatedAt:  d.CreatedAt.UTC(),
		UpdatedAt:  d.UpdatedAt.UTC(),
	}
}
