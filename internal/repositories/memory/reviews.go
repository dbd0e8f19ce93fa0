package memory

import (
	"context"
	"slices"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
)

type reviewRepo struct{ s *Store }

func reviewKey(r domain.Review) (time.Time, string) { return r.CreatedAt, r.ID }

func (r reviewRepo) Insert(ctx context.Context, review domain.Review) error {
	if review.ID == "" {
		return invalid("reviews.insert", "review id is required")
	}
	defer r.s.lock(ctx)()
	if _, exists := r.s.reviews[review.ID]; exists {
		return conflict("reviews.insert", review.ID)
	}
	r.s.reviews[review.ID] = review
	return nil
}

func (r reviewRepo) Update(ctx context.Context, review domain.Review) error {
	defer r.s.lock(ctx)()
	r.s.reviews[review.ID] = review
	return nil
}

func (r reviewRepo) Delete(ctx context.Context, reviewID string) error {
	defer r.s.lock(ctx)()
	delete(r.s.reviews, reviewID)
	return nil
}

func (r reviewRepo) FindByID(ctx context.Context, reviewID string) (domain.Review, error) {
	defer r.s.lock(ctx)()
	review, ok := r.s.reviews[reviewID]
	if !ok {
		return domain.Review{}, notFound("reviews.get", reviewID)
	}
	return review, nil
}

func (r reviewRepo) FindByPurchase(ctx context.Context, productID, userID, orderID string) (domain.Review, error) {
	defer r.s.lock(ctx)()
	for _, review := range r.s.reviews {
		if review.ProductID == productID && review.UserID == userID && review.OrderID == orderID {
			return review, nil
		}
	}
	return domain.Review{}, notFound("reviews.findByPurchase", productID)
}

func (r reviewRepo) collect(ctx context.Context, keep func(domain.Review) bool) []domain.Review {
	defer r.s.lock(ctx)()
	var out []domain.Review
	for _, review := range r.s.reviews {
		if keep(review) {
			out = append(out, review)
		}
	}
	return out
}

func (r reviewRepo) ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error) {
	items := r.collect(ctx, func(rv domain.Review) bool { return rv.ProductID == productID })
	return page(items, pager, reviewKey)
}

func (r reviewRepo) ListByUser(ctx context.Context, userID string) ([]domain.Review, error) {
	items := r.collect(ctx, func(rv domain.Review) bool { return rv.UserID == userID })
	result, err := page(items, domain.Pagination{}, reviewKey)
	return result.Items, err
}

func (r reviewRepo) Ratings(ctx context.Context, productID string) ([]int, error) {
	items := r.collect(ctx, func(rv domain.Review) bool { return rv.ProductID == productID })
	ratings := make([]int, 0, len(items))
	for _, rv := range items {
		ratings = append(ratings, rv.Rating)
	}
	return ratings, nil
}

func (r reviewRepo) ReviewedProductIDs(ctx context.Context) ([]string, error) {
	items := r.collect(ctx, func(domain.Review) bool { return true })
	ids := make([]string, 0, len(items))
	for _, rv := range items {
		ids = append(ids, rv.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids), nil
}
