package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const ratingLoggerEventSkipped = "rating.recompute.skipped"

// RatingServiceDeps wires dependencies for the rating service.
type RatingServiceDeps struct {
	Reviews    repositories.ReviewRepository
	Products   repositories.ProductRepository
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type ratingService struct {
	reviews    repositories.ReviewRepository
	products   repositories.ProductRepository
	unitOfWork repositories.UnitOfWork
	clock      func() time.Time
	logger     func(context.Context, string, map[string]any)
}

// NewRatingService constructs the service owning the denormalised product rating fields.
func NewRatingService(deps RatingServiceDeps) (RatingService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("rating service: review repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("rating service: product repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("rating service: unit of work is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &ratingService{
		reviews:    deps.Reviews,
		products:   deps.Products,
		unitOfWork: deps.UnitOfWork,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// RecomputeProductRating rewrites averageRating and reviewCount from the product's reviews.
// A product deleted since it was reviewed is skipped.
func (s *ratingService) RecomputeProductRating(ctx context.Context, productID string) (RatingSummary, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return RatingSummary{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}

	var summary RatingSummary
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		ratings, err := s.reviews.Ratings(txCtx, productID)
		if err != nil {
			return err
		}
		summary = summarizeRatings(ratings)

		product, err := s.products.FindByID(txCtx, productID)
		if err != nil {
			if isRepoNotFound(err) {
				s.logger(ctx, ratingLoggerEventSkipped, map[string]any{"productId": productID})
				return nil
			}
			return err
		}
		if product.AverageRating == summary.AverageRating && product.ReviewCount == summary.TotalReviews {
			return nil
		}
		product.AverageRating = summary.AverageRating
		product.ReviewCount = summary.TotalReviews
		product.UpdatedAt = s.clock()
		return s.products.Update(txCtx, product)
	})
	if err != nil {
		return RatingSummary{}, fmt.Errorf("rating: recompute %s: %w", productID, err)
	}
	return summary, nil
}

// RecomputeAllRatings refreshes every reviewed product and returns how many were processed.
// It stops at the first failure.
func (s *ratingService) RecomputeAllRatings(ctx context.Context) (int, error) {
	productIDs, err := s.reviews.ReviewedProductIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("rating: list reviewed products: %w", err)
	}
	processed := 0
	for _, productID := range productIDs {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := s.RecomputeProductRating(ctx, productID); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// summarizeRatings averages ratings to one decimal and counts each star value.
func summarizeRatings(ratings []int) RatingSummary {
	summary := RatingSummary{
		TotalReviews: len(ratings),
		Distribution: make(map[int]int, maxReviewRating),
	}
	for star := minReviewRating; star <= maxReviewRating; star++ {
		summary.Distribution[star] = 0
	}
	if len(ratings) == 0 {
		return summary
	}
	total := 0
	for _, rating := range ratings {
		total += rating
		if rating >= minReviewRating && rating <= maxReviewRating {
			summary.Distribution[rating]++
		}
	}
	summary.AverageRating = math.Round(float64(total)/float64(len(ratings))*10) / 10
	return summary
}
