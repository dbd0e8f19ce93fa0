package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/pagination"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const (
	reviewIDPrefix         = "rev_"
	minReviewRating        = 1
	maxReviewRating        = 5
	maxReviewCommentLength = 500

	reviewLoggerEventRecomputeFailed = "review.rating.recompute.failed"
)

var (
	// ErrReviewInvalidInput indicates the payload failed validation.
	ErrReviewInvalidInput = errors.New("review: invalid input")
	// ErrReviewNotFound indicates the review could not be located.
	ErrReviewNotFound = errors.New("review: not found")
	// ErrReviewForbidden indicates the caller may not write this review.
	ErrReviewForbidden = errors.New("review: forbidden")
	// ErrReviewConflict indicates the purchase was already reviewed.
	ErrReviewConflict = errors.New("review: already reviewed")
	// ErrReviewUnavailable indicates the backing store is temporarily unreachable.
	ErrReviewUnavailable = errors.New("review: repository unavailable")
)

// ReviewServiceDeps wires dependencies for the review service.
type ReviewServiceDeps struct {
	Reviews     repositories.ReviewRepository
	Orders      repositories.OrderRepository
	UnitOfWork  repositories.UnitOfWork
	Ratings     RatingService
	Clock       func() time.Time
	IDGenerator func() string
	Sanitizer   func(string) string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reviewService struct {
	reviews    repositories.ReviewRepository
	orders     repositories.OrderRepository
	unitOfWork repositories.UnitOfWork
	ratings    RatingService
	clock      func() time.Time
	newID      func() string
	sanitize   func(string) string
	logger     func(context.Context, string, map[string]any)
}

// NewReviewService wires dependencies into a concrete ReviewService implementation.
func NewReviewService(deps ReviewServiceDeps) (ReviewService, error) {
	if deps.Reviews == nil {
		return nil, errors.New("review service: review repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("review service: order repository is required")
	}
	if deps.UnitOfWork == nil {
		return nil, errors.New("review service: unit of work is required")
	}
	if deps.Ratings == nil {
		return nil, errors.New("review service: rating service is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return reviewIDPrefix + ulid.Make().String() }
	}
	sanitize := deps.Sanitizer
	if sanitize == nil {
		sanitize = sanitizePlainText
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reviewService{
		reviews:    deps.Reviews,
		orders:     deps.Orders,
		unitOfWork: deps.UnitOfWork,
		ratings:    deps.Ratings,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

func (s *reviewService) CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error) {
	userID := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	orderID := strings.TrimSpace(cmd.OrderID)
	if userID == "" || productID == "" || orderID == "" {
		return Review{}, fmt.Errorf("%w: product id, order id and rating are required", ErrReviewInvalidInput)
	}
	if err := validateRating(cmd.Rating); err != nil {
		return Review{}, err
	}
	comment, err := s.cleanComment(cmd.Comment)
	if err != nil {
		return Review{}, err
	}

	now := s.clock()
	review := Review{
		ID:         s.newID(),
		ProductID:  productID,
		UserID:     userID,
		OrderID:    orderID,
		Rating:     cmd.Rating,
		Comment:    comment,
		IsVerified: true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			if isRepoNotFound(err) {
				return fmt.Errorf("%w: you can only review products you have purchased and received", ErrReviewForbidden)
			}
			return s.mapRepositoryError(err)
		}
		purchased := slices.ContainsFunc(order.Items, func(item OrderItem) bool { return item.ProductID == productID })
		if order.ConsumerID != userID || order.Status != domain.OrderStatusDelivered || !purchased {
			return fmt.Errorf("%w: you can only review products you have purchased and received", ErrReviewForbidden)
		}

		_, err = s.reviews.FindByPurchase(txCtx, productID, userID, orderID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: product %s on order %s", ErrReviewConflict, productID, orderID)
		case !isRepoNotFound(err):
			return s.mapRepositoryError(err)
		}
		return s.mapRepositoryError(s.reviews.Insert(txCtx, review))
	})
	if err != nil {
		return Review{}, err
	}

	s.recompute(ctx, productID)
	return review, nil
}

func (s *reviewService) UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error) {
	reviewID := strings.TrimSpace(cmd.ReviewID)
	if reviewID == "" {
		return Review{}, fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	if cmd.Rating != nil {
		if err := validateRating(*cmd.Rating); err != nil {
			return Review{}, err
		}
	}
	var comment *string
	if cmd.Comment != nil {
		cleaned, err := s.cleanComment(*cmd.Comment)
		if err != nil {
			return Review{}, err
		}
		comment = &cleaned
	}

	var review Review
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		review, err = s.ownedReview(txCtx, reviewID, cmd.UserID)
		if err != nil {
			return err
		}
		if cmd.Rating != nil {
			review.Rating = *cmd.Rating
		}
		if comment != nil {
			review.Comment = *comment
		}
		review.UpdatedAt = s.clock()
		return s.mapRepositoryError(s.reviews.Update(txCtx, review))
	})
	if err != nil {
		return Review{}, err
	}

	if cmd.Rating != nil {
		s.recompute(ctx, review.ProductID)
	}
	return review, nil
}

func (s *reviewService) DeleteReview(ctx context.Context, reviewID, userID string) error {
	reviewID = strings.TrimSpace(reviewID)
	if reviewID == "" {
		return fmt.Errorf("%w: review id is required", ErrReviewInvalidInput)
	}
	var productID string
	err := s.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		review, err := s.ownedReview(txCtx, reviewID, userID)
		if err != nil {
			return err
		}
		productID = review.ProductID
		return s.mapRepositoryError(s.reviews.Delete(txCtx, reviewID))
	})
	if err != nil {
		return err
	}
	s.recompute(ctx, productID)
	return nil
}

func (s *reviewService) ListProductReviews(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[Review], error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.CursorPage[Review]{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	page, err := s.reviews.ListByProduct(ctx, productID, pager)
	if err != nil {
		return domain.CursorPage[Review]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *reviewService) ListUserReviews(ctx context.Context, userID string) ([]Review, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrReviewInvalidInput)
	}
	reviews, err := s.reviews.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return reviews, nil
}

func (s *reviewService) RatingSummary(ctx context.Context, productID string) (RatingSummary, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return RatingSummary{}, fmt.Errorf("%w: product id is required", ErrReviewInvalidInput)
	}
	ratings, err := s.reviews.Ratings(ctx, productID)
	if err != nil {
		return RatingSummary{}, s.mapRepositoryError(err)
	}
	return summarizeRatings(ratings), nil
}

func (s *reviewService) ownedReview(ctx context.Context, reviewID, userID string) (Review, error) {
	review, err := s.reviews.FindByID(ctx, reviewID)
	if err != nil {
		return Review{}, s.mapRepositoryError(err)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" || review.UserID != userID {
		return Review{}, fmt.Errorf("%w: review %s belongs to another user", ErrReviewForbidden, reviewID)
	}
	return review, nil
}

func (s *reviewService) cleanComment(raw string) (string, error) {
	comment := s.sanitize(raw)
	if utf8.RuneCountInString(comment) > maxReviewCommentLength {
		return "", fmt.Errorf("%w: comment cannot exceed %d characters", ErrReviewInvalidInput, maxReviewCommentLength)
	}
	return comment, nil
}

// recompute refreshes the product rating after a review write. Failures are logged; the
// scheduled recompute job repairs any drift.
func (s *reviewService) recompute(ctx context.Context, productID string) {
	if _, err := s.ratings.RecomputeProductRating(ctx, productID); err != nil {
		s.logger(ctx, reviewLoggerEventRecomputeFailed, map[string]any{
			"productId": productID,
			"error":     err.Error(),
		})
	}
}

func (s *reviewService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pagination.ErrInvalidPageToken) {
		return fmt.Errorf("%w: %v", ErrReviewInvalidInput, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrReviewNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrReviewConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrReviewUnavailable, err)
		}
	}
	return err
}

func validateRating(rating int) error {
	if rating < minReviewRating || rating > maxReviewRating {
		return fmt.Errorf("%w: rating must be between %d and %d", ErrReviewInvalidInput, minReviewRating, maxReviewRating)
	}
	return nil
}
