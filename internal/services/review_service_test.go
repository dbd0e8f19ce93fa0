package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories/memory"
)

type stubRatingService struct {
	recomputed []string
	err        error
}

func (s *stubRatingService) RecomputeProductRating(_ context.Context, productID string) (RatingSummary, error) {
	s.recomputed = append(s.recomputed, productID)
	return RatingSummary{}, s.err
}

func (s *stubRatingService) RecomputeAllRatings(context.Context) (int, error) {
	return len(s.recomputed), s.err
}

type reviewFixture struct {
	store   *memory.Store
	reviews ReviewService
	ratings RatingService
}

func newReviewFixture(t *testing.T) reviewFixture {
	t.Helper()
	store := memory.NewStore()
	ratings, err := NewRatingService(RatingServiceDeps{
		Reviews:    store.Reviews(),
		Products:   store.Products(),
		UnitOfWork: store,
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("rating service: %v", err)
	}
	reviews, err := NewReviewService(ReviewServiceDeps{
		Reviews:    store.Reviews(),
		Orders:     store.Orders(),
		UnitOfWork: store,
		Ratings:    ratings,
		Clock:      func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("review service: %v", err)
	}

	ctx := context.Background()
	for _, id := range []string{"mango", "banana"} {
		if err := store.Products().Insert(ctx, domain.Product{ID: id, FarmerID: "farmer-a", Name: id, Price: 10, Status: domain.ProductStatusActive, CreatedAt: testNow}); err != nil {
			t.Fatalf("seed product: %v", err)
		}
	}
	orders := []domain.Order{
		{ID: "ord_delivered", ConsumerID: "consumer-1", Status: domain.OrderStatusDelivered, Items: []domain.OrderItem{
			{ProductID: "mango", FarmerID: "farmer-a", Quantity: 1, Price: 10, Status: domain.OrderStatusDelivered},
			{ProductID: "banana", FarmerID: "farmer-a", Quantity: 1, Price: 10, Status: domain.OrderStatusDelivered},
		}, CreatedAt: testNow},
		{ID: "ord_delivered_2", ConsumerID: "consumer-2", Status: domain.OrderStatusDelivered, Items: []domain.OrderItem{
			{ProductID: "mango", FarmerID: "farmer-a", Quantity: 1, Price: 10, Status: domain.OrderStatusDelivered},
		}, CreatedAt: testNow},
		{ID: "ord_pending", ConsumerID: "consumer-1", Status: domain.OrderStatusPending, Items: []domain.OrderItem{
			{ProductID: "mango", FarmerID: "farmer-a", Quantity: 1, Price: 10, Status: domain.OrderStatusShipped},
		}, CreatedAt: testNow},
	}
	for _, order := range orders {
		if err := store.Orders().Insert(ctx, order); err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}
	return reviewFixture{store: store, reviews: reviews, ratings: ratings}
}

func TestCreateReviewUpdatesProductRating(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()

	review, err := f.reviews.CreateReview(ctx, CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", OrderID: "ord_delivered", Rating: 4, Comment: "<i>Very</i> sweet"})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if !review.IsVerified || review.Comment != "Very sweet" {
		t.Fatalf("expected verified sanitised review, got %+v", review)
	}
	if _, err := f.reviews.CreateReview(ctx, CreateReviewCommand{UserID: "consumer-2", ProductID: "mango", OrderID: "ord_delivered_2", Rating: 5}); err != nil {
		t.Fatalf("second review: %v", err)
	}

	product, err := f.store.Products().FindByID(ctx, "mango")
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.AverageRating != 4.5 || product.ReviewCount != 2 {
		t.Fatalf("expected rating 4.5 over 2 reviews, got %v over %d", product.AverageRating, product.ReviewCount)
	}

	summary, err := f.reviews.RatingSummary(ctx, "mango")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalReviews != 2 || summary.Distribution[4] != 1 || summary.Distribution[5] != 1 || summary.Distribution[1] != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(summary.Distribution) != 5 {
		t.Fatalf("expected all five stars in distribution, got %v", summary.Distribution)
	}
}

func TestCreateReviewRequiresDeliveredPurchase(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	cases := []struct {
		name string
		cmd  CreateReviewCommand
		want error
	}{
		{"pending order", CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", OrderID: "ord_pending", Rating: 3}, ErrReviewForbidden},
		{"someone else's order", CreateReviewCommand{UserID: "consumer-2", ProductID: "mango", OrderID: "ord_delivered", Rating: 3}, ErrReviewForbidden},
		{"product not on order", CreateReviewCommand{UserID: "consumer-2", ProductID: "banana", OrderID: "ord_delivered_2", Rating: 3}, ErrReviewForbidden},
		{"unknown order", CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", OrderID: "ord_missing", Rating: 3}, ErrReviewForbidden},
		{"rating too high", CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", OrderID: "ord_delivered", Rating: 6}, ErrReviewInvalidInput},
		{"missing order", CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", Rating: 3}, ErrReviewInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.reviews.CreateReview(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateReviewRejectsDuplicates(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	cmd := CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", OrderID: "ord_delivered", Rating: 5}
	if _, err := f.reviews.CreateReview(ctx, cmd); err != nil {
		t.Fatalf("first review: %v", err)
	}
	if _, err := f.reviews.CreateReview(ctx, cmd); !errors.Is(err, ErrReviewConflict) {
		t.Fatalf("expected ErrReviewConflict, got %v", err)
	}
	cmd.ProductID = "banana"
	if _, err := f.reviews.CreateReview(ctx, cmd); err != nil {
		t.Fatalf("expected another product on the same order to be reviewable, got %v", err)
	}
}

func TestUpdateAndDeleteReviewOwnership(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	review, err := f.reviews.CreateReview(ctx, CreateReviewCommand{UserID: "consumer-1", ProductID: "mango", OrderID: "ord_delivered", Rating: 2})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}

	if _, err := f.reviews.UpdateReview(ctx, UpdateReviewCommand{ReviewID: review.ID, UserID: "consumer-2", Rating: ptr(5)}); !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("expected ErrReviewForbidden, got %v", err)
	}
	updated, err := f.reviews.UpdateReview(ctx, UpdateReviewCommand{ReviewID: review.ID, UserID: "consumer-1", Rating: ptr(5)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Rating != 5 {
		t.Fatalf("expected rating 5, got %d", updated.Rating)
	}
	product, _ := f.store.Products().FindByID(ctx, "mango")
	if product.AverageRating != 5 {
		t.Fatalf("expected recomputed average 5, got %v", product.AverageRating)
	}

	if err := f.reviews.DeleteReview(ctx, review.ID, "consumer-2"); !errors.Is(err, ErrReviewForbidden) {
		t.Fatalf("expected ErrReviewForbidden, got %v", err)
	}
	if err := f.reviews.DeleteReview(ctx, review.ID, "consumer-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	product, _ = f.store.Products().FindByID(ctx, "mango")
	if product.AverageRating != 0 || product.ReviewCount != 0 {
		t.Fatalf("expected rating reset after delete, got %v/%d", product.AverageRating, product.ReviewCount)
	}
	if err := f.reviews.DeleteReview(ctx, review.ID, "consumer-1"); !errors.Is(err, ErrReviewNotFound) {
		t.Fatalf("expected ErrReviewNotFound, got %v", err)
	}
}

func TestReviewRecomputeFailureDoesNotFailWrite(t *testing.T) {
	store := memory.NewStore()
	ratings := &stubRatingService{err: errors.New("ratings offline")}
	var logged []string
	svc, err := NewReviewService(ReviewServiceDeps{
		Reviews:    store.Reviews(),
		Orders:     store.Orders(),
		UnitOfWork: store,
		Ratings:    ratings,
		Logger: func(_ context.Context, event string, _ map[string]any) {
			logged = append(logged, event)
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := store.Orders().Insert(context.Background(), domain.Order{
		ID: "ord_1", ConsumerID: "consumer-1", Status: domain.OrderStatusDelivered,
		Items: []domain.OrderItem{{ProductID: "p1", FarmerID: "f"}}, CreatedAt: testNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := svc.CreateReview(context.Background(), CreateReviewCommand{UserID: "consumer-1", ProductID: "p1", OrderID: "ord_1", Rating: 3}); err != nil {
		t.Fatalf("expected review to persist, got %v", err)
	}
	if len(ratings.recomputed) != 1 || ratings.recomputed[0] != "p1" {
		t.Fatalf("expected recompute for p1, got %v", ratings.recomputed)
	}
	if len(logged) != 1 || logged[0] != reviewLoggerEventRecomputeFailed {
		t.Fatalf("expected recompute failure log, got %v", logged)
	}
}

func TestRecomputeAllRatingsRepairsDrift(t *testing.T) {
	f := newReviewFixture(t)
	ctx := context.Background()
	for _, review := range []domain.Review{
		{ID: "r1", ProductID: "mango", UserID: "u1", OrderID: "o1", Rating: 5, CreatedAt: testNow},
		{ID: "r2", ProductID: "mango", UserID: "u2", OrderID: "o2", Rating: 4, CreatedAt: testNow},
		{ID: "r3", ProductID: "mango", UserID: "u3", OrderID: "o3", Rating: 4, CreatedAt: testNow},
		{ID: "r4", ProductID: "deleted-product", UserID: "u1", OrderID: "o4", Rating: 1, CreatedAt: testNow},
	} {
		if err := f.store.Reviews().Insert(ctx, review); err != nil {
			t.Fatalf("seed review: %v", err)
		}
	}

	processed, err := f.ratings.RecomputeAllRatings(ctx)
	if err != nil {
		t.Fatalf("recompute all: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected two reviewed products, got %d", processed)
	}
	product, _ := f.store.Products().FindByID(ctx, "mango")
	if product.AverageRating != 4.3 || product.ReviewCount != 3 {
		t.Fatalf("expected 4.3 over 3 reviews, got %v over %d", product.AverageRating, product.ReviewCount)
	}
}

func TestSummarizeRatingsRounding(t *testing.T) {
	summary := summarizeRatings([]int{5, 5, 4})
	if summary.AverageRating != 4.7 {
		t.Fatalf("expected 4.7, got %v", summary.AverageRating)
	}
	empty := summarizeRatings(nil)
	if empty.AverageRating != 0 || empty.TotalReviews != 0 || len(empty.Distribution) != 5 {
		t.Fatalf("unexpected empty summary %+v", empty)
	}
}
