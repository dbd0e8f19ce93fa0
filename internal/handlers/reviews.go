package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/httpx"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

const maxReviewBodySize = 16 * 1024

// ReviewHandlers exposes endpoints for writing and reading product reviews.
type ReviewHandlers struct {
	authn   *auth.Authenticator
	reviews services.ReviewService
	limiter *userRateLimiter
}

// ReviewHandlersOption customises ReviewHandlers.
type ReviewHandlersOption func(*ReviewHandlers)

// WithReviewRateLimit caps review submissions per user within window.
func WithReviewRateLimit(limit int, window time.Duration) ReviewHandlersOption {
	return func(h *ReviewHandlers) {
		h.limiter = newUserRateLimiter(limit, window, nil)
	}
}

// NewReviewHandlers constructs a new ReviewHandlers instance.
func NewReviewHandlers(authn *auth.Authenticator, reviews services.ReviewService, opts ...ReviewHandlersOption) *ReviewHandlers {
	h := &ReviewHandlers{
		authn:   authn,
		reviews: reviews,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /reviews endpoints.
func (h *ReviewHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/product/{productID}", h.listProductReviews)
	r.Get("/product/{productID}/summary", h.ratingSummary)

	r.Group(func(authed chi.Router) {
		authed.Use(h.require())
		authed.Get("/my-reviews", h.listMyReviews)
		authed.With(h.limiter.middleware).Post("/", h.createReview)
		authed.Put("/{reviewID}", h.updateReview)
		authed.Delete("/{reviewID}", h.deleteReview)
	})
}

func (h *ReviewHandlers) require(roles ...string) func(http.Handler) http.Handler {
	if h.authn == nil {
		return passthrough
	}
	return h.authn.RequireAuth(roles...)
}

type createReviewRequest struct {
	ProductID string `json:"productId"`
	OrderID   string `json:"orderId"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment"`
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

func (h *ReviewHandlers) createReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req createReviewRequest
	if !decodeJSONBody(ctx, w, r, maxReviewBodySize, &req) {
		return
	}

	review, err := h.reviews.CreateReview(ctx, services.CreateReviewCommand{
		UserID:    strings.TrimSpace(identity.UID),
		ProductID: strings.TrimSpace(req.ProductID),
		OrderID:   strings.TrimSpace(req.OrderID),
		Rating:    req.Rating,
		Comment:   req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) updateReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	var req updateReviewRequest
	if !decodeJSONBody(ctx, w, r, maxReviewBodySize, &req) {
		return
	}

	review, err := h.reviews.UpdateReview(ctx, services.UpdateReviewCommand{
		ReviewID: strings.TrimSpace(chi.URLParam(r, "reviewID")),
		UserID:   strings.TrimSpace(identity.UID),
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeSuccess(w, http.StatusOK, reviewResponse{Review: buildReviewPayload(review)})
}

func (h *ReviewHandlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if err := h.reviews.DeleteReview(ctx, strings.TrimSpace(chi.URLParam(r, "reviewID")), strings.TrimSpace(identity.UID)); err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, successEnvelope{Status: statusSuccess, Message: "review deleted"})
}

func (h *ReviewHandlers) listProductReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	pager, ok := parsePagination(ctx, w, r)
	if !ok {
		return
	}
	page, err := h.reviews.ListProductReviews(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), pager)
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	reviews := buildReviewList(page.Items)
	writeList(w, len(reviews), reviewListResponse{Reviews: reviews}, page.NextPageToken)
}

func (h *ReviewHandlers) listMyReviews(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	items, err := h.reviews.ListUserReviews(ctx, strings.TrimSpace(identity.UID))
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	reviews := buildReviewList(items)
	writeList(w, len(reviews), reviewListResponse{Reviews: reviews}, "")
}

func (h *ReviewHandlers) ratingSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(ctx, w) {
		return
	}
	summary, err := h.reviews.RatingSummary(ctx, strings.TrimSpace(chi.URLParam(r, "productID")))
	if err != nil {
		writeReviewError(ctx, w, err)
		return
	}
	distribution := make(map[string]int, len(summary.Distribution))
	for star, count := range summary.Distribution {
		distribution[strconv.Itoa(star)] = count
	}
	writeSuccess(w, http.StatusOK, ratingSummaryResponse{Summary: ratingSummaryPayload{
		AverageRating: summary.AverageRating,
		TotalReviews:  summary.TotalReviews,
		Distribution:  distribution,
	}})
}

func (h *ReviewHandlers) available(ctx context.Context, w http.ResponseWriter) bool {
	if h.reviews == nil {
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

type reviewResponse struct {
	Review reviewPayload `json:"review"`
}

type reviewListResponse struct {
	Reviews []reviewPayload `json:"reviews"`
}

type ratingSummaryResponse struct {
	Summary ratingSummaryPayload `json:"summary"`
}

type ratingSummaryPayload struct {
	AverageRating float64        `json:"averageRating"`
	TotalReviews  int            `json:"totalReviews"`
	Distribution  map[string]int `json:"distribution"`
}

type reviewPayload struct {
	ID         string `json:"id"`
	ProductID  string `json:"productId"`
	UserID     string `json:"userId"`
	OrderID    string `json:"orderId"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment"`
	IsVerified bool   `json:"isVerified"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt,omitempty"`
}

func buildReviewList(items []services.Review) []reviewPayload {
	reviews := make([]reviewPayload, 0, len(items))
	for _, review := range items {
		reviews = append(reviews, buildReviewPayload(review))
	}
	return reviews
}

func buildReviewPayload(review services.Review) reviewPayload {
	return reviewPayload{
		ID:         review.ID,
		ProductID:  review.ProductID,
		UserID:     review.UserID,
		OrderID:    review.OrderID,
		Rating:     review.Rating,
		Comment:    review.Comment,
		IsVerified: review.IsVerified,
		CreatedAt:  formatTime(review.CreatedAt),
		UpdatedAt:  formatTime(review.UpdatedAt),
	}
}

func writeReviewError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrReviewInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", trimSentinel(err, services.ErrReviewInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrReviewForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", trimSentinel(err, services.ErrReviewForbidden), http.StatusForbidden))
	case errors.Is(err, services.ErrReviewConflict):
		httpx.WriteError(ctx, w, httpx.NewError("review_conflict", "you have already reviewed this product for this order", http.StatusConflict))
	case errors.Is(err, services.ErrReviewNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("review_not_found", "review not found", http.StatusNotFound))
	case errors.Is(err, services.ErrReviewUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("review_service_unavailable", "review repository unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("review_error", "failed to process review request", http.StatusInternalServerError))
	}
}
