package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/httpx"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/requestctx"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

// JobHandlers exposes scheduler-triggered maintenance endpoints under /internal.
type JobHandlers struct {
	ratings services.RatingService
}

// NewJobHandlers constructs a new JobHandlers instance.
func NewJobHandlers(ratings services.RatingService) *JobHandlers {
	return &JobHandlers{ratings: ratings}
}

// Routes registers the /internal/jobs endpoints. Service token checks are applied by the router.
func (h *JobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/ratings:recompute", h.recomputeRatings)
}

type recomputeResponse struct {
	Processed int `json:"processed"`
}

func (h *JobHandlers) recomputeRatings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.ratings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("rating_service_unavailable", "rating service unavailable", http.StatusServiceUnavailable))
		return
	}

	processed, err := h.ratings.RecomputeAllRatings(ctx)
	logger := requestctx.Logger(ctx)
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok {
		logger = logger.With(zap.String("caller", svc.Email))
	}
	if err != nil {
		logger.Error("rating recompute job failed", zap.Int("processed", processed), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("rating_recompute_failed", "rating recompute failed", http.StatusInternalServerError))
		return
	}
	logger.Info("rating recompute job finished", zap.Int("processed", processed))
	writeJSONResponse(w, http.StatusAccepted, recomputeResponse{Processed: processed})
}
