package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

var errNotStubbed = errors.New("not stubbed")

func withIdentity(req *http.Request, uid string, roles ...string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: roles}))
}

// tokenAuthenticator accepts bearer tokens of the form "<uid>:<role>".
func tokenAuthenticator() *auth.Authenticator {
	return auth.NewAuthenticator(auth.TokenVerifierFunc(func(_ context.Context, raw string) (*auth.VerifiedToken, error) {
		uid, role, ok := strings.Cut(raw, ":")
		if !ok || uid == "" {
			return nil, auth.ErrTokenInvalid
		}
		return &auth.VerifiedToken{Subject: uid, Claims: map[string]any{"role": role}}, nil
	}))
}

type stubOrderService struct {
	createFn       func(context.Context, services.CreateOrderCommand) (services.Order, error)
	cancelFn       func(context.Context, services.CancelOrderCommand) (services.Order, error)
	updateFn       func(context.Context, services.UpdateItemStatusCommand) (services.Order, error)
	getFn          func(context.Context, string, string) (services.Order, error)
	listConsumerFn func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
	listFarmerFn   func(context.Context, string, services.Pagination) (domain.CursorPage[services.Order], error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) UpdateItemStatus(ctx context.Context, cmd services.UpdateItemStatusCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID, actorID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actorID)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) ListConsumerOrders(ctx context.Context, consumerID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	if s.listConsumerFn != nil {
		return s.listConsumerFn(ctx, consumerID, pager)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) ListFarmerOrders(ctx context.Context, farmerID string, pager services.Pagination) (domain.CursorPage[services.Order], error) {
	if s.listFarmerFn != nil {
		return s.listFarmerFn(ctx, farmerID, pager)
	}
	return domain.CursorPage[services.Order]{}, nil
}

type stubCatalogService struct {
	listFn       func(context.Context, services.ProductListFilter) (domain.CursorPage[services.Product], error)
	getFn        func(context.Context, string) (services.Product, error)
	listFarmerFn func(context.Context, string) ([]services.Product, error)
	createFn     func(context.Context, services.CreateProductCommand) (services.Product, error)
	updateFn     func(context.Context, services.UpdateProductCommand) (services.Product, error)
	deleteFn     func(context.Context, string, string) error
	uploadFn     func(context.Context, services.ImageUploadCommand) (services.ImageUpload, error)
	attachFn     func(context.Context, services.AttachImageCommand) (services.Product, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) (domain.CursorPage[services.Product], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.Product]{}, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (services.Product, error) {
	if s.getFn != nil {
		return s.getFn(ctx, productID)
	}
	return services.Product{}, errNotStubbed
}

func (s *stubCatalogService) ListFarmerProducts(ctx context.Context, farmerID string) ([]services.Product, error) {
	if s.listFarmerFn != nil {
		return s.listFarmerFn(ctx, farmerID)
	}
	return nil, nil
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.CreateProductCommand) (services.Product, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Product{}, errNotStubbed
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, cmd services.UpdateProductCommand) (services.Product, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Product{}, errNotStubbed
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID, farmerID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, productID, farmerID)
	}
	return errNotStubbed
}

func (s *stubCatalogService) CreateImageUpload(ctx context.Context, cmd services.ImageUploadCommand) (services.ImageUpload, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.ImageUpload{}, errNotStubbed
}

func (s *stubCatalogService) AttachImage(ctx context.Context, cmd services.AttachImageCommand) (services.Product, error) {
	if s.attachFn != nil {
		return s.attachFn(ctx, cmd)
	}
	return services.Product{}, errNotStubbed
}

type stubReviewService struct {
	createFn  func(context.Context, services.CreateReviewCommand) (services.Review, error)
	updateFn  func(context.Context, services.UpdateReviewCommand) (services.Review, error)
	deleteFn  func(context.Context, string, string) error
	listFn    func(context.Context, string, services.Pagination) (domain.CursorPage[services.Review], error)
	listMyFn  func(context.Context, string) ([]services.Review, error)
	summaryFn func(context.Context, string) (services.RatingSummary, error)
}

func (s *stubReviewService) CreateReview(ctx context.Context, cmd services.CreateReviewCommand) (services.Review, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Review{}, errNotStubbed
}

func (s *stubReviewService) UpdateReview(ctx context.Context, cmd services.UpdateReviewCommand) (services.Review, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Review{}, errNotStubbed
}

func (s *stubReviewService) DeleteReview(ctx context.Context, reviewID, userID string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, reviewID, userID)
	}
	return errNotStubbed
}

func (s *stubReviewService) ListProductReviews(ctx context.Context, productID string, pager services.Pagination) (domain.CursorPage[services.Review], error) {
	if s.listFn != nil {
		return s.listFn(ctx, productID, pager)
	}
	return domain.CursorPage[services.Review]{}, nil
}

func (s *stubReviewService) ListUserReviews(ctx context.Context, userID string) ([]services.Review, error) {
	if s.listMyFn != nil {
		return s.listMyFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubReviewService) RatingSummary(ctx context.Context, productID string) (services.RatingSummary, error) {
	if s.summaryFn != nil {
		return s.summaryFn(ctx, productID)
	}
	return services.RatingSummary{}, errNotStubbed
}

type stubAnalyticsService struct {
	report services.AnalyticsReport
	err    error

	farmerID string
	period   string
}

func (s *stubAnalyticsService) ComputeFarmerAnalytics(_ context.Context, farmerID, period string) (services.AnalyticsReport, error) {
	s.farmerID, s.period = farmerID, period
	return s.report, s.err
}

type stubRatingService struct {
	processed int
	err       error
	calls     int
}

func (s *stubRatingService) RecomputeProductRating(context.Context, string) (services.RatingSummary, error) {
	return services.RatingSummary{}, errNotStubbed
}

func (s *stubRatingService) RecomputeAllRatings(context.Context) (int, error) {
	s.calls++
	return s.processed, s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

type stubProfileService struct {
	getFn          func(context.Context, services.ProfileIdentity) (services.UserProfile, error)
	updateFn       func(context.Context, services.UpdateProfileCommand) (services.UserProfile, error)
	getFarmerFn    func(context.Context, services.ProfileIdentity) (services.UserProfile, error)
	updateFarmerFn func(context.Context, services.UpdateFarmerProfileCommand) (services.UserProfile, error)
	uploadFn       func(context.Context, services.FarmImageUploadCommand) (services.ImageUpload, error)
	publicFn       func(context.Context, string) (services.UserProfile, error)
}

func (s *stubProfileService) GetProfile(ctx context.Context, caller services.ProfileIdentity) (services.UserProfile, error) {
	if s.getFn != nil {
		return s.getFn(ctx, caller)
	}
	return services.UserProfile{}, errNotStubbed
}

func (s *stubProfileService) UpdateProfile(ctx context.Context, cmd services.UpdateProfileCommand) (services.UserProfile, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.UserProfile{}, errNotStubbed
}

func (s *stubProfileService) GetFarmerProfile(ctx context.Context, caller services.ProfileIdentity) (services.UserProfile, error) {
	if s.getFarmerFn != nil {
		return s.getFarmerFn(ctx, caller)
	}
	return services.UserProfile{}, errNotStubbed
}

func (s *stubProfileService) UpdateFarmerProfile(ctx context.Context, cmd services.UpdateFarmerProfileCommand) (services.UserProfile, error) {
	if s.updateFarmerFn != nil {
		return s.updateFarmerFn(ctx, cmd)
	}
	return services.UserProfile{}, errNotStubbed
}

func (s *stubProfileService) CreateFarmImageUpload(ctx context.Context, cmd services.FarmImageUploadCommand) (services.ImageUpload, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.ImageUpload{}, errNotStubbed
}

func (s *stubProfileService) PublicFarmerProfile(ctx context.Context, farmerID string) (services.UserProfile, error) {
	if s.publicFn != nil {
		return s.publicFn(ctx, farmerID)
	}
	return services.UserProfile{}, errNotStubbed
}
