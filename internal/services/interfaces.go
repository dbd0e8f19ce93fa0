package services

import (
	"context"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	DeliveryAddress    = domain.DeliveryAddress
	Product            = domain.Product
	ProductImage       = domain.ProductImage
	Review             = domain.Review
	RatingSummary      = domain.RatingSummary
	AnalyticsReport    = domain.AnalyticsReport
	SystemHealthReport = domain.SystemHealthReport
	UserProfile        = domain.UserProfile
)

// OrderService runs the order lifecycle: creation with stock reservation, per-farmer item
// status transitions and consumer cancellation with stock restoration.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateItemStatus(ctx context.Context, cmd UpdateItemStatusCommand) (Order, error)
	GetOrder(ctx context.Context, orderID, actorID string) (Order, error)
	ListConsumerOrders(ctx context.Context, consumerID string, pager Pagination) (domain.CursorPage[Order], error)
	ListFarmerOrders(ctx context.Context, farmerID string, pager Pagination) (domain.CursorPage[Order], error)
}

// AnalyticsService derives farmer dashboards from the order ledger.
type AnalyticsService interface {
	ComputeFarmerAnalytics(ctx context.Context, farmerID string, period string) (AnalyticsReport, error)
}

// CatalogService manages farmer product listings.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)
	ListFarmerProducts(ctx context.Context, farmerID string) ([]Product, error)
	CreateProduct(ctx context.Context, cmd CreateProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, cmd UpdateProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID, farmerID string) error
	CreateImageUpload(ctx context.Context, cmd ImageUploadCommand) (ImageUpload, error)
	AttachImage(ctx context.Context, cmd AttachImageCommand) (Product, error)
}

// ReviewService manages consumer reviews of delivered products.
type ReviewService interface {
	CreateReview(ctx context.Context, cmd CreateReviewCommand) (Review, error)
	UpdateReview(ctx context.Context, cmd UpdateReviewCommand) (Review, error)
	DeleteReview(ctx context.Context, reviewID, userID string) error
	ListProductReviews(ctx context.Context, productID string, pager Pagination) (domain.CursorPage[Review], error)
	ListUserReviews(ctx context.Context, userID string) ([]Review, error)
	RatingSummary(ctx context.Context, productID string) (RatingSummary, error)
}

// ProfileService manages user profiles and the public farm pages built from them.
type ProfileService interface {
	GetProfile(ctx context.Context, caller ProfileIdentity) (UserProfile, error)
	UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error)
	GetFarmerProfile(ctx context.Context, caller ProfileIdentity) (UserProfile, error)
	UpdateFarmerProfile(ctx context.Context, cmd UpdateFarmerProfileCommand) (UserProfile, error)
	CreateFarmImageUpload(ctx context.Context, cmd FarmImageUploadCommand) (ImageUpload, error)
	PublicFarmerProfile(ctx context.Context, farmerID string) (UserProfile, error)
}

// RatingService keeps the denormalised rating fields on products in line with their reviews.
type RatingService interface {
	RecomputeProductRating(ctx context.Context, productID string) (RatingSummary, error)
	RecomputeAllRatings(ctx context.Context) (int, error)
}

// CounterService allocates human-readable sequence numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// SystemService exposes health information for liveness and readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderLineInput is one requested product line.
type OrderLineInput struct {
	ProductID string
	Quantity  int64
}

// CreateOrderCommand carries a consumer checkout request.
type CreateOrderCommand struct {
	ConsumerID      string
	Items           []OrderLineInput
	DeliveryAddress DeliveryAddress
	PaymentMethod   string
}

// CancelOrderCommand identifies the order a consumer wants to cancel.
type CancelOrderCommand struct {
	OrderID    string
	ConsumerID string
}

// UpdateItemStatusCommand moves every line owned by the farmer to Status.
type UpdateItemStatusCommand struct {
	OrderID  string
	FarmerID string
	Status   string
}

// ProductListFilter narrows public product browsing.
type ProductListFilter struct {
	Category   string
	FarmerID   string
	Search     string
	Pagination Pagination
}

// CreateProductCommand carries a new listing. Zero values receive catalog defaults.
type CreateProductCommand struct {
	FarmerID       string
	Name           string
	Description    string
	Category       string
	Price          int64
	Unit           string
	CurrentStock   int64
	MinStock       *int64
	HarvestDate    *time.Time
	FarmLocation   string
	DeliveryRadius *int
	Tags           []string
}

// UpdateProductCommand patches a listing; nil fields are left untouched.
type UpdateProductCommand struct {
	ProductID      string
	FarmerID       string
	Name           *string
	Description    *string
	Category       *string
	Price          *int64
	Unit           *string
	CurrentStock   *int64
	MinStock       *int64
	HarvestDate    *time.Time
	FarmLocation   *string
	DeliveryRadius *int
	Tags           *[]string
	Status         *string
}

// ImageUploadCommand requests a signed upload URL for a product photo.
type ImageUploadCommand struct {
	ProductID   string
	FarmerID    string
	FileName    string
	ContentType string
	SizeBytes   int64
}

// ImageUpload describes where and how the client uploads a product photo.
type ImageUpload struct {
	ObjectPath string
	UploadURL  string
	Method     string
	Headers    map[string]string
	ExpiresAt  time.Time
}

// AttachImageCommand records an uploaded object on the product.
type AttachImageCommand struct {
	ProductID  string
	FarmerID   string
	ObjectPath string
}

// CreateReviewCommand carries a new review.
type CreateReviewCommand struct {
	UserID    string
	ProductID string
	OrderID   string
	Rating    int
	Comment   string
}

// UpdateReviewCommand patches a review owned by UserID.
type UpdateReviewCommand struct {
	ReviewID string
	UserID   string
	Rating   *int
	Comment  *string
}

// ProfileIdentity carries the token claims used to seed and authorise profile access.
type ProfileIdentity struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

// UpdateProfileCommand holds the editable basic profile fields; nil leaves a field unchanged.
type UpdateProfileCommand struct {
	Caller   ProfileIdentity
	Name     *string
	FarmName *string
	Phone    *string
	Address  *domain.ProfileAddress
	Location *domain.FarmLocation
}

// UpdateFarmerProfileCommand holds the farm page fields a farmer may edit.
type UpdateFarmerProfileCommand struct {
	Caller          ProfileIdentity
	Name            *string
	FarmName        *string
	Phone           *string
	FarmDescription *string
	FarmSince       *int
	Location        *domain.FarmLocation
	BusinessHours   *domain.BusinessHours
	SocialMedia     map[string]string
	SocialMediaSet  bool
	DeliveryAreas   *[]string
	Certifications  *[]string
	FarmImageObject *string
}

type FarmImageUploadCommand struct {
	Caller      ProfileIdentity
	FileName    string
	ContentType string
	SizeBytes   int64
}
