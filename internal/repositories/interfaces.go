package repositories

import (
	"context"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Products() ProductRepository
	Orders() OrderRepository
	Reviews() ReviewRepository
	Counters() CounterRepository
	Users() UserRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in one transaction. Repositories called with the
// context handed to fn join the transaction; any error returned by fn rolls every write back.
// Implementations backed by Firestore require all reads to happen before the first write.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ProductRepository persists catalog listings.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	Delete(ctx context.Context, productID string) error
	// FindByID returns a RepositoryError with IsNotFound when the product is absent.
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	ListByFarmer(ctx context.Context, farmerID string) ([]domain.Product, error)
}

// ProductListFilter narrows product listings. Zero values disable a criterion.
type ProductListFilter struct {
	FarmerID   string
	Category   domain.ProductCategory
	Status     domain.ProductStatus
	Pagination domain.Pagination
}

// OrderRepository persists orders and their line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	// FindByID returns a RepositoryError with IsNotFound when the order is absent.
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// OrderListFilter narrows order listings. Results are ordered newest first. A zero page
// size returns every match in a single page.
type OrderListFilter struct {
	ConsumerID string
	FarmerID   string
	// ProductIDs matches orders referencing at least one of the products. A nil slice disables
	// the criterion; an empty non-nil slice matches nothing.
	ProductIDs []string
	Created    domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// ReviewRepository persists product reviews.
type ReviewRepository interface {
	Insert(ctx context.Context, review domain.Review) error
	Update(ctx context.Context, review domain.Review) error
	Delete(ctx context.Context, reviewID string) error
	FindByID(ctx context.Context, reviewID string) (domain.Review, error)
	// FindByPurchase locates the review a user left for a product on a specific order.
	FindByPurchase(ctx context.Context, productID, userID, orderID string) (domain.Review, error)
	ListByProduct(ctx context.Context, productID string, pager domain.Pagination) (domain.CursorPage[domain.Review], error)
	ListByUser(ctx context.Context, userID string) ([]domain.Review, error)
	Ratings(ctx context.Context, productID string) ([]int, error)
	ReviewedProductIDs(ctx context.Context) ([]string, error)
}

// UserRepository persists marketplace profiles keyed by the token subject.
type UserRepository interface {
	// FindByID returns a RepositoryError with IsNotFound when no profile exists yet.
	FindByID(ctx context.Context, userID string) (domain.UserProfile, error)
	// Save upserts the whole profile.
	Save(ctx context.Context, profile domain.UserProfile) error
}

// CounterRepository issues monotonically increasing sequence values. Next runs in its own
// transaction and must not be called from inside UnitOfWork.RunInTx.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository collects dependency status for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
