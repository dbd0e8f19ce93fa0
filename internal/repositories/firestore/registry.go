package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

// Registry bundles the Firestore repositories around one shared provider.
type Registry struct {
	provider *pfirestore.Provider
	products *ProductRepository
	orders   *OrderRepository
	reviews  *ReviewRepository
	counters *CounterRepository
	users    *UserRepository
}

// NewRegistry wires every repository to provider. The registry owns the provider from here on
// and closes it in Close.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	products, err := NewProductRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	reviews, err := NewReviewRepository(provider)
	if err != nil {
		return nil, err
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, err
	}
	users, err := NewUserRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider: provider,
		products: products,
		orders:   orders,
		reviews:  reviews,
		counters: counters,
		users:    users,
	}, nil
}

var _ repositories.Registry = (*Registry)(nil)

func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Reviews() repositories.ReviewRepository   { return r.reviews }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }
func (r *Registry) Users() repositories.UserRepository       { return r.users }

// RunInTx runs fn inside a Firestore transaction shared by every repository of the registry.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.provider.RunInTx(ctx, fn)
}

// Ping checks connectivity for readiness checks.
func (r *Registry) Ping(ctx context.Context) error {
	return r.provider.Ping(ctx)
}

// Close releases the Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}
