package memory

import (
	"context"
	"slices"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

type productRepo struct{ s *Store }

func cloneProduct(p domain.Product) domain.Product {
	p.Images = slices.Clone(p.Images)
	p.Tags = slices.Clone(p.Tags)
	return p
}

func (r productRepo) Insert(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return invalid("products.insert", "product id is required")
	}
	defer r.s.lock(ctx)()
	if _, exists := r.s.products[product.ID]; exists {
		return conflict("products.insert", product.ID)
	}
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r productRepo) Update(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return invalid("products.update", "product id is required")
	}
	defer r.s.lock(ctx)()
	r.s.products[product.ID] = cloneProduct(product)
	return nil
}

func (r productRepo) Delete(ctx context.Context, productID string) error {
	defer r.s.lock(ctx)()
	delete(r.s.products, productID)
	return nil
}

func (r productRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	defer r.s.lock(ctx)()
	product, ok := r.s.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", productID)
	}
	return cloneProduct(product), nil
}

func (r productRepo) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	unlock := r.s.lock(ctx)
	var items []domain.Product
	for _, p := range r.s.products {
		if filter.FarmerID != "" && p.FarmerID != filter.FarmerID {
			continue
		}
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		items = append(items, cloneProduct(p))
	}
	unlock()
	return page(items, filter.Pagination, func(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID })
}

func (r productRepo) ListByFarmer(ctx context.Context, farmerID string) ([]domain.Product, error) {
	result, err := r.List(ctx, repositories.ProductListFilter{FarmerID: farmerID})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}
