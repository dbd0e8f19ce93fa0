package memory

import (
	"context"
	"slices"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

type orderRepo struct{ s *Store }

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		o.DeliveredAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		o.CancelledAt = &t
	}
	return o
}

func (r orderRepo) Insert(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return invalid("orders.insert", "order id is required")
	}
	defer r.s.lock(ctx)()
	if _, exists := r.s.orders[order.ID]; exists {
		return conflict("orders.insert", order.ID)
	}
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) Update(ctx context.Context, order domain.Order) error {
	if order.ID == "" {
		return invalid("orders.update", "order id is required")
	}
	defer r.s.lock(ctx)()
	r.s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (r orderRepo) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	defer r.s.lock(ctx)()
	order, ok := r.s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return cloneOrder(order), nil
}

func (r orderRepo) List(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	unlock := r.s.lock(ctx)
	var items []domain.Order
	for _, o := range r.s.orders {
		if matchesOrder(o, filter) {
			items = append(items, cloneOrder(o))
		}
	}
	unlock()
	return page(items, filter.Pagination, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
}

func matchesOrder(o domain.Order, filter repositories.OrderListFilter) bool {
	if filter.ConsumerID != "" && o.ConsumerID != filter.ConsumerID {
		return false
	}
	if filter.FarmerID != "" && !o.HasFarmer(filter.FarmerID) {
		return false
	}
	if filter.ProductIDs != nil && !slices.ContainsFunc(o.Items, func(item domain.OrderItem) bool {
		return slices.Contains(filter.ProductIDs, item.ProductID)
	}) {
		return false
	}
	if filter.Created.From != nil && o.CreatedAt.Before(*filter.Created.From) {
		return false
	}
	if filter.Created.To != nil && o.CreatedAt.After(*filter.Created.To) {
		return false
	}
	return true
}
