package services

import (
	"context"
	"sync"
	"testing"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories/memory"
)

var testNow = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type marketplace struct {
	store    *memory.Store
	orders   OrderService
	events   *recordingPublisher
	clock    func() time.Time
	setClock func(time.Time)
}

func newMarketplace(t *testing.T) *marketplace {
	t.Helper()
	store := memory.NewStore()
	counters, err := NewCounterService(CounterServiceDeps{Repository: store.Counters()})
	if err != nil {
		t.Fatalf("counter service: %v", err)
	}

	var mu sync.Mutex
	now := testNow
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	events := &recordingPublisher{}
	orders, err := NewOrderService(OrderServiceDeps{
		Orders:     store.Orders(),
		Products:   store.Products(),
		Counters:   counters,
		UnitOfWork: store,
		Clock:      clock,
		Events:     events,
	})
	if err != nil {
		t.Fatalf("order service: %v", err)
	}
	return &marketplace{
		store:  store,
		orders: orders,
		events: events,
		clock:  clock,
		setClock: func(t time.Time) {
			mu.Lock()
			now = t
			mu.Unlock()
		},
	}
}

func (m *marketplace) seedProduct(t *testing.T, product domain.Product) domain.Product {
	t.Helper()
	if product.Status == "" {
		product.Status = domain.ProductStatusActive
	}
	if product.Unit == "" {
		product.Unit = domain.UnitKilogram
	}
	if product.Category == "" {
		product.Category = domain.CategoryVegetables
	}
	if product.Name == "" {
		product.Name = product.ID
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = testNow.Add(-72 * time.Hour)
	}
	if err := m.store.Products().Insert(context.Background(), product); err != nil {
		t.Fatalf("seed product %s: %v", product.ID, err)
	}
	return product
}

func (m *marketplace) stock(t *testing.T, productID string) (int64, domain.ProductStatus) {
	t.Helper()
	product, err := m.store.Products().FindByID(context.Background(), productID)
	if err != nil {
		t.Fatalf("find product %s: %v", productID, err)
	}
	return product.CurrentStock, product.Status
}

func (m *marketplace) place(t *testing.T, consumerID string, lines ...OrderLineInput) Order {
	t.Helper()
	order, err := m.orders.CreateOrder(context.Background(), CreateOrderCommand{
		ConsumerID:      consumerID,
		Items:           lines,
		PaymentMethod:   "upi",
		DeliveryAddress: DeliveryAddress{Street: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001", Phone: "9999999999"},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func line(productID string, qty int64) OrderLineInput {
	return OrderLineInput{ProductID: productID, Quantity: qty}
}

func ptr[T any](v T) *T { return &v }
