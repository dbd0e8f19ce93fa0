package di

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/config"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories/memory"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

type staticHealth struct{}

func (staticHealth) Collect(context.Context) (domain.SystemHealthReport, error) {
	return domain.SystemHealthReport{Status: "ok"}, nil
}

var _ repositories.HealthRepository = staticHealth{}

func TestNewContainerRequiresRegistry(t *testing.T) {
	_, err := NewContainer(config.Config{}, nil, Infrastructure{})
	require.Error(t, err)
}

func TestNewContainerWiresMarketplace(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	require.NoError(t, store.Products().Insert(ctx, domain.Product{
		ID:           "prd_tomato",
		FarmerID:     "farmer-1",
		Name:         "Tomato",
		Category:     domain.CategoryVegetables,
		Unit:         domain.UnitKilogram,
		Price:        40,
		CurrentStock: 10,
		Status:       domain.ProductStatusActive,
		CreatedAt:    now.Add(-time.Hour),
	}))

	cfg := config.Config{Environment: "test"}
	cfg.Marketplace.DeliveryFee = 30
	container, err := NewContainer(cfg, store, Infrastructure{
		Health: staticHealth{},
		Clock:  func() time.Time { return now },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(ctx) })

	svc := container.Services
	require.NotNil(t, svc.Orders)
	require.NotNil(t, svc.Catalog)
	require.NotNil(t, svc.Reviews)
	require.NotNil(t, svc.Profiles)
	require.NotNil(t, svc.Ratings)
	require.NotNil(t, svc.Analytics)
	require.NotNil(t, svc.Counters)
	require.NotNil(t, svc.System)

	order, err := svc.Orders.CreateOrder(ctx, services.CreateOrderCommand{
		ConsumerID:      "consumer-1",
		Items:           []services.OrderLineInput{{ProductID: "prd_tomato", Quantity: 2}},
		PaymentMethod:   "cash",
		DeliveryAddress: services.DeliveryAddress{Street: "1 Market Rd", City: "Nashik", State: "MH", Pincode: "422001", Phone: "9000000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(80), order.TotalAmount)
	assert.Equal(t, int64(30), order.DeliveryFee)
	assert.Equal(t, int64(110), order.FinalAmount)

	product, err := store.Products().FindByID(ctx, "prd_tomato")
	require.NoError(t, err)
	assert.Equal(t, int64(8), product.CurrentStock)

	report, err := svc.System.HealthReport(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test", report.Environment)
}
