package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

func TestRunInTxRestoresSnapshotOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Products().Insert(ctx, domain.Product{ID: "p1", CurrentStock: 4, Status: domain.ProductStatusActive}))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context) error {
		p, err := store.Products().FindByID(ctx, "p1")
		require.NoError(t, err)
		p.AdjustStock(-4)
		require.NoError(t, store.Products().Update(ctx, p))
		require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o1"}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := store.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), p.CurrentStock)
	assert.Equal(t, domain.ProductStatusActive, p.Status)

	_, err = store.Orders().FindByID(ctx, "o1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())
}

func TestRunInTxNestedJoinsOuter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(outer context.Context) error {
		return store.RunInTx(outer, func(inner context.Context) error {
			return store.Products().Insert(inner, domain.Product{ID: "p1"})
		})
	})
	require.NoError(t, err)
	_, err = store.Products().FindByID(ctx, "p1")
	require.NoError(t, err)
}

func TestInsertConflict(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o1"}))

	err := store.Orders().Insert(ctx, domain.Order{ID: "o1"})
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsConflict())
}

func TestCounterNextIsUniqueUnderConcurrency(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	const workers = 50
	seen := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.Counters().Next(ctx, "orders", 1)
			assert.NoError(t, err)
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	values := make(map[int64]bool)
	for v := range seen {
		assert.False(t, values[v], "duplicate counter value %d", v)
		values[v] = true
	}
	assert.Len(t, values, workers)
}

func TestCounterRejectsOuterTransaction(t *testing.T) {
	store := NewStore()
	err := store.RunInTx(context.Background(), func(ctx context.Context) error {
		_, err := store.Counters().Next(ctx, "orders", 1)
		return err
	})
	var counterErr *repositories.CounterError
	require.ErrorAs(t, err, &counterErr)
	assert.Equal(t, repositories.CounterErrorInvalidInput, counterErr.Code)
}

func TestOrderListFiltersAndPages(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		farmer := "f1"
		if i%2 == 1 {
			farmer = "f2"
		}
		require.NoError(t, store.Orders().Insert(ctx, domain.Order{
			ID:         fmt.Sprintf("o%d", i),
			ConsumerID: "c1",
			Items:      []domain.OrderItem{{ProductID: "p-" + farmer, FarmerID: farmer}},
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}))
	}

	first, err := store.Orders().List(ctx, repositories.OrderListFilter{FarmerID: "f1", Pagination: domain.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, "o4", first.Items[0].ID)
	assert.Equal(t, "o2", first.Items[1].ID)
	require.NotEmpty(t, first.NextPageToken)

	second, err := store.Orders().List(ctx, repositories.OrderListFilter{FarmerID: "f1", Pagination: domain.Pagination{PageSize: 2, PageToken: first.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "o0", second.Items[0].ID)
	assert.Empty(t, second.NextPageToken)

	from := base.Add(90 * time.Minute)
	byProduct, err := store.Orders().List(ctx, repositories.OrderListFilter{ProductIDs: []string{"p-f2"}, Created: domain.RangeQuery[time.Time]{From: &from}})
	require.NoError(t, err)
	require.Len(t, byProduct.Items, 1)
	assert.Equal(t, "o3", byProduct.Items[0].ID)

	none, err := store.Orders().List(ctx, repositories.OrderListFilter{ProductIDs: []string{}})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestReturnedOrdersAreCopies(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Orders().Insert(ctx, domain.Order{ID: "o1", Items: []domain.OrderItem{{ProductID: "p", Status: domain.OrderStatusPending}}}))

	got, err := store.Orders().FindByID(ctx, "o1")
	require.NoError(t, err)
	got.Items[0].Status = domain.OrderStatusCancelled

	again, err := store.Orders().FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, again.Items[0].Status)
}

func TestReviewedProductIDsDistinct(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	require.NoError(t, store.Reviews().Insert(ctx, domain.Review{ID: "r1", ProductID: "b", Rating: 4}))
	require.NoError(t, store.Reviews().Insert(ctx, domain.Review{ID: "r2", ProductID: "a", Rating: 5}))
	require.NoError(t, store.Reviews().Insert(ctx, domain.Review{ID: "r3", ProductID: "b", Rating: 2}))

	ids, err := store.Reviews().ReviewedProductIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ratings, err := store.Reviews().Ratings(ctx, "b")
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{4, 2}, ratings)
}

func TestUserProfilesAreCopiedAndRolledBack(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.Users().FindByID(ctx, "u1")
	var repoErr repositories.RepositoryError
	require.ErrorAs(t, err, &repoErr)
	assert.True(t, repoErr.IsNotFound())

	profile := domain.UserProfile{ID: "u1", Name: "Asha", Role: domain.UserRoleFarmer, DeliveryAreas: []string{"Pune"}}
	require.NoError(t, store.Users().Save(ctx, profile))
	profile.DeliveryAreas[0] = "Mumbai"

	got, err := store.Users().FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Pune"}, got.DeliveryAreas)

	boom := errors.New("boom")
	err = store.RunInTx(ctx, func(ctx context.Context) error {
		got.Name = "Changed"
		require.NoError(t, store.Users().Save(ctx, got))
		return boom
	})
	require.ErrorIs(t, err, boom)

	after, err := store.Users().FindByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", after.Name)
}
