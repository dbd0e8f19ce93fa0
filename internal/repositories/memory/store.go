// Package memory provides a process-local implementation of the repository registry. It backs
// the memory database mode and the service test suites.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/pagination"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

// Store keeps every collection in maps guarded by one mutex. RunInTx holds the mutex for the
// whole callback and restores a snapshot when the callback fails.
type Store struct {
	mu       sync.Mutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	reviews  map[string]domain.Review
	counters map[string]int64
	users    map[string]domain.UserProfile
	closed   bool
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		reviews:  make(map[string]domain.Review),
		counters: make(map[string]int64),
		users:    make(map[string]domain.UserProfile),
	}
}

var _ repositories.Registry = (*Store)(nil)

type txKey struct{}

type txMarker struct{ store *Store }

func (s *Store) inTx(ctx context.Context) bool {
	m, ok := ctx.Value(txKey{}).(txMarker)
	return ok && m.store == s
}

// lock acquires the mutex unless ctx already runs inside one of this store's transactions.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RunInTx serialises fn against every other store access. Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products := maps.Clone(s.products)
	orders := maps.Clone(s.orders)
	reviews := maps.Clone(s.reviews)
	counters := maps.Clone(s.counters)
	users := maps.Clone(s.users)

	if err := fn(context.WithValue(ctx, txKey{}, txMarker{store: s})); err != nil {
		s.products, s.orders, s.reviews, s.counters, s.users = products, orders, reviews, counters, users
		return err
	}
	return nil
}

// Close marks the store closed. Data stays readable for tests inspecting final state.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Ping reports the store as healthy until it is closed.
func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return invalid("ping", "store closed")
	}
	return nil
}

func (s *Store) Products() repositories.ProductRepository { return productRepo{s} }
func (s *Store) Orders() repositories.OrderRepository     { return orderRepo{s} }
func (s *Store) Reviews() repositories.ReviewRepository   { return reviewRepo{s} }
func (s *Store) Counters() repositories.CounterRepository { return counterRepo{s} }
func (s *Store) Users() repositories.UserRepository       { return userRepo{s} }

type counterRepo struct{ s *Store }

func (r counterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "step must be positive", nil)
	}
	if r.s.inTx(ctx) {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter allocation cannot join an outer transaction", nil)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.counters[id] += step
	return r.s.counters[id], nil
}

// page sorts newest first, skips past the cursor and cuts a look-ahead page.
func page[T any](items []T, pager domain.Pagination, key func(T) (time.Time, string)) (domain.CursorPage[T], error) {
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	slices.SortFunc(items, func(a, b T) int {
		at, aid := key(a)
		bt, bid := key(b)
		if c := bt.Compare(at); c != 0 {
			return c
		}
		return strings.Compare(bid, aid)
	})
	items = slices.DeleteFunc(items, func(item T) bool {
		at, id := key(item)
		return !cursor.Follows(at, id)
	})
	if pager.PageSize <= 0 || len(items) <= pager.PageSize {
		return domain.CursorPage[T]{Items: items}, nil
	}
	items = items[:pager.PageSize]
	at, id := key(items[len(items)-1])
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: at, ID: id})
	if err != nil {
		return domain.CursorPage[T]{}, err
	}
	return domain.CursorPage[T]{Items: items, NextPageToken: token}, nil
}
