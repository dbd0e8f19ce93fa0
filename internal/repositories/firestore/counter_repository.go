package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository allocates sequence values with a read-increment-write transaction per call.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.BaseRepository[counterDocument]
	clock    func() time.Time
}

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection, nil),
		clock:    time.Now,
	}, nil
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// Next atomically adds step to the counter and returns the new value. Missing counters start at zero.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	id := strings.TrimSpace(counterID)
	if id == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, fmt.Sprintf("step must be positive, got %d", step), nil)
	}
	if _, inTx := pfirestore.TransactionFromContext(ctx); inTx {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter allocation cannot join an outer transaction", nil)
	}

	now := r.clock().UTC()
	var next int64
	err := r.provider.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		current := int64(0)
		doc, err := r.counters.Get(txCtx, id)
		switch {
		case err == nil:
			current = doc.Data.CurrentValue
		case pfirestore.IsNotFound(err):
		default:
			return err
		}
		if current < 0 {
			return repositories.NewCounterError(repositories.CounterErrorCorrupt, fmt.Sprintf("counter %s holds negative value %d", id, current), nil)
		}
		next = current + step
		return r.counters.Set(txCtx, id, counterDocument{CurrentValue: next, UpdatedAt: now})
	})
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) {
			counterErr.Op = "counters.next"
			return 0, counterErr
		}
		return 0, pfirestore.WrapError("counters.next", err)
	}
	return next, nil
}
