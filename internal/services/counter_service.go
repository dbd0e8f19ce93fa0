package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
)

const (
	orderNumberCounter = "orders"
	orderNumberOffset  = 1000
)

// ErrCounterInvalidInput indicates the caller supplied invalid counter parameters.
var ErrCounterInvalidInput = errors.New("counter: invalid input")

// CounterServiceDeps bundles collaborators required to construct a counter service instance.
type CounterServiceDeps struct {
	Repository repositories.CounterRepository
}

type counterService struct {
	repo repositories.CounterRepository
}

// NewCounterService constructs a service that formats sequence values from the repository.
func NewCounterService(deps CounterServiceDeps) (CounterService, error) {
	if deps.Repository == nil {
		return nil, errors.New("counter service: repository is required")
	}
	return &counterService{repo: deps.Repository}, nil
}

// NextOrderNumber allocates ORD-<1000+N>. Values are unique but may skip numbers when the
// order that claimed one fails afterwards.
func (s *counterService) NextOrderNumber(ctx context.Context) (string, error) {
	seq, err := s.repo.Next(ctx, orderNumberCounter, 1)
	if err != nil {
		var counterErr *repositories.CounterError
		if errors.As(err, &counterErr) && counterErr.Code == repositories.CounterErrorInvalidInput {
			return "", fmt.Errorf("%w: %s", ErrCounterInvalidInput, counterErr.Message)
		}
		return "", err
	}
	return fmt.Sprintf("ORD-%d", orderNumberOffset+seq), nil
}
