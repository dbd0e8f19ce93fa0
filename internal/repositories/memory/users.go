package memory

import (
	"context"

	domain "github.com/Hero-Alpha/KrishiSetu/internal/domain"
)

type userRepo struct{ s *Store }

func (r userRepo) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	defer r.s.lock(ctx)()
	profile, ok := r.s.users[userID]
	if !ok {
		return domain.UserProfile{}, notFound("users.get", userID)
	}
	return profile.Clone(), nil
}

func (r userRepo) Save(ctx context.Context, profile domain.UserProfile) error {
	if profile.ID == "" {
		return invalid("users.save", "user id is required")
	}
	defer r.s.lock(ctx)()
	r.s.users[profile.ID] = profile.Clone()
	return nil
}
