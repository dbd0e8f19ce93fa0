package auth

import (
	"context"
	"strings"
)

// Marketplace roles carried in the bearer token role claim.
const (
	RoleConsumer = "consumer"
	RoleFarmer   = "farmer"
	RoleAdmin    = "admin"
)

// Identity captures the authenticated principal extracted from a verified bearer token.
type Identity struct {
	UID    string
	Email  string
	Name   string
	Roles  []string
	Locale string

	claims map[string]any
}

// Claim returns the raw claim value recorded on the verified token.
func (i *Identity) Claim(key string) (any, bool) {
	if i == nil || i.claims == nil {
		return nil, false
	}
	v, ok := i.claims[key]
	return v, ok
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity includes any of the provided roles.
func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// PrimaryRole returns the first role, used for log correlation.
func (i *Identity) PrimaryRole() string {
	if i == nil || len(i.Roles) == 0 {
		return ""
	}
	return i.Roles[0]
}

type contextKey string

const identityContextKey contextKey = "github.com/Hero-Alpha/KrishiSetu/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
