package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const verificationMeterName = "github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"

// ServiceIdentity describes the Google service account that called an internal job endpoint.
type ServiceIdentity struct {
	Subject  string
	Email    string
	Issuer   string
	Audience string
	Claims   map[string]any
}

type serviceIdentityContextKey struct{}

// WithServiceIdentity attaches the verified service identity to the request context.
func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	if identity == nil {
		return ctx
	}
	return context.WithValue(ctx, serviceIdentityContextKey{}, identity)
}

// ServiceIdentityFromContext retrieves the identity stored by RequireServiceToken.
func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityContextKey{}).(*ServiceIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// OIDCValidator checks Google-signed OIDC tokens attached by Cloud Scheduler.
type OIDCValidator struct {
	keys     *JWKSCache
	logger   *zap.Logger
	now      func() time.Time
	outcomes metric.Int64Counter
}

// OIDCOption customises the validator.
type OIDCOption func(*OIDCValidator)

// WithOIDCLogger overrides the validator logger.
func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithOIDCClock injects a custom clock.
func WithOIDCClock(now func() time.Time) OIDCOption {
	return func(v *OIDCValidator) {
		if now != nil {
			v.now = now
		}
	}
}

// WithOIDCMeterProvider records verification outcomes on the given provider instead of the global one.
func WithOIDCMeterProvider(provider metric.MeterProvider) OIDCOption {
	return func(v *OIDCValidator) {
		if provider != nil {
			v.outcomes = newOutcomeCounter(provider)
		}
	}
}

// NewOIDCValidator constructs a validator backed by the key cache.
func NewOIDCValidator(keys *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{
		keys:     keys,
		logger:   zap.NewNop(),
		now:      time.Now,
		outcomes: newOutcomeCounter(otel.GetMeterProvider()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

func newOutcomeCounter(provider metric.MeterProvider) metric.Int64Counter {
	counter, err := provider.Meter(verificationMeterName).Int64Counter(
		"auth.oidc.verifications",
		metric.WithDescription("OIDC token verifications by outcome"),
	)
	if err != nil {
		return nil
	}
	return counter
}

// RequireServiceToken accepts requests carrying a valid RS256 token for audience from one of
// issuers. An empty issuer list accepts any issuer the key set can verify.
func (v *OIDCValidator) RequireServiceToken(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowedIssuers := make([]string, 0, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowedIssuers = append(allowedIssuers, issuer)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if v == nil || v.keys == nil || audience == "" {
				respondAuthError(ctx, w, http.StatusServiceUnavailable, "verification_unavailable", "service token verification not configured")
				return
			}

			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			if !ok {
				raw = strings.TrimSpace(r.Header.Get("X-Goog-Iap-Jwt-Assertion"))
			}
			if raw == "" {
				v.record(ctx, "token_missing")
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "service token missing")
				return
			}

			identity, reason, err := v.verify(ctx, raw, audience, allowedIssuers)
			if err != nil {
				v.record(ctx, reason)
				v.logger.Warn("service token rejected", zap.String("reason", reason), zap.Error(err))
				status := http.StatusUnauthorized
				if errors.Is(err, ErrJWKSFetchFailed) {
					status = http.StatusServiceUnavailable
				}
				respondAuthError(ctx, w, status, "invalid_token", "service token verification failed")
				return
			}

			v.record(ctx, "ok")
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(ctx context.Context, raw, audience string, issuers []string) (*ServiceIdentity, string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}), jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
		if errors.Is(err, ErrJWKSFetchFailed) {
			return nil, "jwks_unavailable", err
		}
		return nil, "token_invalid", err
	}
	if !claims.VerifyExpiresAt(v.now().Unix(), true) {
		return nil, "token_expired", ErrTokenExpired
	}

	issuer, _ := claims["iss"].(string)
	if len(issuers) > 0 && !slices.Contains(issuers, issuer) {
		return nil, "issuer_mismatch", errors.New("auth: unexpected issuer " + issuer)
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, "audience_mismatch", errors.New("auth: audience mismatch")
	}

	email, _ := claims["email"].(string)
	subject, _ := claims["sub"].(string)
	out := make(map[string]any, len(claims))
	for k, val := range claims {
		out[k] = val
	}
	return &ServiceIdentity{
		Subject:  subject,
		Email:    email,
		Issuer:   issuer,
		Audience: audience,
		Claims:   out,
	}, "", nil
}

func (v *OIDCValidator) record(ctx context.Context, outcome string) {
	if v.outcomes == nil {
		return
	}
	v.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
