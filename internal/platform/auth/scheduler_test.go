package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

const testAudience = "https://api.krishisetu.test/internal/jobs"

type keyServer struct {
	server   *httptest.Server
	key      *rsa.PrivateKey
	requests atomic.Int32
}

func newKeyServer(t *testing.T) *keyServer {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ks := &keyServer{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "key1", Algorithm: jwt.SigningMethodRS256.Alg(), Use: "sig"}
	ks.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ks.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(ks.server.Close)
	return ks
}

func (ks *keyServer) sign(t *testing.T, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	raw, err := token.SignedString(ks.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return raw
}

func TestJWKSCache_CachesKeys(t *testing.T) {
	ks := newKeyServer(t)
	now := time.Unix(1_000_000, 0)
	cache := NewJWKSCache(ks.server.URL, WithJWKSClock(func() time.Time { return now }), WithoutJWKSBackgroundRefresh())

	for i := 0; i < 3; i++ {
		if _, err := cache.Key(context.Background(), "key1"); err != nil {
			t.Fatalf("key lookup: %v", err)
		}
	}
	if got := ks.requests.Load(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}

	now = now.Add(2 * time.Hour)
	if _, err := cache.Key(context.Background(), "key1"); err != nil {
		t.Fatalf("key lookup after expiry: %v", err)
	}
	if got := ks.requests.Load(); got != 2 {
		t.Fatalf("expected refetch after expiry, got %d fetches", got)
	}
}

func TestJWKSCache_UnknownKid(t *testing.T) {
	ks := newKeyServer(t)
	cache := NewJWKSCache(ks.server.URL, WithoutJWKSBackgroundRefresh())
	if _, err := cache.Key(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown kid")
	}
}

func TestCacheValidity(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	header := http.Header{}
	header.Set("Cache-Control", "public, max-age=120")
	if got := cacheValidity(header, now, time.Minute); got != 2*time.Minute {
		t.Fatalf("expected 2m, got %s", got)
	}
	header.Set("Expires", now.Add(10*time.Minute).UTC().Format(http.TimeFormat))
	if got := cacheValidity(header, now, time.Minute); got != 10*time.Minute {
		t.Fatalf("expected Expires to win, got %s", got)
	}
	if got := cacheValidity(http.Header{}, now, time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestRequireServiceToken(t *testing.T) {
	ks := newKeyServer(t)
	now := time.Now()
	validator := NewOIDCValidator(NewJWKSCache(ks.server.URL, WithoutJWKSBackgroundRefresh()))
	middleware := validator.RequireServiceToken(testAudience, []string{"https://accounts.google.com"})

	var seen *ServiceIdentity
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ServiceIdentityFromContext(r.Context())
		w.WriteHeader(http.StatusAccepted)
	}))

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"iss":   "https://accounts.google.com",
			"aud":   testAudience,
			"sub":   "1234",
			"email": "scheduler@project.iam.gserviceaccount.com",
			"exp":   now.Add(time.Hour).Unix(),
		}
	}

	cases := []struct {
		name   string
		header func() string
		status int
	}{
		{name: "valid", header: func() string { return "Bearer " + ks.sign(t, "key1", base()) }, status: http.StatusAccepted},
		{name: "missing", header: func() string { return "" }, status: http.StatusUnauthorized},
		{name: "wrong audience", header: func() string {
			c := base()
			c["aud"] = "https://other"
			return "Bearer " + ks.sign(t, "key1", c)
		}, status: http.StatusUnauthorized},
		{name: "wrong issuer", header: func() string {
			c := base()
			c["iss"] = "https://evil.example.com"
			return "Bearer " + ks.sign(t, "key1", c)
		}, status: http.StatusUnauthorized},
		{name: "expired", header: func() string {
			c := base()
			c["exp"] = now.Add(-time.Hour).Unix()
			return "Bearer " + ks.sign(t, "key1", c)
		}, status: http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/internal/jobs/ratings:recompute", nil)
			if h := tc.header(); h != "" {
				req.Header.Set("Authorization", h)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			if tc.status == http.StatusAccepted && (seen == nil || seen.Email != "scheduler@project.iam.gserviceaccount.com") {
				t.Fatalf("expected service identity in context, got %+v", seen)
			}
		})
	}
}

func TestRequireServiceToken_Unconfigured(t *testing.T) {
	handler := NewOIDCValidator(nil).RequireServiceToken("", nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/jobs/ratings:recompute", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
