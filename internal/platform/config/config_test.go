package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIRESTORE_PROJECT_ID": "krishisetu-dev",
		"API_AUTH_JWT_SECRET":      "0123456789abcdef0123",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
	if cfg.Database.Backend != "firestore" {
		t.Errorf("expected firestore backend, got %s", cfg.Database.Backend)
	}
	if cfg.Auth.Mode != "jwt" {
		t.Errorf("expected jwt auth mode, got %s", cfg.Auth.Mode)
	}
	if cfg.Events.Backend != "log" {
		t.Errorf("expected log events backend, got %s", cfg.Events.Backend)
	}
	if cfg.Events.PubSub.ProjectID != "krishisetu-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.Events.PubSub.ProjectID)
	}
	if cfg.Jobs.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url, got %s", cfg.Jobs.OIDC.JWKSURL)
	}
	if !slices.Equal(cfg.Jobs.OIDC.Issuers, []string{defaultOIDCIssuer}) {
		t.Errorf("expected default issuers, got %v", cfg.Jobs.OIDC.Issuers)
	}
	if cfg.Marketplace.DeliveryFee != 25 {
		t.Errorf("expected delivery fee 25, got %d", cfg.Marketplace.DeliveryFee)
	}
	if cfg.Marketplace.DeliveryWindow != 24*time.Hour {
		t.Errorf("expected 24h delivery window, got %s", cfg.Marketplace.DeliveryWindow)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency ttl: %s", cfg.Idempotency.TTL)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":              "9090",
		"API_SERVER_READ_TIMEOUT":      "20s",
		"API_FIRESTORE_PROJECT_ID":     "krishisetu-prod",
		"API_AUTH_JWT_SECRET":          "sm://jwt-signing-key",
		"API_AUTH_JWT_ISSUER":          "krishisetu-accounts",
		"API_EVENTS_BACKEND":           "kafka",
		"API_EVENTS_KAFKA_BROKERS":     "kafka-1:9092, kafka-2:9092",
		"API_EVENTS_KAFKA_TOPIC":       "orders",
		"API_MARKETPLACE_DELIVERY_FEE": "40",
		"API_IDEMPOTENCY_TTL":          "1h",
	}

	var resolved []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		resolved = append(resolved, ref)
		return "resolved-secret-value-32-bytes!!", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port override, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("expected read timeout override, got %s", cfg.Server.ReadTimeout)
	}
	if cfg.Auth.JWT.Secret != "resolved-secret-value-32-bytes!!" {
		t.Errorf("expected resolved jwt secret, got %q", cfg.Auth.JWT.Secret)
	}
	if !slices.Equal(resolved, []string{"secret://jwt-signing-key"}) {
		t.Errorf("expected normalized secret reference, got %v", resolved)
	}
	if !slices.Equal(cfg.Events.Kafka.Brokers, []string{"kafka-1:9092", "kafka-2:9092"}) {
		t.Errorf("unexpected brokers: %v", cfg.Events.Kafka.Brokers)
	}
	if cfg.Events.Kafka.Topic != "orders" {
		t.Errorf("expected kafka topic override, got %s", cfg.Events.Kafka.Topic)
	}
	if cfg.Marketplace.DeliveryFee != 40 {
		t.Errorf("expected delivery fee 40, got %d", cfg.Marketplace.DeliveryFee)
	}
	if cfg.Idempotency.TTL != time.Hour {
		t.Errorf("expected idempotency ttl 1h, got %s", cfg.Idempotency.TTL)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := baseEnv()
	env["API_AUTH_JWT_SECRET"] = "sm://jwt-signing-key"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected missing resolver cause, got %v", err)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	env := map[string]string{
		"API_EVENTS_BACKEND":           "pubsub",
		"API_AUTH_MODE":                "firebase",
		"API_MARKETPLACE_DELIVERY_FEE": "-1",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validationErr.Fields()
	for _, want := range []string{"Firestore.ProjectID", "Auth.Firebase.ProjectID", "Events.PubSub.Topic", "Marketplace.DeliveryFee"} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in invalid fields %v", want, fields)
		}
	}
}

func TestLoadMemoryBackendSkipsFirestoreProject(t *testing.T) {
	env := map[string]string{
		"API_DATABASE_BACKEND": "memory",
		"API_AUTH_JWT_SECRET":  "0123456789abcdef0123",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Backend != "memory" {
		t.Fatalf("expected memory backend, got %s", cfg.Database.Backend)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport API_FIRESTORE_PROJECT_ID=dotenv-project\nAPI_AUTH_JWT_SECRET=\"dotenv-secret-0123456789\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	env := map[string]string{"API_SERVER_PORT": "7070"}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(path))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firestore.ProjectID != "dotenv-project" {
		t.Errorf("expected project from .env, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Auth.JWT.Secret != "dotenv-secret-0123456789" {
		t.Errorf("expected quoted secret to be unwrapped, got %q", cfg.Auth.JWT.Secret)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected explicit map to win, got %s", cfg.Server.Port)
	}
}

func TestLoadReviewRateLimit(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Marketplace.ReviewRateLimit != 10 || cfg.Marketplace.ReviewRateWindow != time.Hour {
		t.Fatalf("unexpected review rate defaults: %d per %s", cfg.Marketplace.ReviewRateLimit, cfg.Marketplace.ReviewRateWindow)
	}

	env := baseEnv()
	env["API_MARKETPLACE_REVIEW_RATE_LIMIT"] = "0"
	cfg, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Marketplace.ReviewRateLimit != 0 {
		t.Fatalf("expected rate limit disabled, got %d", cfg.Marketplace.ReviewRateLimit)
	}

	env["API_MARKETPLACE_REVIEW_RATE_LIMIT"] = "-3"
	_, err = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) || !slices.Contains(validationErr.Fields(), "Marketplace.ReviewRateLimit") {
		t.Fatalf("expected review rate limit validation error, got %v", err)
	}
}
