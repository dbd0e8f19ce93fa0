package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultEnvironment         = "local"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 20 * time.Second
	defaultRequestTimeout      = 60 * time.Second
	defaultDatabaseBackend     = "firestore"
	defaultAuthMode            = "jwt"
	defaultRoleClaim           = "role"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
	defaultEventsBackend       = "log"
	defaultKafkaTopic          = "marketplace.orders"
	defaultKafkaClientID       = "krishisetu-api"
	defaultUploadURLTTL        = 15 * time.Minute
	defaultMaxImageBytes       = 5 << 20
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultIdempotencyBatch    = 200
	defaultDeliveryFee         = 25
	defaultDeliveryWindow      = 24 * time.Hour
	defaultMaxOrderLines       = 50
	defaultReviewRateLimit     = 10
	defaultReviewRateWindow    = time.Hour
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Firestore   FirestoreConfig
	Auth        AuthConfig
	Jobs        JobsConfig
	Storage     StorageConfig
	Events      EventsConfig
	Idempotency IdempotencyConfig
	Marketplace MarketplaceConfig
	Secrets     SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects the storage backend: firestore in deployed environments, memory for
// local runs and demos.
type DatabaseConfig struct {
	Backend string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig controls how consumer and farmer bearer tokens are verified.
type AuthConfig struct {
	Mode      string
	RoleClaim string
	JWT       JWTConfig
	Firebase  FirebaseConfig
}

// JWTConfig configures HS256 tokens issued by the account service.
type JWTConfig struct {
	Secret string
	Issuer string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// JobsConfig secures the internal endpoints called by Cloud Scheduler.
type JobsConfig struct {
	OIDC OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// StorageConfig configures product image uploads.
type StorageConfig struct {
	ProductBucket string
	SignerKeyFile string
	SignerEmail   string
	UploadURLTTL  time.Duration
	MaxImageBytes int64
}

// EventsConfig selects where order events are published.
type EventsConfig struct {
	Backend string
	PubSub  PubSubConfig
	Kafka   KafkaConfig
}

// PubSubConfig names the Pub/Sub topic for order events.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// KafkaConfig lists brokers and the topic for order events.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// MarketplaceConfig holds business constants.
type MarketplaceConfig struct {
	DeliveryFee    int64
	DeliveryWindow time.Duration
	MaxOrderLines  int
	// ReviewRateLimit caps review submissions per user within ReviewRateWindow. Zero disables it.
	ReviewRateLimit  int
	ReviewRateWindow time.Duration
}

// SecretsConfig configures Secret Manager lookups for sm:// references.
type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// Lookup returns a key lookup applying the same precedence as Load (explicit map, then process
// environment, then .env). It lets main bootstrap the secret fetcher before calling Load.
func Lookup(opts ...Option) (func(string) (string, bool), error) {
	options := newLoaderOptions(opts)
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

// Load assembles the application configuration from defaults, the .env file, the process
// environment and an explicit map, then resolves sm:// secret references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	lookup, err := Lookup(opts...)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  durationWithDefault(lookup, "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Database: DatabaseConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_DATABASE_BACKEND", defaultDatabaseBackend)),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			Mode:      strings.ToLower(stringWithDefault(lookup, "API_AUTH_MODE", defaultAuthMode)),
			RoleClaim: stringWithDefault(lookup, "API_AUTH_ROLE_CLAIM", defaultRoleClaim),
			JWT: JWTConfig{
				Secret: stringWithDefault(lookup, "API_AUTH_JWT_SECRET", ""),
				Issuer: stringWithDefault(lookup, "API_AUTH_JWT_ISSUER", ""),
			},
			Firebase: FirebaseConfig{
				ProjectID:       stringWithDefault(lookup, "API_AUTH_FIREBASE_PROJECT_ID", ""),
				CredentialsFile: stringWithDefault(lookup, "API_AUTH_FIREBASE_CREDENTIALS_FILE", ""),
			},
		},
		Jobs: JobsConfig{
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(lookup, "API_AUTH_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(lookup, "API_AUTH_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(lookup, "API_AUTH_OIDC_ISSUERS"),
			},
		},
		Storage: StorageConfig{
			ProductBucket: stringWithDefault(lookup, "API_STORAGE_PRODUCT_BUCKET", ""),
			SignerKeyFile: stringWithDefault(lookup, "API_STORAGE_SIGNER_KEY_FILE", ""),
			SignerEmail:   stringWithDefault(lookup, "API_STORAGE_SIGNER_EMAIL", ""),
			UploadURLTTL:  durationWithDefault(lookup, "API_STORAGE_UPLOAD_URL_TTL", defaultUploadURLTTL),
			MaxImageBytes: int64(intWithDefault(lookup, "API_STORAGE_MAX_IMAGE_BYTES", defaultMaxImageBytes)),
		},
		Events: EventsConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "API_EVENTS_BACKEND", defaultEventsBackend)),
			PubSub: PubSubConfig{
				ProjectID: stringWithDefault(lookup, "API_EVENTS_PUBSUB_PROJECT_ID", ""),
				Topic:     stringWithDefault(lookup, "API_EVENTS_PUBSUB_TOPIC", ""),
			},
			Kafka: KafkaConfig{
				Brokers:  csvWithDefault(lookup, "API_EVENTS_KAFKA_BROKERS"),
				Topic:    stringWithDefault(lookup, "API_EVENTS_KAFKA_TOPIC", defaultKafkaTopic),
				ClientID: stringWithDefault(lookup, "API_EVENTS_KAFKA_CLIENT_ID", defaultKafkaClientID),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(lookup, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
		Marketplace: MarketplaceConfig{
			DeliveryFee:      int64(intWithDefault(lookup, "API_MARKETPLACE_DELIVERY_FEE", defaultDeliveryFee)),
			DeliveryWindow:   durationWithDefault(lookup, "API_MARKETPLACE_DELIVERY_WINDOW", defaultDeliveryWindow),
			MaxOrderLines:    intWithDefault(lookup, "API_MARKETPLACE_MAX_ORDER_LINES", defaultMaxOrderLines),
			ReviewRateLimit:  intWithDefault(lookup, "API_MARKETPLACE_REVIEW_RATE_LIMIT", defaultReviewRateLimit),
			ReviewRateWindow: durationWithDefault(lookup, "API_MARKETPLACE_REVIEW_RATE_WINDOW", defaultReviewRateWindow),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "API_SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "API_SECRETS_FALLBACK_FILE", ""),
		},
	}

	if cfg.Events.PubSub.ProjectID == "" {
		cfg.Events.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Jobs.OIDC.Issuers) == 0 {
		cfg.Jobs.OIDC.Issuers = []string{defaultOIDCIssuer}
	}

	if secret, err := resolveSecret(ctx, cfg.Auth.JWT.Secret, options.secret); err != nil {
		return Config{}, err
	} else {
		cfg.Auth.JWT.Secret = secret
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}

	switch cfg.Database.Backend {
	case "firestore":
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case "memory":
	default:
		invalid = append(invalid, "Database.Backend")
	}

	switch cfg.Auth.Mode {
	case "jwt":
		if len(cfg.Auth.JWT.Secret) < 16 {
			invalid = append(invalid, "Auth.JWT.Secret")
		}
	case "firebase":
		if cfg.Auth.Firebase.ProjectID == "" {
			invalid = append(invalid, "Auth.Firebase.ProjectID")
		}
	default:
		invalid = append(invalid, "Auth.Mode")
	}

	switch cfg.Events.Backend {
	case "pubsub":
		if cfg.Events.PubSub.Topic == "" {
			invalid = append(invalid, "Events.PubSub.Topic")
		}
		if cfg.Events.PubSub.ProjectID == "" {
			invalid = append(invalid, "Events.PubSub.ProjectID")
		}
	case "kafka":
		if len(cfg.Events.Kafka.Brokers) == 0 {
			invalid = append(invalid, "Events.Kafka.Brokers")
		}
		if cfg.Events.Kafka.Topic == "" {
			invalid = append(invalid, "Events.Kafka.Topic")
		}
	case "log":
	default:
		invalid = append(invalid, "Events.Backend")
	}

	if cfg.Storage.MaxImageBytes <= 0 {
		invalid = append(invalid, "Storage.MaxImageBytes")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid = append(invalid, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid = append(invalid, "Idempotency.CleanupBatchSize")
	}
	if cfg.Marketplace.DeliveryFee < 0 {
		invalid = append(invalid, "Marketplace.DeliveryFee")
	}
	if cfg.Marketplace.DeliveryWindow <= 0 {
		invalid = append(invalid, "Marketplace.DeliveryWindow")
	}
	if cfg.Marketplace.MaxOrderLines <= 0 {
		invalid = append(invalid, "Marketplace.MaxOrderLines")
	}
	if cfg.Marketplace.ReviewRateLimit < 0 {
		invalid = append(invalid, "Marketplace.ReviewRateLimit")
	}
	if cfg.Marketplace.ReviewRateLimit > 0 && cfg.Marketplace.ReviewRateWindow <= 0 {
		invalid = append(invalid, "Marketplace.ReviewRateWindow")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
