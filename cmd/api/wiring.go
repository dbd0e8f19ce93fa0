package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/config"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/events"
	pfirestore "github.com/Hero-Alpha/KrishiSetu/internal/platform/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/idempotency"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/secrets"
	pstorage "github.com/Hero-Alpha/KrishiSetu/internal/platform/storage"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
	firestoreRepo "github.com/Hero-Alpha/KrishiSetu/internal/repositories/firestore"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories/memory"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

const secretHealthReference = "secret://system-healthz"

// newSecretFetcher builds the Secret Manager fetcher from raw environment values, before the
// configuration that references secrets is loaded. A nil fetcher means sm:// references fail.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env func(string) string) *secrets.Fetcher {
	projectID := env("API_SECRETS_PROJECT_ID")
	if projectID == "" {
		projectID = env("API_FIRESTORE_PROJECT_ID")
	}
	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(projectID),
	}
	if path := env("API_SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if file := env("API_AUTH_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	fetcher, err := secrets.NewFetcher(ctx, opts...)
	if err != nil {
		logger.Warn("secret manager unavailable; secret references cannot be resolved", zap.Error(err))
		return nil
	}
	return fetcher
}

// openRegistry returns the repository registry for the configured backend. The Firestore provider
// is returned alongside so the idempotency store can share the client; it is nil for memory.
func openRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, *pfirestore.Provider, error) {
	switch cfg.Database.Backend {
	case "memory":
		return memory.NewStore(), nil, nil
	case "firestore":
		provider, err := pfirestore.Open(ctx, cfg.Firestore)
		if err != nil {
			return nil, nil, err
		}
		registry, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, err
		}
		return registry, provider, nil
	default:
		return nil, nil, fmt.Errorf("unknown database backend %q", cfg.Database.Backend)
	}
}

func newIdempotencyStore(provider *pfirestore.Provider) (idempotency.Store, error) {
	if provider == nil {
		return idempotency.NewMemoryStore(), nil
	}
	return idempotency.NewFirestoreStore(provider)
}

type orderEventPublisher interface {
	services.OrderEventPublisher
	Close() error
}

type pubsubClientPublisher struct {
	*events.PubSubPublisher
	client *pubsub.Client
}

func (p pubsubClientPublisher) Close() error {
	return errors.Join(p.PubSubPublisher.Close(), p.client.Close())
}

func newEventPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (orderEventPublisher, error) {
	switch cfg.Events.Backend {
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.Events.PubSub.ProjectID)
		if err != nil {
			return nil, err
		}
		publisher, err := events.NewPubSubPublisher(client.Topic(cfg.Events.PubSub.Topic))
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return pubsubClientPublisher{PubSubPublisher: publisher, client: client}, nil
	case "kafka":
		return events.NewKafkaPublisher(cfg.Events.Kafka, logger)
	default:
		return events.NewLogPublisher(logger), nil
	}
}

// newImageBucket returns nil when no product bucket is configured, which disables image uploads.
func newImageBucket(ctx context.Context, cfg config.Config) (*pstorage.Bucket, func(), error) {
	noop := func() {}
	bucketName := strings.TrimSpace(cfg.Storage.ProductBucket)
	if bucketName == "" {
		return nil, noop, nil
	}

	var signer pstorage.Signer
	switch {
	case strings.TrimSpace(cfg.Storage.SignerKeyFile) != "":
		keySigner, err := pstorage.NewKeySignerFromFile(cfg.Storage.SignerKeyFile)
		if err != nil {
			return nil, noop, err
		}
		signer = keySigner
	case strings.TrimSpace(cfg.Storage.SignerEmail) != "":
		iamSigner, err := pstorage.NewIAMSigner(ctx, cfg.Storage.SignerEmail)
		if err != nil {
			return nil, noop, err
		}
		signer = iamSigner
	default:
		return nil, noop, errors.New("storage signer key file or signer email is required")
	}

	signedURLs, err := pstorage.NewClient(signer)
	if err != nil {
		return nil, noop, err
	}
	gcsClient, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, noop, err
	}
	remover, err := pstorage.NewRemover(gcsClient)
	if err != nil {
		_ = gcsClient.Close()
		return nil, noop, err
	}
	bucket, err := pstorage.NewBucket(bucketName, signedURLs, remover)
	if err != nil {
		_ = gcsClient.Close()
		return nil, noop, err
	}
	return bucket, func() { _ = gcsClient.Close() }, nil
}

func newTokenVerifier(ctx context.Context, cfg config.Config) (auth.TokenVerifier, error) {
	switch cfg.Auth.Mode {
	case "firebase":
		return auth.NewFirebaseVerifier(ctx, cfg.Auth.Firebase)
	default:
		return auth.NewJWTVerifier(cfg.Auth.JWT)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func newHealthRepository(registry repositories.Registry, fetcher *secrets.Fetcher) (repositories.HealthRepository, error) {
	checks := make([]repositories.DependencyCheck, 0, 2)
	if db, ok := registry.(pinger); ok {
		checks = append(checks, repositories.DependencyCheck{
			Name:     "database",
			Critical: true,
			Timeout:  1500 * time.Millisecond,
			Check:    db.Ping,
		})
	}
	if fetcher != nil {
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.ResolveSecret(ctx, secretHealthReference)
				if err == nil || status.Code(err) == codes.NotFound {
					return nil
				}
				return err
			},
		})
	}
	if len(checks) == 0 {
		return nil, errors.New("health: no dependency checks configured")
	}
	return repositories.NewDependencyHealthRepository(checks)
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	oidc := cfg.Jobs.OIDC
	if strings.TrimSpace(oidc.Audience) == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	keys := auth.NewJWKSCache(oidc.JWKSURL, auth.WithJWKSLogger(logger))
	validator := auth.NewOIDCValidator(keys, auth.WithOIDCLogger(logger))
	return validator.RequireServiceToken(oidc.Audience, oidc.Issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firestore.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Auth.Firebase.ProjectID)
}
