package firestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/config"
)

const (
	defaultDialTimeout = 10 * time.Second
	envEmulatorHost    = "FIRESTORE_EMULATOR_HOST"
	envGoogleProjectID = "GOOGLE_CLOUD_PROJECT"
)

// ErrProviderClosed is returned once Close has been called.
var ErrProviderClosed = errors.New("firestore: provider is closed")

// Provider owns the process-wide Firestore client. It is opened once at start-up, injected
// into every repository and closed after the HTTP server has drained.
type Provider struct {
	client *firestore.Client

	mu     sync.RWMutex
	closed bool
}

// ProviderOption customises how the client is opened.
type ProviderOption func(*openConfig)

type openConfig struct {
	dialTimeout time.Duration
	clientOpts  []option.ClientOption
}

// WithDialTimeout overrides the timeout used when creating the client.
func WithDialTimeout(timeout time.Duration) ProviderOption {
	return func(c *openConfig) {
		if timeout > 0 {
			c.dialTimeout = timeout
		}
	}
}

// WithClientOptions appends client options applied when opening.
func WithClientOptions(opts ...option.ClientOption) ProviderOption {
	return func(c *openConfig) {
		c.clientOpts = append(c.clientOpts, opts...)
	}
}

// Open dials Firestore using cfg. An emulator host in cfg or FIRESTORE_EMULATOR_HOST disables
// authentication and TLS.
func Open(ctx context.Context, cfg config.FirestoreConfig, opts ...ProviderOption) (*Provider, error) {
	oc := openConfig{dialTimeout: defaultDialTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(&oc)
		}
	}

	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(os.Getenv(envGoogleProjectID))
	}
	if projectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	clientOpts := append([]option.ClientOption(nil), oc.clientOpts...)
	if host := emulatorHost(cfg); host != "" {
		if os.Getenv(envEmulatorHost) == "" {
			_ = os.Setenv(envEmulatorHost, host)
		}
		clientOpts = append(clientOpts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	dialCtx, cancel := context.WithTimeout(ctx, oc.dialTimeout)
	defer cancel()

	client, err := firestore.NewClient(dialCtx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("firestore: create client: %w", err)
	}
	return &Provider{client: client}, nil
}

// NewProviderFromClient wraps an existing client, mainly for integration tests.
func NewProviderFromClient(client *firestore.Client) *Provider {
	return &Provider{client: client}
}

// Client returns the shared client.
func (p *Provider) Client(context.Context) (*firestore.Client, error) {
	if p == nil {
		return nil, errors.New("firestore: provider is nil")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed || p.client == nil {
		return nil, ErrProviderClosed
	}
	return p.client, nil
}

// Close releases the client. Calls after the first are no-ops.
func (p *Provider) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.mu.Unlock()

	if client == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- client.Close() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// Ping performs a cheap read used by readiness checks.
func (p *Provider) Ping(ctx context.Context) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection("_health").Doc("ping").Get(ctx)
	if err != nil && !IsNotFound(err) {
		return WrapError("firestore.ping", err)
	}
	return nil
}

// RunTransaction executes fn inside a Firestore transaction using the provider's client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	return RunTransaction(ctx, client, fn, opts...)
}

// RunInTx implements repositories.UnitOfWork. Nested calls join the outer transaction. Errors
// produced by fn are returned unchanged so callers keep their sentinel values.
func (p *Provider) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TransactionFromContext(ctx); ok {
		return fn(ctx)
	}
	var fnErr error
	err := p.RunTransaction(ctx, func(txCtx context.Context, _ *firestore.Transaction) error {
		fnErr = fn(txCtx)
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	return err
}

func emulatorHost(cfg config.FirestoreConfig) string {
	if trimmed := strings.TrimSpace(cfg.EmulatorHost); trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(os.Getenv(envEmulatorHost))
}
