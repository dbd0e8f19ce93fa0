// Package secrets resolves sm:// configuration references (normalised to secret://) against Google
// Secret Manager.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	referencePrefix = "secret://"
	latestVersion   = "latest"
	meterName       = "github.com/Hero-Alpha/KrishiSetu/internal/platform/secrets"
)

// ErrInvalidReference is returned for references that are not secret://NAME[#VERSION].
var ErrInvalidReference = errors.New("secrets: invalid reference")

type accessClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher reads secret versions once and caches them for the lifetime of the process. When Secret
// Manager is unreachable or denies access, values from a local fallback file are used instead.
type Fetcher struct {
	client    accessClient
	projectID string
	logger    *zap.Logger

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]string

	latency metric.Float64Histogram
}

type fetcherConfig struct {
	projectID    string
	logger       *zap.Logger
	fallbackPath string
	client       accessClient
	clientOpts   []option.ClientOption
	meter        metric.Meter
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithProject sets the project that owns the secrets.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithFallbackFile names a NAME=VALUE file consulted when Secret Manager fails.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithClientOptions passes options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// WithMeter overrides the meter used for fetch latency.
func WithMeter(meter metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = meter }
}

func withAccessClient(client accessClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// NewFetcher constructs a Fetcher. A client construction failure is tolerated when a fallback file
// is configured, so local runs work without credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), meter: otel.Meter(meterName)}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	f := &Fetcher{
		client:       cfg.client,
		projectID:    cfg.projectID,
		logger:       cfg.logger,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}

	if cfg.meter != nil {
		histogram, err := cfg.meter.Float64Histogram("secrets.fetch.latency",
			metric.WithUnit("ms"),
			metric.WithDescription("Latency of Secret Manager access calls"),
		)
		if err == nil {
			f.latency = histogram
		}
	}

	if f.client == nil {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		switch {
		case err == nil:
			f.client = client
		case f.fallbackPath != "":
			f.logger.Warn("secret manager unavailable; using fallback file only", zap.Error(err))
		default:
			return nil, fmt.Errorf("secrets: create client: %w", err)
		}
	}
	return f, nil
}

// Close releases the Secret Manager client.
func (f *Fetcher) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, version, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := name + "#" + version

	f.mu.Lock()
	value, ok := f.cache[key]
	f.mu.Unlock()
	if ok {
		return value, nil
	}

	value, err = f.access(ctx, name, version)
	if err != nil {
		fallback, found := f.lookupFallback(name)
		if !found || !fallbackEligible(err) {
			return "", err
		}
		f.logger.Warn("secret resolved from fallback file", zap.String("secret", name), zap.Error(err))
		value = fallback
	}

	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
	return value, nil
}

func (f *Fetcher) access(ctx context.Context, name, version string) (string, error) {
	if f.client == nil {
		return "", status.Error(codes.Unavailable, "secret manager client not configured")
	}
	if f.projectID == "" {
		return "", errors.New("secrets: project id is required")
	}

	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", f.projectID, name, version)
	start := time.Now()
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if f.latency != nil {
		f.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("secret", name), attribute.Bool("success", err == nil)))
	}
	if err != nil {
		return "", fmt.Errorf("secrets: access %s: %w", resource, err)
	}
	if resp.GetPayload() == nil || len(resp.GetPayload().GetData()) == 0 {
		return "", fmt.Errorf("secrets: %s has an empty payload", resource)
	}
	return strings.TrimSpace(string(resp.GetPayload().GetData())), nil
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.PermissionDenied, codes.Unauthenticated, codes.NotFound, codes.DeadlineExceeded:
		return true
	}
	return false
}

func (f *Fetcher) lookupFallback(name string) (string, bool) {
	if f.fallbackPath == "" {
		return "", false
	}
	f.fallbackOnce.Do(func() {
		values, err := readFallbackFile(f.fallbackPath)
		if err != nil {
			f.logger.Warn("secret fallback file unreadable", zap.String("path", f.fallbackPath), zap.Error(err))
		}
		f.fallback = values
	})
	value, ok := f.fallback[name]
	return value, ok
}

func readFallbackFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimPrefix(strings.TrimSpace(key), referencePrefix)
		values[key] = strings.TrimSpace(value)
	}
	return values, scanner.Err()
}

func parseReference(ref string) (name, version string, err error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(ref), referencePrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	name, version, _ = strings.Cut(rest, "#")
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" || strings.ContainsAny(name, "/ ") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidReference, ref)
	}
	if version == "" {
		version = latestVersion
	}
	return name, version, nil
}
