package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Hero-Alpha/KrishiSetu/internal/platform/config"
	"github.com/Hero-Alpha/KrishiSetu/internal/repositories"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Orders    services.OrderService
	Catalog   services.CatalogService
	Reviews   services.ReviewService
	Profiles  services.ProfileService
	Ratings   services.RatingService
	Analytics services.AnalyticsService
	Counters  services.CounterService
	System    services.SystemService
}

// Infrastructure carries the process-level collaborators that are built outside the registry.
// Every field is optional.
type Infrastructure struct {
	Events services.OrderEventPublisher
	Images services.ProductImageStore
	Health repositories.HealthRepository
	Build  services.BuildInfo
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Production wiring passes the Firestore
// registry; tests and the memory backend pass memory.NewStore().
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases the registry and its storage client.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	counterSvc, err := services.NewCounterService(services.CounterServiceDeps{Repository: reg.Counters()})
	if err != nil {
		return Services{}, fmt.Errorf("build counter service: %w", err)
	}
	svc.Counters = counterSvc

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:         reg.Orders(),
		Products:       reg.Products(),
		Counters:       counterSvc,
		UnitOfWork:     reg,
		DeliveryFee:    cfg.Marketplace.DeliveryFee,
		DeliveryWindow: cfg.Marketplace.DeliveryWindow,
		MaxOrderLines:  cfg.Marketplace.MaxOrderLines,
		Clock:          clock,
		Events:         infra.Events,
		Logger:         infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orderSvc

	catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products:      reg.Products(),
		UnitOfWork:    reg,
		Images:        infra.Images,
		UploadURLTTL:  cfg.Storage.UploadURLTTL,
		MaxImageBytes: cfg.Storage.MaxImageBytes,
		Clock:         clock,
		Logger:        infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalogSvc

	profileSvc, err := services.NewProfileService(services.ProfileServiceDeps{
		Users:         reg.Users(),
		UnitOfWork:    reg,
		Images:        infra.Images,
		UploadURLTTL:  cfg.Storage.UploadURLTTL,
		MaxImageBytes: cfg.Storage.MaxImageBytes,
		Clock:         clock,
		Logger:        infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build profile service: %w", err)
	}
	svc.Profiles = profileSvc

	ratingSvc, err := services.NewRatingService(services.RatingServiceDeps{
		Reviews:    reg.Reviews(),
		Products:   reg.Products(),
		UnitOfWork: reg,
		Clock:      clock,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build rating service: %w", err)
	}
	svc.Ratings = ratingSvc

	reviewSvc, err := services.NewReviewService(services.ReviewServiceDeps{
		Reviews:    reg.Reviews(),
		Orders:     reg.Orders(),
		UnitOfWork: reg,
		Ratings:    ratingSvc,
		Clock:      clock,
		Logger:     infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}
	svc.Reviews = reviewSvc

	analyticsSvc, err := services.NewAnalyticsService(services.AnalyticsServiceDeps{
		Orders:   reg.Orders(),
		Products: reg.Products(),
		Clock:    clock,
		Logger:   infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build analytics service: %w", err)
	}
	svc.Analytics = analyticsSvc

	if infra.Health != nil {
		build := infra.Build
		if build.Environment == "" {
			build.Environment = cfg.Environment
		}
		if build.StartedAt.IsZero() {
			build.StartedAt = clock().UTC()
		}
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: infra.Health,
			Clock:            clock,
			Build:            build,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	return svc, nil
}
