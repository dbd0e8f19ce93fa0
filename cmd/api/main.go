package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Hero-Alpha/KrishiSetu/internal/di"
	"github.com/Hero-Alpha/KrishiSetu/internal/handlers"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/auth"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/config"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/idempotency"
	"github.com/Hero-Alpha/KrishiSetu/internal/platform/observability"
	"github.com/Hero-Alpha/KrishiSetu/internal/services"
)

const serviceName = "krishisetu-api"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "krishisetu api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	lookup, err := config.Lookup()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	env := func(key string) string {
		value, _ := lookup(key)
		return strings.TrimSpace(value)
	}

	version := env("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	environment := strings.ToLower(env("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}

	logLevel := env("API_LOG_LEVEL")
	if logLevel == "" {
		logLevel = env("LOG_LEVEL")
	}
	baseLogger, err := observability.NewLogger(observability.LoggerOptions{
		Level:       logLevel,
		Service:     serviceName,
		Version:     version,
		Environment: environment,
	})
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher := newSecretFetcher(ctx, logger, env)
	defer func() {
		if fetcher == nil {
			return
		}
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	loadOpts := []config.Option{}
	if fetcher != nil {
		loadOpts = append(loadOpts, config.WithSecretResolver(fetcher))
	}
	cfg, err := config.Load(ctx, loadOpts...)
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Error("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		return fmt.Errorf("load configuration: %w", err)
	}

	registry, firestoreProvider, err := openRegistry(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s registry: %w", cfg.Database.Backend, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := registry.Close(closeCtx); err != nil {
			logger.Warn("registry close error", zap.Error(err))
		}
	}()

	publisher, err := newEventPublisher(ctx, cfg, logger.Named("events"))
	if err != nil {
		return fmt.Errorf("initialise %s order events: %w", cfg.Events.Backend, err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("order event publisher close error", zap.Error(err))
		}
	}()

	images, closeImages, err := newImageBucket(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise product image bucket: %w", err)
	}
	defer closeImages()
	if images == nil {
		logger.Info("product image uploads disabled; no bucket configured")
	}

	health, err := newHealthRepository(registry, fetcher)
	if err != nil {
		return fmt.Errorf("build health checks: %w", err)
	}
	buildInfo := services.BuildInfo{Version: version, Environment: cfg.Environment, StartedAt: startedAt}
	infra := di.Infrastructure{
		Events: publisher,
		Health: health,
		Build:  buildInfo,
		Clock:  time.Now,
		Logger: observability.EventLogger(logger.Named("services")),
	}
	if images != nil {
		infra.Images = images
	}
	container, err := di.NewContainer(cfg, registry, infra)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	svc := container.Services

	verifier, err := newTokenVerifier(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise %s token verifier: %w", cfg.Auth.Mode, err)
	}
	authenticator := auth.NewAuthenticator(verifier,
		auth.WithRoleClaim(cfg.Auth.RoleClaim),
		auth.WithAuthenticatedMiddleware(observability.AnnotateIdentity),
	)

	idempotencyStore, err := newIdempotencyStore(firestoreProvider)
	if err != nil {
		return fmt.Errorf("initialise idempotency store: %w", err)
	}
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	purgeCtx, stopPurger := context.WithCancel(context.Background())
	var purgeWG sync.WaitGroup
	purgeWG.Add(1)
	go func() {
		defer purgeWG.Done()
		idempotency.RunPurger(purgeCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, cfg.Idempotency.CleanupBatchSize, logger.Named("idempotency"))
	}()

	httpLogger := logger.Named("http")
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(httpLogger),
		observability.TraceMiddleware(traceProjectID(cfg)),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(httpLogger),
	}

	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, handlers.WithOrderIdempotency(idempotencyMiddleware))
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Catalog)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews,
		handlers.WithReviewRateLimit(cfg.Marketplace.ReviewRateLimit, cfg.Marketplace.ReviewRateWindow),
	)
	profileHandlers := handlers.NewProfileHandlers(authenticator, svc.Profiles)
	analyticsHandlers := handlers.NewAnalyticsHandlers(authenticator, svc.Analytics)
	jobHandlers := handlers.NewJobHandlers(svc.Ratings)
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithReviewRoutes(reviewHandlers.Routes),
		handlers.WithAnalyticsRoutes(analyticsHandlers.Routes),
		handlers.WithUserRoutes(profileHandlers.UserRoutes),
		handlers.WithProfileRoutes(profileHandlers.FarmerProfileRoutes),
		handlers.WithInternalRoutes(jobHandlers.Routes),
		handlers.WithInternalMiddlewares(buildOIDCMiddleware(logger.Named("auth"), cfg)),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("krishisetu api listening",
			zap.String("database", cfg.Database.Backend),
			zap.String("auth_mode", cfg.Auth.Mode),
			zap.String("events", cfg.Events.Backend),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-shutdown:
		logger.Info("shutdown signal received; draining requests")
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	stopPurger()
	purgeWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	return runErr
}
