package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/coursekart/payments-api/internal/handlers"
	"github.com/coursekart/payments-api/internal/payments"
	"github.com/coursekart/payments-api/internal/platform/config"
	pfirestore "github.com/coursekart/payments-api/internal/platform/firestore"
	"github.com/coursekart/payments-api/internal/platform/jobs"
	"github.com/coursekart/payments-api/internal/platform/observability"
	"github.com/coursekart/payments-api/internal/platform/secrets"
	firestoreRepo "github.com/coursekart/payments-api/internal/repositories/firestore"
	"github.com/coursekart/payments-api/internal/services"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(defaultSecretProject()),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
	)
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}

	// Gateway credentials are optional; without them the confirm flow still
	// works for replay detection but intent creation is disabled.
	var gateway payments.Provider
	if strings.TrimSpace(cfg.Razorpay.KeyID) != "" && strings.TrimSpace(cfg.Razorpay.KeySecret) != "" {
		razorpayProvider, err := payments.NewRazorpayProvider(payments.RazorpayProviderConfig{
			KeyID:     cfg.Razorpay.KeyID,
			KeySecret: cfg.Razorpay.KeySecret,
			Logger:    observability.EventLogger(logger.Named("payments")),
			Clock:     time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise razorpay provider", zap.Error(err))
		}
		gateway = razorpayProvider
	} else {
		logger.Warn("razorpay credentials not configured; payment intents disabled")
	}

	var publisher services.ReconciledPublisher
	var pubsubClient *pubsub.Client
	if topicID := strings.TrimSpace(cfg.Jobs.ReconciledTopic); topicID != "" {
		pubsubClient, err = pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		reconciledPublisher, err := jobs.NewPubSubReconciledPublisher(pubsubClient.Topic(topicID))
		if err != nil {
			logger.Fatal("failed to initialise reconciled publisher", zap.Error(err))
		}
		publisher = reconciledPublisher
	}
	defer func() {
		if pubsubClient != nil {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}
	}()

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:          orderRepo,
		Gateway:         gateway,
		KeyID:           cfg.Razorpay.KeyID,
		SigningSecret:   cfg.Razorpay.KeySecret,
		DefaultCurrency: cfg.Payments.DefaultCurrency,
		Publisher:       publisher,
		Clock:           time.Now,
		Logger:          observability.EventLogger(logger.Named("orders")),
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}
	orderHandlers := handlers.NewOrderHandlers(orderService)

	projectID := cfg.Firestore.ProjectID
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(projectID),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(buildVersion()),
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_, err := firestoreProvider.Client(checkCtx)
			return err
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
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

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("payments api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func defaultSecretProject() string {
	if project := strings.TrimSpace(os.Getenv("API_FIRESTORE_PROJECT_ID")); project != "" {
		return project
	}
	return strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
}

func buildVersion() string {
	if version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION")); version != "" {
		return version
	}
	return "dev"
}
