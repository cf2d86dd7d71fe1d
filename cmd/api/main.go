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
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/courier"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/handlers"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/payments"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/config"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/events"
	pfirestore "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/firestore"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/observability"
	platformstorage "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/platform/storage"
	firestoreRepo "github.com/the-vibe-thread/public-project-ecomerce-backend/internal/repositories/firestore"
	"github.com/the-vibe-thread/public-project-ecomerce-backend/internal/services"
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

	cfg, err := config.Load()
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
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise order repository", zap.Error(err))
	}
	productRepo, err := firestoreRepo.NewProductRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise product repository", zap.Error(err))
	}
	userRepo, err := firestoreRepo.NewUserRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise user repository", zap.Error(err))
	}
	preorderRepo, err := firestoreRepo.NewPreorderRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise preorder repository", zap.Error(err))
	}
	discountRepo, err := firestoreRepo.NewDiscountRepository(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise discount repository", zap.Error(err))
	}
	unitOfWork, err := firestoreRepo.NewUnitOfWork(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise unit of work", zap.Error(err))
	}

	gateway, err := payments.NewRazorpayGateway(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	if err != nil {
		logger.Fatal("failed to initialise razorpay gateway", zap.Error(err))
	}

	shipClient, err := courier.NewShipCorrectClient(cfg.Courier)
	if err != nil {
		logger.Fatal("failed to initialise courier client", zap.Error(err))
	}

	publisher, pubsubClient, err := newNotificationPublisher(ctx, logger, cfg.PubSub)
	if err != nil {
		logger.Fatal("failed to initialise notification publisher", zap.Error(err))
	}
	if pubsubClient != nil {
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
	}

	var uploader handlers.ImageUploader
	if strings.TrimSpace(cfg.Storage.ReturnImagesBucket) != "" {
		storageClient, err := cloudstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("failed to initialise storage client", zap.Error(err))
		}
		defer func() {
			if err := storageClient.Close(); err != nil {
				logger.Warn("storage close error", zap.Error(err))
			}
		}()
		uploader, err = platformstorage.NewUploader(storageClient, cfg.Storage.ReturnImagesBucket)
		if err != nil {
			logger.Fatal("failed to initialise return image uploader", zap.Error(err))
		}
	} else {
		logger.Warn("return images bucket not configured; return image uploads disabled")
	}

	discountService, err := services.NewDiscountService(services.DiscountServiceDeps{
		Preorders: preorderRepo,
		Discounts: discountRepo,
		Clock:     time.Now,
	})
	if err != nil {
		logger.Fatal("failed to initialise discount service", zap.Error(err))
	}

	paymentSecret := cfg.Razorpay.KeySecret
	webhookSecret := cfg.Razorpay.WebhookSecret
	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:     orderRepo,
		Products:   productRepo,
		Users:      userRepo,
		Preorders:  preorderRepo,
		Discounts:  discountService,
		UnitOfWork: unitOfWork,
		Gateway:    gateway,
		Courier:    shipClient,
		Events:     publisher,
		VerifySignature: func(gatewayOrderID, gatewayPaymentID, signature string) bool {
			return payments.VerifyPaymentSignature(gatewayOrderID, gatewayPaymentID, signature, paymentSecret)
		},
		Clock:        time.Now,
		Logger:       serviceLogger(logger.Named("orders")),
		ShippingCost: cfg.Orders.ShippingCost,
		Currency:     cfg.Razorpay.Currency,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	paymentService, err := services.NewPaymentService(services.PaymentServiceDeps{
		Orders:     orderRepo,
		UnitOfWork: unitOfWork,
		Events:     publisher,
		VerifyWebhook: func(body []byte, signature string) bool {
			return payments.VerifyWebhookSignature(body, signature, webhookSecret)
		},
		Clock:  time.Now,
		Logger: serviceLogger(logger.Named("payments")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment service", zap.Error(err))
	}

	returnService, err := services.NewReturnService(services.ReturnServiceDeps{
		Orders:     orderRepo,
		Products:   productRepo,
		UnitOfWork: unitOfWork,
		Gateway:    gateway,
		Courier:    shipClient,
		Events:     publisher,
		Clock:      time.Now,
		Logger:     serviceLogger(logger.Named("returns")),
	})
	if err != nil {
		logger.Fatal("failed to initialise return service", zap.Error(err))
	}

	webhookHandlers := handlers.NewWebhookHandlers(paymentService)
	orderHandlers := handlers.NewOrderHandlers(orderService, webhookHandlers.HandlePaymentWebhook)
	returnHandlers := handlers.NewReturnHandlers(orderService, returnService, uploader)
	adminHandlers := handlers.NewAdminHandlers(orderService, returnService)

	healthHandlers := handlers.NewHealthHandlers().WithCheck("firestore", func(ctx context.Context) error {
		_, err := firestoreProvider.Client(ctx)
		return err
	})

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger.Named("http")),
			observability.RecoveryMiddleware(logger.Named("http")),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealth(healthHandlers),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithReturnRoutes(returnHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithRateLimits(cfg.RateLimits.DefaultPerMinute, cfg.RateLimits.WebhookPerMinute, time.Now),
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
		serverLogger.Info("order fulfillment api listening")
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

// newNotificationPublisher returns a Pub/Sub backed publisher when the topic is
// configured, and a no-op publisher otherwise.
func newNotificationPublisher(ctx context.Context, logger *zap.Logger, cfg config.PubSubConfig) (events.NotificationPublisher, *pubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	topicID := strings.TrimSpace(cfg.Topic)
	if projectID == "" || topicID == "" {
		logger.Warn("pubsub not configured; notification events disabled")
		return events.NoopPublisher{}, nil, nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	publisher, err := events.NewPubSubPublisher(client.Topic(topicID))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, client, nil
}

func serviceLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("service log", zFields...)
	}
}
