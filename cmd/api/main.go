package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"kitchenchat/internal/adapter/api"
	"kitchenchat/internal/adapter/api/handler"
	apimiddleware "kitchenchat/internal/adapter/api/middleware"
	"kitchenchat/internal/adapter/api/router"
	"kitchenchat/internal/adapter/repository"
	domainrepo "kitchenchat/internal/domain/repository"
	"kitchenchat/internal/domain/service"
	"kitchenchat/internal/infrastructure/docstore"
	"kitchenchat/internal/infrastructure/firebase"
	"kitchenchat/internal/infrastructure/metrics"
	"kitchenchat/internal/infrastructure/notification"
	"kitchenchat/internal/infrastructure/ratelimit"
	"kitchenchat/internal/infrastructure/storage"
	"kitchenchat/internal/infrastructure/websocket"
	"kitchenchat/internal/usecase"
	"kitchenchat/pkg/config"
	"kitchenchat/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	logger.Init(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opt, err := credentials(cfg)
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opt)
	if err != nil {
		logger.Error("Failed to initialize Firebase: %v", err)
		os.Exit(1)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		logger.Error("Failed to initialize Firebase Auth: %v", err)
		os.Exit(1)
	}

	var store domainrepo.DocumentStore
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("Using in-memory document store, data is lost on restart")
		store = docstore.NewMemoryStore(nil)
	default:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opt)
		if err != nil {
			logger.Error("Failed to create Firestore client: %v", err)
			os.Exit(1)
		}
		defer firestoreClient.Close()
		store = docstore.NewFirestoreStore(firestoreClient)
	}

	var uploader service.FileUploadService
	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opt)
		if err != nil {
			logger.Error("Failed to initialize Cloud Storage: %v", err)
			os.Exit(1)
		}
		defer storageClient.Close()
		uploader = storageClient
	} else {
		logger.Warn("STORAGE_BUCKET not set, file uploads disabled")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	conversationRepo := repository.NewConversationRepository(store)
	messageRepo := repository.NewMessageRepository(store)

	dispatcher := notification.NewHTTPDispatcher(cfg.NotifyChefURL, cfg.NotifyManagerURL, cfg.NotifyTimeout)

	conversationUseCase := usecase.NewConversationUseCase(conversationRepo, m)
	messageUseCase := usecase.NewMessageUseCase(conversationRepo, messageRepo, dispatcher, m, cfg.MessageWindowLimit)
	readStateUseCase := usecase.NewReadStateUseCase(conversationRepo, messageRepo, m)

	wsManager := websocket.NewManager(messageUseCase)
	wsManager.Start(ctx)

	limiter := ratelimit.NewRateLimiter(cfg.SendRatePerMinute)
	limiter.StartCleanupRoutine(ctx.Done())

	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: cfg.AllowedOrigins}))
	} else {
		e.Use(middleware.CORS())
	}

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(firebase.NewAuthClient(authClient))
	serviceMiddleware := apimiddleware.NewServiceKeyMiddleware(cfg.ServiceAPIKey)
	if cfg.ServiceAPIKey == "" {
		logger.Warn("SERVICE_API_KEY not set, internal endpoints disabled")
	}

	router.Setup(e, router.Handlers{
		Health:       handler.NewHealthHandler(cfg.StoreBackend),
		Conversation: handler.NewConversationHandler(conversationUseCase),
		Message:      handler.NewMessageHandler(messageUseCase, readStateUseCase, conversationUseCase),
		Upload:       handler.NewUploadHandler(uploader, storage.Allowed),
		WebSocket:    handler.NewWebSocketHandler(wsManager, cfg.AllowedOrigins),
	}, authMiddleware, serviceMiddleware, limiter)

	go func() {
		logger.Info("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
	}
}

// credentials prefers inline service account JSON (production) over a key
// file (local development).
func credentials(cfg *config.Config) (option.ClientOption, error) {
	if cfg.ServiceAccountJSON != "" {
		logger.Info("Using Firebase service account from environment variable")
		return option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)), nil
	}

	if _, err := os.Stat(cfg.ServiceAccountPath); os.IsNotExist(err) {
		return nil, errors.New("service account file does not exist: " + cfg.ServiceAccountPath)
	}
	logger.Info("Using Firebase service account from file: %s", cfg.ServiceAccountPath)
	return option.WithCredentialsFile(cfg.ServiceAccountPath), nil
}
