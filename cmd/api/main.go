package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"talentos/internal/adapter/api"
	"talentos/internal/adapter/api/handler"
	apimiddleware "talentos/internal/adapter/api/middleware"
	"talentos/internal/adapter/api/router"
	"talentos/internal/adapter/repository"
	domainrepo "talentos/internal/domain/repository"
	"talentos/internal/infrastructure/firebase"
	"talentos/internal/infrastructure/realtime"
	"talentos/internal/infrastructure/storage"
	"talentos/internal/infrastructure/websocket"
	"talentos/internal/usecase"
	"talentos/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	credentialsPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH")

	firebaseAuthClient, err := firebase.NewFirebaseAuthClient(ctx, cfg.FirebaseProject, credentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, credentialsPath)
	if err != nil {
		log.Fatalf("Failed to initialize Cloud Storage: %v", err)
	}
	defer storageClient.Close()

	var (
		conversationRepo domainrepo.ConversationRepository
		messageRepo      domainrepo.MessageRepository
		profileRepo      domainrepo.ProfileRepository
		feed             domainrepo.MessageFeed
	)

	switch cfg.ChatBackend {
	case "firestore":
		var opts []option.ClientOption
		if credentialsPath != "" {
			opts = append(opts, option.WithCredentialsFile(credentialsPath))
		}
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		conversationRepo = repository.NewFirestoreConversationRepository(firestoreClient)
		messageRepo = repository.NewFirestoreMessageRepository(firestoreClient)
		profileRepo = repository.NewFirestoreProfileRepository(firestoreClient)
		feed = realtime.NewFirestoreFeed(firestoreClient)

	case "postgres":
		db, err := repository.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to open Postgres: %v", err)
		}
		defer db.Close()

		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer rdb.Close()

		conversationRepo = repository.NewPostgresConversationRepository(db)
		messageRepo = repository.NewPostgresMessageRepository(db, rdb)
		profileRepo = repository.NewPostgresProfileRepository(db)
		feed = realtime.NewRedisFeed(rdb)

	default:
		log.Fatalf("Unknown chat backend: %s", cfg.ChatBackend)
	}

	chatUseCase := usecase.NewChatUseCase(
		conversationRepo,
		messageRepo,
		profileRepo,
		feed,
		storageClient,
		time.Duration(cfg.FetchTimeout)*time.Second,
		time.Duration(cfg.SendTimeout)*time.Second,
	)

	wsManager := websocket.NewManager(chatUseCase)
	wsManager.Start(ctx)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(firebaseAuthClient)

	chatHandler := handler.NewChatHandler(chatUseCase)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware)
	healthHandler := handler.NewHealthHandler(cfg.ChatBackend)

	router.Setup(e, chatHandler, wsHandler, healthHandler, authMiddleware)

	log.Printf("Starting server on port %s (backend: %s)...", cfg.ServerPort, cfg.ChatBackend)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
