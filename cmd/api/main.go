package main

import (
	"context"
	"log"
	"time"

	"parley-chat/config"
	"parley-chat/internal/handler"
	"parley-chat/internal/middleware"
	"parley-chat/internal/redis"
	"parley-chat/internal/repository"
	"parley-chat/internal/repository/memstore"
	"parley-chat/internal/server"
	"parley-chat/internal/services"
	"parley-chat/internal/storage"
	"parley-chat/internal/websocket"
	"parley-chat/pkg/database"
	"parley-chat/pkg/logger"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, health := openStore(cfg, appLogger)

	var (
		redisClient *goredis.Client
		memberCache services.MemberCache
		limiter     middleware.MessageLimiter
		relay       websocket.RoomRelay
		mirror      websocket.PresenceMirror
	)
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := redis.Ping(ctx, redisClient); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer redisClient.Close()

		memberCache = redis.NewMemberCache(redisClient, cfg.MemberCacheTTL)
		limiter = redis.NewRateLimiter(redisClient, redis.RateLimitConfig{
			MessageLimit:  cfg.MessageRateLimit,
			MessageWindow: time.Minute,
		})
		mirror = redis.NewPresenceStore(redisClient, 0)
		if cfg.FanoutMode == config.FanoutModeRedis {
			relay = redis.NewPublisher(redisClient)
		}
	} else if cfg.FanoutMode == config.FanoutModeRedis {
		log.Fatal("FANOUT_MODE=redis requires REDIS_ENABLED=true")
	}

	hub := websocket.NewHub()
	go hub.Run(ctx)
	gateway := websocket.NewGateway(hub, relay, mirror)

	if redisClient != nil {
		bridge := websocket.NewRedisBridge(redis.NewSubscriber(redisClient), hub, relay != nil)
		go func() {
			if err := bridge.Run(ctx); err != nil {
				appLogger.Logger.Error("redis bridge stopped", zap.Error(err))
			}
		}()
	}

	var blobs *storage.Client
	if cfg.S3Configured() {
		client, err := storage.NewClient(ctx, storage.S3ConfigFrom(cfg))
		if err != nil {
			log.Fatalf("Failed to configure S3: %v", err)
		}
		blobs = client
	} else {
		appLogger.Warnf("S3 is not configured; attachment uploads are disabled")
	}

	paging := services.PagingFromConfig(cfg)
	authService := services.NewAuthService(cfg)
	attachmentService := services.NewAttachmentService(blobs)
	permissionService := services.NewPermissionService(store, gateway, memberCache)
	membershipService := services.NewMembershipService(store, gateway, memberCache)
	conversationService := services.NewConversationService(store, gateway, memberCache, paging)
	directChatService := services.NewDirectChatService(store, gateway)
	messageService := services.NewMessageService(store, gateway, attachmentService, paging)
	presenceService := services.NewPresenceService(store, gateway)

	srv := server.New(cfg, appLogger)
	srv.SetupRoutes(&server.Handlers{
		Conversations: handler.NewConversationHandler(conversationService, messageService),
		Members:       handler.NewMemberHandler(membershipService),
		Roles:         handler.NewRoleHandler(permissionService),
		Messages:      handler.NewMessageHandler(messageService),
		Chats:         handler.NewChatHandler(directChatService),
		Attachments:   handler.NewAttachmentHandler(attachmentService),
		Presence:      handler.NewPresenceHandler(presenceService),
		WebSocket: websocket.NewHandler(cfg, authService, hub, gateway,
			websocket.NewRoomAuthorizer(store), presenceService),
	}, authService, limiter, health)

	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped with error: %v", err)
	}
}

// openStore picks the repository backend named by STORE_DRIVER.
func openStore(cfg *config.Config, l *logger.Logger) (repository.Store, server.HealthFunc) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		l.Warnf("Using the in-memory store; data is lost on restart")
		return memstore.New(), nil
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}
	return repository.NewPostgresStore(db), func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
}
