package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley-chat/config"
	"parley-chat/internal/domain/conversation"
	"parley-chat/internal/handler"
	"parley-chat/internal/middleware"
	"parley-chat/internal/services"
	"parley-chat/internal/transport/httpdto"
	"parley-chat/internal/websocket"
	"parley-chat/pkg/logger"

	"github.com/gin-gonic/gin"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Conversations *handler.ConversationHandler
	Members       *handler.MemberHandler
	Roles         *handler.RoleHandler
	Messages      *handler.MessageHandler
	Chats         *handler.ChatHandler
	Attachments   *handler.AttachmentHandler
	Presence      *handler.PresenceHandler
	WebSocket     *websocket.Handler
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// SetupRoutes mounts every endpoint. limiter may be nil when redis is disabled.
func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter middleware.MessageLimiter, health HealthFunc) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if health != nil {
			if err := health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
				return
			}
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	if handlers.WebSocket != nil {
		s.engine.GET("/ws", handlers.WebSocket.Connect)
	}

	v1 := s.engine.Group("/v1", middleware.AuthMiddleware(authService))

	v1.PATCH("/presence", handlers.Presence.Update)
	v1.GET("/permissions", handlers.Roles.Permissions)
	v1.POST("/attachments/presign", handlers.Attachments.Presign)

	for _, kind := range []conversation.Kind{conversation.KindGroup, conversation.KindChannel} {
		g := v1.Group("/"+string(kind)+"s", handler.BindKind(kind))
		{
			g.POST("", handlers.Conversations.Create)
			g.GET("/search", handlers.Conversations.Search)
			g.GET("/:id", handlers.Conversations.View)
			g.GET("/:id/preview", handlers.Conversations.Preview)
			g.PATCH("/:id", handlers.Conversations.Edit)
			g.DELETE("/:id", handlers.Conversations.Delete)

			g.POST("/:id/members", handlers.Members.Add)
			g.POST("/:id/join", handlers.Members.Join)
			g.GET("/:id/members", handlers.Members.List)
			g.DELETE("/:id/members/:userId", handlers.Members.Remove)
			g.PATCH("/:id/notifications", handlers.Members.SetNotifications)
			g.GET("/:id/notifications", handlers.Members.GetNotifications)

			g.GET("/:id/permissions/:permission", handlers.Roles.Check)
			g.GET("/:id/roles", handlers.Roles.List)
			g.POST("/:id/roles", handlers.Roles.Create)
			g.PATCH("/:id/roles/:name", handlers.Roles.Edit)
			g.DELETE("/:id/roles/:name", handlers.Roles.Delete)
			g.PUT("/:id/members/:userId/role", handlers.Roles.Assign)
			g.DELETE("/:id/members/:userId/role", handlers.Roles.Remove)
		}
		if kind == conversation.KindChannel {
			g.POST("/:id/discussion", handlers.Conversations.CreateDiscussion)
			g.DELETE("/:id/discussion", handlers.Conversations.DeleteDiscussion)
		}
	}

	chats := v1.Group("/chats", handler.BindKind(conversation.KindChat))
	{
		chats.POST("", handlers.Chats.Create)
		chats.GET("/:id", handlers.Chats.Get)
		chats.DELETE("/:id", handlers.Chats.Delete)
		chats.GET("/:id/notifications", handlers.Members.GetNotifications)
	}

	messages := v1.Group("/messages")
	{
		send := []gin.HandlerFunc{handlers.Messages.Send}
		if limiter != nil {
			send = append([]gin.HandlerFunc{middleware.MessageRateLimitMiddleware(limiter)}, send...)
		}
		messages.POST("", send...)
		messages.GET("", handlers.Messages.List)
		messages.PATCH("/:id", handlers.Messages.Edit)
		messages.DELETE("/:id", handlers.Messages.Delete)
		messages.POST("/:id/read", handlers.Messages.MarkRead)
		messages.POST("/:id/attachments", handlers.Messages.Attach)
	}
}

func (s *Server) Start() error {
	go func() {
		s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Error in starting the server: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	s.logger.Infof("Server is running on :%s", s.config.AppPort)

	<-quit

	s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		return err
	}

	s.logger.Infof("Server stopped gracefully")
	return nil
}
