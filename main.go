package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-backend/internal/config"
	"chat-backend/internal/db"
	"chat-backend/internal/handlers"
	"chat-backend/internal/middleware"
	"chat-backend/internal/observability"
	"chat-backend/internal/rabbitmq"
	"chat-backend/internal/repositories"
	"chat-backend/internal/telemetry"
	"chat-backend/internal/ws"
)

func main() {
	cfg := config.Load()

	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.OTLPEndpoint, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))
	if reason := rabbitmq.PublisherNoopReason(publisher); reason != "" {
		log.Printf("audit publisher noop reason: %s", reason)
	}
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, "chat-backend", cfg.Environment)

	if cfg.AMQPURL != "" {
		if amqpPub, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AuditExchange); err == nil {
			observability.SetPublisher(amqpPub)
			defer amqpPub.Close()
		} else {
			log.Printf("ws event publisher disabled: %v", err)
		}
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub()
	presence := ws.NewPresence()
	gateway := ws.NewGateway(hub, presence, cfg.SocketSecret())

	authHandler := handlers.NewAuthHandler(userRepo, cfg, audit)
	userHandler := handlers.NewUserHandler(userRepo)
	chatHandler := handlers.NewChatHandler(chatRepo, messageRepo, userRepo, audit)
	messageHandler := handlers.NewMessageHandler(chatRepo, messageRepo, userRepo, hub, audit)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("chat-backend"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(cfg.JWTAccessSecret)

	router.POST("/auth/register", authHandler.Register)
	router.POST("/auth/login", authHandler.Login)
	router.GET("/auth/socket-token", authMiddleware, authHandler.SocketToken)

	router.GET("/users", authMiddleware, userHandler.ListUsers)

	router.POST("/chats", authMiddleware, chatHandler.AccessChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.DELETE("/chats", authMiddleware, chatHandler.DeleteChat)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.PUT("/chats/group/rename", authMiddleware, chatHandler.RenameGroup)
	router.PUT("/chats/group/add", authMiddleware, chatHandler.AddToGroup)
	router.PUT("/chats/group/remove", authMiddleware, chatHandler.RemoveFromGroup)
	router.PUT("/chats/group/leave", authMiddleware, chatHandler.LeaveGroup)

	router.POST("/messages", authMiddleware, messageHandler.SendMessage)
	router.GET("/messages/chat/:chatId", authMiddleware, messageHandler.GetMessages)

	router.GET("/ws", gateway.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutesEnabled)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
