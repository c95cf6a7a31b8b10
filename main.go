package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-core/internal/auth"
	"chat-core/internal/config"
	"chat-core/internal/db"
	"chat-core/internal/dispatcher"
	"chat-core/internal/handlers"
	"chat-core/internal/logging"
	"chat-core/internal/middleware"
	"chat-core/internal/observability"
	"chat-core/internal/presence"
	"chat-core/internal/rabbitmq"
	"chat-core/internal/repositories"
	"chat-core/internal/storage"
	"chat-core/internal/telemetry"
	"chat-core/internal/ws"
)

const serviceName = "chat-core"

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		logging.Init("info", false)
		logging.L().Fatal().Err(err).Msg("failed to load config")
	}
	logging.Init(cfg.Log.Level, cfg.Log.Pretty)

	shutdownTracing, err := telemetry.InitTracing(context.Background(), serviceName, cfg.Tracing.OTLPEndpoint)
	if err != nil {
		logging.L().Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	database, err := db.Connect(cfg.DB.DSN)
	if err != nil {
		logging.L().Fatal().Err(err).Msg("failed to connect to db")
	}
	defer database.Close()

	var tracker presence.Tracker
	redisTracker, err := presence.NewRedisTracker(cfg.Redis, cfg.Typing.StalenessWindow)
	if err != nil {
		logging.L().Warn().Err(err).Msg("redis unavailable, using in-memory typing tracker")
		tracker = presence.NewMemoryTracker(cfg.Typing.StalenessWindow)
	} else {
		defer redisTracker.Close()
		tracker = redisTracker
	}

	store, err := storage.NewS3Storage(context.Background(), cfg.Storage)
	if err != nil {
		logging.L().Fatal().Err(err).Msg("failed to init blob storage")
	}

	eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		logging.L().Warn().Err(err).Msg("amqp unavailable, ws events disabled")
	} else {
		observability.SetPublisher(eventPublisher)
		defer eventPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer auditPublisher.Close()
	logging.L().Info().
		Str("mode", rabbitmq.PublisherMode(auditPublisher)).
		Str("noop_reason", rabbitmq.PublisherNoopReason(auditPublisher)).
		Msg("audit publisher ready")
	emitter := telemetry.NewAuditEmitter(auditPublisher, "audit_log.chat", serviceName, "production")

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	prefRepo := repositories.NewPrefRepo(database)

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret)
	disp := dispatcher.New()
	hub := ws.NewHub(disp, roomRepo, tracker)

	roomHandler := handlers.NewRoomHandler(roomRepo, hub, emitter)
	messageHandler := handlers.NewMessageHandler(roomRepo, messageRepo, store, hub)
	prefsHandler := handlers.NewPrefsHandler(roomRepo, messageRepo, prefRepo, tracker, hub)

	roomWS := ws.NewRoomWebSocketHandler(hub, roomRepo, tracker, verifier)
	listWS := ws.NewListWebSocketHandler(hub, verifier)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/rooms", authMiddleware, roomHandler.CreateRoom)
	router.GET("/rooms", authMiddleware, roomHandler.ListRooms)
	router.POST("/rooms/:room_id/members", authMiddleware, roomHandler.AddMember)
	router.DELETE("/rooms/:room_id/members/:user_id", authMiddleware, roomHandler.RemoveMember)
	router.PUT("/rooms/:room_id/members/:user_id/role", authMiddleware, roomHandler.SetRole)

	router.GET("/rooms/:room_id/messages", authMiddleware, messageHandler.GetRoomMessages)
	router.POST("/rooms/:room_id/messages", authMiddleware, messageHandler.PostMessage)
	router.POST("/rooms/:room_id/images", authMiddleware, messageHandler.PostImage)

	router.PUT("/rooms/:room_id/read", authMiddleware, prefsHandler.MarkRead)
	router.GET("/rooms/:room_id/unread", authMiddleware, prefsHandler.UnreadCount)
	router.PUT("/rooms/:room_id/mute", authMiddleware, prefsHandler.SetMuted)
	router.GET("/rooms/:room_id/mute", authMiddleware, prefsHandler.GetMuted)
	router.PUT("/rooms/:room_id/typing", authMiddleware, prefsHandler.SetTyping)

	router.GET("/ws/rooms/:room_id", roomWS.Handle)
	router.GET("/ws/rooms", listWS.Handle)

	handlers.RegisterDebugRoutes(router, emitter, cfg.Debug)

	logging.L().Info().Str("port", cfg.HTTP.Port).Msg("server starting")
	if err := router.Run(":" + cfg.HTTP.Port); err != nil {
		logging.L().Fatal().Err(err).Msg("server error")
	}
}
