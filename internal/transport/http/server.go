package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"leftear-ai/internal/ai"
	appsvc "leftear-ai/internal/app"
	"leftear-ai/internal/bootstrap"
	"leftear-ai/internal/cache"
	rabbitmqClient "leftear-ai/internal/platform/rabbitmq"
	"leftear-ai/internal/repository"
	"leftear-ai/internal/search"
	"leftear-ai/internal/storage"
	"leftear-ai/internal/transport/http/handler"
	"leftear-ai/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	sessionRepo := repository.NewSessionRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	presetRepo := repository.NewPresetRepository(app.MySQL)
	usageRepo := repository.NewUsageRepository(app.MySQL)

	presetCache := cache.NewPresetCache(app.Redis, time.Duration(app.Config.Redis.PresetTTLSeconds)*time.Second)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	presetService := appsvc.NewPresetService(presetRepo, usageRepo, userRepo, presetCache)
	sessionService := appsvc.NewSessionService(sessionRepo, messageRepo, presetRepo)

	upstream := appsvc.NewUpstream(ai.NewClient(time.Duration(app.Config.Relay.UpstreamTimeoutSeconds) * time.Second))
	searcher := search.NewClient(
		app.Config.Search.Endpoint,
		time.Duration(app.Config.Search.TimeoutSeconds)*time.Second,
		app.Config.Search.MaxResults,
	)
	offloader := storage.NewOffloader(
		app.Config.Offload.Endpoint,
		app.Config.Offload.PublicBaseURL,
		app.Config.Offload.AuthToken,
		time.Duration(app.Config.Offload.TimeoutSeconds)*time.Second,
	)
	publisher := rabbitmqClient.NewExchangePublisher(app.MQConn, app.Config.RabbitMQ.ExchangeLogQueue)

	relayService := appsvc.NewRelayService(
		sessionRepo,
		messageRepo,
		usageRepo,
		presetService,
		upstream,
		offloader,
		searcher,
		publisher,
		app.Config.Relay.MaxHistoryMessages,
	)

	authHandler := handler.NewAuthHandler(authService, app.Config.Auth.AdminUsername)
	sessionHandler := handler.NewSessionHandler(sessionService, presetService)
	relayHandler := handler.NewRelayHandler(relayService)
	adminHandler := handler.NewAdminHandler(presetService)

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.GET("/presets", sessionHandler.ListPresets)
	chatGroup.POST("/sessions", sessionHandler.Create)
	chatGroup.GET("/sessions", sessionHandler.List)
	chatGroup.POST("/sessions/:id/rename", sessionHandler.Rename)
	chatGroup.DELETE("/sessions/:id", sessionHandler.Delete)
	chatGroup.GET("/sessions/:id/messages", sessionHandler.History)
	chatGroup.POST("/stream", relayHandler.Stream)

	adminGroup := v1.Group("/admin")
	adminGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret), middleware.AdminOnly(app.Config.Auth.AdminUsername))
	adminGroup.GET("/data", adminHandler.Data)
	adminGroup.POST("/presets", adminHandler.SavePreset)
	adminGroup.DELETE("/presets/:id", adminHandler.DeletePreset)

	return router
}
