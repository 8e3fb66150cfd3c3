package handler

import (
	"github.com/contractqueue/backend/internal/service"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Handlers - everything the router mounts
type Handlers struct {
	Auth      *AuthHandler
	AuthSvc   *service.AuthService
	Webhook   *PipedriveWebhookHandler
	Contracts *ContractHandler
	Reports   *ReportHandler
	Settings  *SettingsHandler
	Sessions  *SessionHandler
	Health    *HealthHandler
}

// RouterOptions - CORS settings for browser clients
type RouterOptions struct {
	AllowedOrigins   []string
	AllowCredentials bool
}

func NewRouter(opts RouterOptions, h Handlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(CORSMiddleware(opts.AllowedOrigins, opts.AllowCredentials))

	router.GET("/ping", Ping)
	router.GET("/", Root)
	router.GET("/healthz", h.Health.Healthz)
	router.GET("/openapi.json", OpenAPIDoc)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/openapi.json")))

	// any verb on a known path without a route of its own, OPTIONS preflight excepted
	router.HandleMethodNotAllowed = true
	router.NoMethod(MethodNotAllowed)

	router.POST("/api/webhook", h.Webhook.Receive)
	router.POST("/api/test-webhook", h.Webhook.TestWebhook)

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh", h.Auth.Refresh)
	auth.POST("/logout", h.Auth.Logout)
	auth.GET("/config", h.Auth.Config)

	protected := v1.Group("")
	protected.Use(AuthMiddleware(h.AuthSvc))
	protected.GET("/auth/me", h.Auth.Me)
	protected.PATCH("/auth/me", h.Auth.UpdateMe)

	contracts := protected.Group("/contracts")
	contracts.GET("/active", h.Contracts.ListActive)
	contracts.POST("/active/:id/complete", h.Contracts.Complete)
	contracts.DELETE("/active/:id", h.Contracts.Remove)
	contracts.GET("/completed", h.Contracts.ListCompleted)
	contracts.GET("/completed/stats", h.Contracts.Stats)
	contracts.GET("/events", h.Contracts.Events)

	reports := protected.Group("/reports")
	reports.GET("/signed", h.Reports.Signed)
	reports.GET("/signed.csv", h.Reports.SignedCSV)

	settings := protected.Group("/settings")
	settings.GET("/pipedrive", h.Settings.GetPipedrive)
	settings.PUT("/pipedrive", h.Settings.UpdatePipedrive)
	settings.POST("/pipedrive/simulate", h.Settings.Simulate)

	sessions := protected.Group("/sessions")
	sessions.POST("/heartbeat", h.Sessions.Heartbeat)
	sessions.DELETE("", h.Sessions.End)
	sessions.GET("", h.Sessions.List)

	return router
}
