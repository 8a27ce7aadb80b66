package handlers

import (
	"callpop/internal/app"
	"callpop/internal/http/middleware"
	"callpop/internal/webhook"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// SetupRoutes sets up all API routes and returns the websocket hub so the
// caller owns its lifecycle.
func SetupRoutes(e *echo.Echo, api *echo.Group, services *app.Services, logger zerolog.Logger) *WebSocketHub {
	// The hub is the fan-out publisher for the correlation engine.
	hub := NewWebSocketHub(logger)
	services.SetPublisher(hub)

	wsHandler := NewWebSocketHandler(hub, services.AuthService, services.CallLogRepo, logger)

	// Webhook ingress: unauthenticated, called by the VoIP provider.
	webhookHandler := webhook.NewHandler(services.Engine, services.AuditService, logger, "callpop", services.Version)
	e.GET("/health", webhookHandler.Health)
	e.POST("/webhook/incoming-call/:company_id", webhookHandler.IncomingCall)
	e.POST("/webhook/incoming-call", webhookHandler.IncomingCall)
	e.OPTIONS("/webhook/incoming-call/:company_id", webhookHandler.Preflight)
	e.OPTIONS("/webhook/incoming-call", webhookHandler.Preflight)

	// Auth routes (no authentication required)
	authHandler := NewAuthHandler(services.AuthService)
	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.RefreshToken)

	// WebSocket endpoint (handles authentication manually via query parameter)
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes (require authentication)
	protected := api.Group("")
	protected.Use(middleware.JWTAuth(services.AuthService))
	protected.Use(middleware.TenantResolver())

	// User profile routes (authenticated users)
	profileAuth := protected.Group("/auth")
	profileAuth.GET("/me", authHandler.Me)
	profileAuth.PUT("/profile", authHandler.UpdateProfile)
	profileAuth.POST("/change-password", authHandler.ChangePassword)

	// System admin routes
	admin := protected.Group("/admin")
	admin.Use(middleware.SystemAdminOnly())
	tenantHandler := NewTenantHandler(services.TenantRepo, services.UserRepo, services.AuthService)
	admin.GET("/tenants", tenantHandler.List)
	admin.POST("/tenants", tenantHandler.Create)
	admin.GET("/tenants/:id", tenantHandler.GetByID)
	admin.PUT("/tenants/:id", tenantHandler.Update)

	// Tenant routes (require tenant context)
	tenant := protected.Group("")
	tenant.Use(middleware.AgentOrAbove())
	tenant.Use(middleware.RequireTenant())

	contactHandler := NewContactHandler(services.ContactRepo, services.AddressRepo)
	contacts := tenant.Group("/contacts")
	contacts.GET("", contactHandler.List)
	contacts.POST("", contactHandler.Create)
	contacts.GET("/by-phone", contactHandler.GetByPhone)
	contacts.GET("/:id", contactHandler.GetByID)
	contacts.PUT("/:id", contactHandler.Update)
	contacts.DELETE("/:id", contactHandler.Delete)
	contacts.GET("/:id/addresses", contactHandler.ListAddresses)

	addressHandler := NewAddressHandler(services.AddressRepo, services.ContactRepo)
	addresses := tenant.Group("/addresses")
	addresses.POST("", addressHandler.Create)
	addresses.PUT("/:id", addressHandler.Update)
	addresses.DELETE("/:id", addressHandler.Delete)
	addresses.POST("/:id/default", addressHandler.SetDefault)

	callLogHandler := NewCallLogHandler(services.CallLogRepo, services.ContactRepo, services.ExportService)
	callLogs := tenant.Group("/call-logs")
	callLogs.GET("", callLogHandler.List)
	callLogs.GET("/export", callLogHandler.Export)
	callLogs.GET("/:id", callLogHandler.GetByID)
	callLogs.POST("/:id/promote", callLogHandler.Promote)

	// User management (tenant admins only)
	userHandler := NewUserHandler(services.UserRepo, services.TenantRepo, services.AuthService)
	users := tenant.Group("/users", middleware.TenantAdminOrAbove())
	users.GET("", userHandler.List)
	users.POST("", userHandler.Create)
	users.PUT("/:id", userHandler.Update)
	users.DELETE("/:id", userHandler.Delete)

	return hub
}
