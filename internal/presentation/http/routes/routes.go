// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"github.com/AtRiskMedia/leaddesk-go/internal/application/container"
	"github.com/AtRiskMedia/leaddesk-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/leaddesk-go/internal/presentation/http/middleware"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RequestLogger(container.Logger))
	r.Use(middleware.CORSMiddleware(config.CORSOrigins))

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(container.OTPController, container.Logger, container.PerfTracker)
	leadHandlers := handlers.NewLeadHandlers(container.LeadService, container.Logger, container.PerfTracker)
	notificationHandlers := handlers.NewNotificationHandlers(container.Broadcaster, container.Logger, container.PerfTracker)
	systemHandlers := handlers.NewSystemHandlers(container.Registry, container.Monitor, container.Logger, container.PerfTracker)

	cookie := middleware.CookieConfig{
		Name:   config.SessionCookieName,
		MaxAge: config.SessionRecordTTL,
		Secure: config.CookieSecure,
	}

	api := r.Group("/api/v1")
	{
		api.GET("/health", systemHandlers.GetHealth)

		system := api.Group("/system")
		{
			system.GET("/perf", systemHandlers.GetPerf)
			system.GET("/monitor", systemHandlers.GetMonitor)
			system.GET("/log-levels", systemHandlers.GetLogLevels)
			system.PUT("/log-levels/:channel", systemHandlers.PutLogLevel)
		}

		// Everything below is scoped to a console session
		console := api.Group("")
		console.Use(middleware.ConsoleSessionMiddleware(container.Registry, cookie, container.Logger, container.PerfTracker))
		{
			auth := console.Group("/auth")
			{
				auth.POST("/login", authHandlers.PostLogin)
				auth.POST("/otp", authHandlers.PostOtp)
				auth.POST("/otp/resend", authHandlers.PostResendOtp)
				auth.POST("/otp/cancel", authHandlers.PostCancelOtp)
				auth.POST("/logout", authHandlers.PostLogout)
				auth.GET("/session", authHandlers.GetSession)
				auth.POST("/profile/refresh", authHandlers.PostRefreshProfile)
				auth.GET("/guard", authHandlers.GetGuard)
				auth.GET("/guard/status", authHandlers.GetGuardStatus)
			}

			console.GET("/notifications/stream", notificationHandlers.GetStream)

			leadsAPI := console.Group("/leads")
			leadsAPI.Use(middleware.RequireAuthenticated(container.Logger))
			{
				leadsAPI.GET("/catalog", leadHandlers.GetCatalog)
				leadsAPI.GET("/views/:view", leadHandlers.GetView)
				leadsAPI.POST("/views/:view/refresh", leadHandlers.PostRefreshView)
				leadsAPI.PATCH("/views/:view/filters", leadHandlers.PatchViewFilters)
				leadsAPI.DELETE("/views/:view", leadHandlers.DeleteView)

				leadsAPI.POST("", leadHandlers.PostCreateLead)
				leadsAPI.POST("/assign", leadHandlers.PostAssignLead)
				leadsAPI.GET("/:leadId/history", leadHandlers.GetHistory)
				leadsAPI.POST("/:leadId/booking", leadHandlers.PostBooking)
				leadsAPI.POST("/:leadId/status", leadHandlers.PostStatus)
			}
		}
	}

	return r
}
