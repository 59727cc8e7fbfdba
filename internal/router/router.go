// Package router assembles the HTTP API.
package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/bettodiaz/webtop-launcher/internal/config"
	"github.com/bettodiaz/webtop-launcher/internal/events"
	"github.com/bettodiaz/webtop-launcher/internal/handlers"
	"github.com/bettodiaz/webtop-launcher/internal/middleware"
	"github.com/bettodiaz/webtop-launcher/internal/services"
)

// Services bundles everything the router needs.
type Services struct {
	Auth     *services.AuthService
	Audit    *services.AuditService
	Catalog  *services.CatalogService
	Sync     *services.SyncService
	Registry *services.RegistryService
	Settings *services.SettingsService
	Gateway  services.ContainerGateway
	Deployer *services.DeployerService
	Hub      *events.Hub
}

func New(cfg *config.Config, svc Services, log *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(log))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.DefaultBodyLimit())

	authHandler := handlers.NewAuthHandler(svc.Auth, svc.Audit)
	appsHandler := handlers.NewAppsHandler(svc.Catalog, svc.Sync)
	sessionsHandler := handlers.NewSessionsHandler(svc.Registry, svc.Audit, svc.Hub, log)
	usersHandler := handlers.NewUsersHandler(svc.Auth, svc.Audit)
	portainerHandler := handlers.NewPortainerHandler(svc.Settings, svc.Gateway, svc.Deployer, svc.Audit, log)
	systemHandler := handlers.NewSystemHandler(svc.Audit)

	loginLimiter := middleware.NewRateLimiter(10, time.Minute)

	api := r.Group("/api")
	{
		api.GET("/health", handlers.Health)
		api.GET("/version", handlers.Version)

		api.POST("/auth/login", loginLimiter.Middleware(), middleware.SmallBodyLimit(), authHandler.Login)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired(svc.Auth))
		{
			protected.POST("/auth/logout", authHandler.Logout)
			protected.GET("/auth/me", authHandler.Me)
			protected.POST("/auth/change-password", middleware.SmallBodyLimit(), authHandler.ChangePassword)
			protected.POST("/auth/totp/enroll", authHandler.BeginTOTP)
			protected.POST("/auth/totp/confirm", authHandler.ConfirmTOTP)
			protected.POST("/auth/totp/disable", authHandler.DisableTOTP)

			protected.GET("/apps", appsHandler.List)

			protected.GET("/sessions", sessionsHandler.List)
			protected.POST("/sessions/launch", sessionsHandler.Launch)
			protected.POST("/sessions/:id/stop", sessionsHandler.Stop)
		}

		admin := api.Group("/admin")
		admin.Use(middleware.AuthRequired(svc.Auth), middleware.AdminRequired())
		{
			admin.GET("/apps", appsHandler.ListAll)
			admin.PUT("/apps/:id", appsHandler.Update)
			admin.POST("/apps/scrape", appsHandler.Scrape)

			admin.GET("/sessions", sessionsHandler.ListAll)
			admin.POST("/sessions/reconcile", sessionsHandler.Reconcile)
			admin.GET("/sessions/events", sessionsHandler.Events)

			admin.GET("/users", usersHandler.List)
			admin.POST("/users", usersHandler.Create)
			admin.DELETE("/users/:id", usersHandler.Delete)
			admin.POST("/users/:id/reset-password", usersHandler.ResetPassword)

			admin.GET("/portainer", portainerHandler.GetConfig)
			admin.PUT("/portainer", portainerHandler.SetConfig)
			admin.GET("/portainer/status", portainerHandler.Status)
			admin.POST("/portainer/deploy", portainerHandler.Deploy)

			admin.GET("/system", systemHandler.Metrics)
			admin.GET("/audit", systemHandler.AuditLog)
		}
	}

	return r
}
