package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/travelhub/crm-escalation/db"
	"github.com/travelhub/crm-escalation/handlers"
)

// Dependencies are the stores and services the HTTP API is built on.
type Dependencies struct {
	Notifications handlers.NotificationStore
	Devices       handlers.DeviceStore
	Pusher        handlers.PushSender
	Engine        handlers.CycleRunner
	Auth          *handlers.AuthMiddleware
	Registry      prometheus.Gatherer
	// Ping reports database health for /healthz. Optional.
	Ping func() error
}

func NewGinRouter(deps Dependencies) *gin.Engine {
	r := gin.Default()

	// Add CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Ping != nil {
			if err := deps.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
	deviceHandler := handlers.NewDeviceHandler(deps.Devices, deps.Pusher)
	escalationHandler := handlers.NewEscalationHandler(deps.Engine)

	api := r.Group("/api", deps.Auth.RequireAuth())
	{
		notifications := api.Group("/notifications")
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.PUT("/read-all", notificationHandler.MarkAllRead)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
			notifications.PUT("/:id/dismiss", notificationHandler.Dismiss)
		}

		devices := api.Group("/devices")
		{
			devices.POST("", deviceHandler.RegisterDevice)
			devices.POST("/test", deviceHandler.SendTestPush)
			devices.DELETE("/:id", deviceHandler.DeactivateDevice)
		}

		admin := api.Group("/admin/escalation", handlers.RequireRole(db.RoleAdmin, db.RoleAgencyAdmin, db.RoleSuperAdmin))
		{
			admin.POST("/run", escalationHandler.RunCycle)
			admin.GET("/rules", escalationHandler.ListRules)
		}
	}

	return r
}
