package routes

import (
	"finz_backend/controllers"
	"finz_backend/middleware"
	"finz_backend/services"
	"finz_backend/services/alerts"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, alertSvc *alerts.Service) {
	userController := controllers.NewUserController(db)
	alertController := controllers.NewAlertController(alertSvc, services.GlobalStreamService)
	rsiController := controllers.NewRsiController(services.GlobalRsiService)
	notificationController := controllers.NewNotificationController(services.GlobalPushService)
	eventController := controllers.NewEventController(services.GlobalEventService)
	reportController := controllers.NewReportController(services.GlobalReportService)

	api := router.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/register", userController.Register)
			auth.POST("/login", middleware.LoginRateLimitMiddleware(), userController.Login)
			auth.GET("/me", middleware.JWTAuthMiddleware(), userController.Me)
		}

		// Alert routes
		alertRoutes := api.Group("/alerts", middleware.JWTAuthMiddleware())
		{
			alertRoutes.GET("", alertController.List)
			alertRoutes.POST("/simple", alertController.CreateSimple)
			alertRoutes.POST("/range", alertController.CreateRange)
			alertRoutes.POST("/percent", alertController.CreatePercent)
			alertRoutes.POST("/composite", alertController.CreateComposite)
			alertRoutes.POST("/:id/activate", alertController.Activate)
			alertRoutes.POST("/:id/deactivate", alertController.Deactivate)
			alertRoutes.DELETE("/:id", alertController.Delete)
			alertRoutes.POST("/evaluate", alertController.Evaluate)
			alertRoutes.GET("/stream", alertController.Stream)
		}

		// RSI routes
		rsi := api.Group("/rsi", middleware.JWTAuthMiddleware())
		{
			rsi.GET("/watches", rsiController.ListWatches)
			rsi.POST("/watches", rsiController.Follow)
			rsi.DELETE("/watches/:ticker", rsiController.Unfollow)
			rsi.GET("/:ticker", rsiController.GetStatus)
		}

		// Notification routes
		notifications := api.Group("/notifications", middleware.JWTAuthMiddleware())
		{
			notifications.GET("/vapid-key", notificationController.VAPIDKey)
			notifications.POST("/subscribe", notificationController.Subscribe)
			notifications.DELETE("/subscribe", notificationController.Unsubscribe)
			notifications.POST("/test", notificationController.SendTest)
		}

		// Economic calendar routes
		events := api.Group("/events", middleware.JWTAuthMiddleware())
		{
			events.GET("", eventController.List)
			events.POST("/sync", eventController.Sync)
		}

		// Weekly report routes
		reports := api.Group("/reports", middleware.JWTAuthMiddleware())
		{
			reports.GET("", reportController.List)
			reports.GET("/latest", reportController.Latest)
			reports.POST("/generate", reportController.Generate)
		}
	}
}
