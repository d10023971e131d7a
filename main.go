package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"finz_backend/config"
	"finz_backend/logging"
	"finz_backend/middleware"
	"finz_backend/models"
	"finz_backend/routes"
	"finz_backend/scheduler"
	"finz_backend/services"
	"finz_backend/services/alerts"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// dbInitialized gates the /ready endpoint; the database connects in
// the background after the server starts listening.
var dbInitialized bool
var dbInitMutex sync.RWMutex

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Warn().Err(err).Msg("Config load issue")
	}

	logging.Setup(cfg.Environment)
	log.Info().Str("environment", cfg.Environment).Msg("Finz backend starting")

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Health endpoints first so the platform sees the service up while
	// the database connects in the background
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	var jobScheduler *scheduler.Scheduler
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Error().Err(err).Msg("Database connection failed, running health checks only")
			return
		}

		log.Info().Msg("Running database migrations...")
		if err := runMigrations(); err != nil {
			log.Error().Err(err).Msg("Migration failed")
		} else {
			log.Info().Msg("Database migrations completed")
		}

		initializeGlobalServices()

		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		alertSvc := alerts.NewService(db, services.GlobalQuoteService, services.GlobalPushService, alerts.Config{
			Broadcaster: services.GlobalStreamService,
		})

		middleware.InitLoginRateLimiter()
		routes.SetupRoutes(router, db, alertSvc)

		calendar, err := scheduler.NewMarketCalendar(cfg.MarketTimezone)
		if err != nil {
			log.Error().Err(err).Msg("Market calendar unavailable, scheduler not started")
			return
		}
		rsiJob := scheduler.NewRsiJob(services.GlobalRsiService, calendar)

		jobScheduler = scheduler.NewScheduler(alertSvc, rsiJob,
			services.GlobalEventService, services.GlobalReportService, calendar)
		go jobScheduler.Start()

		log.Info().Msg("Application fully initialized")
	}()

	gracefulShutdown(server, jobScheduler)
}

// runMigrations runs all database migrations
func runMigrations() error {
	db := config.DB

	if err := models.MigrateUserModels(db); err != nil {
		return err
	}
	if err := models.MigrateAlertModels(db); err != nil {
		return err
	}
	if err := models.MigrateRsiModels(db); err != nil {
		return err
	}
	if err := models.MigrateNotificationModels(db); err != nil {
		return err
	}
	if err := models.MigrateEventModels(db); err != nil {
		return err
	}
	if err := models.MigrateReportModels(db); err != nil {
		return err
	}
	return nil
}

// initializeGlobalServices initializes global service instances
func initializeGlobalServices() {
	if err := services.InitQuoteService(); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize quote service")
	}
	if err := services.InitRsiService(config.DB, config.AppConfig.TwelveDataAPIKey); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize RSI service")
	}
	if err := services.InitPushService(config.DB, config.AppConfig.VAPIDPublicKey, config.AppConfig.VAPIDPrivateKey); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize push service")
	}
	if err := services.InitStreamService(); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize stream service")
	}
	if err := services.InitEventService(config.DB, config.AppConfig.CalendarAPIKey); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize event service")
	}
	if err := services.InitGroqService(config.AppConfig.GroqAPIKey); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Groq service")
	}
	if err := services.InitWeeklyDataService(); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize weekly data service")
	}
	if err := services.InitReportService(config.DB, services.GlobalWeeklyDataService, services.GlobalGroqService); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize report service")
	}

	log.Info().Msg("Global services initialized")
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Finz Backend API",
			"version": "1.0.0",
		})
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database ping failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs errors and slow requests, skipping probe noise
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > time.Second {
			log.Warn().
				Str("method", c.Request.Method).
				Str("path", path).
				Int("status", c.Writer.Status()).
				Dur("duration", duration).
				Msg("request")
		}
	}
}

// gracefulShutdown stops the scheduler, the server and the database
func gracefulShutdown(server *http.Server, jobScheduler *scheduler.Scheduler) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	if jobScheduler != nil {
		jobScheduler.Stop()
	}
	if services.GlobalStreamService != nil {
		services.GlobalStreamService.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if config.DB != nil {
		if sqlDB, err := config.DB.DB(); err == nil {
			sqlDB.Close()
			log.Info().Msg("Database connection closed")
		}
	}

	log.Info().Msg("Server shutdown completed")
}
