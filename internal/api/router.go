// Package api wires together all HTTP routes for the digital key service.
//
// Route grouping: everything under /api/v1 is the resource API (users,
// machines, digital keys, permissions, audit logs). The root-level /health,
// /ready, and /version endpoints are for probes and sit outside the rate
// limiter so a saturated client cannot starve Kubernetes health checks.
package api

import (
	"database/sql"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/digitalkey/digitalkey/internal/config"
	"github.com/digitalkey/digitalkey/internal/db/repositories"
	"github.com/digitalkey/digitalkey/internal/middleware"
	"github.com/digitalkey/digitalkey/internal/services"
	"github.com/digitalkey/digitalkey/internal/storage"

	v1 "github.com/digitalkey/digitalkey/internal/api/v1"

	// Import storage backends to register them
	_ "github.com/digitalkey/digitalkey/internal/storage/local"
	_ "github.com/digitalkey/digitalkey/internal/storage/s3"
)

// Version is the service version reported by /version. Overridden at build
// time with -ldflags "-X github.com/digitalkey/digitalkey/internal/api.Version=...".
var Version = "0.1.0"

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) is responsible for calling Shutdown()
// when the process receives a termination signal.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests drain first.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	router.Use(gin.Recovery())

	// Initialize storage backend for backups
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	slog.Info("initialized storage backend", "backend", cfg.Storage.DefaultBackend)

	// Repositories. The permission and audit repositories use sqlx over the
	// same underlying connection pool.
	sqlxDB := sqlx.NewDb(db, "postgres")
	userRepo := repositories.NewUserRepository(db)
	machineRepo := repositories.NewMachineRepository(db)
	keyRepo := repositories.NewDigitalKeyRepository(db)
	permRepo := repositories.NewPermissionRepository(sqlxDB)
	auditRepo := repositories.NewAuditRepository(sqlxDB)

	// Services
	backupSvc := services.NewBackupService(storageBackend, cfg.Backup)
	permSvc := services.NewPermissionService(
		userRepo, machineRepo, keyRepo, permRepo, auditRepo,
		backupSvc, cfg.Database.DeletePolicy,
	)

	// Global middleware
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Probe endpoints, outside the rate limiter
	router.GET("/health", healthCheckHandler(db))
	router.GET("/ready", readinessHandler(db, storageBackend))
	router.GET("/version", versionHandler())

	bg := &BackgroundServices{}

	api := router.Group("/api/v1")
	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		api.Use(middleware.RateLimitMiddleware(limiter))
	}

	// Handlers
	userHandlers := v1.NewUserHandlers(db, permSvc)
	machineHandlers := v1.NewMachineHandlers(db, permSvc)
	keyHandlers := v1.NewDigitalKeyHandlers(db, permSvc, backupSvc)
	permHandlers := v1.NewPermissionHandlers(sqlxDB, permSvc, backupSvc)
	auditHandlers := v1.NewAuditLogHandlers(sqlxDB)

	users := api.Group("/users")
	{
		users.POST("", userHandlers.CreateUserHandler())
		users.GET("", userHandlers.ListUsersHandler())
		users.GET("/:id", userHandlers.GetUserHandler())
		users.GET("/username/:username", userHandlers.GetUserByUsernameHandler())
		users.PUT("/:id", userHandlers.UpdateUserHandler())
		users.DELETE("/:id", userHandlers.DeleteUserHandler())
	}

	machines := api.Group("/machines")
	{
		machines.POST("", machineHandlers.CreateMachineHandler())
		machines.GET("", machineHandlers.ListMachinesHandler())
		machines.GET("/:id", machineHandlers.GetMachineHandler())
		machines.GET("/name/:name", machineHandlers.GetMachineByNameHandler())
		machines.PUT("/:id", machineHandlers.UpdateMachineHandler())
		machines.DELETE("/:id", machineHandlers.DeleteMachineHandler())
	}

	keys := api.Group("/digital-keys")
	{
		keys.POST("", keyHandlers.CreateDigitalKeyHandler())
		keys.GET("", keyHandlers.ListDigitalKeysHandler())
		keys.GET("/:id", keyHandlers.GetDigitalKeyHandler())
		keys.GET("/name/:name", keyHandlers.GetDigitalKeyByNameHandler())
		keys.GET("/owner/:owner", keyHandlers.ListDigitalKeysByOwnerHandler())
		keys.PUT("/:id", keyHandlers.UpdateDigitalKeyHandler())
		keys.DELETE("/:id", keyHandlers.DeleteDigitalKeyHandler())
		keys.GET("/cloud/uploads/list", keyHandlers.ListKeyUploadsHandler())
		keys.GET("/cloud/download/:id", keyHandlers.DownloadKeySnapshotHandler())
	}

	permissions := api.Group("/permissions")
	{
		permissions.POST("/grant", permHandlers.GrantPermissionHandler())
		permissions.GET("", permHandlers.ListPermissionsHandler())
		permissions.GET("/:id", permHandlers.GetPermissionHandler())
		permissions.GET("/user/:id", permHandlers.ListUserPermissionsHandler())
		permissions.GET("/machine/:id", permHandlers.ListMachinePermissionsHandler())
		permissions.GET("/user/:id/machine/:machine_id", permHandlers.GetPairPermissionHandler())
		permissions.PUT("/:id", permHandlers.UpdatePermissionHandler())
		permissions.POST("/:id/revoke", permHandlers.RevokePermissionHandler())
		permissions.POST("/user/:id/machine/:machine_id/revoke", permHandlers.RevokePairPermissionHandler())
		permissions.DELETE("/:id", permHandlers.DeletePermissionHandler())
		permissions.GET("/access/user/:id", permHandlers.UserAccessHandler())
		permissions.GET("/access/machine/:id", permHandlers.MachineAccessHandler())
		permissions.GET("/cloud/uploads/list", permHandlers.ListPermissionUploadsHandler())
		permissions.GET("/cloud/download/:id", permHandlers.DownloadPermissionSnapshotHandler())
	}

	api.GET("/audit-logs", auditHandlers.ListAuditLogsHandler())

	return router, bg
}

// healthCheckHandler is the liveness probe: process up, database reachable.
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks the storage backend so
// that a Kubernetes readiness gate fails when backup writes would error.
func readinessHandler(db *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent sentinel path. Exists() exercises
		// authentication and connectivity without creating any state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the service version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog. The output
// format (json or text) follows the global handler installed by
// telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID := c.GetString(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", requestID),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
