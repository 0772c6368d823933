// Package api provides the REST API handlers and server for Chronarr.
// It includes endpoints for live sensors, profiles, chime schedules,
// notifications, and real-time updates via WebSocket.
package api

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/chronarr/internal/config"
	"github.com/mescon/chronarr/internal/crypto"
	"github.com/mescon/chronarr/internal/db"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/metrics"
	"github.com/mescon/chronarr/internal/notifier"
	"github.com/mescon/chronarr/internal/services"
)

type RESTServer struct {
	router     *gin.Engine
	httpServer *http.Server
	db         *sql.DB
	store      *db.Repository
	eventBus   *eventbus.EventBus
	sensors    *services.SensorService
	scheduler  services.Scheduler
	notifier   *notifier.Notifier
	metrics    *metrics.MetricsService
	hub        *WebSocketHub
	startTime  time.Time
}

// ServerDeps contains all dependencies required for the REST server
type ServerDeps struct {
	Store     *db.Repository
	EventBus  *eventbus.EventBus
	Sensors   *services.SensorService
	Scheduler services.Scheduler
	Notifier  *notifier.Notifier
	Metrics   *metrics.MetricsService
}

func NewRESTServer(deps ServerDeps) *RESTServer {
	// Set Gin to release mode for production (suppresses debug warnings)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Request ID middleware for correlation/tracing
	r.Use(func(c *gin.Context) {
		// Use existing request ID from header if provided, otherwise generate one
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixNano(), c.Request.ContentLength)
		}
		c.Set("request_id", reqID)
		c.Header("X-Request-ID", reqID)
		c.Next()
	})

	// Custom recovery middleware with enhanced logging
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		reqID := c.GetString("request_id")
		logger.Errorf("[PANIC RECOVERY] request_id=%s path=%s method=%s error=%v",
			reqID, c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":      "Internal server error",
			"request_id": reqID,
		})
	}))

	// CORS middleware - configurable via CHRONARR_CORS_ORIGIN env var
	// If not set, defaults to same-origin (no CORS header = browser enforces same-origin)
	// Set to "*" only for development, or specify allowed origins comma-separated
	corsOrigins := os.Getenv("CHRONARR_CORS_ORIGIN")
	allowedOrigins := make(map[string]bool)
	if corsOrigins != "" {
		for _, origin := range strings.Split(corsOrigins, ",") {
			allowedOrigins[strings.TrimSpace(origin)] = true
		}
	}

	r.Use(func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// Only set CORS headers if origin is allowed
		if corsOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowedOrigins[origin] {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Vary", "Origin")
		}
		// If no match, don't set Access-Control-Allow-Origin (same-origin policy applies)

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	s := &RESTServer{
		router:    r,
		db:        deps.Store.DB,
		store:     deps.Store,
		eventBus:  deps.EventBus,
		sensors:   deps.Sensors,
		scheduler: deps.Scheduler,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		hub:       NewWebSocketHub(deps.EventBus, deps.Metrics),
		startTime: time.Now(),
	}

	s.setupRoutes()

	return s
}

// routeNotificationByID is the route path for notification operations by ID
const routeNotificationByID = "/config/notifications/:id"

func (s *RESTServer) setupRoutes() {
	cfg := config.Get()
	basePath := cfg.BasePath

	// Prometheus metrics endpoint at root level (standard convention, not behind base path)
	// This makes it easy for Prometheus to discover and scrape without knowing the base path
	s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	// Create a group for the base path (or use root if basePath is "/")
	var base *gin.RouterGroup
	if basePath == "/" {
		base = s.router.Group("")
	} else {
		base = s.router.Group(basePath)
		// Redirect root to base path
		s.router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, basePath)
		})
	}

	api := base.Group("/api")
	{
		// Health check endpoint (no authentication required)
		api.GET("/health", s.handleHealth)

		// System info endpoint (no authentication required - useful for debugging)
		api.GET("/system/info", s.handleSystemInfo)

		// Prometheus metrics endpoint (no authentication required for scraping)
		api.GET("/metrics", gin.WrapH(s.metrics.Handler()))

		// Public auth endpoints with rate limiting
		api.POST("/auth/setup", SetupLimiter.Middleware(), s.handleAuthSetup)
		api.POST("/auth/login", LoginLimiter.Middleware(), s.handleLogin)
		api.GET("/auth/status", s.handleAuthStatus)

		// Protected endpoints (require API key authentication)
		protected := api.Group("")
		protected.Use(s.authMiddleware())
		{
			// Auth management
			protected.GET("/auth/key", s.getAPIKey)
			protected.POST("/auth/regenerate", s.regenerateAPIKey)
			protected.POST("/auth/password", s.changePassword)

			// Representation kind catalog
			protected.GET("/kinds", s.getKinds)

			// Live sensors
			protected.GET("/sensors", s.getSensors)
			protected.GET("/sensors/:unique_id", s.getSensor)

			// Profiles
			protected.GET("/config/profiles", s.getProfiles)
			protected.POST("/config/profiles", s.createProfile)
			protected.GET("/config/profiles/:id", s.getProfile)
			protected.PUT("/config/profiles/:id", s.updateProfile)
			protected.DELETE("/config/profiles/:id", s.deleteProfile)

			// Chime schedules
			protected.GET("/config/schedules", s.getSchedules)
			protected.POST("/config/schedules", s.addSchedule)
			protected.PUT("/config/schedules/:id", s.updateSchedule)
			protected.DELETE("/config/schedules/:id", s.deleteSchedule)

			// Notifications
			protected.GET("/config/notifications", s.getNotifications)
			protected.POST("/config/notifications", s.createNotification)
			protected.PUT(routeNotificationByID, s.updateNotification)
			protected.DELETE(routeNotificationByID, s.deleteNotification)
			protected.POST("/config/notifications/test", s.testNotification)
			protected.GET("/config/notifications/events", s.getNotificationEvents)
			protected.GET(routeNotificationByID+"/log", s.getNotificationLog)
			protected.GET(routeNotificationByID, s.getNotification)

			// Config - server settings, export/import, backup
			protected.PUT("/config/settings", s.updateSettings)
			protected.POST("/config/restart", s.restartServer)
			protected.GET("/config/export", s.exportConfig)
			protected.POST("/config/import", s.importConfig)
			protected.GET("/config/backup/download", s.downloadDatabaseBackup)

			// Live updates
			protected.GET("/ws", func(c *gin.Context) {
				s.hub.HandleConnection(c)
			})

			// Logs
			protected.GET("/logs/recent", s.handleRecentLogs)
			protected.GET("/logs/download", s.handleDownloadLogs)
		}
	}

	// Chronarr is headless: no web assets, API only
	s.setupAPIOnlyMode(basePath)
}

// setupAPIOnlyMode routes everything outside the API to a JSON pointer at it
func (s *RESTServer) setupAPIOnlyMode(basePath string) {
	apiPrefix := "/api/"
	if basePath != "/" {
		apiPrefix = basePath + "/api/"
	}

	s.router.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, apiPrefix) || strings.HasPrefix(path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
		} else {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error":   "No web UI",
				"message": "Chronarr is a headless service. Use the REST API.",
				"api":     apiPrefix,
			})
		}
	})
}

func (s *RESTServer) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server and the WebSocket hub.
func (s *RESTServer) Shutdown(ctx context.Context) error {
	s.hub.Shutdown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *RESTServer) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get token from header
		token := c.GetHeader("X-API-Key")
		if token == "" {
			token = c.GetHeader("Authorization")
			// Remove "Bearer " prefix if present
			if len(token) > 7 && token[:7] == "Bearer " {
				token = token[7:]
			}
		}

		// Also check query parameter (for WebSockets)
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			token = c.Query("apikey")
		}

		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No authentication token provided"})
			c.Abort()
			return
		}

		// Verify token matches stored API key
		var encryptedKey string
		err := s.db.QueryRow("SELECT value FROM settings WHERE key = 'api_key'").Scan(&encryptedKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication error"})
			c.Abort()
			return
		}

		// Decrypt the stored API key
		storedKey, err := crypto.Decrypt(encryptedKey)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication error"})
			c.Abort()
			return
		}

		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(token), []byte(storedKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Next()
	}
}
