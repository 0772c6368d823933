package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/chronarr/internal/config"
	"github.com/mescon/chronarr/internal/logger"
)

// formatUptime returns a human-readable uptime string
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// checkDatabaseHealth checks database connectivity and returns status
func (s *RESTServer) checkDatabaseHealth(ctx context.Context) (gin.H, bool) {
	dbHealth := gin.H{"status": "connected"}
	healthy := true

	if err := s.db.PingContext(ctx); err != nil {
		healthy = false
		dbHealth["status"] = "error"
		dbHealth["error"] = err.Error()
	} else {
		dbPath := config.Get().DatabasePath
		if info, err := os.Stat(dbPath); err == nil {
			dbHealth["size_bytes"] = info.Size()
		}
	}

	return dbHealth, healthy
}

// handleHealth returns server health status for container orchestration.
// This endpoint must return quickly (within 5 seconds) for Docker healthchecks.
func (s *RESTServer) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	cfg := config.Get()

	// Check database health
	dbHealth, dbHealthy := s.checkDatabaseHealth(ctx)

	// Count enabled chime schedules
	var schedules int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schedules WHERE enabled = 1").Scan(&schedules); err != nil {
		logger.Debugf("Failed to count enabled schedules: %v", err)
	}

	// Determine overall status. A healthy Chronarr has a reachable database
	// and at least one live sensor; zero sensors means every profile is
	// disabled or empty.
	activeSensors := 0
	if s.sensors != nil {
		activeSensors = s.sensors.Count()
	}

	status := "healthy"
	if !dbHealthy {
		status = "degraded"
	} else if activeSensors == 0 {
		status = "degraded"
	}

	health := gin.H{
		"status":            status,
		"version":           config.Version,
		"uptime":            formatUptime(time.Since(s.startTime)),
		"timezone":          cfg.Timezone,
		"timezone_source":   cfg.TimezoneSource,
		"database":          dbHealth,
		"active_sensors":    activeSensors,
		"active_schedules":  schedules,
		"websocket_clients": s.hub.ClientCount(),
	}

	c.JSON(http.StatusOK, health)
}
