package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mescon/chronarr/internal/config"
	"github.com/mescon/chronarr/internal/db"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/notifier"
)

// updateSettings persists runtime settings. Base path and timezone are read
// once at startup, so changes only take effect after a restart.
func (s *RESTServer) updateSettings(c *gin.Context) {
	var req struct {
		BasePath *string `json:"base_path"`
		Timezone *string `json:"timezone"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	if req.BasePath == nil && req.Timezone == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No settings provided"})
		return
	}

	updated := gin.H{}

	if req.BasePath != nil {
		// Normalize base path
		basePath := *req.BasePath
		if basePath != "/" && basePath != "" {
			if !strings.HasPrefix(basePath, "/") {
				basePath = "/" + basePath
			}
			basePath = strings.TrimSuffix(basePath, "/")
		}
		if basePath == "" {
			basePath = "/"
		}

		if err := s.store.SetSetting("base_path", basePath); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting"})
			return
		}
		logger.Infof("Base path setting updated to: %s", basePath)
		updated["base_path"] = basePath
	}

	if req.Timezone != nil {
		// An empty value clears the stored zone so the server falls back
		// to its local zone on the next start.
		timezone := strings.TrimSpace(*req.Timezone)
		if timezone != "" {
			if _, err := time.LoadLocation(timezone); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown timezone %q", timezone)})
				return
			}
		}

		if err := s.store.SetSetting("timezone", timezone); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting"})
			return
		}
		logger.Infof("Timezone setting updated to: %q", timezone)
		updated["timezone"] = timezone
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "Settings saved. Restart required for changes to take effect.",
		"updated":          updated,
		"restart_required": true,
	})
}

// restartProcessFunc points at the platform restart and is swapped out in tests.
var restartProcessFunc = restartProcess

func (s *RESTServer) restartServer(c *gin.Context) {
	logger.Infof("Server restart requested via API")

	// Send response before restarting
	c.JSON(http.StatusOK, gin.H{"message": "Server restarting..."})

	// Give time for the response to be sent
	go func() {
		time.Sleep(500 * time.Millisecond)
		logger.Infof("Initiating server restart...")

		// Platform-specific restart (see restart_unix.go and restart_windows.go)
		restartProcessFunc()
	}()
}

// exportConfig exports profiles, chime schedules, and notification configs
// as one JSON bundle.
func (s *RESTServer) exportConfig(c *gin.Context) {
	export := gin.H{
		"exported_at": time.Now().Format(time.RFC3339),
		"version":     config.Version,
	}

	// Profile IDs are part of every sensor's unique id, so they are
	// exported too; importing with the same id keeps unique ids stable
	// across instances.
	profiles, err := s.store.GetAllProfiles()
	if err != nil {
		logger.Errorf("Failed to load profiles for export: %v", err)
	} else {
		exported := make([]gin.H, 0, len(profiles))
		for _, p := range profiles {
			exported = append(exported, gin.H{
				"id": p.ID, "name": p.Name, "kinds": p.Kinds, "enabled": p.Enabled,
			})
		}
		export["profiles"] = exported
	}

	schedRows, err := s.db.Query("SELECT name, cron_expression, kinds, notify, enabled FROM schedules")
	if err != nil {
		logger.Errorf("Failed to load schedules for export: %v", err)
	} else {
		defer schedRows.Close()
		schedules := make([]gin.H, 0)
		for schedRows.Next() {
			var name, cronExpr, kindsJSON string
			var notify, enabled bool
			if err := schedRows.Scan(&name, &cronExpr, &kindsJSON, &notify, &enabled); err != nil {
				logger.Errorf("Failed to scan schedule for export: %v", err)
				continue
			}
			var kinds []string
			if err := json.Unmarshal([]byte(kindsJSON), &kinds); err != nil {
				kinds = []string{}
			}
			schedules = append(schedules, gin.H{
				"name": name, "cron_expression": cronExpr, "kinds": kinds,
				"notify": notify, "enabled": enabled,
			})
		}
		export["schedules"] = schedules
	}

	// Provider configs are exported decrypted so the bundle can be
	// imported on an instance with a different encryption key.
	if s.notifier != nil {
		if configs, err := s.notifier.GetAllConfigs(); err == nil {
			notifConfigs := make([]gin.H, 0, len(configs))
			for _, cfg := range configs {
				notifConfigs = append(notifConfigs, gin.H{
					"name": cfg.Name, "provider_type": cfg.ProviderType,
					"config": cfg.Config, "events": cfg.Events,
					"enabled": cfg.Enabled, "throttle_seconds": cfg.ThrottleSeconds,
				})
			}
			export["notifications"] = notifConfigs
		}
	}

	c.JSON(http.StatusOK, export)
}

// importConfig imports a configuration bundle produced by exportConfig.
// Entries that fail validation or collide with existing names are skipped
// and logged rather than failing the whole import.
func (s *RESTServer) importConfig(c *gin.Context) {
	var req struct {
		Profiles []struct {
			ID      string   `json:"id"`
			Name    string   `json:"name"`
			Kinds   []string `json:"kinds"`
			Enabled *bool    `json:"enabled"`
		} `json:"profiles"`
		Schedules []struct {
			Name           string   `json:"name"`
			CronExpression string   `json:"cron_expression"`
			Kinds          []string `json:"kinds"`
			Notify         bool     `json:"notify"`
			Enabled        *bool    `json:"enabled"`
		} `json:"schedules"`
		Notifications []struct {
			Name            string          `json:"name"`
			ProviderType    string          `json:"provider_type"`
			Config          json.RawMessage `json:"config"`
			Events          []string        `json:"events"`
			Enabled         bool            `json:"enabled"`
			ThrottleSeconds int             `json:"throttle_seconds"`
		} `json:"notifications"`
	}
	if err := c.BindJSON(&req); err != nil {
		respondBadRequest(c, err, true)
		return
	}

	imported := gin.H{"profiles": 0, "schedules": 0, "notifications": 0}

	for _, p := range req.Profiles {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			logger.Warnf("Skipping profile import with empty name")
			continue
		}
		kinds, err := normalizeKindKeys(p.Kinds)
		if err != nil {
			logger.Errorf("Skipping profile %q: %v", name, err)
			continue
		}

		var count int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM profiles WHERE name = ?", name).Scan(&count); err != nil {
			logger.Errorf("Failed to check profile %q for import: %v", name, err)
			continue
		}
		if count > 0 {
			logger.Warnf("Skipping profile %q: name already exists", name)
			continue
		}

		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = uuid.New().String()
		}
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}

		if err := s.store.CreateProfile(&db.Profile{ID: id, Name: name, Kinds: kinds, Enabled: enabled}); err != nil {
			logger.Errorf("Failed to import profile %q: %v", name, err)
			continue
		}
		imported["profiles"] = imported["profiles"].(int) + 1
	}

	for _, sched := range req.Schedules {
		name := strings.TrimSpace(sched.Name)
		if name == "" {
			logger.Warnf("Skipping schedule import with empty name")
			continue
		}

		// AddSchedule validates the cron expression and kind keys and
		// registers the live cron entry.
		id, err := s.scheduler.AddSchedule(name, sched.CronExpression, sched.Kinds, sched.Notify)
		if err != nil {
			logger.Errorf("Failed to import schedule %q: %v", name, err)
			continue
		}
		if sched.Enabled != nil && !*sched.Enabled {
			if err := s.scheduler.UpdateSchedule(id, name, sched.CronExpression, sched.Kinds, sched.Notify, false); err != nil {
				logger.Errorf("Failed to disable imported schedule %q: %v", name, err)
			}
		}
		imported["schedules"] = imported["schedules"].(int) + 1
	}

	if len(req.Notifications) > 0 && s.notifier == nil {
		logger.Warnf("Skipping %d notification imports: notifier not available", len(req.Notifications))
	} else {
		for _, n := range req.Notifications {
			throttle := n.ThrottleSeconds
			if throttle == 0 {
				throttle = 30
			}
			cfg := &notifier.NotificationConfig{
				Name:            n.Name,
				ProviderType:    n.ProviderType,
				Config:          n.Config,
				Events:          n.Events,
				Enabled:         n.Enabled,
				ThrottleSeconds: throttle,
			}
			if _, err := s.notifier.CreateConfig(cfg); err != nil {
				logger.Errorf("Failed to import notification %q: %v", n.Name, err)
				continue
			}
			imported["notifications"] = imported["notifications"].(int) + 1
		}
	}

	// One reconcile after the whole bundle instead of per profile
	if s.sensors != nil {
		if err := s.sensors.ReloadProfiles(); err != nil {
			logger.Errorf("Failed to reload sensors after import: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Import complete", "imported": imported})
}

// downloadDatabaseBackup creates a fresh backup of the database and sends it to the client
func (s *RESTServer) downloadDatabaseBackup(c *gin.Context) {
	cfg := config.Get()
	dbPath := cfg.DatabasePath

	// Create backup directory if it doesn't exist
	backupDir := filepath.Join(filepath.Dir(dbPath), "backups")
	if err := os.MkdirAll(backupDir, 0700); err != nil {
		logger.Errorf("Failed to create backup directory: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create backup directory"})
		return
	}

	// Generate backup filename with timestamp
	timestamp := time.Now().Format("20060102_150405")
	backupFilename := fmt.Sprintf("chronarr_backup_%s.db", timestamp)
	backupPath := filepath.Join(backupDir, backupFilename)

	// Force a WAL checkpoint to ensure all data is in the main database file
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	if err != nil {
		logger.Debugf("WAL checkpoint failed (might not be in WAL mode): %v", err)
	}

	// Copy the database file
	srcFile, err := os.Open(dbPath)
	if err != nil {
		logger.Errorf("Failed to open source database: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open database"})
		return
	}
	defer srcFile.Close()

	dstFile, err := os.Create(backupPath)
	if err != nil {
		logger.Errorf("Failed to create backup file: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create backup file"})
		return
	}

	_, err = io.Copy(dstFile, srcFile)
	dstFile.Close() // Close before sending
	if err != nil {
		os.Remove(backupPath)
		logger.Errorf("Failed to copy database: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to copy database"})
		return
	}

	logger.Infof("Database backup created for download: %s", backupPath)

	// Send the file to the client
	c.Header("Content-Description", "File Transfer")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupFilename))
	c.Header("Content-Type", "application/octet-stream")
	c.File(backupPath)

	// Clean up the temporary backup file after sending (in background)
	go func() {
		time.Sleep(5 * time.Second) // Wait for download to complete
		os.Remove(backupPath)
	}()
}
