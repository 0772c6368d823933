package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mescon/chronarr/internal/api"
	"github.com/mescon/chronarr/internal/clock"
	"github.com/mescon/chronarr/internal/config"
	"github.com/mescon/chronarr/internal/db"
	"github.com/mescon/chronarr/internal/discovery"
	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/metrics"
	"github.com/mescon/chronarr/internal/notifier"
	"github.com/mescon/chronarr/internal/profiles"
	"github.com/mescon/chronarr/internal/sensor"
	"github.com/mescon/chronarr/internal/services"
)

func main() {
	// Define command line flags (these override environment variables)
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.BoolVar(showVersion, "v", false, "Print version and exit (shorthand)")

	// Configuration flags - all can also be set via environment variables (CHRONARR_*)
	flagPort := flag.String("port", "", "HTTP server port (env: CHRONARR_PORT, default: 3121)")
	flagBasePath := flag.String("base-path", "", "URL base path for reverse proxy (env: CHRONARR_BASE_PATH, default: /)")
	flagLogLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (env: CHRONARR_LOG_LEVEL, default: info)")
	flagTimezone := flag.String("timezone", "", "IANA zone for local-time sensors (env: CHRONARR_TIMEZONE, default: system local)")
	flagProfilesFile := flag.String("profiles-file", "", "YAML profiles file watched for changes (env: CHRONARR_PROFILES_FILE)")
	flagDataDir := flag.String("data-dir", "", "Data directory path (env: CHRONARR_DATA_DIR)")
	flagDatabasePath := flag.String("database-path", "", "Database file path (env: CHRONARR_DATABASE_PATH)")
	flagDiscovery := flag.Bool("discovery", true, "Advertise the API over mDNS (env: CHRONARR_DISCOVERY, default: true)")
	flagRetentionDays := flag.Int("retention-days", -1, "Days to keep notification history, 0 to disable pruning (env: CHRONARR_RETENTION_DAYS, default: 30)")
	flagShutdownTimeout := flag.Duration("shutdown-timeout", 0, "Graceful shutdown deadline (env: CHRONARR_SHUTDOWN_TIMEOUT, default: 10s)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("Chronarr %s\n", config.Version)
		os.Exit(0)
	}

	// Load configuration from environment variables (initial load, refreshed after flags)
	config.Load()

	// Apply command-line flag overrides
	flagOverrides := config.FlagOverrides{
		Port:            flagPort,
		BasePath:        flagBasePath,
		LogLevel:        flagLogLevel,
		Timezone:        flagTimezone,
		ProfilesFile:    flagProfilesFile,
		DataDir:         flagDataDir,
		DatabasePath:    flagDatabasePath,
		ShutdownTimeout: flagShutdownTimeout,
	}
	// Only pass the discovery flag through when it was given on the command line,
	// otherwise the default would stomp the CHRONARR_DISCOVERY env setting
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "discovery" {
			flagOverrides.Discovery = flagDiscovery
		}
	})
	// Special handling for retention days: -1 means not set (use default), 0 means disable
	if *flagRetentionDays >= 0 {
		flagOverrides.RetentionDays = flagRetentionDays
	}
	config.ApplyFlags(flagOverrides)

	// Refresh config after applying flags
	cfg := config.Get()

	// Initialize logger with configured log directory
	logger.Init(cfg.LogDir)

	// Set log level from config
	logger.SetLevel(cfg.LogLevel)

	logger.Infof("========================================")
	logger.Infof("Starting Chronarr %s...", config.Version)
	logger.Infof("Clock & calendar sensor hub")
	logger.Infof("========================================")

	// Log initial configuration (base path and timezone may be updated from DB)
	logger.Infof("Configuration:")
	logger.Infof("  Port: %s", cfg.Port)
	logger.Infof("  Log Level: %s", cfg.LogLevel)
	logger.Infof("  Data Directory: %s", cfg.DataDir)
	logger.Infof("  Database: %s", cfg.DatabasePath)
	logger.Infof("  Log Directory: %s", cfg.LogDir)
	logger.Infof("  Profiles File: %s", cfg.ProfilesFile)
	logger.Infof("  mDNS Discovery: %t", cfg.DiscoveryEnabled)
	if cfg.RetentionDays > 0 {
		logger.Infof("  Notification Retention: %d days", cfg.RetentionDays)
	} else {
		logger.Infof("  Notification Retention: disabled (no automatic pruning)")
	}

	// Initialize Database
	logger.Infof("Initializing database: %s", cfg.DatabasePath)
	repo, err := db.NewRepository(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to initialize database: %v", err)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Infof("✓ Database initialized successfully")

	// Create a database backup on startup
	if backupPath, err := repo.Backup(cfg.DatabasePath); err != nil {
		logger.Errorf("Failed to create startup backup: %v", err)
	} else {
		logger.Infof("✓ Database backup created: %s", backupPath)
	}

	// Start scheduled backup goroutine (every 6 hours)
	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := repo.Backup(cfg.DatabasePath); err != nil {
				logger.Errorf("Scheduled backup failed: %v", err)
			}
		}
	}()

	// Start scheduled maintenance goroutine (daily at 3 AM local time)
	go func() {
		retentionDays := cfg.RetentionDays // Capture config value for goroutine
		for {
			// Calculate time until next 3 AM
			now := time.Now()
			next3AM := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next3AM) {
				next3AM = next3AM.Add(24 * time.Hour)
			}
			sleepDuration := next3AM.Sub(now)
			logger.Debugf("Next database maintenance scheduled in %v", sleepDuration)

			time.Sleep(sleepDuration)

			// Run maintenance with configured retention
			if err := repo.RunMaintenance(retentionDays); err != nil {
				logger.Errorf("Scheduled maintenance failed: %v", err)
			}
		}
	}()

	// Periodic WAL checkpointing keeps the log file bounded between backups
	stopCheckpoint := repo.StartPeriodicCheckpoint(5 * time.Minute)

	// Load base path from database if not set via environment
	config.LoadBasePathFromDB(repo.DB)

	// First boot with an empty store: import the profiles file (or create the
	// default "time" profile). A timezone in the file lands in the settings
	// table before the timezone is resolved below.
	if _, err := profiles.ImportOnFirstBoot(repo, cfg.ProfilesFile); err != nil {
		logger.Errorf("Failed to seed initial profiles: %v", err)
		os.Exit(1)
	}

	// Load timezone from database if not set via environment or flag
	config.LoadTimezoneFromDB(repo.DB)
	cfg = config.Get() // Refresh config after DB load
	logger.Infof("  Base Path: %s (source: %s)", cfg.BasePath, cfg.BasePathSource)

	// Resolve the time zone once; every sensor shares it. A configured zone
	// that fails to load is fatal before any sensor is built.
	loc, err := cfg.ResolveLocation()
	if err != nil {
		logger.Errorf("Timezone %q is not usable: %v", cfg.Timezone, err)
		os.Exit(1)
	}
	if cfg.Timezone == "" {
		logger.Warnf("No timezone configured, falling back to system local zone %s", loc)
	}
	logger.Infof("  Timezone: %s (source: %s)", loc, cfg.TimezoneSource)

	// Initialize Event Bus
	logger.Infof("Initializing Event Bus...")
	eb := eventbus.NewEventBus()
	logger.Infof("✓ Event Bus initialized")

	// Initialize the sensor manager and bring up sensors from stored profiles
	logger.Infof("Initializing Sensor Manager (timezone: %s)...", loc)
	sensorManager, err := sensor.NewManager(loc, clock.NewRealClock(), eb, repo, nil)
	if err != nil {
		logger.Errorf("Failed to initialize sensor manager: %v", err)
		os.Exit(1)
	}
	sensorService := services.NewSensorService(repo, sensorManager)
	if err := sensorService.ReloadProfiles(); err != nil {
		logger.Errorf("Failed to activate sensors: %v", err)
		os.Exit(1)
	}
	logger.Infof("✓ Sensor Manager (%d sensors active)", sensorService.Count())

	// Watch the profiles file for edits and sync changes into the store
	logger.Infof("Starting profiles file watcher: %s", cfg.ProfilesFile)
	profilesManager := profiles.NewManager(cfg.ProfilesFile)
	profilesSub := profilesManager.Subscribe(4)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	go func() {
		if err := profilesManager.Watch(watchCtx); err != nil {
			logger.Errorf("Profiles file watcher stopped: %v", err)
		}
	}()
	go func() {
		for f := range profilesSub {
			created, updated, err := profiles.SyncToStore(repo, f)
			if err != nil {
				logger.Errorf("Failed to sync profiles file: %v", err)
				continue
			}
			if err := sensorService.ReloadProfiles(); err != nil {
				logger.Errorf("Failed to reconcile sensors after file change: %v", err)
				continue
			}
			logger.Infof("Profiles file applied (%d created, %d updated)", created, updated)
			if err := eb.Publish(domain.Event{
				AggregateType: "profiles",
				AggregateID:   cfg.ProfilesFile,
				EventType:     domain.ProfilesFileReloaded,
				EventData: map[string]interface{}{
					"count":   len(f.Profiles),
					"created": created,
					"updated": updated,
				},
			}); err != nil {
				logger.Errorf("Failed to publish profiles reload event: %v", err)
			}
		}
	}()
	logger.Infof("✓ Profiles file watcher started")

	// Initialize the chime scheduler
	logger.Infof("Initializing Chime Scheduler...")
	schedulerService := services.NewSchedulerService(repo.DB, eb, loc)
	schedulerService.Start()
	logger.Infof("✓ Chime Scheduler (cron-based announcements)")

	// Initialize Notifier Service
	logger.Infof("Initializing Notification Service...")
	notifierService := notifier.NewNotifier(repo.DB, eb)
	if err := notifierService.Start(); err != nil {
		logger.Errorf("Failed to start notification service: %v", err)
		// Non-fatal - continue without notifications
	} else {
		logger.Infof("✓ Notification Service (alerts for events)")
	}

	// Initialize Metrics Service (Prometheus metrics)
	logger.Infof("Initializing Metrics Service...")
	metricsService := metrics.NewMetricsService(eb)
	metricsService.Start()
	metricsService.SetBuildInfo(config.Version)
	logger.Infof("✓ Metrics Service (Prometheus endpoint at /metrics)")

	// Advertise the API over mDNS so LAN clients can find the server
	var advertiser *discovery.Advertiser
	if cfg.DiscoveryEnabled {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil {
			logger.Warnf("Cannot advertise over mDNS: invalid port %q", cfg.Port)
		} else {
			advertiser = discovery.NewAdvertiser(discovery.Config{
				Port:    port,
				Version: config.Version,
			})
			if err := advertiser.Start(); err != nil {
				logger.Warnf("mDNS advertisement failed: %v", err)
				advertiser = nil
			} else {
				logger.Infof("✓ mDNS advertisement (%s.%s)", discovery.ServiceType, discovery.Domain)
			}
		}
	}

	// Start API Server
	logger.Infof("Initializing REST API and WebSocket server...")
	apiServer := api.NewRESTServer(api.ServerDeps{
		Store:     repo,
		EventBus:  eb,
		Sensors:   sensorService,
		Scheduler: schedulerService,
		Notifier:  notifierService,
		Metrics:   metricsService,
	})
	go func() {
		addr := ":" + cfg.Port
		if err := apiServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Failed to start API server: %v", err)
			os.Exit(1)
		}
	}()

	logger.Infof("========================================")
	logger.Infof("✓ Chronarr %s started successfully", config.Version)
	logger.Infof("✓ Server listening on port %s", cfg.Port)
	if cfg.BasePath != "/" {
		logger.Infof("✓ API available at base path: %s", cfg.BasePath)
	}
	logger.Infof("========================================")

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Infof("========================================")
	logger.Infof("Received signal %v, initiating graceful shutdown...", sig)
	logger.Infof("========================================")

	// Create a context with timeout for graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Shutdown in reverse order of startup
	if advertiser != nil {
		logger.Infof("Stopping mDNS advertisement...")
		advertiser.Shutdown()
		logger.Infof("✓ mDNS advertisement stopped")
	}

	logger.Infof("Stopping profiles file watcher...")
	watchCancel()
	profilesManager.Unsubscribe(profilesSub)
	logger.Infof("✓ Profiles file watcher stopped")

	logger.Infof("Stopping Chime Scheduler...")
	schedulerService.Stop()
	logger.Infof("✓ Chime Scheduler stopped")

	logger.Infof("Stopping Notification Service...")
	notifierService.Stop()
	logger.Infof("✓ Notification Service stopped")

	logger.Infof("Deactivating sensors...")
	sensorService.Shutdown()
	logger.Infof("✓ All sensors deactivated")

	logger.Infof("Stopping Event Bus...")
	eb.Shutdown()
	logger.Infof("✓ Event Bus stopped")

	logger.Infof("Stopping API Server...")
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("API Server shutdown error: %v", err)
	} else {
		logger.Infof("✓ API Server stopped")
	}

	logger.Infof("Closing database connection...")
	stopCheckpoint()
	if err := repo.GracefulClose(); err != nil {
		logger.Errorf("Failed to close database connection: %v", err)
	} else {
		logger.Infof("✓ Database connection closed")
	}

	logger.Infof("========================================")
	logger.Infof("✓ Chronarr shutdown complete")
	logger.Infof("========================================")
}
