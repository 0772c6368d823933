package config

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Version is set at build time via -ldflags
// Default "dev" is used for development builds
var Version = "dev"

// Config holds all application configuration loaded from environment variables.
// All fields have sensible defaults if environment variables are not set.
type Config struct {
	// Port is the HTTP server listen port (default: 3121)
	Port string

	// BasePath is the URL base path for reverse proxy setups (default: "/")
	// Example: "/chronarr" if hosting at domain.com/chronarr/
	BasePath string

	// BasePathSource indicates where the base path came from: "environment", "database", or "default"
	BasePathSource string

	// LogLevel controls logging verbosity: "debug", "info", "warn", "error" (default: "info")
	LogLevel string

	// Timezone is the IANA zone name used for local-time values (default: "" = system local)
	// Example: "Europe/Berlin". Sensors cannot start if the configured zone fails to load.
	Timezone string

	// TimezoneSource indicates where the timezone came from: "environment", "database", or "default"
	TimezoneSource string

	// ProfilesFile is the optional YAML profiles file watched for hot reload
	// (default: <DataDir>/chronarr.yml)
	ProfilesFile string

	// DiscoveryEnabled controls mDNS advertisement of the API (default: true)
	DiscoveryEnabled bool

	// RetentionDays is the number of days to keep notification log entries (default: 30)
	// Set to 0 to disable automatic pruning
	RetentionDays int

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and workers (default: 10s)
	ShutdownTimeout time.Duration

	// DataDir is the directory for persistent data (database, logs, backups, pid file)
	// Default: /config in Docker, ./config locally
	DataDir string

	// DatabasePath is the SQLite database file path (default: <DataDir>/chronarr.db)
	DatabasePath string

	// LogDir is the directory for log files (default: <DataDir>/logs)
	LogDir string
}

// Global singleton
var cfg *Config

// Load reads configuration from environment variables with sensible defaults.
// Should be called once at application startup.
func Load() *Config {
	basePath := getEnvOrDefault("CHRONARR_BASE_PATH", "")
	basePathSource := "default"

	if basePath != "" {
		basePathSource = "environment"
	} else {
		basePath = "/"
	}

	// Normalize base path: ensure it starts with / and doesn't end with /
	if basePath != "/" {
		if !strings.HasPrefix(basePath, "/") {
			basePath = "/" + basePath
		}
		basePath = strings.TrimSuffix(basePath, "/")
	}

	timezone := getEnvOrDefault("CHRONARR_TIMEZONE", "")
	timezoneSource := "default"
	if timezone != "" {
		timezoneSource = "environment"
	}

	// Determine DataDir - this is where all persistent data lives
	// Default: ./config (relative to executable or cwd)
	// In Docker: /config is created automatically
	dataDir := getEnvOrDefault("CHRONARR_DATA_DIR", "")
	if dataDir == "" {
		// Check if we're in Docker (has /config directory)
		if info, err := os.Stat("/config"); err == nil && info.IsDir() {
			dataDir = "/config"
		} else {
			// Local/bare-metal - use ./config relative to executable or cwd
			if execPath, err := os.Executable(); err == nil {
				execDir := filepath.Dir(execPath)
				dataDir = filepath.Join(execDir, "config")
			} else if cwd, err := os.Getwd(); err == nil {
				dataDir = filepath.Join(cwd, "config")
			} else {
				dataDir = "./config"
			}
		}
	}

	// Ensure dataDir is absolute
	if absDataDir, err := filepath.Abs(dataDir); err == nil {
		dataDir = absDataDir
	}

	// Create data directory if it doesn't exist
	os.MkdirAll(dataDir, 0755)

	// Database path - inside data directory unless explicitly set
	dbPath := getEnvOrDefault("CHRONARR_DATABASE_PATH", "")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "chronarr.db")
	}

	// Profiles file - inside data directory unless explicitly set
	profilesFile := getEnvOrDefault("CHRONARR_PROFILES_FILE", "")
	if profilesFile == "" {
		profilesFile = filepath.Join(dataDir, "chronarr.yml")
	}

	// Log directory - inside data directory
	logDir := filepath.Join(dataDir, "logs")
	os.MkdirAll(logDir, 0755)

	cfg = &Config{
		Port:             getEnvOrDefault("CHRONARR_PORT", "3121"),
		BasePath:         basePath,
		BasePathSource:   basePathSource,
		LogLevel:         strings.ToLower(getEnvOrDefault("CHRONARR_LOG_LEVEL", "info")),
		Timezone:         timezone,
		TimezoneSource:   timezoneSource,
		ProfilesFile:     profilesFile,
		DiscoveryEnabled: getEnvBoolOrDefault("CHRONARR_DISCOVERY", true),
		RetentionDays:    getEnvIntOrDefault("CHRONARR_RETENTION_DAYS", 30),
		ShutdownTimeout:  getEnvDurationOrDefault("CHRONARR_SHUTDOWN_TIMEOUT", 10*time.Second),
		DataDir:          dataDir,
		DatabasePath:     dbPath,
		LogDir:           logDir,
	}

	// Validate log level
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
		// Valid
	default:
		cfg.LogLevel = "info" // Fall back to info for invalid values
	}

	return cfg
}

// LoadBasePathFromDB loads the base path from the database if not set via environment.
// Should be called after database is initialized.
func LoadBasePathFromDB(db *sql.DB) {
	if cfg == nil {
		return
	}

	// Environment and command-line flags win over the stored setting
	if cfg.BasePathSource == "environment" || cfg.BasePathSource == "flag" {
		return
	}

	var basePath string
	err := db.QueryRow("SELECT value FROM settings WHERE key = 'base_path'").Scan(&basePath)
	if err != nil || basePath == "" {
		return // Keep default
	}

	// Normalize
	if basePath != "/" {
		if !strings.HasPrefix(basePath, "/") {
			basePath = "/" + basePath
		}
		basePath = strings.TrimSuffix(basePath, "/")
	}

	cfg.BasePath = basePath
	cfg.BasePathSource = "database"
}

// LoadTimezoneFromDB loads the timezone from the database if not set via environment.
// Should be called after database is initialized and before sensors are built.
func LoadTimezoneFromDB(db *sql.DB) {
	if cfg == nil {
		return
	}

	// Environment and command-line flags win over the stored setting
	if cfg.TimezoneSource == "environment" || cfg.TimezoneSource == "flag" {
		return
	}

	var timezone string
	err := db.QueryRow("SELECT value FROM settings WHERE key = 'timezone'").Scan(&timezone)
	if err != nil || timezone == "" {
		return // Keep default
	}

	cfg.Timezone = timezone
	cfg.TimezoneSource = "database"
}

// ResolveLocation loads the configured timezone. An empty Timezone resolves to
// the system's local zone; a configured zone that cannot be loaded is an error
// the caller must treat as fatal for time-value publishing.
func (c *Config) ResolveLocation() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Get returns the current configuration. Panics if Load() hasn't been called.
func Get() *Config {
	if cfg == nil {
		panic("config.Load() must be called before config.Get()")
	}
	return cfg
}

// SetForTesting allows tests to set the global config without calling Load().
// This should ONLY be used in test code.
func SetForTesting(c *Config) {
	cfg = c
}

// NewTestConfig returns a minimal Config suitable for unit tests.
func NewTestConfig() *Config {
	return &Config{
		Port:             "8080",
		BasePath:         "/",
		BasePathSource:   "test",
		LogLevel:         "debug",
		Timezone:         "UTC",
		TimezoneSource:   "test",
		ProfilesFile:     "/tmp/chronarr-test/chronarr.yml",
		DiscoveryEnabled: false,
		RetentionDays:    30,
		ShutdownTimeout:  10 * time.Second,
		DataDir:          "/tmp/chronarr-test",
		DatabasePath:     "/tmp/chronarr-test/chronarr.db",
		LogDir:           "/tmp/chronarr-test/logs",
	}
}

// getEnvOrDefault returns the environment variable value or the default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvIntOrDefault returns the environment variable as an int or the default if not set/invalid.
func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault returns the environment variable as a duration or the default if not set/invalid.
// Accepts Go duration strings like "30s", "5m", "72h".
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvBoolOrDefault returns the environment variable as a bool or the default if not set.
// Accepts "true", "1", "yes" as true values (case-insensitive); anything else is false.
func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

// FlagOverrides holds command-line flag values that can override environment variables
type FlagOverrides struct {
	Port            *string
	BasePath        *string
	LogLevel        *string
	Timezone        *string
	ProfilesFile    *string
	Discovery       *bool
	RetentionDays   *int
	ShutdownTimeout *time.Duration
	DataDir         *string
	DatabasePath    *string
}

// ApplyFlags applies command-line flag overrides to the configuration.
// Should be called after Load() and after flag parsing.
// Only non-nil values with non-default flag values will override.
func ApplyFlags(flags FlagOverrides) {
	if cfg == nil {
		return
	}

	if flags.Port != nil && *flags.Port != "" {
		cfg.Port = *flags.Port
	}
	if flags.BasePath != nil && *flags.BasePath != "" {
		basePath := *flags.BasePath
		// Normalize base path
		if basePath != "/" {
			if !strings.HasPrefix(basePath, "/") {
				basePath = "/" + basePath
			}
			basePath = strings.TrimSuffix(basePath, "/")
		}
		cfg.BasePath = basePath
		cfg.BasePathSource = "flag"
	}
	if flags.LogLevel != nil && *flags.LogLevel != "" {
		cfg.LogLevel = strings.ToLower(*flags.LogLevel)
	}
	if flags.Timezone != nil && *flags.Timezone != "" {
		cfg.Timezone = *flags.Timezone
		cfg.TimezoneSource = "flag"
	}
	if flags.ProfilesFile != nil && *flags.ProfilesFile != "" {
		cfg.ProfilesFile = *flags.ProfilesFile
	}
	if flags.Discovery != nil {
		cfg.DiscoveryEnabled = *flags.Discovery
	}
	if flags.RetentionDays != nil {
		cfg.RetentionDays = *flags.RetentionDays
	}
	if flags.ShutdownTimeout != nil && *flags.ShutdownTimeout != 0 {
		cfg.ShutdownTimeout = *flags.ShutdownTimeout
	}
	if flags.DataDir != nil && *flags.DataDir != "" {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabasePath != nil && *flags.DatabasePath != "" {
		cfg.DatabasePath = *flags.DatabasePath
	}
}
