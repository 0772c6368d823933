package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewTestDB creates an in-memory SQLite database with the Chronarr schema.
// Returns a database handle that should be closed by the caller.
func NewTestDB() (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	if err := initializeSchema(db); err != nil {
		_ = db.Close() // Ignore close error since we're already returning an error
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initializeSchema creates all required tables for testing.
func initializeSchema(db *sql.DB) error {
	// Configure SQLite for testing
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	// Create settings table
	_, err := db.Exec(`
		CREATE TABLE settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	// Create profiles table
	_, err = db.Exec(`
		CREATE TABLE profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			kinds TEXT NOT NULL DEFAULT '["time"]',
			enabled BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create profiles table: %w", err)
	}

	// Create sensor_registry table
	_, err = db.Exec(`
		CREATE TABLE sensor_registry (
			unique_id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			icon TEXT NOT NULL DEFAULT '',
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sensor_registry table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX idx_sensor_registry_profile ON sensor_registry(profile_id)`)
	if err != nil {
		return fmt.Errorf("failed to create sensor_registry index: %w", err)
	}

	// Create schedules table
	_, err = db.Exec(`
		CREATE TABLE schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			cron_expression TEXT NOT NULL,
			kinds TEXT NOT NULL DEFAULT '["time"]',
			notify BOOLEAN DEFAULT 0,
			enabled BOOLEAN DEFAULT 1,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create schedules table: %w", err)
	}

	// Create notifications table
	_, err = db.Exec(`
		CREATE TABLE notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			provider_type TEXT NOT NULL,
			config TEXT NOT NULL,
			events TEXT DEFAULT '[]',
			enabled BOOLEAN DEFAULT 1,
			throttle_seconds INTEGER DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create notifications table: %w", err)
	}

	// Create notification_log table
	_, err = db.Exec(`
		CREATE TABLE notification_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			notification_id INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			message TEXT,
			status TEXT NOT NULL,
			error TEXT,
			sent_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create notification_log table: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX idx_notification_log_notification_id ON notification_log(notification_id)`)
	if err != nil {
		return fmt.Errorf("failed to create notification_log index: %w", err)
	}

	return nil
}

// SeedProfile inserts a sensor profile into the test database.
func SeedProfile(db *sql.DB, id, name string, kinds []string, enabled bool) error {
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return fmt.Errorf("failed to marshal kinds: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO profiles (id, name, kinds, enabled)
		VALUES (?, ?, ?, ?)
	`, id, name, string(kindsJSON), enabled)
	return err
}

// SeedSchedule inserts a chime schedule into the test database.
func SeedSchedule(db *sql.DB, id int64, name, cronExpr string, kinds []string, notify, enabled bool) error {
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return fmt.Errorf("failed to marshal kinds: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO schedules (id, name, cron_expression, kinds, notify, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, name, cronExpr, string(kindsJSON), notify, enabled)
	return err
}

// SeedNotification inserts a notification provider config into the test database.
func SeedNotification(db *sql.DB, id int64, name, providerType, config string, events []string, enabled bool) error {
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("failed to marshal events: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO notifications (id, name, provider_type, config, events, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, name, providerType, config, string(eventsJSON), enabled)
	return err
}

// SeedSetting inserts a settings key/value pair into the test database.
func SeedSetting(db *sql.DB, key, value string) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO settings (key, value)
		VALUES (?, ?)
	`, key, value)
	return err
}

// CountNotificationLogByStatus counts delivery log entries with a given status.
func CountNotificationLogByStatus(db *sql.DB, status string) (int, error) {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM notification_log WHERE status = ?", status).Scan(&count)
	return count, err
}

// ClearNotificationLog removes all delivery log entries from the database.
func ClearNotificationLog(db *sql.DB) error {
	_, err := db.Exec("DELETE FROM notification_log")
	return err
}

// ClearAllTables removes all data from all tables.
func ClearAllTables(db *sql.DB) error {
	tables := []string{"sensor_registry", "profiles", "schedules", "notification_log", "notifications", "settings"}
	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
