package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	db, err := sql.Open("sqlite3", "./chronarr.db")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	fmt.Println("Seeding database...")

	// Seed Profiles
	profiles := []struct {
		Name    string
		Kinds   []string
		Enabled bool
	}{
		{"Wall Clock", []string{"time", "date"}, true},
		{"Ops Dashboard", []string{"date_time_utc", "date_time_iso", "time_utc"}, true},
		{"Swatch", []string{"beat"}, true},
		{"Disabled Example", []string{"time_date"}, false},
	}

	for _, p := range profiles {
		kinds, _ := json.Marshal(p.Kinds)
		_, err := db.Exec("INSERT INTO profiles (id, name, kinds, enabled) VALUES (?, ?, ?, ?)",
			uuid.New().String(), p.Name, string(kinds), p.Enabled)
		if err != nil {
			log.Printf("Failed to insert profile: %v", err)
		}
	}

	// Seed Chime Schedules
	schedules := []struct {
		Name     string
		CronExpr string
		Kinds    []string
		Notify   bool
		Enabled  bool
	}{
		{"Hourly Chime", "0 * * * *", []string{"time", "date"}, true, true},
		{"Midnight Beat", "0 0 * * *", []string{"beat"}, false, true},
	}

	for _, s := range schedules {
		kinds, _ := json.Marshal(s.Kinds)
		_, err := db.Exec("INSERT INTO schedules (name, cron_expression, kinds, notify, enabled) VALUES (?, ?, ?, ?, ?)",
			s.Name, s.CronExpr, string(kinds), s.Notify, s.Enabled)
		if err != nil {
			log.Printf("Failed to insert schedule: %v", err)
		}
	}

	// Seed a Notification config (generic webhook pointed at a local sink).
	// Config is stored as plaintext JSON here; the server encrypts configs
	// created through the API when an encryption key is set.
	webhookConfig, _ := json.Marshal(map[string]interface{}{
		"url":    "http://localhost:9000/hooks/chronarr",
		"method": "POST",
	})
	events, _ := json.Marshal([]string{"ChimeFired", "SensorTimerFailed"})
	_, err = db.Exec("INSERT INTO notifications (name, provider_type, config, events, enabled, throttle_seconds) VALUES (?, ?, ?, ?, ?, ?)",
		"Local Webhook", "generic", string(webhookConfig), string(events), true, 60)
	if err != nil {
		log.Printf("Failed to insert notification config: %v", err)
	}

	fmt.Println("Seeding complete.")
}
