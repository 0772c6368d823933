package services

import (
	"strconv"
	"testing"
	"time"

	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/testutil"
	"github.com/mescon/chronarr/internal/timedate"
)

// =============================================================================
// NewSchedulerService
// =============================================================================

func TestNewSchedulerService(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	bus := testutil.NewMockEventBus()
	s := NewSchedulerService(db, bus, time.UTC)

	if s.db != db {
		t.Error("Expected db to be set")
	}
	if s.bus == nil {
		t.Error("Expected bus to be set")
	}
	if s.loc != time.UTC {
		t.Errorf("Expected loc UTC, got %v", s.loc)
	}
	if s.cron == nil {
		t.Error("Expected cron instance to be created")
	}
	if len(s.jobs) != 0 {
		t.Errorf("Expected empty jobs map, got %d entries", len(s.jobs))
	}
}

// =============================================================================
// LoadSchedules
// =============================================================================

func TestSchedulerService_LoadSchedules_Empty(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("LoadSchedules failed: %v", err)
	}
	if len(s.jobs) != 0 {
		t.Errorf("Expected 0 jobs, got %d", len(s.jobs))
	}
}

func TestSchedulerService_LoadSchedules_SkipsDisabled(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	if err := testutil.SeedSchedule(db, 1, "hourly", "0 * * * *", []string{"time"}, false, false); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("LoadSchedules failed: %v", err)
	}
	if len(s.jobs) != 0 {
		t.Errorf("Expected disabled schedule to be skipped, got %d jobs", len(s.jobs))
	}
}

func TestSchedulerService_LoadSchedules_LoadsEnabled(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	if err := testutil.SeedSchedule(db, 1, "hourly", "0 * * * *", []string{"time", "beat"}, true, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}
	if err := testutil.SeedSchedule(db, 2, "daily", "0 0 * * *", []string{"date"}, false, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("LoadSchedules failed: %v", err)
	}
	if len(s.jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(s.jobs))
	}
	if _, ok := s.jobs[1]; !ok {
		t.Error("Expected job for schedule 1")
	}
	if _, ok := s.jobs[2]; !ok {
		t.Error("Expected job for schedule 2")
	}
}

func TestSchedulerService_LoadSchedules_SkipsInvalidKinds(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	if err := testutil.SeedSchedule(db, 1, "broken", "0 * * * *", []string{"stardate"}, false, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}
	if err := testutil.SeedSchedule(db, 2, "good", "0 * * * *", []string{"time"}, false, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("LoadSchedules failed: %v", err)
	}
	if len(s.jobs) != 1 {
		t.Errorf("Expected 1 job, got %d", len(s.jobs))
	}
	if _, ok := s.jobs[2]; !ok {
		t.Error("Expected the valid schedule to be loaded")
	}
}

func TestSchedulerService_LoadSchedules_SkipsInvalidCron(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	if err := testutil.SeedSchedule(db, 1, "broken", "not a cron expr", []string{"time"}, false, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	// Rows that fail to register are logged and skipped, not fatal.
	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("LoadSchedules failed: %v", err)
	}
	if len(s.jobs) != 0 {
		t.Errorf("Expected 0 jobs, got %d", len(s.jobs))
	}
}

func TestSchedulerService_LoadSchedules_ReplacesExisting(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	if err := testutil.SeedSchedule(db, 1, "hourly", "0 * * * *", []string{"time"}, false, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("First LoadSchedules failed: %v", err)
	}
	if err := s.LoadSchedules(); err != nil {
		t.Fatalf("Second LoadSchedules failed: %v", err)
	}
	if len(s.jobs) != 1 {
		t.Errorf("Expected reload to keep 1 job, got %d", len(s.jobs))
	}
}

// =============================================================================
// AddSchedule
// =============================================================================

func TestSchedulerService_AddSchedule_InvalidCron(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	_, err = s.AddSchedule("bad", "not a cron expr", []string{"time"}, false)
	if err == nil {
		t.Fatal("Expected error for invalid cron expression")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schedules").Scan(&count); err != nil {
		t.Fatalf("Failed to count schedules: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no rows after failed add, got %d", count)
	}
}

func TestSchedulerService_AddSchedule_InvalidKind(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	_, err = s.AddSchedule("bad", "0 * * * *", []string{"stardate"}, false)
	if err == nil {
		t.Fatal("Expected error for unknown kind")
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schedules").Scan(&count); err != nil {
		t.Fatalf("Failed to count schedules: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no rows after failed add, got %d", count)
	}
}

func TestSchedulerService_AddSchedule_Valid(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	id, err := s.AddSchedule("hourly", "0 * * * *", []string{"time", "beat"}, true)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	if id <= 0 {
		t.Errorf("Expected positive schedule ID, got %d", id)
	}

	var name, cronExpr, kinds string
	var notify, enabled bool
	err = db.QueryRow("SELECT name, cron_expression, kinds, notify, enabled FROM schedules WHERE id = ?", id).
		Scan(&name, &cronExpr, &kinds, &notify, &enabled)
	if err != nil {
		t.Fatalf("Failed to read schedule back: %v", err)
	}
	if name != "hourly" {
		t.Errorf("Expected name 'hourly', got %q", name)
	}
	if cronExpr != "0 * * * *" {
		t.Errorf("Expected cron '0 * * * *', got %q", cronExpr)
	}
	if kinds != `["time","beat"]` {
		t.Errorf("Expected kinds '[\"time\",\"beat\"]', got %q", kinds)
	}
	if !notify {
		t.Error("Expected notify to be true")
	}
	if !enabled {
		t.Error("Expected new schedule to be enabled")
	}

	if _, ok := s.jobs[id]; !ok {
		t.Error("Expected cron job to be registered")
	}
}

func TestSchedulerService_AddSchedule_DefaultKinds(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	id, err := s.AddSchedule("plain", "0 * * * *", nil, false)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	var kinds string
	if err := db.QueryRow("SELECT kinds FROM schedules WHERE id = ?", id).Scan(&kinds); err != nil {
		t.Fatalf("Failed to read schedule back: %v", err)
	}
	if kinds != `["time"]` {
		t.Errorf("Expected default kinds '[\"time\"]', got %q", kinds)
	}
}

// =============================================================================
// UpdateSchedule
// =============================================================================

func TestSchedulerService_UpdateSchedule_InvalidCron(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	id, err := s.AddSchedule("hourly", "0 * * * *", []string{"time"}, false)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	if err := s.UpdateSchedule(id, "hourly", "garbage", []string{"time"}, false, true); err == nil {
		t.Fatal("Expected error for invalid cron expression")
	}

	var cronExpr string
	if err := db.QueryRow("SELECT cron_expression FROM schedules WHERE id = ?", id).Scan(&cronExpr); err != nil {
		t.Fatalf("Failed to read schedule back: %v", err)
	}
	if cronExpr != "0 * * * *" {
		t.Errorf("Expected cron to be unchanged, got %q", cronExpr)
	}
}

func TestSchedulerService_UpdateSchedule_NotFound(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	err = s.UpdateSchedule(999, "ghost", "0 * * * *", []string{"time"}, false, true)
	if err == nil {
		t.Fatal("Expected error for missing schedule")
	}
}

func TestSchedulerService_UpdateSchedule_DisableRemovesJob(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	id, err := s.AddSchedule("hourly", "0 * * * *", []string{"time"}, false)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}
	if _, ok := s.jobs[id]; !ok {
		t.Fatal("Expected job to exist after add")
	}

	if err := s.UpdateSchedule(id, "hourly", "0 * * * *", []string{"time"}, false, false); err != nil {
		t.Fatalf("UpdateSchedule failed: %v", err)
	}
	if _, ok := s.jobs[id]; ok {
		t.Error("Expected job to be removed when schedule is disabled")
	}

	var enabled bool
	if err := db.QueryRow("SELECT enabled FROM schedules WHERE id = ?", id).Scan(&enabled); err != nil {
		t.Fatalf("Failed to read schedule back: %v", err)
	}
	if enabled {
		t.Error("Expected schedule to be disabled in DB")
	}
}

func TestSchedulerService_UpdateSchedule_ChangesPersist(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	id, err := s.AddSchedule("hourly", "0 * * * *", []string{"time"}, false)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	if err := s.UpdateSchedule(id, "quarter-hourly", "*/15 * * * *", []string{"time", "date"}, true, true); err != nil {
		t.Fatalf("UpdateSchedule failed: %v", err)
	}

	var name, cronExpr, kinds string
	var notify bool
	err = db.QueryRow("SELECT name, cron_expression, kinds, notify FROM schedules WHERE id = ?", id).
		Scan(&name, &cronExpr, &kinds, &notify)
	if err != nil {
		t.Fatalf("Failed to read schedule back: %v", err)
	}
	if name != "quarter-hourly" {
		t.Errorf("Expected name 'quarter-hourly', got %q", name)
	}
	if cronExpr != "*/15 * * * *" {
		t.Errorf("Expected cron '*/15 * * * *', got %q", cronExpr)
	}
	if kinds != `["time","date"]` {
		t.Errorf("Expected kinds '[\"time\",\"date\"]', got %q", kinds)
	}
	if !notify {
		t.Error("Expected notify to be true")
	}
	if _, ok := s.jobs[id]; !ok {
		t.Error("Expected job to still be registered after update")
	}
}

// =============================================================================
// DeleteSchedule
// =============================================================================

func TestSchedulerService_DeleteSchedule(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	id, err := s.AddSchedule("hourly", "0 * * * *", []string{"time"}, false)
	if err != nil {
		t.Fatalf("AddSchedule failed: %v", err)
	}

	if err := s.DeleteSchedule(id); err != nil {
		t.Fatalf("DeleteSchedule failed: %v", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schedules WHERE id = ?", id).Scan(&count); err != nil {
		t.Fatalf("Failed to count schedules: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected schedule row to be deleted, found %d", count)
	}
	if _, ok := s.jobs[id]; ok {
		t.Error("Expected cron job to be removed")
	}
}

func TestSchedulerService_DeleteSchedule_NotFound(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	// Deleting a missing schedule is a no-op, not an error.
	if err := s.DeleteSchedule(999); err != nil {
		t.Errorf("Expected no error for missing schedule, got %v", err)
	}
}

// =============================================================================
// Start / Stop
// =============================================================================

func TestSchedulerService_StartStop(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	if err := testutil.SeedSchedule(db, 1, "hourly", "0 * * * *", []string{"time"}, false, true); err != nil {
		t.Fatalf("Failed to seed schedule: %v", err)
	}

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	s.Start()
	if len(s.jobs) != 1 {
		t.Errorf("Expected 1 job after start, got %d", len(s.jobs))
	}
	s.Stop()
}

// =============================================================================
// chime
// =============================================================================

func TestSchedulerService_Chime_PublishesEvent(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	bus := testutil.NewMockEventBus()
	s := NewSchedulerService(db, bus, time.UTC)

	s.chime(7, "hourly", []timedate.Kind{timedate.KindTime, timedate.KindBeat}, true)

	events := bus.GetEvents(domain.ChimeFired)
	if len(events) != 1 {
		t.Fatalf("Expected 1 ChimeFired event, got %d", len(events))
	}

	event := events[0]
	if event.AggregateType != "schedule" {
		t.Errorf("Expected aggregate type 'schedule', got %q", event.AggregateType)
	}
	if event.AggregateID != strconv.FormatInt(7, 10) {
		t.Errorf("Expected aggregate ID '7', got %q", event.AggregateID)
	}
	if event.EventData["schedule_name"] != "hourly" {
		t.Errorf("Expected schedule_name 'hourly', got %v", event.EventData["schedule_name"])
	}
	if event.EventData["notify"] != true {
		t.Errorf("Expected notify true, got %v", event.EventData["notify"])
	}

	values, ok := event.EventData["values"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected values map, got %T", event.EventData["values"])
	}
	if len(values) != 2 {
		t.Errorf("Expected 2 values, got %d", len(values))
	}
	if v, ok := values["time"].(string); !ok || v == "" {
		t.Errorf("Expected non-empty time value, got %v", values["time"])
	}
	if v, ok := values["beat"].(string); !ok || v == "" {
		t.Errorf("Expected non-empty beat value, got %v", values["beat"])
	}

	firedAt, ok := event.EventData["fired_at"].(string)
	if !ok {
		t.Fatalf("Expected fired_at string, got %T", event.EventData["fired_at"])
	}
	if _, err := time.Parse(time.RFC3339Nano, firedAt); err != nil {
		t.Errorf("Expected fired_at to be RFC3339Nano, got %q: %v", firedAt, err)
	}
}

func TestSchedulerService_Chime_NotifyOptOut(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	bus := testutil.NewMockEventBus()
	s := NewSchedulerService(db, bus, time.UTC)

	// Chimes always publish; the notify flag in the event data tells the
	// notifier whether to forward the event to providers.
	s.chime(3, "quiet", []timedate.Kind{timedate.KindTime}, false)

	events := bus.GetEvents(domain.ChimeFired)
	if len(events) != 1 {
		t.Fatalf("Expected 1 ChimeFired event, got %d", len(events))
	}
	if events[0].EventData["notify"] != false {
		t.Errorf("Expected notify false, got %v", events[0].EventData["notify"])
	}
}

func TestSchedulerService_Chime_ZoneAware(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("Asia/Tokyo not available: %v", err)
	}

	bus := testutil.NewMockEventBus()
	s := NewSchedulerService(db, bus, tokyo)

	before := time.Now().In(tokyo)
	s.chime(1, "tokyo", []timedate.Kind{timedate.KindDate}, false)
	after := time.Now().In(tokyo)

	events := bus.GetEvents(domain.ChimeFired)
	if len(events) != 1 {
		t.Fatalf("Expected 1 ChimeFired event, got %d", len(events))
	}

	values := events[0].EventData["values"].(map[string]interface{})
	got := values["date"].(string)
	wantBefore := timedate.Format(timedate.KindDate, before, tokyo)
	wantAfter := timedate.Format(timedate.KindDate, after, tokyo)
	if got != wantBefore && got != wantAfter {
		t.Errorf("Expected Tokyo date %q or %q, got %q", wantBefore, wantAfter, got)
	}
}

// =============================================================================
// Cron expression validation
// =============================================================================

func TestCronExpressionValidation(t *testing.T) {
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer db.Close()

	s := NewSchedulerService(db, testutil.NewMockEventBus(), time.UTC)

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"standard five-field", "0 0 * * *", false},
		{"every hour", "0 * * * *", false},
		{"every minute", "* * * * *", false},
		{"specific time", "30 14 * * *", false},
		{"weekdays only", "0 9 * * 1-5", false},
		{"with ranges", "0 0-6 * * *", false},
		{"with step", "*/15 * * * *", false},
		{"empty", "", true},
		{"garbage", "not a cron", true},
		{"six fields", "0 0 0 * * *", true},
		{"day out of range", "0 0 32 * *", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AddSchedule(tt.name, tt.expr, []string{"time"}, false)
			if tt.wantErr && err == nil {
				t.Errorf("Expected error for %q", tt.expr)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected %q to be valid, got %v", tt.expr, err)
			}
		})
	}
}
