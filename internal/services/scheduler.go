package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/timedate"
)

// Scheduler is the chime schedule contract the API handlers program against.
type Scheduler interface {
	Start()
	Stop()
	LoadSchedules() error
	AddSchedule(name, cronExpr string, kinds []string, notify bool) (int64, error)
	UpdateSchedule(id int64, name, cronExpr string, kinds []string, notify, enabled bool) error
	DeleteSchedule(id int64) error
}

// SchedulerService runs chime schedules as cron entries. Every entry fires in
// the configured zone; on trigger the schedule's kinds are formatted at the
// trigger instant and published as a single ChimeFired event.
type SchedulerService struct {
	db   *sql.DB
	bus  eventbus.Publisher
	loc  *time.Location
	cron *cron.Cron
	jobs map[int64]cron.EntryID
	mu   sync.Mutex
}

var _ Scheduler = (*SchedulerService)(nil)

func NewSchedulerService(db *sql.DB, bus eventbus.Publisher, loc *time.Location) *SchedulerService {
	return &SchedulerService{
		db:   db,
		bus:  bus,
		loc:  loc,
		cron: cron.New(cron.WithLocation(loc)),
		jobs: make(map[int64]cron.EntryID),
	}
}

func (s *SchedulerService) Start() {
	logger.Infof("Starting chime scheduler (zone: %s)...", s.loc)
	s.cron.Start()
	if err := s.LoadSchedules(); err != nil {
		logger.Errorf("Failed to load chime schedules: %v", err)
	}
}

// Stop halts the cron runner and waits for any in-flight chime to finish.
func (s *SchedulerService) Stop() {
	<-s.cron.Stop().Done()
}

// LoadSchedules replaces all cron entries with the enabled schedule rows.
func (s *SchedulerService) LoadSchedules() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clear existing jobs
	for _, entryID := range s.jobs {
		s.cron.Remove(entryID)
	}
	s.jobs = make(map[int64]cron.EntryID)

	rows, err := s.db.Query("SELECT id, name, cron_expression, kinds, notify FROM schedules WHERE enabled = 1")
	if err != nil {
		return err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var id int64
		var name, cronExpr, kindsJSON string
		var notify bool
		if err := rows.Scan(&id, &name, &cronExpr, &kindsJSON, &notify); err != nil {
			logger.Errorf("Failed to scan schedule: %v", err)
			continue
		}

		kinds, err := parseKindsJSON(kindsJSON)
		if err != nil {
			logger.Errorf("Schedule %d has invalid kinds: %v", id, err)
			continue
		}

		if err := s.addJob(id, name, cronExpr, kinds, notify); err != nil {
			logger.Errorf("Failed to add job for schedule %d: %v", id, err)
		} else {
			count++
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating schedules: %w", err)
	}

	logger.Infof("Loaded %d active chime schedules", count)
	return nil
}

// addJob registers the cron entry for a schedule. Callers hold s.mu.
func (s *SchedulerService) addJob(scheduleID int64, name, cronExpr string, kinds []timedate.Kind, notify bool) error {
	entryID, err := s.cron.AddFunc(cronExpr, func() {
		s.chime(scheduleID, name, kinds, notify)
	})
	if err != nil {
		return err
	}
	s.jobs[scheduleID] = entryID
	return nil
}

// chime formats every kind of the schedule at the trigger instant and
// publishes the result as one ChimeFired event.
func (s *SchedulerService) chime(scheduleID int64, name string, kinds []timedate.Kind, notify bool) {
	now := time.Now().In(s.loc)

	values := make(map[string]interface{}, len(kinds))
	for _, kind := range kinds {
		values[kind.Key()] = timedate.Format(kind, now, s.loc)
	}

	logger.Infof("Chime %q fired (schedule %d, %d values)", name, scheduleID, len(values))

	err := s.bus.Publish(domain.Event{
		AggregateType: "schedule",
		AggregateID:   strconv.FormatInt(scheduleID, 10),
		EventType:     domain.ChimeFired,
		EventData: map[string]interface{}{
			"schedule_name": name,
			"values":        values,
			"fired_at":      now.Format(time.RFC3339Nano),
			"notify":        notify,
		},
	})
	if err != nil {
		logger.Errorf("Failed to publish chime for schedule %d: %v", scheduleID, err)
	}
}

// AddSchedule validates, persists, and registers a new chime schedule.
// An empty kind list falls back to the "time" kind.
func (s *SchedulerService) AddSchedule(name, cronExpr string, kinds []string, notify bool) (int64, error) {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return 0, fmt.Errorf("invalid cron expression: %v", err)
	}
	if len(kinds) == 0 {
		kinds = []string{timedate.KindTime.Key()}
	}
	parsed, err := parseKindKeys(kinds)
	if err != nil {
		return 0, err
	}
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return 0, err
	}

	res, err := s.db.Exec(
		"INSERT INTO schedules (name, cron_expression, kinds, notify, enabled) VALUES (?, ?, ?, ?, 1)",
		name, cronExpr, string(kindsJSON), notify,
	)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.addJob(id, name, cronExpr, parsed, notify); err != nil {
		return id, fmt.Errorf("saved to DB but failed to schedule: %v", err)
	}

	return id, nil
}

// UpdateSchedule replaces a schedule row and reregisters its cron entry.
func (s *SchedulerService) UpdateSchedule(id int64, name, cronExpr string, kinds []string, notify, enabled bool) error {
	if _, err := cron.ParseStandard(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %v", err)
	}
	if len(kinds) == 0 {
		kinds = []string{timedate.KindTime.Key()}
	}
	parsed, err := parseKindKeys(kinds)
	if err != nil {
		return err
	}
	kindsJSON, err := json.Marshal(kinds)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(
		"UPDATE schedules SET name = ?, cron_expression = ?, kinds = ?, notify = ?, enabled = ? WHERE id = ?",
		name, cronExpr, string(kindsJSON), notify, enabled, id,
	)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("schedule %d not found", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Remove existing job
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}

	// If enabled, add new job
	if enabled {
		if err := s.addJob(id, name, cronExpr, parsed, notify); err != nil {
			logger.Errorf("Failed to reschedule job %d: %v", id, err)
		}
	}

	return nil
}

// DeleteSchedule removes a schedule row and its cron entry.
func (s *SchedulerService) DeleteSchedule(id int64) error {
	_, err := s.db.Exec("DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.jobs[id]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, id)
	}

	return nil
}

// parseKindKeys validates kind keys and returns the parsed kinds.
func parseKindKeys(keys []string) ([]timedate.Kind, error) {
	kinds := make([]timedate.Kind, 0, len(keys))
	for _, key := range keys {
		kind, err := timedate.ParseKind(key)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}

// parseKindsJSON decodes the schedules.kinds column into validated kinds.
func parseKindsJSON(kindsJSON string) ([]timedate.Kind, error) {
	var keys []string
	if err := json.Unmarshal([]byte(kindsJSON), &keys); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("schedule has no kinds")
	}
	return parseKindKeys(keys)
}
