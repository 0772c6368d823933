// Package sensor implements self-rescheduling time value publishers.
//
// Each Sensor owns one representation kind for one profile: it computes the
// kind's formatted value, arms a one-shot timer for the next boundary, and on
// fire publishes the new value and re-arms. Timers target absolute instants,
// so a callback never runs before its boundary.
package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/mescon/chronarr/internal/clock"
	"github.com/mescon/chronarr/internal/domain"
	"github.com/mescon/chronarr/internal/eventbus"
	"github.com/mescon/chronarr/internal/logger"
	"github.com/mescon/chronarr/internal/timedate"
)

// Diagnostics is the leveled sink sensors report through. Production code
// passes DefaultDiagnostics; tests inject a capturing implementation.
type Diagnostics interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type loggerDiagnostics struct{}

func (loggerDiagnostics) Debugf(format string, v ...interface{}) { logger.Debugf(format, v...) }
func (loggerDiagnostics) Infof(format string, v ...interface{})  { logger.Infof(format, v...) }
func (loggerDiagnostics) Warnf(format string, v ...interface{})  { logger.Warnf(format, v...) }
func (loggerDiagnostics) Errorf(format string, v ...interface{}) { logger.Errorf(format, v...) }

// DefaultDiagnostics routes sensor diagnostics to the process logger.
func DefaultDiagnostics() Diagnostics { return loggerDiagnostics{} }

// UniqueID is the stable identity of a profile's sensor for one kind.
func UniqueID(profileID string, kind timedate.Kind) string {
	return fmt.Sprintf("%s_%s", profileID, kind.Key())
}

// Sensor publishes one time representation for one profile.
//
// All state transitions happen under one mutex, so arming, firing and
// deactivation never interleave. A generation counter discards timer
// callbacks that were cancelled after their timer had already gone off.
type Sensor struct {
	uniqueID  string
	profileID string
	kind      timedate.Kind
	loc       *time.Location
	clk       clock.Clock
	bus       eventbus.Publisher
	diag      Diagnostics

	mu         sync.Mutex
	active     bool
	gen        uint64
	timer      clock.Timer
	value      string
	hasValue   bool
	updatedAt  time.Time
	nextFireAt time.Time
}

// New builds an inactive sensor for the given profile and kind.
// The location must be non-nil; the Manager resolves it once for all sensors.
func New(profileID string, kind timedate.Kind, loc *time.Location, clk clock.Clock, bus eventbus.Publisher, diag Diagnostics) *Sensor {
	if diag == nil {
		diag = DefaultDiagnostics()
	}
	return &Sensor{
		uniqueID:  UniqueID(profileID, kind),
		profileID: profileID,
		kind:      kind,
		loc:       loc,
		clk:       clk,
		bus:       bus,
		diag:      diag,
	}
}

// Activate computes and publishes the initial value, then arms the timer for
// the next boundary. Activating an already active sensor is a no-op. If the
// timer cannot be armed the sensor keeps its published value but stays idle.
func (s *Sensor) Activate() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	s.gen++

	now := s.clk.Now()
	s.setValueLocked(timedate.Format(s.kind, now, s.loc), now)
	s.diag.Debugf("Sensor %s: activated", s.uniqueID)
	s.publish(domain.SensorActivated, map[string]interface{}{
		"profile_id": s.profileID,
		"kind":       s.kind.Key(),
		"label":      s.kind.Label(),
		"icon":       s.kind.Icon(),
	})
	// Emit before arming: the timer must not exist until the value is with
	// the sink, or a fast second fire could overtake this emit.
	s.publishValue(s.value, now)
	armErr := s.armLocked()
	s.mu.Unlock()

	if armErr != nil {
		s.reportArmFailure(armErr)
	}
}

// Deactivate cancels any pending timer and retracts the published value.
// Safe to call repeatedly; a timer callback already in flight is discarded
// by the generation check in fire.
func (s *Sensor) Deactivate() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.value = ""
	s.hasValue = false
	s.nextFireAt = time.Time{}
	s.mu.Unlock()

	s.diag.Debugf("Sensor %s: deactivated", s.uniqueID)
	s.publish(domain.SensorDeactivated, map[string]interface{}{
		"profile_id": s.profileID,
		"kind":       s.kind.Key(),
	})
}

// fire runs in the timer goroutine at (or after) the scheduled instant. The
// published value is formatted from the instant the timer was armed for; the
// next timer is armed from a fresh reading of the clock, and only after the
// emit completes, so fires within one instance are strictly sequential and
// the sink never sees a stale value land after a newer one.
func (s *Sensor) fire(gen uint64, scheduledAt time.Time) {
	s.mu.Lock()
	if !s.active || gen != s.gen {
		// Deactivated after the timer went off but before this ran.
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.setValueLocked(timedate.Format(s.kind, scheduledAt, s.loc), scheduledAt)
	s.publishValue(s.value, scheduledAt)
	armErr := s.armLocked()
	s.mu.Unlock()

	if armErr != nil {
		s.reportArmFailure(armErr)
	}
}

// armLocked schedules the next fire. The boundary is computed from a fresh
// clock reading, not from the instant just published.
func (s *Sensor) armLocked() error {
	next := timedate.NextInterval(s.kind, s.clk.Now(), s.loc)
	gen := s.gen
	t, err := s.clk.ScheduleAt(next, func() { s.fire(gen, next) })
	if err != nil {
		s.timer = nil
		s.nextFireAt = time.Time{}
		return err
	}
	s.timer = t
	s.nextFireAt = next
	return nil
}

func (s *Sensor) setValueLocked(value string, at time.Time) {
	s.value = value
	s.hasValue = true
	s.updatedAt = at
}

func (s *Sensor) publishValue(value string, firedAt time.Time) {
	s.diag.Debugf("Sensor %s: value %q", s.uniqueID, value)
	s.publish(domain.SensorValueChanged, map[string]interface{}{
		"profile_id": s.profileID,
		"kind":       s.kind.Key(),
		"value":      value,
		"fired_at":   firedAt.UTC().Format(time.RFC3339Nano),
	})
}

func (s *Sensor) reportArmFailure(err error) {
	s.diag.Errorf("Sensor %s: failed to arm timer: %v", s.uniqueID, err)
	s.publish(domain.SensorTimerFailed, map[string]interface{}{
		"profile_id": s.profileID,
		"kind":       s.kind.Key(),
		"error":      err.Error(),
	})
}

func (s *Sensor) publish(eventType domain.EventType, data map[string]interface{}) {
	if s.bus == nil {
		return
	}
	event := domain.Event{
		AggregateType: "sensor",
		AggregateID:   s.uniqueID,
		EventType:     eventType,
		EventData:     data,
	}
	if err := s.bus.Publish(event); err != nil {
		s.diag.Warnf("Sensor %s: failed to publish %s: %v", s.uniqueID, eventType, err)
	}
}

// UniqueID returns the sensor's stable identity.
func (s *Sensor) UniqueID() string { return s.uniqueID }

// ProfileID returns the owning profile's id.
func (s *Sensor) ProfileID() string { return s.profileID }

// Kind returns the representation kind this sensor publishes.
func (s *Sensor) Kind() timedate.Kind { return s.kind }

// Active reports whether the sensor has been activated and not yet deactivated.
func (s *Sensor) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Armed reports whether a timer is pending.
func (s *Sensor) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Value returns the currently published value. The second return is false
// when no value is published (never activated, or deactivated).
func (s *Sensor) Value() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.hasValue
}

// Snapshot is a point-in-time view of a sensor for API consumers.
type Snapshot struct {
	UniqueID   string    `json:"unique_id"`
	ProfileID  string    `json:"profile_id"`
	Kind       string    `json:"kind"`
	Label      string    `json:"label"`
	Icon       string    `json:"icon"`
	State      string    `json:"state"` // "armed" or "idle"
	Value      string    `json:"value"`
	HasValue   bool      `json:"has_value"`
	UpdatedAt  time.Time `json:"updated_at"`
	NextFireAt time.Time `json:"next_fire_at"`
}

// Snapshot returns a copy of the sensor's externally visible state.
func (s *Sensor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := "idle"
	if s.timer != nil {
		state = "armed"
	}
	return Snapshot{
		UniqueID:   s.uniqueID,
		ProfileID:  s.profileID,
		Kind:       s.kind.Key(),
		Label:      s.kind.Label(),
		Icon:       s.kind.Icon(),
		State:      state,
		Value:      s.value,
		HasValue:   s.hasValue,
		UpdatedAt:  s.updatedAt,
		NextFireAt: s.nextFireAt,
	}
}
