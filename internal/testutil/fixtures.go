package testutil

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/chronarr/internal/domain"
)

// EventOption is a functional option for configuring test events.
type EventOption func(*domain.Event)

// WithAggregateID sets a specific aggregate ID.
func WithAggregateID(id string) EventOption {
	return func(e *domain.Event) {
		e.AggregateID = id
	}
}

// WithCreatedAt sets the event creation time.
func WithCreatedAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		e.CreatedAt = t
	}
}

// WithEventData merges additional data into EventData.
func WithEventData(data map[string]interface{}) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		for k, v := range data {
			e.EventData[k] = v
		}
	}
}

// WithFiredAt sets the fired_at field on the event data.
func WithFiredAt(t time.Time) EventOption {
	return func(e *domain.Event) {
		if e.EventData == nil {
			e.EventData = make(map[string]interface{})
		}
		e.EventData["fired_at"] = t.UTC().Format(time.RFC3339Nano)
	}
}

// NewSensorActivatedEvent creates a test SensorActivated event.
func NewSensorActivatedEvent(profileID, kind string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: "sensor",
		AggregateID:   fmt.Sprintf("%s_%s", profileID, kind),
		EventType:     domain.SensorActivated,
		EventData: map[string]interface{}{
			"profile_id": profileID,
			"kind":       kind,
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewSensorValueEvent creates a test SensorValueChanged event.
func NewSensorValueEvent(profileID, kind, value string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: "sensor",
		AggregateID:   fmt.Sprintf("%s_%s", profileID, kind),
		EventType:     domain.SensorValueChanged,
		EventData: map[string]interface{}{
			"profile_id": profileID,
			"kind":       kind,
			"value":      value,
			"fired_at":   time.Now().UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewSensorDeactivatedEvent creates a test SensorDeactivated event.
func NewSensorDeactivatedEvent(profileID, kind string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: "sensor",
		AggregateID:   fmt.Sprintf("%s_%s", profileID, kind),
		EventType:     domain.SensorDeactivated,
		EventData: map[string]interface{}{
			"profile_id": profileID,
			"kind":       kind,
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewTimerFailedEvent creates a test SensorTimerFailed event.
func NewTimerFailedEvent(profileID, kind, errMsg string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: "sensor",
		AggregateID:   fmt.Sprintf("%s_%s", profileID, kind),
		EventType:     domain.SensorTimerFailed,
		EventData: map[string]interface{}{
			"profile_id": profileID,
			"kind":       kind,
			"error":      errMsg,
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewChimeFiredEvent creates a test ChimeFired event.
func NewChimeFiredEvent(scheduleName string, values map[string]interface{}, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: "schedule",
		AggregateID:   uuid.New().String(),
		EventType:     domain.ChimeFired,
		EventData: map[string]interface{}{
			"schedule_name": scheduleName,
			"values":        values,
			"fired_at":      time.Now().UTC().Format(time.RFC3339Nano),
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// NewProfileEvent creates a test profile lifecycle event. The eventType
// must be ProfileCreated, ProfileUpdated or ProfileDeleted.
func NewProfileEvent(eventType domain.EventType, profileID, name string, opts ...EventOption) domain.Event {
	event := domain.Event{
		AggregateType: "profile",
		AggregateID:   profileID,
		EventType:     eventType,
		EventData: map[string]interface{}{
			"profile_id": profileID,
			"name":       name,
		},
		CreatedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		opt(&event)
	}

	return event
}

// TestZones provides common IANA zone names for tests. LoadLocation can
// fail on hosts without tzdata, so tests should skip rather than fail
// when a zone will not load.
var TestZones = struct {
	UTC     string
	Berlin  string
	NewYork string
	Tokyo   string
	Kolkata string
	Chatham string
}{
	UTC:     "UTC",
	Berlin:  "Europe/Berlin",
	NewYork: "America/New_York",
	Tokyo:   "Asia/Tokyo",
	Kolkata: "Asia/Kolkata",
	Chatham: "Pacific/Chatham",
}

// TestSensorLifecycle creates a sequence of events representing a full
// sensor lifecycle from activation through deactivation.
func TestSensorLifecycle(profileID, kind string) []domain.Event {
	baseTime := time.Now().UTC()

	return []domain.Event{
		NewSensorActivatedEvent(profileID, kind,
			WithCreatedAt(baseTime)),
		NewSensorValueEvent(profileID, kind, "10:30",
			WithCreatedAt(baseTime.Add(1*time.Second)),
			WithFiredAt(baseTime.Add(1*time.Second))),
		NewSensorValueEvent(profileID, kind, "10:31",
			WithCreatedAt(baseTime.Add(61*time.Second)),
			WithFiredAt(baseTime.Add(61*time.Second))),
		NewSensorDeactivatedEvent(profileID, kind,
			WithCreatedAt(baseTime.Add(90*time.Second))),
	}
}
