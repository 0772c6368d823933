package domain

import (
	"time"
)

type EventType string

const (
	SensorActivated    EventType = "SensorActivated"
	SensorValueChanged EventType = "SensorValueChanged"
	SensorDeactivated  EventType = "SensorDeactivated"
	SensorTimerFailed  EventType = "SensorTimerFailed"

	ProfileCreated       EventType = "ProfileCreated"
	ProfileUpdated       EventType = "ProfileUpdated"
	ProfileDeleted       EventType = "ProfileDeleted"
	ProfilesFileReloaded EventType = "ProfilesFileReloaded"

	ChimeFired EventType = "ChimeFired"

	NotificationSent   EventType = "NotificationSent"
	NotificationFailed EventType = "NotificationFailed"
)

type Event struct {
	ID            int64                  `json:"id"`
	AggregateType string                 `json:"aggregate_type"`
	AggregateID   string                 `json:"aggregate_id"`
	EventType     EventType              `json:"event_type"`
	EventData     map[string]interface{} `json:"event_data"`
	CreatedAt     time.Time              `json:"created_at"`
}

// =============================================================================
// Type-safe event data accessors
// These helpers provide compile-time safety when extracting data from events.
// =============================================================================

// GetString safely extracts a string field from EventData.
// Returns the value and true if found and is a string, otherwise empty string and false.
func (e *Event) GetString(key string) (string, bool) {
	if e.EventData == nil {
		return "", false
	}
	v, ok := e.EventData[key].(string)
	return v, ok
}

// GetStringOr extracts a string field or returns the default value.
func (e *Event) GetStringOr(key, defaultVal string) string {
	if v, ok := e.GetString(key); ok {
		return v
	}
	return defaultVal
}

// GetInt64 safely extracts an int64 field from EventData.
// Handles both int64 and float64 (JSON unmarshaling produces float64).
func (e *Event) GetInt64(key string) (int64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// GetInt64Or extracts an int64 field or returns the default value.
func (e *Event) GetInt64Or(key string, defaultVal int64) int64 {
	if v, ok := e.GetInt64(key); ok {
		return v
	}
	return defaultVal
}

// GetFloat64 safely extracts a float64 field from EventData.
func (e *Event) GetFloat64(key string) (float64, bool) {
	if e.EventData == nil {
		return 0, false
	}
	switch v := e.EventData[key].(type) {
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// GetBool safely extracts a bool field from EventData.
func (e *Event) GetBool(key string) (bool, bool) {
	if e.EventData == nil {
		return false, false
	}
	v, ok := e.EventData[key].(bool)
	return v, ok
}

// GetBoolOr extracts a bool field or returns the default value.
func (e *Event) GetBoolOr(key string, defaultVal bool) bool {
	if v, ok := e.GetBool(key); ok {
		return v
	}
	return defaultVal
}

// GetMap safely extracts a nested map from EventData.
func (e *Event) GetMap(key string) (map[string]interface{}, bool) {
	if e.EventData == nil {
		return nil, false
	}
	v, ok := e.EventData[key].(map[string]interface{})
	return v, ok
}

// GetStringSlice safely extracts a string slice from EventData.
func (e *Event) GetStringSlice(key string) ([]string, bool) {
	if e.EventData == nil {
		return nil, false
	}
	// Handle []string directly
	if v, ok := e.EventData[key].([]string); ok {
		return v, true
	}
	// Handle []interface{} (from JSON unmarshaling)
	if v, ok := e.EventData[key].([]interface{}); ok {
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result, true
	}
	return nil, false
}

// =============================================================================
// Typed event data structures for common events
// =============================================================================

// SensorValueEventData contains data for SensorValueChanged events.
type SensorValueEventData struct {
	ProfileID string `json:"profile_id"`
	Kind      string `json:"kind"`
	Value     string `json:"value"`
	FiredAt   string `json:"fired_at,omitempty"` // RFC3339, the scheduled fire instant
}

// ParseSensorValueEventData extracts typed sensor value data from an event.
func (e *Event) ParseSensorValueEventData() (SensorValueEventData, bool) {
	kind, ok := e.GetString("kind")
	if !ok {
		return SensorValueEventData{}, false
	}
	value, ok := e.GetString("value")
	if !ok {
		return SensorValueEventData{}, false
	}
	return SensorValueEventData{
		ProfileID: e.GetStringOr("profile_id", ""),
		Kind:      kind,
		Value:     value,
		FiredAt:   e.GetStringOr("fired_at", ""),
	}, true
}

// TimerFailureEventData contains data for SensorTimerFailed events.
type TimerFailureEventData struct {
	ProfileID string `json:"profile_id"`
	Kind      string `json:"kind"`
	Error     string `json:"error"`
}

// ParseTimerFailureEventData extracts typed timer failure data from an event.
func (e *Event) ParseTimerFailureEventData() (TimerFailureEventData, bool) {
	kind, ok := e.GetString("kind")
	if !ok {
		return TimerFailureEventData{}, false
	}
	return TimerFailureEventData{
		ProfileID: e.GetStringOr("profile_id", ""),
		Kind:      kind,
		Error:     e.GetStringOr("error", ""),
	}, true
}

// ChimeEventData contains data for ChimeFired events.
type ChimeEventData struct {
	ScheduleName string                 `json:"schedule_name"`
	Values       map[string]interface{} `json:"values"` // kind key -> formatted value
	FiredAt      string                 `json:"fired_at,omitempty"`
}

// ParseChimeEventData extracts typed chime data from an event.
func (e *Event) ParseChimeEventData() (ChimeEventData, bool) {
	name, ok := e.GetString("schedule_name")
	if !ok {
		return ChimeEventData{}, false
	}
	values, _ := e.GetMap("values")
	return ChimeEventData{
		ScheduleName: name,
		Values:       values,
		FiredAt:      e.GetStringOr("fired_at", ""),
	}, true
}
