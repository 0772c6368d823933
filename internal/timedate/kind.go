// Package timedate implements the time & date representations Chronarr
// publishes: a closed set of display kinds, pure formatting of an instant
// into each kind, and the boundary-alignment math that decides when a kind's
// value changes next (next minute, next local midnight, or next Swatch beat).
package timedate

import (
	"fmt"
	"strings"
)

// Kind identifies one of the supported time/date representations.
// The set is closed; Format panics on values outside it.
type Kind int

const (
	KindTime Kind = iota
	KindDate
	KindDateTime
	KindDateTimeUTC
	KindDateTimeISO
	KindTimeDate
	KindBeat
	KindTimeUTC

	kindCount
)

// kindKeys are the stable identifiers used in profiles, unique ids, the API,
// and the YAML profiles file. Order is the canonical catalog order.
var kindKeys = [kindCount]string{
	KindTime:        "time",
	KindDate:        "date",
	KindDateTime:    "date_time",
	KindDateTimeUTC: "date_time_utc",
	KindDateTimeISO: "date_time_iso",
	KindTimeDate:    "time_date",
	KindBeat:        "beat",
	KindTimeUTC:     "time_utc",
}

var kindLabels = [kindCount]string{
	KindTime:        "Time",
	KindDate:        "Date",
	KindDateTime:    "Date & Time",
	KindDateTimeUTC: "Date & Time (UTC)",
	KindDateTimeISO: "Date & Time (ISO)",
	KindTimeDate:    "Time & Date",
	KindBeat:        "Internet Time",
	KindTimeUTC:     "Time (UTC)",
}

// Kinds returns all representation kinds in canonical order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// ParseKind resolves a stable key ("time", "date_time_utc", ...) to its Kind.
func ParseKind(key string) (Kind, error) {
	for k := Kind(0); k < kindCount; k++ {
		if kindKeys[k] == key {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown representation kind: %q", key)
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	return k >= 0 && k < kindCount
}

// Key returns the stable identifier for k.
func (k Kind) Key() string {
	if !k.Valid() {
		panic(fmt.Sprintf("timedate: unknown kind %d", int(k)))
	}
	return kindKeys[k]
}

// String returns the stable key, making Kind printable in logs and errors.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindKeys[k]
}

// Label returns the human-readable name shown for sensors of this kind.
func (k Kind) Label() string {
	if !k.Valid() {
		panic(fmt.Sprintf("timedate: unknown kind %d", int(k)))
	}
	return kindLabels[k]
}

// Icon derives the icon from the kind key's name tokens: a key naming both
// date and time gets the combined icon, date alone the calendar, anything
// else the clock.
func (k Kind) Icon() string {
	key := k.Key()
	hasDate := strings.Contains(key, "date")
	hasTime := strings.Contains(key, "time")
	switch {
	case hasDate && hasTime:
		return "mdi:calendar-clock"
	case hasDate:
		return "mdi:calendar"
	default:
		return "mdi:clock"
	}
}
