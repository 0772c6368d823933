package timedate

import (
	"fmt"
	"time"
)

const (
	clockLayout = "15:04"
	dateLayout  = "2006-01-02"

	// beatDivisor is 86.4 seconds in nanoseconds. One Swatch beat is
	// 1/1000 of a day; division happens on scaled integers because float
	// seconds/86.4 rounds differently near beat boundaries (63763.2 s of
	// day is beat 738 in integer math, 737 in float math).
	beatDivisor = 864_000_000_000
)

// Format renders instant as the given representation kind. Local fields use
// loc, UTC fields use the instant as-is; both views derive from the single
// instant argument so a value can never mix two different "now"s. Pure, and
// total over the closed kind set: an out-of-range kind is a programming
// error and panics.
func Format(kind Kind, instant time.Time, loc *time.Location) string {
	local := instant.In(loc)
	utc := instant.UTC()

	switch kind {
	case KindTime:
		return local.Format(clockLayout)
	case KindDate:
		return local.Format(dateLayout)
	case KindDateTime:
		return local.Format(dateLayout + ", " + clockLayout)
	case KindDateTimeUTC:
		return utc.Format(dateLayout + ", " + clockLayout)
	case KindDateTimeISO:
		// Minute precision by construction: the local date and HH:MM are
		// re-emitted as a full ISO 8601 timestamp with :00 seconds.
		return local.Format(dateLayout+"T"+clockLayout) + ":00"
	case KindTimeDate:
		return local.Format(clockLayout + ", " + dateLayout)
	case KindTimeUTC:
		return utc.Format(clockLayout)
	case KindBeat:
		return formatBeat(instant)
	}
	panic(fmt.Sprintf("timedate: format called with unknown kind %d", int(kind)))
}

// formatBeat computes Swatch Internet Time. Beat zero is 23:00 UTC, so the
// instant shifts one hour ahead to Biel Mean Time before taking the
// time-of-day remainder at full sub-second precision.
func formatBeat(instant time.Time) string {
	bmt := instant.UTC().Add(time.Hour)
	y, m, d := bmt.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	nanosOfDay := bmt.Sub(midnight).Nanoseconds()
	beat := nanosOfDay * 10 / beatDivisor
	return fmt.Sprintf("@%03d", beat)
}
