package timedate

import "time"

const (
	// MinuteCadence is the refresh cadence for every kind whose display
	// granularity is one minute.
	MinuteCadence = time.Minute

	// BeatCadence is one Swatch beat: 1/1000 of a day, 86.4 seconds.
	BeatCadence = 86400 * time.Millisecond
)

// NextInterval returns the absolute instant at which kind's displayed value
// changes next, strictly after now.
//
// Date aligns to the start of the next local calendar day so the fire lands
// on local midnight whatever the zone's offset does in between. On a DST
// gap day where midnight does not exist, time.Date normalization yields the
// first instant that does exist; the guard below additionally rolls one more
// day forward should the computed boundary ever fail to be in the future.
//
// Beat aligns to the 86.4 s grid of Biel Mean Time: the phase is computed on
// the instant shifted +1 h, but the returned instant is relative to the real
// now. Every other kind aligns to the next minute.
//
// A remainder of zero (now exactly on a boundary) yields a full cadence, so
// re-arming from a fire that landed on its boundary never produces a
// zero-length sleep.
func NextInterval(kind Kind, now time.Time, loc *time.Location) time.Time {
	if kind == KindDate {
		local := now.In(loc)
		y, m, d := local.Date()
		next := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
		if !next.After(now) {
			next = time.Date(y, m, d+2, 0, 0, 0, 0, loc)
		}
		return next
	}

	cadence := MinuteCadence
	ref := now
	if kind == KindBeat {
		cadence = BeatCadence
		ref = now.Add(time.Hour)
	}

	delta := cadence - time.Duration(ref.UnixNano()%int64(cadence))
	return now.Add(delta)
}
