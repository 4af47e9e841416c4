package service

import (
	"fmt"
	"time"
)

// Magnitude thresholds used to detect the unit of a raw timestamp. Sources do not
// tag the unit, so anything above a threshold is assumed to be the finer unit.
const (
	nanosecondThreshold  int64 = 1e18
	microsecondThreshold int64 = 1e15
	millisecondThreshold int64 = 1e12
)

// NormalizeTimestamp converts a timestamp in seconds, milliseconds, microseconds
// or nanoseconds into a time, detecting the unit by magnitude.
func NormalizeTimestamp(ts int64) time.Time {
	switch {
	case ts > nanosecondThreshold:
		return time.Unix(0, ts).UTC()
	case ts > microsecondThreshold:
		return time.UnixMicro(ts).UTC()
	case ts > millisecondThreshold:
		return time.UnixMilli(ts).UTC()
	default:
		return time.Unix(ts, 0).UTC()
	}
}

// RelativeTime renders a coarse "time since" label. A zero timestamp yields "".
func RelativeTime(ts int64, now time.Time) string {
	if ts == 0 {
		return ""
	}

	diff := now.Sub(NormalizeTimestamp(ts))
	if diff < 0 {
		diff = 0
	}

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%dс назад", int(diff/time.Second))
	case diff < time.Hour:
		return fmt.Sprintf("%dм назад", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dч %dм назад", int(diff/time.Hour), int((diff%time.Hour)/time.Minute))
	default:
		return fmt.Sprintf("%dд назад", int(diff/(24*time.Hour)))
	}
}
