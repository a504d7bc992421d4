package ledger

import (
	"fmt"
	"time"
)

// The ledger joins two time domains: revenue events carry unix seconds,
// ledger entries carry unix milliseconds. Every conversion between them goes
// through this file so the unit boundary stays in one tested place.

// ParseDay parses a yyyymmdd accounting day into midnight UTC.
func ParseDay(day string) (time.Time, error) {
	t, err := time.ParseInLocation("20060102", day, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", day, err)
	}
	return t, nil
}

// DayWindowSeconds returns the inclusive [start, end] second bounds of an
// accounting day: midnight UTC through 23:59:59.
func DayWindowSeconds(day string) (startSec, endSec int64, err error) {
	t, err := ParseDay(day)
	if err != nil {
		return 0, 0, err
	}
	startSec = t.Unix()
	return startSec, startSec + 86399, nil
}

// SecondsWindowToMillis widens an inclusive second window to the inclusive
// millisecond window covering the same span. The upper bound is
// (endSec+1)*1000 - 1 so the last second of the day keeps its sub-second
// entries; truncating to endSec*1000 would silently drop them.
func SecondsWindowToMillis(startSec, endSec int64) (startMs, endMs int64) {
	return startSec * 1000, (endSec+1)*1000 - 1
}
