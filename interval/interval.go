// Package interval implements the rolling 10-minute interval arithmetic used
// by the exposure-notification protocol. Key validity windows, export
// selection and federation filtering are all expressed in these intervals.
package interval

import "time"

const (
	// Length is the duration of a single rolling interval.
	Length = 10 * time.Minute

	// TEKRollingPeriod is the number of intervals a temporary exposure key
	// normally covers: 144 intervals, one full day.
	TEKRollingPeriod = 144

	// HistoryDays is how far back a key may reach before it is out of policy.
	HistoryDays = 14
)

// Number converts a wall-clock time to its interval number.
func Number(t time.Time) int64 {
	return t.Unix() / int64(Length/time.Second)
}

// Timestamp converts an interval number back to the wall-clock time at which
// that interval starts.
func Timestamp(n int64) time.Time {
	return time.Unix(n*int64(Length/time.Second), 0).UTC()
}

// IsValid reports whether a key starting at interval start with the given
// rolling period is acceptable at time now.
//
// A key must not start in the future, and must not have expired more than
// HistoryDays ago. The expiry check uses the key's own rolling period, so a
// partial-day key generated today (rollingPeriod < 144) is still valid.
func IsValid(start int64, rollingPeriod int, now time.Time) bool {
	current := Number(now)
	if start > current {
		return false
	}
	return start+int64(rollingPeriod) > current-HistoryDays*TEKRollingPeriod
}
