// Package period models the fixed time buckets for which distributable key
// exports are built: one export per UTC day and one per two-hour UTC window.
package period

import (
	"fmt"
	"strings"
	"time"
)

// Kind selects the bucket size of a Period.
type Kind int

const (
	Daily Kind = iota
	TwoHourly
)

const (
	dailyPrefix     = "distribution/daily/"
	twoHourlyPrefix = "distribution/two-hourly/"

	// dailyHistory is the number of already-closed daily periods regenerated
	// on every run, so late-arriving submissions still land in old exports.
	dailyHistory = 14
	// twoHourlyHistory covers the same 14 days in two-hour buckets.
	twoHourlyHistory = 14 * 12
)

// Period is a half-open time bucket (endExclusive-bucket, endExclusive].
// The zero value is not valid; construct via NewDaily, NewTwoHourly or
// ForSubmissionDate.
type Period struct {
	kind Kind
	end  time.Time // exclusive, boundary-aligned, UTC
}

// NewDaily returns the daily period ending at endExclusive.
// endExclusive must be midnight UTC exactly; anything else is a programmer
// error and panics.
func NewDaily(endExclusive time.Time) Period {
	end := endExclusive.UTC()
	if h, m, s := end.Clock(); h != 0 || m != 0 || s != 0 || end.Nanosecond() != 0 {
		panic(fmt.Sprintf("period: daily end %s is not aligned to midnight UTC", end.Format(time.RFC3339Nano)))
	}
	return Period{kind: Daily, end: end}
}

// NewTwoHourly returns the two-hourly period ending at endExclusive.
// endExclusive must be an even UTC hour exactly; anything else panics.
func NewTwoHourly(endExclusive time.Time) Period {
	end := endExclusive.UTC()
	h, m, s := end.Clock()
	if h%2 != 0 || m != 0 || s != 0 || end.Nanosecond() != 0 {
		panic(fmt.Sprintf("period: two-hourly end %s is not aligned to an even UTC hour", end.Format(time.RFC3339Nano)))
	}
	return Period{kind: TwoHourly, end: end}
}

// ForSubmissionDate returns the period of the given kind whose bucket
// contains t, i.e. the bucket end strictly after t.
func ForSubmissionDate(kind Kind, t time.Time) Period {
	bucket := bucketSize(kind)
	end := t.UTC().Truncate(bucket).Add(bucket)
	switch kind {
	case Daily:
		return NewDaily(end)
	default:
		return NewTwoHourly(end)
	}
}

func bucketSize(kind Kind) time.Duration {
	if kind == Daily {
		return 24 * time.Hour
	}
	return 2 * time.Hour
}

// Kind returns the bucket kind.
func (p Period) Kind() Kind { return p.kind }

// EndExclusive returns the exclusive end of the bucket.
func (p Period) EndExclusive() time.Time { return p.end }

// Bucket returns the bucket size.
func (p Period) Bucket() time.Duration { return bucketSize(p.kind) }

// ZipPath returns the canonical storage key of the export archive for this
// period, e.g. distribution/daily/2020072000.zip.
func (p Period) ZipPath() string {
	if p.kind == Daily {
		return dailyPrefix + p.end.Format("20060102") + "00.zip"
	}
	return twoHourlyPrefix + p.end.Format("2006010215") + ".zip"
}

// IsCoveringSubmissionDate reports whether t falls into this period's bucket
// shifted by offset: t ∈ [end-bucket+offset, end+offset).
func (p Period) IsCoveringSubmissionDate(t time.Time, offset time.Duration) bool {
	start := p.end.Add(-p.Bucket()).Add(offset)
	end := p.end.Add(offset)
	return !t.Before(start) && t.Before(end)
}

// AllPeriodsToGenerate returns this period followed by the full rolling
// history, each one bucket earlier than the last. For Daily that is 15
// periods in total (the still-open current one plus 14 closed days), for
// TwoHourly 169.
func (p Period) AllPeriodsToGenerate() []Period {
	history := dailyHistory
	if p.kind == TwoHourly {
		history = twoHourlyHistory
	}
	periods := make([]Period, 0, history+1)
	cur := p
	for i := 0; i <= history; i++ {
		periods = append(periods, cur)
		cur = Period{kind: cur.kind, end: cur.end.Add(-cur.Bucket())}
	}
	return periods
}

// Parse inverts ZipPath. It returns the period for a canonical export path,
// or ok=false if the path does not match the expected pattern exactly.
func Parse(path string) (Period, bool) {
	switch {
	case strings.HasPrefix(path, dailyPrefix):
		rest := strings.TrimPrefix(path, dailyPrefix)
		end, ok := parseStamp(rest)
		if !ok || end.Hour() != 0 {
			return Period{}, false
		}
		return Period{kind: Daily, end: end}, true
	case strings.HasPrefix(path, twoHourlyPrefix):
		rest := strings.TrimPrefix(path, twoHourlyPrefix)
		end, ok := parseStamp(rest)
		if !ok || end.Hour()%2 != 0 {
			return Period{}, false
		}
		return Period{kind: TwoHourly, end: end}, true
	}
	return Period{}, false
}

// parseStamp parses "yyyyMMddHH.zip" strictly: exactly ten digits, no slack.
func parseStamp(s string) (time.Time, bool) {
	if len(s) != len("2006010215.zip") || !strings.HasSuffix(s, ".zip") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(s, ".zip")
	end, err := time.ParseInLocation("2006010215", stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	// Reject inputs time.Parse normalizes, e.g. hour 24.
	if end.Format("2006010215") != stamp {
		return time.Time{}, false
	}
	return end, true
}
