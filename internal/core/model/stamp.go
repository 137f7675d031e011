package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Stamp is the single internal time representation: nanoseconds since the
// Unix epoch, UTC. Both wire encodings normalise to it so that ordering is
// plain integer ordering.
type Stamp int64

const (
	MinStamp Stamp = math.MinInt64
	MaxStamp Stamp = math.MaxInt64
)

func StampFromTime(t time.Time) Stamp {
	return Stamp(t.UnixNano())
}

// StampFromMillis converts a TimeStampUTCms value. Fractions below one
// nanosecond are rounded.
func StampFromMillis(ms float64) (Stamp, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0, fmt.Errorf("stamp %v: %w", ms, ErrMalformedRequest)
	}
	ns := math.Round(ms * 1e6)
	if ns >= math.MaxInt64 || ns <= math.MinInt64 {
		return 0, fmt.Errorf("stamp %v out of range: %w", ms, ErrMalformedRequest)
	}
	return Stamp(int64(ns)), nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate converts a TimeStampDate value. A missing zone means UTC.
// Calendar fields written as zero (e.g. "2020-00-00T00:00:00Z") are clamped
// to the first month/day instead of rejecting the stamp.
func ParseDate(s string) (Stamp, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return StampFromTime(t), nil
		}
	}

	var year, month, day, hour, min, sec int
	n, _ := fmt.Sscanf(strings.TrimSuffix(s, "Z"), "%d-%d-%dT%d:%d:%d", &year, &month, &day, &hour, &min, &sec)
	if n < 3 {
		return 0, fmt.Errorf("invalid date stamp %q: %w", s, ErrMalformedRequest)
	}
	if month < 1 {
		month = 1
	}
	if day < 1 {
		day = 1
	}
	return StampFromTime(time.Date(year, time.Month(month), day, hour, min, sec, 0, time.UTC)), nil
}

func (s Stamp) Time() time.Time {
	return time.Unix(0, int64(s)).UTC()
}

func (s Stamp) Millis() float64 {
	return float64(s) / 1e6
}

func (s Stamp) String() string {
	switch s {
	case MinStamp:
		return "-inf"
	case MaxStamp:
		return "+inf"
	}
	return s.Time().Format(time.RFC3339Nano)
}

// Interval is the half-open validity range [Start, End) of a connection.
type Interval struct {
	Start Stamp
	End   Stamp
}

func Unbounded() Interval {
	return Interval{Start: MinStamp, End: MaxStamp}
}

func (i Interval) Contains(s Stamp) bool {
	return s >= i.Start && s < i.End
}
