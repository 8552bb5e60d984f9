package timesync

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrMissingTimestamp means the frame carried no capture timestamp.
	ErrMissingTimestamp = errors.New("missing capture timestamp")
	// ErrBadTimestamp means the capture timestamp could not be parsed.
	ErrBadTimestamp = errors.New("unparseable capture timestamp")
)

// Layouts with an explicit zone. "Z07:00" accepts both "Z" and "+hh:mm".
var zonedLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDateObs parses a capture timestamp in the ISO-8601 subset written by
// the capture tools. A trailing "Z" means UTC, an explicit offset is honoured,
// and a timestamp without zone is read in loc (time.Local when nil).
func ParseDateObs(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	if loc == nil {
		loc = time.Local
	}
	// Date and time separated by a space.
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadTimestamp, s)
}

// EpochSeconds converts t to fractional seconds since the Unix epoch.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// FromEpochSeconds is the inverse of EpochSeconds, in UTC.
func FromEpochSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}
