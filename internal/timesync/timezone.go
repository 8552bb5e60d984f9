package timesync

import (
	"fmt"
	"time"
)

// IsTimezoneValid checks the name against the system tz database.
// The empty string is not a valid zone name.
func IsTimezoneValid(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// LoadFrameLocation resolves the zone used for frame timestamps that carry
// no offset. An empty name means the host's local zone.
func LoadFrameLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %s: %w", tz, err)
	}
	return loc, nil
}

// FormatUTC renders epoch seconds as an RFC 3339 UTC string for diagnostics.
func FormatUTC(s float64) string {
	return FromEpochSeconds(s).Format("2006-01-02T15:04:05.000Z07:00")
}
