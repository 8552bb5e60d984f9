// Package timesync aligns frame capture timestamps with the encoder clock.
package timesync

import (
	"fmt"
	"math"
)

const (
	// MaxSample is the number of leading frame timestamps used by the search.
	MaxSample = 200
	// SearchHours bounds the whole-hour search to [-SearchHours, +SearchHours].
	SearchHours = 12
)

// Offset is the correction added to frame timestamps to land them on the
// encoder clock.
type Offset struct {
	Seconds float64
	Matches int  // sampled timestamps inside the encoder range after shifting
	Sampled int  // sampled timestamps that parsed
	Manual  bool // supplied by the caller rather than searched
}

// Hours returns the offset in hours.
func (o Offset) Hours() float64 { return o.Seconds / 3600 }

func (o Offset) String() string {
	if o.Manual {
		return fmt.Sprintf("%+.2f h (manual)", o.Hours())
	}
	return fmt.Sprintf("%+.0f h (range matches %d/%d)", o.Hours(), o.Matches, o.Sampled)
}

// ResolveOffset picks the whole-hour offset in [-12h, +12h] that puts the
// most of the first MaxSample frame timestamps inside [lo, hi]. NaN entries
// stand for timestamps that failed to parse and are ignored. Ties keep the
// lowest offset. A non-nil manualHours is used as-is and skips the search.
//
// This only maximises range membership; it says nothing about how well the
// two clocks agree within the hour.
func ResolveOffset(frameTimes []float64, lo, hi float64, manualHours *float64) Offset {
	if manualHours != nil {
		return Offset{Seconds: *manualHours * 3600, Manual: true}
	}

	sample := frameTimes
	if len(sample) > MaxSample {
		sample = sample[:MaxSample]
	}

	valid := 0
	for _, ts := range sample {
		if !math.IsNaN(ts) {
			valid++
		}
	}
	if valid == 0 || hi < lo {
		return Offset{Sampled: valid}
	}

	best := Offset{Matches: -1, Sampled: valid}
	for hours := -SearchHours; hours <= SearchHours; hours++ {
		off := float64(hours * 3600)
		matches := 0
		for _, ts := range sample {
			if math.IsNaN(ts) {
				continue
			}
			if shifted := ts + off; shifted >= lo && shifted <= hi {
				matches++
			}
		}
		if matches > best.Matches {
			best.Matches = matches
			best.Seconds = off
		}
	}
	return best
}
