package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/polarization.report/internal/harmonic"
	"github.com/banshee-data/polarization.report/internal/roi"
	"github.com/banshee-data/polarization.report/internal/timesync"
)

// FrameRecord is the outcome of one successfully processed frame.
type FrameRecord struct {
	Index         int     // position in the frame listing
	Name          string
	CaptureTime   float64 // epoch seconds, clock offset applied
	EncoderCount  int64
	RotationIndex int
	PlateAngle    float64 // radians in [0, 2π)
	Values        map[roi.Statistic]float64
	ROI           roi.Box
	Background    roi.Background
}

// SkipReason classifies a frame that produced no record.
type SkipReason int

const (
	SkipMissingTimestamp SkipReason = iota
	SkipBadTimestamp
	SkipNoEncoderMatch
	SkipNoBlob
	SkipBadROI
	SkipReadFailed
)

func (r SkipReason) String() string {
	switch r {
	case SkipMissingTimestamp:
		return "missing_timestamp"
	case SkipBadTimestamp:
		return "bad_timestamp"
	case SkipNoEncoderMatch:
		return "no_encoder_match"
	case SkipNoBlob:
		return "no_blob"
	case SkipBadROI:
		return "bad_roi"
	case SkipReadFailed:
		return "read_failed"
	}
	return fmt.Sprintf("skip(%d)", int(r))
}

// SkipCounts tallies skipped frames by reason.
type SkipCounts struct {
	MissingTimestamp int `json:"missing_timestamp"`
	BadTimestamp     int `json:"bad_timestamp"`
	NoEncoderMatch   int `json:"no_encoder_match"`
	NoBlob           int `json:"no_blob"`
	BadROI           int `json:"bad_roi"`
	ReadFailed       int `json:"read_failed"`
}

// Add counts one skip.
func (s *SkipCounts) Add(r SkipReason) {
	switch r {
	case SkipMissingTimestamp:
		s.MissingTimestamp++
	case SkipBadTimestamp:
		s.BadTimestamp++
	case SkipNoEncoderMatch:
		s.NoEncoderMatch++
	case SkipNoBlob:
		s.NoBlob++
	case SkipBadROI:
		s.BadROI++
	case SkipReadFailed:
		s.ReadFailed++
	}
}

// Total returns the number of skipped frames.
func (s SkipCounts) Total() int {
	return s.MissingTimestamp + s.BadTimestamp + s.NoEncoderMatch + s.NoBlob + s.BadROI + s.ReadFailed
}

func (s SkipCounts) String() string {
	return fmt.Sprintf("missing_timestamp=%d bad_timestamp=%d no_encoder_match=%d no_blob=%d bad_roi=%d read_failed=%d",
		s.MissingTimestamp, s.BadTimestamp, s.NoEncoderMatch, s.NoBlob, s.BadROI, s.ReadFailed)
}

// FitOutcome is the harmonic fit of one statistic, or the reason there is
// none.
type FitOutcome struct {
	Statistic roi.Statistic
	Fit       *harmonic.Result
	Err       error
}

// OK reports whether the fit succeeded.
func (f FitOutcome) OK() bool { return f.Err == nil && f.Fit != nil }

// Reason describes why there is no fit, "" when OK.
func (f FitOutcome) Reason() string {
	if f.OK() {
		return ""
	}
	if f.Err == nil {
		return "no fit"
	}
	return f.Err.Error()
}

// Summary is the one-line text used in run logs.
func (f FitOutcome) Summary() string {
	if f.OK() {
		return fmt.Sprintf("%s: %s", f.Statistic, f.Fit.Label())
	}
	return fmt.Sprintf("%s: no fit: %s", f.Statistic, f.Reason())
}

// Result is everything a run produced. Records are in frame order and
// already outlier-filtered.
type Result struct {
	StartedAt       time.Time
	Elapsed         time.Duration
	FramesTotal     int
	Offset          timesync.Offset
	EncoderSamples  int
	EncoderMedian   float64
	OutliersRemoved int
	Skips           SkipCounts
	Statistics      []roi.Statistic
	Records         []FrameRecord
	Fits            []FitOutcome
}

// Series returns plate angle, encoder count, rotation index and value
// columns for one statistic, skipping records without that value.
func (r *Result) Series(st roi.Statistic) (theta []float64, counts []int64, rotations []int, values []float64) {
	for _, rec := range r.Records {
		v, ok := rec.Values[st]
		if !ok {
			continue
		}
		theta = append(theta, rec.PlateAngle)
		counts = append(counts, rec.EncoderCount)
		rotations = append(rotations, rec.RotationIndex)
		values = append(values, v)
	}
	return theta, counts, rotations, values
}

// FitFor returns the fit outcome of one statistic.
func (r *Result) FitFor(st roi.Statistic) (FitOutcome, bool) {
	for _, f := range r.Fits {
		if f.Statistic == st {
			return f, true
		}
	}
	return FitOutcome{}, false
}
