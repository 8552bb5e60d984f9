// Package encoder holds the rotary-encoder position log: loading it from
// disk, matching frame timestamps to the nearest sample, and rejecting
// implausible counts before fitting.
package encoder

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptyLog is returned when an encoder source yields no samples. A run
// cannot continue without at least one sample.
var ErrEmptyLog = errors.New("encoder log is empty")

// Sample is one encoder reading.
type Sample struct {
	Timestamp float64 // seconds since the Unix epoch
	Count     int64
}

// Log is a time-sorted encoder log stored as two parallel arrays.
// Timestamps are strictly increasing and len(Timestamps) == len(Counts).
type Log struct {
	Timestamps []float64
	Counts     []int64
}

// NewLog builds a Log from samples in source order. Samples sharing a
// timestamp collapse to the last one seen.
func NewLog(samples []Sample) (*Log, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyLog
	}

	latest := make(map[float64]int64, len(samples))
	for _, s := range samples {
		latest[s.Timestamp] = s.Count
	}

	ts := make([]float64, 0, len(latest))
	for t := range latest {
		ts = append(ts, t)
	}
	sort.Float64s(ts)

	counts := make([]int64, len(ts))
	for i, t := range ts {
		counts[i] = latest[t]
	}
	return &Log{Timestamps: ts, Counts: counts}, nil
}

// Len returns the number of samples.
func (l *Log) Len() int { return len(l.Timestamps) }

// Range returns the first and last sample timestamps.
func (l *Log) Range() (first, last float64) {
	if l.Len() == 0 {
		return 0, 0
	}
	return l.Timestamps[0], l.Timestamps[l.Len()-1]
}

// Samples returns the log as a slice of samples in time order.
func (l *Log) Samples() []Sample {
	out := make([]Sample, l.Len())
	for i := range l.Timestamps {
		out[i] = Sample{Timestamp: l.Timestamps[i], Count: l.Counts[i]}
	}
	return out
}

// CountRange returns the smallest and largest count in the log.
func (l *Log) CountRange() (min, max int64) {
	if l.Len() == 0 {
		return 0, 0
	}
	min, max = l.Counts[0], l.Counts[0]
	for _, c := range l.Counts[1:] {
		if c < min {
			min = c
		}
		if c > max {
			max = c
		}
	}
	return min, max
}

// Nearest returns the count recorded closest in time to t. ok is false when
// t lies outside [first, last]. When t is equidistant from two samples the
// earlier one wins.
func (l *Log) Nearest(t float64) (count int64, ok bool) {
	n := l.Len()
	if n == 0 || math.IsNaN(t) || t < l.Timestamps[0] || t > l.Timestamps[n-1] {
		return 0, false
	}

	idx := sort.SearchFloat64s(l.Timestamps, t)
	if idx == 0 {
		return l.Counts[0], true
	}
	if idx == n {
		return l.Counts[n-1], true
	}

	before := t - l.Timestamps[idx-1]
	after := l.Timestamps[idx] - t
	if before <= after {
		return l.Counts[idx-1], true
	}
	return l.Counts[idx], true
}
