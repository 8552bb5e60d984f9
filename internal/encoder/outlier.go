package encoder

import (
	"math"

	"github.com/montanaflynn/stats"
)

// OutlierMask flags counts that sit too far from the batch median.
// A count is rejected when |count - median| > factor*median. When the
// median is below minMedian (or the batch is empty) every count is kept,
// since the relative threshold is meaningless near zero.
//
// The filter is a single global pass; it is not re-run after rejection.
func OutlierMask(counts []int64, factor, minMedian float64) (keep []bool, median float64) {
	keep = make([]bool, len(counts))
	for i := range keep {
		keep[i] = true
	}
	if len(counts) == 0 {
		return keep, math.NaN()
	}

	vals := make(stats.Float64Data, len(counts))
	for i, c := range counts {
		vals[i] = float64(c)
	}
	median, err := vals.Median()
	if err != nil || median < minMedian {
		return keep, median
	}

	limit := factor * median
	for i, v := range vals {
		if math.Abs(v-median) > limit {
			keep[i] = false
		}
	}
	return keep, median
}

// CountRejected returns how many entries of mask are false.
func CountRejected(mask []bool) int {
	n := 0
	for _, k := range mask {
		if !k {
			n++
		}
	}
	return n
}
