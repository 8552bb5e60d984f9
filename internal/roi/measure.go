package roi

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/polarization.report/internal/frames"
)

// Statistic names one photometric reduction of a frame.
type Statistic string

const (
	OnePixel  Statistic = "one_pixel"
	ROISum    Statistic = "roi_sum"
	ROIMean   Statistic = "roi_mean"
	ROIMedian Statistic = "roi_median"
)

// AllStatistics lists every supported statistic in output column order.
var AllStatistics = []Statistic{OnePixel, ROISum, ROIMean, ROIMedian}

// ParseStatistic validates a statistic name.
func ParseStatistic(s string) (Statistic, error) {
	for _, st := range AllStatistics {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown statistic %q", s)
}

// Background summarises the pixels used as the sky/dark level.
type Background struct {
	Mean     float64
	Median   float64
	N        int
	Fallback bool // true when no pixel lay outside the guarded ROI
}

// Stats are the background-subtracted values of one frame.
type Stats struct {
	OnePixel  float64
	ROISum    float64
	ROIMean   float64
	ROIMedian float64
	NPix      int
}

// Value returns the named statistic.
func (s Stats) Value(st Statistic) (float64, bool) {
	switch st {
	case OnePixel:
		return s.OnePixel, true
	case ROISum:
		return s.ROISum, true
	case ROIMean:
		return s.ROIMean, true
	case ROIMedian:
		return s.ROIMedian, true
	}
	return math.NaN(), false
}

// EstimateBackground collects every pixel outside box grown by guard and
// returns their mean and median. When nothing remains the whole frame is
// used instead.
func EstimateBackground(img *frames.Image, box Box, guard int) Background {
	excl := box.Grow(guard, img.W, img.H)
	vals := make([]float64, 0, len(img.Pix)-excl.Area())
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			if excl.Contains(x, y) {
				continue
			}
			vals = append(vals, img.At(x, y))
		}
	}

	fallback := false
	if len(vals) == 0 {
		vals = append(vals, img.Pix...)
		fallback = true
	}
	bg := summarise(vals)
	bg.Fallback = fallback
	return bg
}

// Measure reduces the ROI to background-subtracted statistics. The sum
// subtracts the background mean once per ROI pixel; the median statistic
// subtracts the background median.
func Measure(img *frames.Image, det Detection, bg Background) (Stats, error) {
	if det.Box.Empty() || !det.Box.Inside(img.W, img.H) {
		return Stats{}, fmt.Errorf("%w: %v", ErrBadROI, det.Box)
	}

	vals := make([]float64, 0, det.Box.Area())
	for y := det.Box.Y0; y < det.Box.Y1; y++ {
		for x := det.Box.X0; x < det.Box.X1; x++ {
			vals = append(vals, img.At(x, y))
		}
	}

	n := len(vals)
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	med, err := stats.Float64Data(vals).Median()
	if err != nil {
		return Stats{}, fmt.Errorf("roi median: %w", err)
	}

	return Stats{
		OnePixel:  img.At(det.PeakX, det.PeakY) - bg.Mean,
		ROISum:    sum - bg.Mean*float64(n),
		ROIMean:   stat.Mean(vals, nil) - bg.Mean,
		ROIMedian: med - bg.Median,
		NPix:      n,
	}, nil
}

func summarise(vals []float64) Background {
	bg := Background{N: len(vals), Mean: math.NaN(), Median: math.NaN()}
	if len(vals) == 0 {
		return bg
	}
	bg.Mean = stat.Mean(vals, nil)
	if med, err := stats.Float64Data(vals).Median(); err == nil {
		bg.Median = med
	}
	return bg
}
