package roi

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/polarization.report/internal/frames"
)

func defaultConfig() Config {
	return Config{ThresholdFraction: 0.5, MinArea: 4, PadPx: 3, GuardPx: 10, MaxSide: 64}
}

func squareFrame() *frames.Image {
	img := frames.NewImageFill(40, 40, 10)
	img.FillRect(10, 10, 15, 15, 1000)
	return img
}

func TestDetect_Square(t *testing.T) {
	det, err := NewDetector(defaultConfig()).Detect(squareFrame())
	require.NoError(t, err)

	assert.Equal(t, Box{Y0: 7, Y1: 18, X0: 7, X1: 18}, det.Box)
	assert.Equal(t, 25, det.BlobArea)
	assert.Equal(t, 10, det.PeakX)
	assert.Equal(t, 10, det.PeakY)
	assert.Equal(t, 1000.0, det.PeakValue)
}

func TestLocateAndMeasure_Square(t *testing.T) {
	img := squareFrame()
	det, bg, err := NewDetector(defaultConfig()).Locate(img)
	require.NoError(t, err)

	assert.False(t, bg.Fallback)
	assert.Equal(t, 40*40-28*28, bg.N)
	assert.Equal(t, 10.0, bg.Mean)
	assert.Equal(t, 10.0, bg.Median)

	st, err := Measure(img, det, bg)
	require.NoError(t, err)
	assert.Equal(t, 121, st.NPix)
	assert.Equal(t, 990.0, st.OnePixel)
	assert.InDelta(t, 24750.0, st.ROISum, 1e-9)
	assert.InDelta(t, 24750.0/121, st.ROIMean, 1e-9)
	assert.Equal(t, 0.0, st.ROIMedian)

	v, ok := st.Value(ROISum)
	assert.True(t, ok)
	assert.Equal(t, st.ROISum, v)
	_, ok = st.Value("bogus")
	assert.False(t, ok)
}

func TestDetect_Failures(t *testing.T) {
	d := NewDetector(defaultConfig())

	_, err := d.Detect(frames.NewImage(10, 10))
	assert.True(t, errors.Is(err, ErrNoDetection), "all-zero frame")

	nan := frames.NewImageFill(4, 4, math.NaN())
	_, err = d.Detect(nan)
	assert.True(t, errors.Is(err, ErrNoDetection), "all-NaN frame")

	_, err = d.Detect(frames.NewImage(0, 0))
	assert.True(t, errors.Is(err, ErrNoDetection), "empty frame")

	hot := frames.NewImageFill(10, 10, 1)
	hot.Set(5, 5, 1000)
	_, err = d.Detect(hot)
	assert.True(t, errors.Is(err, ErrNoBlob), "single hot pixel")
}

func TestDetect_MaxSideCentresOnPeak(t *testing.T) {
	img := frames.NewImageFill(40, 40, 1)
	img.FillRect(5, 5, 35, 35, 100)

	cfg := defaultConfig()
	cfg.MaxSide = 8
	det, err := NewDetector(cfg).Detect(img)
	require.NoError(t, err)

	assert.Equal(t, Box{Y0: 1, Y1: 9, X0: 1, X1: 9}, det.Box)
	assert.Equal(t, 900, det.BlobArea)
}

func TestEstimateBackground_Fallback(t *testing.T) {
	img := frames.NewImageFill(5, 5, 1000)
	bg := EstimateBackground(img, Box{Y0: 1, Y1: 4, X0: 1, X1: 4}, 10)
	assert.True(t, bg.Fallback)
	assert.Equal(t, 25, bg.N)
	assert.Equal(t, 1000.0, bg.Mean)
}

func TestLimitSpan(t *testing.T) {
	tests := []struct {
		name               string
		lo, hi, c, m, size int
		wantLo, wantHi     int
	}{
		{"within limit", 2, 6, 4, 8, 40, 2, 6},
		{"no limit", 0, 40, 20, 0, 40, 0, 40},
		{"centred", 0, 40, 20, 8, 40, 16, 24},
		{"clamped low", 0, 40, 1, 8, 40, 0, 8},
		{"clamped high", 0, 40, 39, 8, 40, 32, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := limitSpan(tt.lo, tt.hi, tt.c, tt.m, tt.size)
			assert.Equal(t, tt.wantLo, lo)
			assert.Equal(t, tt.wantHi, hi)
		})
	}
}

func TestFixedLocator(t *testing.T) {
	ref := frames.NewImageFill(40, 40, 5)
	ref.Set(20, 20, 500)

	l, err := NewFixedLocator(ref, 1, 0, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, Box{Y0: 19, Y1: 22, X0: 19, X1: 22}, l.Box())

	img := frames.NewImageFill(40, 40, 5)
	img.FillRect(19, 19, 22, 22, 50)
	det, bg, err := l.Locate(img)
	require.NoError(t, err)
	assert.Equal(t, 9, bg.N)
	assert.Equal(t, 5.0, bg.Mean)

	st, err := Measure(img, det, bg)
	require.NoError(t, err)
	assert.Equal(t, 45.0, st.OnePixel)
	assert.Equal(t, 405.0, st.ROISum)

	_, _, err = l.Locate(frames.NewImage(10, 10))
	assert.True(t, errors.Is(err, ErrBadROI))

	_, err = NewFixedLocator(ref, 1, 50, 50, 3)
	assert.True(t, errors.Is(err, ErrBadROI))
}

func TestParseStatistic(t *testing.T) {
	st, err := ParseStatistic("roi_median")
	require.NoError(t, err)
	assert.Equal(t, ROIMedian, st)

	_, err = ParseStatistic("roi_max")
	assert.Error(t, err)
}
