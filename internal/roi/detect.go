package roi

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/polarization.report/internal/frames"
)

var (
	// ErrNoDetection means the frame has no usable peak (empty, non-finite
	// or non-positive maximum).
	ErrNoDetection = errors.New("no detection")
	// ErrNoBlob means the blob around the peak is smaller than MinArea.
	ErrNoBlob = errors.New("no blob above threshold")
	// ErrBadROI means the region of interest is empty or leaves the frame.
	ErrBadROI = errors.New("degenerate or out-of-bounds ROI")
)

// Config holds the blob detector parameters.
type Config struct {
	ThresholdFraction float64 // bright if value >= fraction * peak
	MinArea           int     // minimum blob size in pixels
	PadPx             int     // margin added around the blob bounding box
	GuardPx           int     // extra margin excluded from the background
	MaxSide           int     // upper bound on ROI width and height; <= 0 means none
}

// Detection is the located signal region of one frame.
type Detection struct {
	Box       Box
	PeakX     int
	PeakY     int
	PeakValue float64
	BlobArea  int
}

// Locator finds the ROI in a frame and measures the background around it.
type Locator interface {
	Locate(img *frames.Image) (Detection, Background, error)
}

// Detector finds the signal blob by thresholded flood fill from the peak.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector. The config is copied.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Config returns the detector configuration.
func (d *Detector) Config() Config { return d.cfg }

// Locate runs Detect and then estimates the background outside the ROI.
func (d *Detector) Locate(img *frames.Image) (Detection, Background, error) {
	det, err := d.Detect(img)
	if err != nil {
		return Detection{}, Background{}, err
	}
	return det, EstimateBackground(img, det.Box, d.cfg.GuardPx), nil
}

// Detect locates the brightest pixel, flood-fills the 4-connected region at
// or above ThresholdFraction of its value, and returns the padded, clamped
// bounding box of that region.
func (d *Detector) Detect(img *frames.Image) (Detection, error) {
	if img == nil || img.W == 0 || img.H == 0 {
		return Detection{}, ErrNoDetection
	}

	px, py, peak := Peak(img)
	if math.IsNaN(peak) || math.IsInf(peak, 0) || peak <= 0 {
		return Detection{}, fmt.Errorf("%w: peak value %v", ErrNoDetection, peak)
	}

	blob, area := floodFill(img, px, py, d.cfg.ThresholdFraction*peak)
	if area == 0 {
		return Detection{}, ErrNoDetection
	}
	if area < d.cfg.MinArea {
		return Detection{}, fmt.Errorf("%w: area %d < %d", ErrNoBlob, area, d.cfg.MinArea)
	}

	box := blob.Grow(d.cfg.PadPx, img.W, img.H)
	box.Y0, box.Y1 = limitSpan(box.Y0, box.Y1, py, d.cfg.MaxSide, img.H)
	box.X0, box.X1 = limitSpan(box.X0, box.X1, px, d.cfg.MaxSide, img.W)
	if box.Empty() || !box.Inside(img.W, img.H) {
		return Detection{}, fmt.Errorf("%w: %v", ErrBadROI, box)
	}

	return Detection{
		Box:       box,
		PeakX:     px,
		PeakY:     py,
		PeakValue: peak,
		BlobArea:  area,
	}, nil
}

// Peak returns the coordinates and value of the first maximum in row-major
// order. NaN pixels are skipped; an all-NaN frame returns NaN.
func Peak(img *frames.Image) (x, y int, v float64) {
	best := -1
	v = math.NaN()
	for i, p := range img.Pix {
		if math.IsNaN(p) {
			continue
		}
		if best < 0 || p > v {
			best = i
			v = p
		}
	}
	if best < 0 {
		return 0, 0, v
	}
	return best % img.W, best / img.W, v
}

// floodFill walks the 4-connected region of pixels >= threshold that
// contains (x0, y0) and returns its bounding box and pixel count. The
// visited buffer is owned by this call.
func floodFill(img *frames.Image, x0, y0 int, threshold float64) (Box, int) {
	w, h := img.W, img.H
	start := y0*w + x0
	if !(img.Pix[start] >= threshold) {
		return Box{}, 0
	}

	visited := make([]bool, w*h)
	stack := []int{start}
	visited[start] = true

	box := Box{Y0: y0, Y1: y0 + 1, X0: x0, X1: x0 + 1}
	area := 0
	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		py, px := idx/w, idx%w
		area++

		box.Y0 = min(box.Y0, py)
		box.Y1 = max(box.Y1, py+1)
		box.X0 = min(box.X0, px)
		box.X1 = max(box.X1, px+1)

		for _, dxy := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			nx, ny := px+dxy[0], py+dxy[1]
			if nx < 0 || nx >= w || ny < 0 || ny >= h {
				continue
			}
			nidx := ny*w + nx
			if !visited[nidx] && img.Pix[nidx] >= threshold {
				visited[nidx] = true
				stack = append(stack, nidx)
			}
		}
	}
	return box, area
}
