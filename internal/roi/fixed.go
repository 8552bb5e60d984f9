package roi

import (
	"fmt"

	"github.com/banshee-data/polarization.report/internal/frames"
)

// FixedLocator uses one ROI for every frame: a square of side 2*Half+1
// centred on the peak of a reference frame, with the background taken from
// a fixed square elsewhere in the frame.
type FixedLocator struct {
	Half       int
	PeakX      int
	PeakY      int
	Background Box
}

// NewFixedLocator finds the peak in ref and fixes the ROI there. bgY, bgX
// is the top-left corner of the background square.
func NewFixedLocator(ref *frames.Image, half, bgY, bgX, bgSize int) (*FixedLocator, error) {
	if ref == nil || ref.W == 0 || ref.H == 0 {
		return nil, ErrNoDetection
	}
	px, py, _ := Peak(ref)
	l := &FixedLocator{
		Half:       half,
		PeakX:      px,
		PeakY:      py,
		Background: Box{Y0: bgY, Y1: bgY + bgSize, X0: bgX, X1: bgX + bgSize},
	}
	if l.Background.Empty() || !l.Background.Inside(ref.W, ref.H) {
		return nil, fmt.Errorf("%w: background %v", ErrBadROI, l.Background)
	}
	return l, nil
}

// Box returns the fixed ROI.
func (l *FixedLocator) Box() Box {
	return Box{
		Y0: l.PeakY - l.Half,
		Y1: l.PeakY + l.Half + 1,
		X0: l.PeakX - l.Half,
		X1: l.PeakX + l.Half + 1,
	}
}

// Locate returns the fixed ROI and the fixed background square's statistics.
func (l *FixedLocator) Locate(img *frames.Image) (Detection, Background, error) {
	box := l.Box()
	if box.Empty() || !box.Inside(img.W, img.H) {
		return Detection{}, Background{}, fmt.Errorf("%w: %v", ErrBadROI, box)
	}
	if !l.Background.Inside(img.W, img.H) {
		return Detection{}, Background{}, fmt.Errorf("%w: background %v", ErrBadROI, l.Background)
	}

	vals := make([]float64, 0, l.Background.Area())
	for y := l.Background.Y0; y < l.Background.Y1; y++ {
		for x := l.Background.X0; x < l.Background.X1; x++ {
			vals = append(vals, img.At(x, y))
		}
	}

	det := Detection{
		Box:       box,
		PeakX:     l.PeakX,
		PeakY:     l.PeakY,
		PeakValue: img.At(l.PeakX, l.PeakY),
		BlobArea:  box.Area(),
	}
	return det, summarise(vals), nil
}
