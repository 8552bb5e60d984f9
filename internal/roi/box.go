// Package roi locates the bright signal blob in a frame, estimates the
// background around it and reduces the frame to background-subtracted
// photometric statistics.
package roi

import "fmt"

// Box is a rectangular region with exclusive upper bounds: rows [Y0, Y1),
// columns [X0, X1).
type Box struct {
	Y0, Y1, X0, X1 int
}

// Width returns X1 - X0.
func (b Box) Width() int { return b.X1 - b.X0 }

// Height returns Y1 - Y0.
func (b Box) Height() int { return b.Y1 - b.Y0 }

// Area returns the number of pixels in the box.
func (b Box) Area() int {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool { return b.X1 <= b.X0 || b.Y1 <= b.Y0 }

// Contains reports whether column x, row y lies inside the box.
func (b Box) Contains(x, y int) bool {
	return x >= b.X0 && x < b.X1 && y >= b.Y0 && y < b.Y1
}

// Inside reports whether the box lies within a w×h frame.
func (b Box) Inside(w, h int) bool {
	return b.X0 >= 0 && b.Y0 >= 0 && b.X1 <= w && b.Y1 <= h
}

// Grow pads the box by n pixels on every side and clamps it to a w×h frame.
func (b Box) Grow(n, w, h int) Box {
	return Box{
		Y0: max(b.Y0-n, 0),
		Y1: min(b.Y1+n, h),
		X0: max(b.X0-n, 0),
		X1: min(b.X1+n, w),
	}
}

func (b Box) String() string {
	return fmt.Sprintf("y[%d:%d] x[%d:%d]", b.Y0, b.Y1, b.X0, b.X1)
}

// limitSpan shrinks [lo, hi) to at most maxLen, centred on c and shifted
// back inside [0, size).
func limitSpan(lo, hi, c, maxLen, size int) (int, int) {
	if maxLen <= 0 || hi-lo <= maxLen {
		return lo, hi
	}
	lo = c - maxLen/2
	hi = lo + maxLen
	if lo < 0 {
		hi -= lo
		lo = 0
	}
	if hi > size {
		lo -= hi - size
		hi = size
	}
	if lo < 0 {
		lo = 0
	}
	return lo, hi
}
