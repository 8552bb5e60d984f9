// Package frames provides access to captured exposure frames: a capture
// timestamp string plus one selected single-channel pixel plane.
package frames

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a frame name is unknown to a Source.
var ErrNotFound = errors.New("frame not found")

// Image is a single-channel intensity plane stored row-major.
type Image struct {
	W, H int
	Pix  []float64
}

// NewImage allocates a zeroed w×h image.
func NewImage(w, h int) *Image {
	return &Image{W: w, H: h, Pix: make([]float64, w*h)}
}

// NewImageFill allocates a w×h image with every pixel set to v.
func NewImageFill(w, h int, v float64) *Image {
	img := NewImage(w, h)
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// At returns the pixel at column x, row y.
func (m *Image) At(x, y int) float64 { return m.Pix[y*m.W+x] }

// Set writes the pixel at column x, row y.
func (m *Image) Set(x, y int, v float64) { m.Pix[y*m.W+x] = v }

// FillRect sets every pixel of the half-open rectangle [x0,x1)×[y0,y1).
func (m *Image) FillRect(x0, y0, x1, y1 int, v float64) {
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			m.Set(x, y, v)
		}
	}
}

// SubGrid returns every second pixel starting at (x0, y0), which is how a
// single colour plane is pulled out of a 2×2 Bayer mosaic.
func (m *Image) SubGrid(x0, y0 int) *Image {
	w := (m.W - x0 + 1) / 2
	h := (m.H - y0 + 1) / 2
	out := NewImage(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out.Set(x, y, m.At(x0+2*x, y0+2*y))
		}
	}
	return out
}

// Frame is one exposure as read from a Source.
type Frame struct {
	Name    string
	DateObs string
	Image   *Image
}

// Source lists frames and reads them lazily. Timestamps are read separately
// from pixels so the clock offset can be resolved before any pixel I/O.
type Source interface {
	// List returns frame names in capture order.
	List() ([]string, error)

	// Timestamp returns the raw capture timestamp string, "" when absent.
	Timestamp(name string) (string, error)

	// Pixels returns the configured channel of the named frame.
	Pixels(name string) (*Image, error)
}

// MemorySource serves frames held in memory. It is safe for concurrent use.
type MemorySource struct {
	mu     sync.RWMutex
	frames map[string]Frame
}

// NewMemorySource creates a MemorySource holding the given frames.
func NewMemorySource(frames ...Frame) *MemorySource {
	s := &MemorySource{frames: make(map[string]Frame, len(frames))}
	for _, f := range frames {
		s.frames[f.Name] = f
	}
	return s
}

// Add stores a frame, replacing any frame with the same name.
func (s *MemorySource) Add(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames[f.Name] = f
}

// List returns frame names sorted lexically.
func (s *MemorySource) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.frames))
	for name := range s.frames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Timestamp returns the stored DateObs.
func (s *MemorySource) Timestamp(name string) (string, error) {
	f, err := s.get(name)
	if err != nil {
		return "", err
	}
	return f.DateObs, nil
}

// Pixels returns the stored image.
func (s *MemorySource) Pixels(name string) (*Image, error) {
	f, err := s.get(name)
	if err != nil {
		return nil, err
	}
	if f.Image == nil {
		return nil, fmt.Errorf("frame %s has no pixel data", name)
	}
	return f.Image, nil
}

func (s *MemorySource) get(name string) (Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.frames[name]
	if !ok {
		return Frame{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return f, nil
}
