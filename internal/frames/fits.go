package frames

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/banshee-data/polarization.report/internal/fsutil"
)

// DateObsKey is the primary-header keyword holding the capture timestamp.
const DateObsKey = "DATE-OBS"

// bayerOffsets locates each colour plane inside an RGGB mosaic, as written
// by the raw-to-FITS converter.
var bayerOffsets = map[string][2]int{
	"RED":    {0, 0},
	"GREEN1": {1, 0},
	"GREEN2": {0, 1},
	"BLUE":   {1, 1},
}

// FITSSource reads frames from a directory of FITS files. Channel names an
// image extension (EXTNAME); when that extension is absent and the channel is
// a Bayer plane, it is cut out of the primary HDU's raw mosaic instead.
type FITSSource struct {
	FS      fsutil.FileSystem
	Dir     string
	Channel string
}

// NewFITSSource creates a source over dir/*.fits.
func NewFITSSource(fsys fsutil.FileSystem, dir, channel string) *FITSSource {
	return &FITSSource{FS: fsys, Dir: dir, Channel: strings.ToUpper(channel)}
}

// List returns the FITS files in Dir sorted by name.
func (s *FITSSource) List() ([]string, error) {
	names, err := s.FS.Glob(filepath.Join(s.Dir, "*.fits"))
	if err != nil {
		return nil, fmt.Errorf("failed to list FITS files in %s: %w", s.Dir, err)
	}
	return names, nil
}

// Timestamp returns DATE-OBS from the primary header, or "" when missing.
func (s *FITSSource) Timestamp(name string) (string, error) {
	var dateObs string
	err := s.withFile(name, func(f *fitsio.File) error {
		hdus := f.HDUs()
		if len(hdus) == 0 {
			return fmt.Errorf("%s: no HDUs", name)
		}
		card := hdus[0].Header().Get(DateObsKey)
		if card == nil {
			return nil
		}
		if v, ok := card.Value.(string); ok {
			dateObs = strings.TrimSpace(v)
		}
		return nil
	})
	return dateObs, err
}

// Pixels reads the configured channel as float64 with BSCALE/BZERO applied.
func (s *FITSSource) Pixels(name string) (*Image, error) {
	var out *Image
	err := s.withFile(name, func(f *fitsio.File) error {
		channel := s.Channel
		if channel == "" || channel == "PRIMARY" {
			img, err := readImageHDU(f.HDU(0))
			out = img
			return err
		}
		if f.Has(channel) {
			img, err := readImageHDU(f.Get(channel))
			out = img
			return err
		}
		off, ok := bayerOffsets[channel]
		if !ok {
			return fmt.Errorf("%s: no %s extension", name, channel)
		}
		raw, err := readImageHDU(f.HDU(0))
		if err != nil {
			return err
		}
		out = raw.SubGrid(off[0], off[1])
		return nil
	})
	return out, err
}

func (s *FITSSource) withFile(name string, fn func(*fitsio.File) error) error {
	r, err := s.FS.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return fmt.Errorf("failed to decode FITS %s: %w", name, err)
	}
	defer f.Close()

	return fn(f)
}

func readImageHDU(hdu fitsio.HDU) (*Image, error) {
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("HDU %q is not an image", hdu.Name())
	}

	axes := img.Header().Axes()
	if len(axes) != 2 {
		return nil, fmt.Errorf("HDU %q has %d axes, want 2", hdu.Name(), len(axes))
	}
	w, h := axes[0], axes[1]

	pix, err := readNative(img, w*h)
	if err != nil {
		return nil, fmt.Errorf("failed to read HDU %q: %w", hdu.Name(), err)
	}

	scale := headerFloat(img.Header(), "BSCALE", 1)
	zero := headerFloat(img.Header(), "BZERO", 0)
	if scale != 1 || zero != 0 {
		for i, v := range pix {
			pix[i] = v*scale + zero
		}
	}
	return &Image{W: w, H: h, Pix: pix}, nil
}

// readNative reads the raw pixels in the element type BITPIX names and
// widens them to float64. Image.Read does not convert between types and does
// not apply BSCALE/BZERO.
func readNative(img fitsio.Image, n int) ([]float64, error) {
	out := make([]float64, n)
	switch bitpix := img.Header().Bitpix(); bitpix {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}
	return out, nil
}

func headerFloat(hdr *fitsio.Header, key string, def float64) float64 {
	card := hdr.Get(key)
	if card == nil {
		return def
	}
	switch v := card.Value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return def
	}
}
