// Package testutil provides shared test helpers and synthetic fixtures:
// spot frames, encoder logs and capture timestamps.
package testutil

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/banshee-data/polarization.report/internal/frames"
	"github.com/banshee-data/polarization.report/internal/fsutil"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// SpotFrame returns a w×h frame filled with bg and a size×size square of
// value peak with its top-left corner at (x0, y0).
func SpotFrame(w, h int, bg float64, x0, y0, size int, peak float64) *frames.Image {
	img := frames.NewImageFill(w, h, bg)
	img.FillRect(x0, y0, min(x0+size, w), min(y0+size, h), peak)
	return img
}

// DateObs formats epoch seconds as an ISO-8601 UTC capture timestamp with
// millisecond precision, as a camera would write DATE-OBS.
func DateObs(sec float64) string {
	whole := int64(sec)
	nanos := int64((sec - float64(whole)) * 1e9)
	return time.Unix(whole, nanos).UTC().Format("2006-01-02T15:04:05.000Z")
}

// EncoderJSON serialises samples (epoch milliseconds to count) in the
// persisted encoder log format.
func EncoderJSON(t *testing.T, samples map[int64]int64) []byte {
	t.Helper()
	m := make(map[string]int64, len(samples))
	for ms, c := range samples {
		m[strconv.FormatInt(ms, 10)] = c
	}
	data, err := json.Marshal(m)
	AssertNoError(t, err)
	return data
}

// WriteEncoderLog writes samples as a JSON encoder log to path in fsys.
func WriteEncoderLog(t *testing.T, fsys fsutil.FileSystem, path string, samples map[int64]int64) {
	t.Helper()
	AssertNoError(t, fsys.WriteFile(path, EncoderJSON(t, samples), 0644))
}
