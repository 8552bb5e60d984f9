package report

import (
	"bytes"
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/polarization.report/internal/encoder"
	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/harmonic"
	"github.com/banshee-data/polarization.report/internal/pipeline"
	"github.com/banshee-data/polarization.report/internal/roi"
	"github.com/banshee-data/polarization.report/internal/timesync"
)

var pngMagic = []byte("\x89PNG\r\n\x1a\n")

// syntheticResult has 24 records over two rotations following
// 100 + 20cos(4θ) for ROISum, and a failed fit for ROIMean.
func syntheticResult(t *testing.T) *pipeline.Result {
	t.Helper()
	stats := []roi.Statistic{roi.ROISum, roi.ROIMean}
	res := &pipeline.Result{
		StartedAt:      time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Elapsed:        1500 * time.Millisecond,
		FramesTotal:    25,
		Offset:         timesync.Offset{Seconds: -10800, Matches: 24, Sampled: 25},
		EncoderSamples: 100,
		EncoderMedian:  1800,
		Statistics:     stats,
	}
	res.Skips.Add(pipeline.SkipNoBlob)

	var theta, y []float64
	for i := 0; i < 24; i++ {
		angle := float64(i%12) * math.Pi / 6
		v := 100 + 20*math.Cos(4*angle)
		res.Records = append(res.Records, pipeline.FrameRecord{
			Index:         i,
			Name:          "frame" + string(rune('a'+i)),
			EncoderCount:  int64(i * 300),
			RotationIndex: i / 12,
			PlateAngle:    angle,
			Values:        map[roi.Statistic]float64{roi.ROISum: v, roi.ROIMean: v / 25},
		})
		theta = append(theta, angle)
		y = append(y, v)
	}

	fit, err := harmonic.Fit(theta, y, []int{2, 4}, 5)
	require.NoError(t, err)
	res.Fits = []pipeline.FitOutcome{
		{Statistic: roi.ROISum, Fit: fit},
		{Statistic: roi.ROIMean, Err: harmonic.ErrSingular},
	}
	return res
}

func TestWriteStatisticPlots(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res := syntheticResult(t)

	paths, err := WriteStatisticPlots(fsys, "plots", res, roi.ROISum, 100)
	require.NoError(t, err)

	want := []string{
		filepath.Join("plots", "roi_sum", "roi_sum_vs_encoder.png"),
		filepath.Join("plots", "roi_sum", "roi_sum_vs_angle.png"),
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	for _, p := range paths {
		data, err := fsys.ReadFile(p)
		require.NoError(t, err)
		assert.True(t, bytes.HasPrefix(data, pngMagic), "%s is not a PNG", p)
	}
}

func TestWriteStatisticPlots_NoValues(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res := syntheticResult(t)

	paths, err := WriteStatisticPlots(fsys, "plots", res, roi.OnePixel, 100)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Empty(t, fsys.Files("plots"))
}

func TestWriteStatisticPlots_SkipsNonFinite(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res := syntheticResult(t)
	res.Records[3].Values[roi.ROISum] = math.NaN()
	res.Records[4].Values[roi.ROISum] = math.Inf(1)

	_, err := WriteStatisticPlots(fsys, "plots", res, roi.ROISum, 50)
	require.NoError(t, err)
}

func TestWriteAngleHTML(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res := syntheticResult(t)

	path, err := WriteAngleHTML(fsys, "plots", res, roi.ROISum, 60)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("plots", "roi_sum", "roi_sum_vs_angle.html"), path)

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	html := string(data)
	assert.Contains(t, html, "rotation 0")
	assert.Contains(t, html, "rotation 1")
	assert.Contains(t, html, `"fit"`)
}

func TestWriteAngleHTML_FailedFitHasNoCurve(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	res := syntheticResult(t)

	path, err := WriteAngleHTML(fsys, "plots", res, roi.ROIMean, 60)
	require.NoError(t, err)
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"fit"`)
}

func TestWriteRunLog(t *testing.T) {
	res := syntheticResult(t)
	info := RunInfo{
		RunID:       "run-1",
		ExposureDir: "/data/exp",
		EncoderPath: "/data/exp/encoder.json",
		ConfigJSON:  []byte(`{"counts_per_rev":3600}`),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRunLog(&buf, info, res))

	var header, table []string
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if strings.HasPrefix(line, "# ") {
			header = append(header, strings.TrimPrefix(line, "# "))
		} else {
			table = append(table, line)
		}
	}

	assert.Contains(t, header, "run_id: run-1")
	assert.Contains(t, header, "started_at: 2025-06-01T10:00:00Z")
	assert.Contains(t, header, "elapsed: 1.5s")
	assert.Contains(t, header, "exposure_dir: /data/exp")
	assert.Contains(t, header, `config: {"counts_per_rev":3600}`)
	assert.Contains(t, header, "frames_total: 25")
	assert.Contains(t, header, "records: 24")
	assert.Contains(t, header, "clock_offset: "+res.Offset.String())
	assert.Contains(t, header, "fit roi_mean: no fit: "+harmonic.ErrSingular.Error())

	var fitLine string
	for _, h := range header {
		if strings.HasPrefix(h, "fit roi_sum: ") {
			fitLine = h
		}
	}
	assert.Contains(t, fitLine, "a0=100.000")

	require.Len(t, table, 25)
	assert.Equal(t, "index,name,encoder_count,rotation_index,plate_angle_rad,roi_sum,roi_mean", table[0])
	assert.Equal(t, "0,framea,0,0,0.000000,120,4.8", table[1])
	assert.True(t, strings.HasPrefix(table[13], "12,framem,3600,1,0.000000,"))
}

func TestRecordRow_MissingValue(t *testing.T) {
	rec := pipeline.FrameRecord{Index: 2, Name: "x", EncoderCount: 7, PlateAngle: 1.5,
		Values: map[roi.Statistic]float64{roi.ROISum: 3}}
	got := recordRow(rec, []roi.Statistic{roi.ROISum, roi.ROIMedian})
	want := []string{"2", "x", "7", "0", "1.500000", "3", ""}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}
}

func TestReporter_Emit(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	rep := &Reporter{
		FS:           fsys,
		Dir:          "exp/plots",
		Info:         RunInfo{RunID: "abc"},
		CurveSamples: 90,
		HTML:         true,
	}

	require.NoError(t, rep.Emit(context.Background(), syntheticResult(t)))

	want := []string{
		"exp/plots/roi_sum/roi_sum_vs_encoder.png",
		"exp/plots/roi_sum/roi_sum_vs_angle.png",
		"exp/plots/roi_sum/roi_sum_vs_angle.html",
		"exp/plots/roi_mean/roi_mean_vs_encoder.png",
		"exp/plots/roi_mean/roi_mean_vs_angle.png",
		"exp/plots/roi_mean/roi_mean_vs_angle.html",
		"exp/plots/run_log.txt",
	}
	if diff := cmp.Diff(want, rep.Written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
	for _, p := range want {
		assert.True(t, fsys.Exists(p), "missing %s", p)
	}

	log, err := fsys.ReadFile("exp/plots/run_log.txt")
	require.NoError(t, err)
	assert.Contains(t, string(log), "# run_id: abc\n")
}

func TestReporter_EmitWithoutHTML(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	rep := &Reporter{FS: fsys, Dir: "plots", CurveSamples: 90}

	require.NoError(t, rep.Emit(context.Background(), syntheticResult(t)))
	for _, p := range rep.Written {
		assert.NotEqual(t, ".html", filepath.Ext(p))
	}
	assert.Len(t, rep.Written, 5)
}

func TestReporter_EmitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep := &Reporter{FS: fsutil.NewMemoryFileSystem(), Dir: "plots"}

	err := rep.Emit(ctx, syntheticResult(t))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDiagnosticPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"/data/exp/encoder.json", "/data/exp/encoder_encoder_diagnostic.png"},
		{"log.cbor", "log_encoder_diagnostic.png"},
		{"noext", "noext_encoder_diagnostic.png"},
	}
	for _, tt := range tests {
		if got := DiagnosticPath(tt.in); got != tt.want {
			t.Errorf("DiagnosticPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteEncoderDiagnostic(t *testing.T) {
	samples := []encoder.Sample{
		{Timestamp: 1000, Count: 100},
		{Timestamp: 1001, Count: 101},
		{Timestamp: 1002, Count: 99},
		{Timestamp: 1003, Count: 100},
		{Timestamp: 1004, Count: 5000},
		{Timestamp: 1005, Count: 98},
	}
	log, err := encoder.NewLog(samples)
	require.NoError(t, err)

	fsys := fsutil.NewMemoryFileSystem()
	sum, err := WriteEncoderDiagnostic(fsys, "diag/enc_encoder_diagnostic.png", log, 0.5, 10)
	require.NoError(t, err)

	assert.Equal(t, 6, sum.Samples)
	assert.Equal(t, 1000.0, sum.Start)
	assert.Equal(t, 1005.0, sum.End)
	assert.Equal(t, int64(98), sum.MinCount)
	assert.Equal(t, int64(5000), sum.MaxCount)
	assert.Equal(t, 100.0, sum.Median)
	if diff := cmp.Diff([]encoder.Sample{{Timestamp: 1004, Count: 5000}}, sum.Outliers); diff != "" {
		t.Errorf("outliers mismatch (-want +got):\n%s", diff)
	}

	data, err := fsys.ReadFile("diag/enc_encoder_diagnostic.png")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

func TestSummarizeEncoder_LowMedianKeepsAll(t *testing.T) {
	log, err := encoder.NewLog([]encoder.Sample{
		{Timestamp: 1, Count: 0},
		{Timestamp: 2, Count: 1},
		{Timestamp: 3, Count: 500},
	})
	require.NoError(t, err)

	sum, keep := SummarizeEncoder(log, 0.5, 10)
	assert.Empty(t, sum.Outliers)
	assert.Equal(t, []bool{true, true, true}, keep)
}

func TestRotationColors(t *testing.T) {
	assert.Empty(t, rotationColors(0))
	cs := rotationColors(5)
	require.Len(t, cs, 5)
	seen := map[string]bool{}
	for _, c := range cs {
		h := hexColor(c)
		assert.Len(t, h, 7)
		assert.False(t, seen[h], "duplicate colour %s", h)
		seen[h] = true
	}
}
