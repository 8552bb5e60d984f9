package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/polarization.report/internal/encoder"
	"github.com/banshee-data/polarization.report/internal/fsutil"
)

// EncoderSummary describes an encoder log for the diagnostic tool.
type EncoderSummary struct {
	Samples  int
	Start    float64 // epoch seconds
	End      float64
	MinCount int64
	MaxCount int64
	Median   float64
	Outliers []encoder.Sample
}

// DiagnosticPath returns the diagnostic plot path next to the encoder log:
// <dir>/<name without extension>_encoder_diagnostic.png.
func DiagnosticPath(logPath string) string {
	base := strings.TrimSuffix(logPath, filepath.Ext(logPath))
	return base + "_encoder_diagnostic.png"
}

// SummarizeEncoder applies the outlier rule to the whole log.
func SummarizeEncoder(log *encoder.Log, factor, minMedian float64) (EncoderSummary, []bool) {
	keep, median := encoder.OutlierMask(log.Counts, factor, minMedian)
	start, end := log.Range()
	lo, hi := log.CountRange()
	sum := EncoderSummary{
		Samples:  log.Len(),
		Start:    start,
		End:      end,
		MinCount: lo,
		MaxCount: hi,
		Median:   median,
	}
	samples := log.Samples()
	for i, k := range keep {
		if !k {
			sum.Outliers = append(sum.Outliers, samples[i])
		}
	}
	return sum, keep
}

// WriteEncoderDiagnostic plots encoder count against seconds since the first
// sample, marking outliers in red and the median as a dashed line.
func WriteEncoderDiagnostic(fsys fsutil.FileSystem, path string, log *encoder.Log, factor, minMedian float64) (EncoderSummary, error) {
	sum, keep := SummarizeEncoder(log, factor, minMedian)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Encoder log: %d samples, %d outliers", sum.Samples, len(sum.Outliers))
	p.X.Label.Text = "Time since first sample (s)"
	p.Y.Label.Text = "Encoder count"

	var good, bad plotter.XYs
	for i, ts := range log.Timestamps {
		pt := plotter.XY{X: ts - sum.Start, Y: float64(log.Counts[i])}
		if keep[i] {
			good = append(good, pt)
		} else {
			bad = append(bad, pt)
		}
	}

	if len(good) > 0 {
		line, points, err := plotter.NewLinePoints(good)
		if err != nil {
			return sum, err
		}
		line.Color = color.RGBA{B: 200, A: 255}
		points.GlyphStyle.Color = line.Color
		points.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(line, points)
		p.Legend.Add("counts", line, points)
	}
	if len(bad) > 0 {
		sc, err := plotter.NewScatter(bad)
		if err != nil {
			return sum, err
		}
		sc.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		sc.GlyphStyle.Radius = vg.Points(3)
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		p.Add(sc)
		p.Legend.Add("outliers", sc)
	}
	if sum.Samples > 1 && !math.IsNaN(sum.Median) {
		med, err := plotter.NewLine(plotter.XYs{
			{X: 0, Y: sum.Median},
			{X: sum.End - sum.Start, Y: sum.Median},
		})
		if err != nil {
			return sum, err
		}
		med.Color = color.Gray{Y: 120}
		med.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(med)
		p.Legend.Add(fmt.Sprintf("median %.0f", sum.Median), med)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	if dir := filepath.Dir(path); dir != "." {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return sum, fmt.Errorf("failed to create output dir: %w", err)
		}
	}
	if err := savePNG(fsys, p, path); err != nil {
		return sum, fmt.Errorf("save encoder diagnostic plot: %w", err)
	}
	return sum, nil
}
