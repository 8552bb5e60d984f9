// Package report renders run outputs: per-statistic plots, optional HTML
// charts, the structured run log and the encoder diagnostic plot. Every
// write goes through an fsutil.FileSystem.
package report

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/harmonic"
	"github.com/banshee-data/polarization.report/internal/pipeline"
	"github.com/banshee-data/polarization.report/internal/roi"
)

const (
	plotWidth  = 10 * vg.Inch
	plotHeight = 6 * vg.Inch

	// maxLegendRotations caps per-rotation legend entries.
	maxLegendRotations = 12
)

// series is one statistic's points grouped by rotation index.
type series struct {
	rotations []int // sorted keys of byRot
	byRot     map[int][]point
}

type point struct {
	count int64
	angle float64 // radians
	value float64
}

func newSeries(res *pipeline.Result, st roi.Statistic) series {
	theta, counts, rots, values := res.Series(st)
	s := series{byRot: make(map[int][]point)}
	for i := range theta {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		s.byRot[rots[i]] = append(s.byRot[rots[i]], point{count: counts[i], angle: theta[i], value: values[i]})
	}
	for r := range s.byRot {
		s.rotations = append(s.rotations, r)
	}
	sort.Ints(s.rotations)
	return s
}

func (s series) empty() bool { return len(s.rotations) == 0 }

// StatisticDir returns <dir>/<stat>.
func StatisticDir(dir string, st roi.Statistic) string {
	return filepath.Join(dir, string(st))
}

// WriteStatisticPlots writes <stat>_vs_encoder.png and <stat>_vs_angle.png
// under <dir>/<stat>/. The angle plot overlays the fitted curve when the fit
// succeeded. Returns the paths written.
func WriteStatisticPlots(fsys fsutil.FileSystem, dir string, res *pipeline.Result, st roi.Statistic, curveSamples int) ([]string, error) {
	s := newSeries(res, st)
	if s.empty() {
		return nil, nil
	}

	outDir := StatisticDir(dir, st)
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	colors := rotationColors(len(s.rotations))

	pEnc := plot.New()
	pEnc.Title.Text = fmt.Sprintf("%s vs encoder count", st)
	pEnc.X.Label.Text = "Encoder count"
	pEnc.Y.Label.Text = string(st)

	pAng := plot.New()
	pAng.Title.Text = fmt.Sprintf("%s vs plate angle", st)
	pAng.X.Label.Text = "Plate angle (deg)"
	pAng.Y.Label.Text = string(st)
	pAng.X.Min = 0
	pAng.X.Max = 360

	for i, rot := range s.rotations {
		pts := s.byRot[rot]
		encPts := make(plotter.XYs, len(pts))
		angPts := make(plotter.XYs, len(pts))
		for j, p := range pts {
			encPts[j] = plotter.XY{X: float64(p.count), Y: p.value}
			angPts[j] = plotter.XY{X: degrees(p.angle), Y: p.value}
		}

		label := ""
		if len(s.rotations) <= maxLegendRotations {
			label = fmt.Sprintf("rotation %d", rot)
		}
		if err := addScatter(pEnc, encPts, colors[i], label); err != nil {
			return nil, err
		}
		if err := addScatter(pAng, angPts, colors[i], label); err != nil {
			return nil, err
		}
	}

	if out, ok := res.FitFor(st); ok && out.OK() {
		if err := addFitCurve(pAng, out.Fit, curveSamples); err != nil {
			return nil, err
		}
	}

	for _, p := range []*plot.Plot{pEnc, pAng} {
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
	}

	encFile := filepath.Join(outDir, fmt.Sprintf("%s_vs_encoder.png", st))
	if err := savePNG(fsys, pEnc, encFile); err != nil {
		return nil, fmt.Errorf("save encoder plot: %w", err)
	}
	angFile := filepath.Join(outDir, fmt.Sprintf("%s_vs_angle.png", st))
	if err := savePNG(fsys, pAng, angFile); err != nil {
		return nil, fmt.Errorf("save angle plot: %w", err)
	}
	return []string{encFile, angFile}, nil
}

func addScatter(p *plot.Plot, pts plotter.XYs, c color.Color, label string) error {
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return err
	}
	sc.GlyphStyle.Color = c
	sc.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(sc)
	if label != "" {
		p.Legend.Add(label, sc)
	}
	return nil
}

func addFitCurve(p *plot.Plot, fit *harmonic.Result, n int) error {
	theta, y := fit.Curve(n)
	if len(theta) == 0 {
		return nil
	}
	pts := make(plotter.XYs, len(theta))
	for i := range theta {
		pts[i] = plotter.XY{X: degrees(theta[i]), Y: y[i]}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	line.Color = color.Black
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(fit.Label(), line)
	return nil
}

func savePNG(fsys fsutil.FileSystem, p *plot.Plot, path string) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	f, err := fsys.Create(path)
	if err != nil {
		return err
	}
	if _, err := wt.WriteTo(f); err != nil {
		fsutil.Discard(f)
		return err
	}
	return f.Close()
}

func degrees(rad float64) float64 { return rad * 180 / math.Pi }
