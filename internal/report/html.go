package report

import (
	"fmt"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/pipeline"
	"github.com/banshee-data/polarization.report/internal/roi"
)

// WriteAngleHTML writes an interactive <stat>_vs_angle.html scatter chart
// with one series per rotation and the fitted curve when available.
func WriteAngleHTML(fsys fsutil.FileSystem, dir string, res *pipeline.Result, st roi.Statistic, curveSamples int) (string, error) {
	s := newSeries(res, st)
	if s.empty() {
		return "", nil
	}

	outDir := StatisticDir(dir, st)
	if err := fsys.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	subtitle := fmt.Sprintf("records=%d offset=%s", len(res.Records), res.Offset)
	fit, hasFit := res.FitFor(st)
	if hasFit && fit.OK() {
		subtitle += " | " + fit.Fit.Label()
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: fmt.Sprintf("%s vs plate angle", st), Width: "1000px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s vs plate angle", st), Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(s.rotations) <= maxLegendRotations)}),
		charts.WithXAxisOpts(opts.XAxis{Min: 0, Max: 360, Name: "Plate angle (deg)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: string(st), NameLocation: "middle", NameGap: 50}),
	)

	colors := rotationColors(len(s.rotations))
	for i, rot := range s.rotations {
		pts := s.byRot[rot]
		data := make([]opts.ScatterData, len(pts))
		for j, p := range pts {
			data[j] = opts.ScatterData{Value: []interface{}{degrees(p.angle), p.value}}
		}
		scatter.AddSeries(fmt.Sprintf("rotation %d", rot), data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: hexColor(colors[i])}),
		)
	}

	if hasFit && fit.OK() {
		theta, y := fit.Fit.Curve(curveSamples)
		data := make([]opts.ScatterData, len(theta))
		for i := range theta {
			data[i] = opts.ScatterData{Value: []interface{}{degrees(theta[i]), y[i]}}
		}
		scatter.AddSeries("fit", data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "#000000"}),
		)
	}

	path := filepath.Join(outDir, fmt.Sprintf("%s_vs_angle.html", st))
	f, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := scatter.Render(f); err != nil {
		fsutil.Discard(f)
		return "", fmt.Errorf("failed to render %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}
