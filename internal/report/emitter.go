package report

import (
	"context"
	"fmt"

	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/monitoring"
	"github.com/banshee-data/polarization.report/internal/pipeline"
)

// Reporter writes the plots and run log of a finished run.
// It implements pipeline.Emitter.
type Reporter struct {
	FS           fsutil.FileSystem
	Dir          string // plots directory, e.g. <exposure>/plots
	Info         RunInfo
	CurveSamples int
	HTML         bool

	// Written collects every path produced by the last Emit.
	Written []string
}

var _ pipeline.Emitter = (*Reporter)(nil)

// Emit writes per-statistic plots, optional HTML charts and run_log.txt.
func (r *Reporter) Emit(ctx context.Context, res *pipeline.Result) error {
	r.Written = r.Written[:0]
	if err := r.FS.MkdirAll(r.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create plots dir: %w", err)
	}

	for _, st := range res.Statistics {
		if err := ctx.Err(); err != nil {
			return err
		}
		paths, err := WriteStatisticPlots(r.FS, r.Dir, res, st, r.CurveSamples)
		if err != nil {
			return fmt.Errorf("%s plots: %w", st, err)
		}
		r.Written = append(r.Written, paths...)

		if r.HTML {
			path, err := WriteAngleHTML(r.FS, r.Dir, res, st, r.CurveSamples)
			if err != nil {
				return fmt.Errorf("%s chart: %w", st, err)
			}
			if path != "" {
				r.Written = append(r.Written, path)
			}
		}
	}

	logPath := RunLogPath(r.Dir)
	f, err := r.FS.Create(logPath)
	if err != nil {
		return fmt.Errorf("failed to create run log: %w", err)
	}
	if err := WriteRunLog(f, r.Info, res); err != nil {
		fsutil.Discard(f)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	r.Written = append(r.Written, logPath)

	monitoring.Logf("report: wrote %d files under %s", len(r.Written), r.Dir)
	return nil
}
