package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/banshee-data/polarization.report/internal/pipeline"
	"github.com/banshee-data/polarization.report/internal/roi"
	"github.com/banshee-data/polarization.report/internal/version"
)

// RunLogName is the run log file name inside the plots directory.
const RunLogName = "run_log.txt"

// RunInfo identifies a run in its outputs.
type RunInfo struct {
	RunID       string
	ExposureDir string
	EncoderPath string
	ConfigJSON  []byte // effective configuration, written verbatim
}

// RunLogPath returns <dir>/run_log.txt.
func RunLogPath(dir string) string {
	return filepath.Join(dir, RunLogName)
}

// DataColumns returns the header of the run log data table.
func DataColumns(stats []roi.Statistic) []string {
	header := []string{"index", "name", "encoder_count", "rotation_index", "plate_angle_rad"}
	for _, st := range stats {
		header = append(header, string(st))
	}
	return header
}

// RunLogWriter writes the commented header and the data table of a run log.
type RunLogWriter struct {
	head  *bufio.Writer
	table *csv.Writer
}

// NewRunLogWriter wraps w.
func NewRunLogWriter(w io.Writer) *RunLogWriter {
	bw := bufio.NewWriter(w)
	return &RunLogWriter{head: bw, table: csv.NewWriter(bw)}
}

// WriteHeader writes the "#"-commented run summary.
func (l *RunLogWriter) WriteHeader(info RunInfo, res *pipeline.Result) error {
	matched := len(res.Records) + res.OutliersRemoved
	lines := []string{
		"polarization run log",
		"version: " + version.String(),
		"run_id: " + info.RunID,
		"started_at: " + res.StartedAt.UTC().Format(time.RFC3339),
		"elapsed: " + res.Elapsed.Round(time.Millisecond).String(),
		"exposure_dir: " + info.ExposureDir,
		"encoder_log: " + info.EncoderPath,
	}
	if len(info.ConfigJSON) > 0 {
		lines = append(lines, "config: "+string(info.ConfigJSON))
	}
	lines = append(lines,
		fmt.Sprintf("encoder_samples: %d", res.EncoderSamples),
		fmt.Sprintf("encoder_median: %s", formatFloat(res.EncoderMedian)),
		fmt.Sprintf("clock_offset: %s", res.Offset),
		fmt.Sprintf("frames_total: %d", res.FramesTotal),
		fmt.Sprintf("frames_matched: %d", matched),
		fmt.Sprintf("outliers_removed: %d", res.OutliersRemoved),
		fmt.Sprintf("records: %d", len(res.Records)),
		"skipped: "+res.Skips.String(),
	)
	for _, f := range res.Fits {
		lines = append(lines, "fit "+f.Summary())
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(l.head, "# %s\n", line); err != nil {
			return err
		}
	}
	return nil
}

// WriteTable writes the column header and one row per record.
func (l *RunLogWriter) WriteTable(res *pipeline.Result) error {
	if err := l.table.Write(DataColumns(res.Statistics)); err != nil {
		return err
	}
	for _, rec := range res.Records {
		if err := l.table.Write(recordRow(rec, res.Statistics)); err != nil {
			return err
		}
	}
	l.table.Flush()
	if err := l.table.Error(); err != nil {
		return err
	}
	return l.head.Flush()
}

func recordRow(rec pipeline.FrameRecord, stats []roi.Statistic) []string {
	row := []string{
		strconv.Itoa(rec.Index),
		rec.Name,
		strconv.FormatInt(rec.EncoderCount, 10),
		strconv.Itoa(rec.RotationIndex),
		strconv.FormatFloat(rec.PlateAngle, 'f', 6, 64),
	}
	for _, st := range stats {
		v, ok := rec.Values[st]
		if !ok {
			row = append(row, "")
			continue
		}
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 10, 64)
}

// WriteRunLog writes a complete run log to w.
func WriteRunLog(w io.Writer, info RunInfo, res *pipeline.Result) error {
	l := NewRunLogWriter(w)
	if err := l.WriteHeader(info, res); err != nil {
		return fmt.Errorf("failed to write run log header: %w", err)
	}
	if err := l.WriteTable(res); err != nil {
		return fmt.Errorf("failed to write run log table: %w", err)
	}
	return nil
}
