// Command encoder-diag summarises an encoder log and writes a diagnostic
// plot of count against time next to it, with outliers marked.
//
//	encoder-diag [-outlier-factor F] [-out path] <encoder_log>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/banshee-data/polarization.report/internal/config"
	"github.com/banshee-data/polarization.report/internal/encoder"
	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/report"
	"github.com/banshee-data/polarization.report/internal/timesync"
)

func run(args []string, fsys fsutil.FileSystem, stdout, stderr io.Writer) int {
	defaults := config.EmptyPipelineConfig()

	fs := flag.NewFlagSet("encoder-diag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	factor := fs.Float64("outlier-factor", defaults.GetOutlierFactor(), "Reject counts further than factor*median from the median")
	minMedian := fs.Float64("outlier-min-median", defaults.GetOutlierMinMedian(), "Skip rejection when the median is below this")
	out := fs.String("out", "", "Plot path (default <log>_encoder_diagnostic.png)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: encoder-diag [flags] <encoder_log>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	logPath := fs.Arg(0)
	plotPath := *out
	if plotPath == "" {
		plotPath = report.DiagnosticPath(logPath)
	}

	log, err := encoder.Load(fsys, logPath)
	if err != nil {
		fmt.Fprintf(stderr, "encoder-diag: %v\n", err)
		return 1
	}
	sum, err := report.WriteEncoderDiagnostic(fsys, plotPath, log, *factor, *minMedian)
	if err != nil {
		fmt.Fprintf(stderr, "encoder-diag: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "samples:  %d\n", sum.Samples)
	fmt.Fprintf(stdout, "span:     %s .. %s (%s)\n", formatEpoch(sum.Start), formatEpoch(sum.End),
		time.Duration((sum.End-sum.Start)*float64(time.Second)).Round(time.Millisecond))
	fmt.Fprintf(stdout, "min:      %d\n", sum.MinCount)
	fmt.Fprintf(stdout, "median:   %g\n", sum.Median)
	fmt.Fprintf(stdout, "max:      %d\n", sum.MaxCount)
	fmt.Fprintf(stdout, "outliers: %d\n", len(sum.Outliers))
	for _, s := range sum.Outliers {
		fmt.Fprintf(stdout, "  %s count=%d\n", formatEpoch(s.Timestamp), s.Count)
	}
	fmt.Fprintf(stdout, "plot:     %s\n", plotPath)
	return 0
}

func formatEpoch(sec float64) string {
	return timesync.FormatUTC(sec)
}

func main() {
	os.Exit(run(os.Args[1:], fsutil.OSFileSystem{}, os.Stdout, os.Stderr))
}
