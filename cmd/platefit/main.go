// Command platefit measures spot brightness in a directory of FITS frames,
// pairs each frame with the rotating plate's encoder count and fits the
// brightness against plate angle.
//
//	platefit [flags] <exposure_dir> <encoder_log>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/banshee-data/polarization.report/internal/archive"
	"github.com/banshee-data/polarization.report/internal/config"
	"github.com/banshee-data/polarization.report/internal/frames"
	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/monitoring"
	"github.com/banshee-data/polarization.report/internal/pipeline"
	"github.com/banshee-data/polarization.report/internal/report"
	"github.com/banshee-data/polarization.report/internal/version"
)

// framesSubdir is where the raw-to-FITS converter leaves frames.
var framesSubdir = filepath.Join("processed", "fits")

type options struct {
	configPath   string
	debug        bool
	offsetHours  float64
	countsPerRev int
	channel      string
	workers      int
	outDir       string
	dbPath       string
	html         bool
	showVersion  bool

	set map[string]bool // flags given on the command line

	exposureDir string
	encoderPath string
}

func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("platefit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: platefit [flags] <exposure_dir> <encoder_log>")
		fs.PrintDefaults()
	}

	o := &options{set: make(map[string]bool)}
	fs.StringVar(&o.configPath, "config", "", "Pipeline config JSON (defaults apply to omitted fields)")
	fs.BoolVar(&o.debug, "debug", false, "Enable per-frame diagnostic logging")
	fs.Float64Var(&o.offsetHours, "time-offset-hours", 0, "Manual clock offset in hours (skips the offset search)")
	fs.IntVar(&o.countsPerRev, "counts-per-rev", 0, "Encoder counts per plate revolution")
	fs.StringVar(&o.channel, "channel", "", "FITS channel: PRIMARY, RED, GREEN1, GREEN2 or BLUE")
	fs.IntVar(&o.workers, "workers", 0, "Parallel frame workers")
	fs.StringVar(&o.outDir, "out", "", "Plots directory (default <exposure_dir>/plots)")
	fs.StringVar(&o.dbPath, "db", "", "Archive the run to this sqlite database")
	fs.BoolVar(&o.html, "html", false, "Also write interactive HTML charts")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	if o.showVersion {
		return o, nil
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return nil, errors.New("expected <exposure_dir> and <encoder_log>")
	}
	o.exposureDir = fs.Arg(0)
	o.encoderPath = fs.Arg(1)
	if o.outDir == "" {
		o.outDir = filepath.Join(o.exposureDir, "plots")
	}
	return o, nil
}

// loadConfig reads -config (or starts empty) and applies flag overrides.
func loadConfig(o *options) (*config.PipelineConfig, error) {
	pc := config.EmptyPipelineConfig()
	if o.configPath != "" {
		var err error
		if pc, err = config.LoadPipelineConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.set["time-offset-hours"] {
		pc.SetTimeOffsetHours(o.offsetHours)
	}
	if o.set["counts-per-rev"] {
		pc.SetCountsPerRev(o.countsPerRev)
	}
	if o.set["channel"] {
		pc.SetChannel(o.channel)
	}
	if o.set["workers"] {
		pc.SetWorkers(o.workers)
	}
	if o.set["html"] {
		pc.SetHTMLCharts(o.html)
	}
	if err := pc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return pc, nil
}

func run(ctx context.Context, args []string, fsys fsutil.FileSystem, stdout, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "platefit: %v\n", err)
		return 2
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}
	monitoring.EnableDebug(o.debug)

	pc, err := loadConfig(o)
	if err != nil {
		fmt.Fprintf(stderr, "platefit: %v\n", err)
		return 1
	}
	cfg, err := pipeline.FromPipelineConfig(pc)
	if err != nil {
		fmt.Fprintf(stderr, "platefit: %v\n", err)
		return 1
	}
	configJSON, err := json.Marshal(pc)
	if err != nil {
		fmt.Fprintf(stderr, "platefit: %v\n", err)
		return 1
	}

	runID := uuid.NewString()
	reporter := &report.Reporter{
		FS:  fsys,
		Dir: o.outDir,
		Info: report.RunInfo{
			RunID:       runID,
			ExposureDir: o.exposureDir,
			EncoderPath: o.encoderPath,
			ConfigJSON:  configJSON,
		},
		CurveSamples: pc.GetCurveSamples(),
		HTML:         pc.GetHTMLCharts(),
	}
	emitters := []pipeline.Emitter{reporter}

	if o.dbPath != "" {
		store, err := archive.Open(o.dbPath)
		if err != nil {
			fmt.Fprintf(stderr, "platefit: %v\n", err)
			return 1
		}
		defer store.Close()
		emitters = append(emitters, &archive.Archiver{
			Store: store,
			Meta: archive.RunMeta{
				RunID:       runID,
				ExposureDir: o.exposureDir,
				EncoderPath: o.encoderPath,
				ConfigJSON:  configJSON,
			},
		})
	}

	src := frames.NewFITSSource(fsys, filepath.Join(o.exposureDir, framesSubdir), pc.GetChannel())
	runner := pipeline.NewRunner(cfg, src, pipeline.WithEmitters(emitters...))

	log.Printf("platefit %s: run %s", version.Version, runID)
	res, err := runner.Run(ctx, fsys, o.encoderPath)
	switch {
	case errors.Is(err, pipeline.ErrNoFrames):
		fmt.Fprintf(stderr, "platefit: no FITS frames found in %s\n", src.Dir)
		return 1
	case errors.Is(err, pipeline.ErrNoMatchedFrames):
		fmt.Fprintf(stderr, "platefit: no frames matched the encoder log (skipped: %s)\n", res.Skips)
		return 1
	case err != nil:
		fmt.Fprintf(stderr, "platefit: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "run %s: %d records from %d frames, offset %s\n",
		runID, len(res.Records), res.FramesTotal, res.Offset)
	for _, f := range res.Fits {
		fmt.Fprintf(stdout, "  %s\n", f.Summary())
	}
	fmt.Fprintf(stdout, "outputs in %s\n", o.outDir)
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], fsutil.OSFileSystem{}, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
