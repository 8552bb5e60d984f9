package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/polarization.report/internal/encoder"
	"github.com/banshee-data/polarization.report/internal/frames"
	"github.com/banshee-data/polarization.report/internal/fsutil"
	"github.com/banshee-data/polarization.report/internal/harmonic"
	"github.com/banshee-data/polarization.report/internal/monitoring"
	"github.com/banshee-data/polarization.report/internal/roi"
	"github.com/banshee-data/polarization.report/internal/timesync"
	"github.com/banshee-data/polarization.report/internal/timeutil"
)

var (
	// ErrNoFrames means the frame source listed nothing.
	ErrNoFrames = errors.New("no frames found")
	// ErrNoMatchedFrames means every frame was skipped.
	ErrNoMatchedFrames = errors.New("no frames matched the encoder log")
)

// Emitter consumes a finished Result, e.g. to write plots or archive it.
type Emitter interface {
	Emit(ctx context.Context, res *Result) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, res *Result) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, res *Result) error { return f(ctx, res) }

// Option configures a Runner.
type Option func(*Runner)

// WithClock sets the clock used for run timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(r *Runner) { r.clock = c }
}

// WithEmitters appends emitters called after a successful fit stage.
func WithEmitters(e ...Emitter) Option {
	return func(r *Runner) { r.emitters = append(r.emitters, e...) }
}

// Runner executes one batch over a frame source. A Runner may be reused
// but not run concurrently.
type Runner struct {
	cfg      Config
	src      frames.Source
	clock    timeutil.Clock
	emitters []Emitter
	state    atomic.Int32
}

// NewRunner creates a Runner. cfg is checked with Config.Validate when the
// run starts.
func NewRunner(cfg Config, src frames.Source, opts ...Option) *Runner {
	r := &Runner{cfg: cfg, src: src, clock: timeutil.SystemClock{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the last stage reached.
func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	diagf("stage %s", s)
}

func (r *Runner) fail(err error) error {
	r.setState(StateFailed)
	return err
}

// Run loads the encoder log at encoderPath and processes every frame. The
// returned Result is non-nil even on failure and carries whatever was
// counted before the run stopped.
func (r *Runner) Run(ctx context.Context, fsys fsutil.FileSystem, encoderPath string) (*Result, error) {
	res := r.newResult()
	if err := r.cfg.Validate(); err != nil {
		return res, r.fail(fmt.Errorf("invalid configuration: %w", err))
	}
	names, err := r.listFrames(res)
	if err != nil {
		return res, r.fail(err)
	}

	r.setState(StateLoadEncoder)
	log, err := encoder.Load(fsys, encoderPath)
	if err != nil {
		return res, r.fail(err)
	}
	return r.process(ctx, res, names, log)
}

// Process runs the batch against an already loaded encoder log.
func (r *Runner) Process(ctx context.Context, log *encoder.Log) (*Result, error) {
	res := r.newResult()
	if err := r.cfg.Validate(); err != nil {
		return res, r.fail(fmt.Errorf("invalid configuration: %w", err))
	}
	names, err := r.listFrames(res)
	if err != nil {
		return res, r.fail(err)
	}

	r.setState(StateLoadEncoder)
	if log == nil || log.Len() == 0 {
		return res, r.fail(encoder.ErrEmptyLog)
	}
	return r.process(ctx, res, names, log)
}

func (r *Runner) newResult() *Result {
	return &Result{
		StartedAt:     r.clock.Now(),
		EncoderMedian: math.NaN(),
		Statistics:    append([]roi.Statistic(nil), r.cfg.Statistics...),
	}
}

func (r *Runner) listFrames(res *Result) ([]string, error) {
	r.setState(StateInit)
	names, err := r.src.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	if len(names) == 0 {
		return nil, ErrNoFrames
	}
	res.FramesTotal = len(names)
	return names, nil
}

// frameOutcome is written by exactly one worker, at its own index.
type frameOutcome struct {
	time    float64
	skipped bool
	reason  SkipReason
	record  *FrameRecord
}

func (o *frameOutcome) skip(reason SkipReason) {
	o.skipped = true
	o.reason = reason
}

func (r *Runner) process(ctx context.Context, res *Result, names []string, log *encoder.Log) (*Result, error) {
	res.EncoderSamples = log.Len()
	outcomes := make([]frameOutcome, len(names))

	// Offset resolution needs every timestamp before any frame is matched.
	r.setState(StateResolveOffset)
	if err := r.forEach(ctx, len(names), func(i int) {
		r.readTimestamp(names[i], &outcomes[i])
	}); err != nil {
		return res, r.fail(err)
	}
	times := make([]float64, len(outcomes))
	for i, o := range outcomes {
		times[i] = o.time
	}
	lo, hi := log.Range()
	res.Offset = timesync.ResolveOffset(times, lo, hi, r.cfg.ManualOffsetHours)
	diagf("encoder range %s .. %s, %d samples", timesync.FormatUTC(lo), timesync.FormatUTC(hi), log.Len())
	diagf("clock offset %s", res.Offset)

	r.setState(StatePerFrameExtraction)
	locator, err := r.locator(names[0])
	if err != nil {
		return res, r.fail(err)
	}
	progress := monitoring.NewProgress("[pipeline] frames processed", len(names), r.cfg.ProgressEvery)
	if err := r.forEach(ctx, len(names), func(i int) {
		defer progress.Tick()
		if !outcomes[i].skipped {
			r.extractFrame(i, names[i], res.Offset.Seconds, log, locator, &outcomes[i])
		}
	}); err != nil {
		return res, r.fail(err)
	}

	records := make([]FrameRecord, 0, len(names))
	for i, o := range outcomes {
		if o.skipped {
			res.Skips.Add(o.reason)
			diagf("skipped %s: %s", names[i], o.reason)
			continue
		}
		records = append(records, *o.record)
	}
	diagf("skips: %s", res.Skips)
	if len(records) == 0 {
		return res, r.fail(ErrNoMatchedFrames)
	}

	r.setState(StateFilterOutliers)
	counts := make([]int64, len(records))
	for i, rec := range records {
		counts[i] = rec.EncoderCount
	}
	keep, median := encoder.OutlierMask(counts, r.cfg.OutlierFactor, r.cfg.OutlierMinMedian)
	res.EncoderMedian = median
	res.OutliersRemoved = encoder.CountRejected(keep)
	kept := records[:0]
	for i, rec := range records {
		if keep[i] {
			kept = append(kept, rec)
		} else {
			diagf("rejected encoder outlier %s: count %d (median %.1f)", rec.Name, rec.EncoderCount, median)
		}
	}
	records = kept

	r.setState(StateComputeDerivedAngles)
	ref := log.Counts[0]
	for i := range records {
		records[i].RotationIndex = encoder.RotationIndex(records[i].EncoderCount, ref, r.cfg.CountsPerRev)
		records[i].PlateAngle = encoder.PlateAngle(records[i].EncoderCount, r.cfg.CountsPerRev)
	}
	res.Records = records

	r.setState(StateFitAndEmit)
	for _, st := range r.cfg.Statistics {
		theta, _, _, y := res.Series(st)
		fit, err := harmonic.Fit(theta, y, r.cfg.Harmonics, r.cfg.MinFitPoints)
		out := FitOutcome{Statistic: st, Fit: fit, Err: err}
		res.Fits = append(res.Fits, out)
		diagf("fit %s", out.Summary())
	}
	res.Elapsed = timeutil.Elapsed(r.clock, res.StartedAt)

	for _, e := range r.emitters {
		if err := e.Emit(ctx, res); err != nil {
			return res, r.fail(fmt.Errorf("failed to emit results: %w", err))
		}
	}

	r.setState(StateDone)
	opsf("processed %d frames: %d records, %d skipped, %d encoder outliers, offset %s",
		res.FramesTotal, len(res.Records), res.Skips.Total(), res.OutliersRemoved, res.Offset)
	return res, nil
}

// forEach calls fn for 0..n-1 on up to cfg.Workers goroutines and stops
// scheduling once ctx is done.
func (r *Runner) forEach(ctx context.Context, n int, fn func(i int)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Workers, 1))
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) readTimestamp(name string, out *frameOutcome) {
	out.time = math.NaN()
	raw, err := r.src.Timestamp(name)
	if err != nil {
		diagf("failed to read timestamp of %s: %v", name, err)
		out.skip(SkipReadFailed)
		return
	}
	t, err := timesync.ParseDateObs(raw, r.cfg.Location)
	if err != nil {
		if errors.Is(err, timesync.ErrMissingTimestamp) {
			out.skip(SkipMissingTimestamp)
		} else {
			out.skip(SkipBadTimestamp)
		}
		return
	}
	out.time = timesync.EpochSeconds(t)
}

func (r *Runner) locator(first string) (roi.Locator, error) {
	if !r.cfg.FixedROI {
		return roi.NewDetector(r.cfg.Detector), nil
	}
	ref, err := r.src.Pixels(first)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixed ROI reference frame %s: %w", first, err)
	}
	l, err := roi.NewFixedLocator(ref, r.cfg.FixedHalf, r.cfg.BackgroundY, r.cfg.BackgroundX, r.cfg.BackgroundSize)
	if err != nil {
		return nil, fmt.Errorf("fixed ROI from %s: %w", first, err)
	}
	diagf("fixed ROI %v, background %v", l.Box(), l.Background)
	return l, nil
}

func (r *Runner) extractFrame(idx int, name string, offset float64, log *encoder.Log, loc roi.Locator, out *frameOutcome) {
	capture := out.time + offset
	count, ok := log.Nearest(capture)
	if !ok {
		out.skip(SkipNoEncoderMatch)
		return
	}

	img, err := r.src.Pixels(name)
	if err != nil {
		diagf("failed to read pixels of %s: %v", name, err)
		out.skip(SkipReadFailed)
		return
	}

	det, bg, err := loc.Locate(img)
	if err != nil {
		if errors.Is(err, roi.ErrBadROI) {
			out.skip(SkipBadROI)
		} else {
			out.skip(SkipNoBlob)
		}
		return
	}
	st, err := roi.Measure(img, det, bg)
	if err != nil {
		out.skip(SkipBadROI)
		return
	}

	values := make(map[roi.Statistic]float64, len(r.cfg.Statistics))
	for _, s := range r.cfg.Statistics {
		if v, ok := st.Value(s); ok {
			values[s] = v
		}
	}
	out.record = &FrameRecord{
		Index:        idx,
		Name:         name,
		CaptureTime:  capture,
		EncoderCount: count,
		Values:       values,
		ROI:          det.Box,
		Background:   bg,
	}
}
