package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/polarization.report/internal/config"
	"github.com/banshee-data/polarization.report/internal/roi"
	"github.com/banshee-data/polarization.report/internal/timesync"
)

// Config is the resolved, immutable configuration of a run.
type Config struct {
	CountsPerRev      int
	ManualOffsetHours *float64
	Location          *time.Location // zone for timestamps without an offset

	FixedROI       bool
	Detector       roi.Config
	FixedHalf      int
	BackgroundY    int
	BackgroundX    int
	BackgroundSize int

	OutlierFactor    float64
	OutlierMinMedian float64

	Harmonics    []int
	MinFitPoints int
	Statistics   []roi.Statistic

	Workers       int
	ProgressEvery int
}

// DefaultConfig returns the configuration of an empty config file.
func DefaultConfig() Config {
	cfg, err := FromPipelineConfig(config.EmptyPipelineConfig())
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromPipelineConfig resolves a loaded JSON config into a run Config.
func FromPipelineConfig(pc *config.PipelineConfig) (Config, error) {
	if err := pc.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := timesync.LoadFrameLocation(pc.GetFrameTimezone())
	if err != nil {
		return Config{}, err
	}

	names := pc.GetStatistics()
	stats := make([]roi.Statistic, 0, len(names))
	for _, n := range names {
		st, err := roi.ParseStatistic(n)
		if err != nil {
			return Config{}, err
		}
		stats = append(stats, st)
	}

	bgY, bgX := pc.GetBackgroundYX()
	var manual *float64
	if h := pc.GetTimeOffsetHours(); h != nil {
		v := *h
		manual = &v
	}

	return Config{
		CountsPerRev:      pc.GetCountsPerRev(),
		ManualOffsetHours: manual,
		Location:          loc,
		FixedROI:          pc.GetROIMode() == config.ROIModeFixed,
		Detector: roi.Config{
			ThresholdFraction: pc.GetBlobThresholdFraction(),
			MinArea:           pc.GetMinBlobArea(),
			PadPx:             pc.GetROIPadPx(),
			GuardPx:           pc.GetROIGuardPx(),
			MaxSide:           pc.GetMaxROISide(),
		},
		FixedHalf:        pc.GetFixedROIHalf(),
		BackgroundY:      bgY,
		BackgroundX:      bgX,
		BackgroundSize:   pc.GetBackgroundSize(),
		OutlierFactor:    pc.GetOutlierFactor(),
		OutlierMinMedian: pc.GetOutlierMinMedian(),
		Harmonics:        pc.GetHarmonics(),
		MinFitPoints:     pc.GetMinFitPoints(),
		Statistics:       stats,
		Workers:          pc.GetWorkers(),
		ProgressEvery:    pc.GetProgressEvery(),
	}, nil
}

// Validate checks a Config that was built by hand rather than through
// FromPipelineConfig. Run and Process call it before touching any frame.
func (c Config) Validate() error {
	if c.CountsPerRev <= 0 {
		return fmt.Errorf("counts per revolution must be positive, got %d", c.CountsPerRev)
	}
	if c.Detector.ThresholdFraction <= 0 || c.Detector.ThresholdFraction > 1 {
		return fmt.Errorf("blob threshold fraction must be in (0, 1], got %f", c.Detector.ThresholdFraction)
	}
	if c.Detector.MaxSide <= 0 {
		return fmt.Errorf("max ROI side must be positive, got %d", c.Detector.MaxSide)
	}
	for name, v := range map[string]int{
		"min blob area":   c.Detector.MinArea,
		"ROI padding":     c.Detector.PadPx,
		"ROI guard":       c.Detector.GuardPx,
		"fixed ROI half":  c.FixedHalf,
		"background size": c.BackgroundSize,
		"background y":    c.BackgroundY,
		"background x":    c.BackgroundX,
		"min fit points":  c.MinFitPoints,
		"workers":         c.Workers,
		"progress every":  c.ProgressEvery,
	} {
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, v)
		}
	}
	if c.OutlierFactor <= 0 {
		return fmt.Errorf("outlier factor must be positive, got %f", c.OutlierFactor)
	}
	if len(c.Harmonics) == 0 {
		return fmt.Errorf("no harmonic orders configured")
	}
	seen := make(map[int]bool, len(c.Harmonics))
	for _, k := range c.Harmonics {
		if k <= 0 || seen[k] {
			return fmt.Errorf("harmonics must be distinct positive orders, got %v", c.Harmonics)
		}
		seen[k] = true
	}
	if len(c.Statistics) == 0 {
		return fmt.Errorf("no statistics configured")
	}
	return nil
}
