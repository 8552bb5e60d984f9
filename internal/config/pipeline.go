package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultConfigPath is the path to the canonical pipeline defaults file.
// The Get* accessors below must agree with it.
const DefaultConfigPath = "config/pipeline.defaults.json"

// ROI modes.
const (
	ROIModeAuto  = "auto"
	ROIModeFixed = "fixed"
)

// PipelineConfig is the JSON configuration of a plate-fit run. Every field
// is optional; the Get* methods supply defaults for omitted fields.
type PipelineConfig struct {
	// Encoder and clock
	CountsPerRev    *int     `json:"counts_per_rev,omitempty"`
	TimeOffsetHours *float64 `json:"time_offset_hours,omitempty"` // skips the offset search
	FrameTimezone   *string  `json:"frame_timezone,omitempty"`    // zone for DATE-OBS without offset

	// Frames
	Channel *string `json:"channel,omitempty"`

	// ROI detection
	ROIMode               *string  `json:"roi_mode,omitempty"` // "auto" or "fixed"
	BlobThresholdFraction *float64 `json:"blob_threshold_fraction,omitempty"`
	MinBlobArea           *int     `json:"min_blob_area,omitempty"`
	ROIPadPx              *int     `json:"roi_pad_px,omitempty"`
	ROIGuardPx            *int     `json:"roi_guard_px,omitempty"`
	MaxROISide            *int     `json:"max_roi_side,omitempty"`

	// Fixed ROI mode
	FixedROIHalf   *int  `json:"fixed_roi_half,omitempty"`
	BackgroundYX   []int `json:"background_yx,omitempty"`
	BackgroundSize *int  `json:"background_size,omitempty"`

	// Outlier filter
	OutlierFactor    *float64 `json:"outlier_factor,omitempty"`
	OutlierMinMedian *float64 `json:"outlier_min_median,omitempty"`

	// Fit
	Harmonics    []int    `json:"harmonics,omitempty"`
	MinFitPoints *int     `json:"min_fit_points,omitempty"`
	CurveSamples *int     `json:"curve_samples,omitempty"`
	Statistics   []string `json:"statistics,omitempty"`

	// Execution and output
	Workers       *int  `json:"workers,omitempty"`
	ProgressEvery *int  `json:"progress_every,omitempty"`
	HTMLCharts    *bool `json:"html_charts,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyPipelineConfig returns a PipelineConfig with every field unset, so
// all Get* methods return defaults.
func EmptyPipelineConfig() *PipelineConfig {
	return &PipelineConfig{}
}

// LoadPipelineConfig loads a PipelineConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyPipelineConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics when the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *PipelineConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadPipelineConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

var validChannels = map[string]bool{
	"PRIMARY": true, "RED": true, "GREEN1": true, "GREEN2": true, "BLUE": true,
}

var validStatistics = map[string]bool{
	"one_pixel": true, "roi_sum": true, "roi_mean": true, "roi_median": true,
}

// Validate checks that the set values are usable.
func (c *PipelineConfig) Validate() error {
	if c.CountsPerRev != nil && *c.CountsPerRev <= 0 {
		return fmt.Errorf("counts_per_rev must be positive, got %d", *c.CountsPerRev)
	}

	if c.TimeOffsetHours != nil && (*c.TimeOffsetHours < -24 || *c.TimeOffsetHours > 24) {
		return fmt.Errorf("time_offset_hours must be between -24 and 24, got %f", *c.TimeOffsetHours)
	}

	if c.FrameTimezone != nil && *c.FrameTimezone != "" {
		if _, err := time.LoadLocation(*c.FrameTimezone); err != nil {
			return fmt.Errorf("invalid frame_timezone '%s': %w", *c.FrameTimezone, err)
		}
	}

	if c.Channel != nil && !validChannels[strings.ToUpper(*c.Channel)] {
		return fmt.Errorf("unknown channel '%s'", *c.Channel)
	}

	if c.ROIMode != nil && *c.ROIMode != ROIModeAuto && *c.ROIMode != ROIModeFixed {
		return fmt.Errorf("roi_mode must be %q or %q, got %q", ROIModeAuto, ROIModeFixed, *c.ROIMode)
	}

	if c.BlobThresholdFraction != nil {
		if *c.BlobThresholdFraction <= 0 || *c.BlobThresholdFraction > 1 {
			return fmt.Errorf("blob_threshold_fraction must be in (0, 1], got %f", *c.BlobThresholdFraction)
		}
	}

	for name, v := range map[string]*int{
		"min_blob_area":   c.MinBlobArea,
		"roi_pad_px":      c.ROIPadPx,
		"roi_guard_px":    c.ROIGuardPx,
		"fixed_roi_half":  c.FixedROIHalf,
		"min_fit_points":  c.MinFitPoints,
		"curve_samples":   c.CurveSamples,
		"progress_every":  c.ProgressEvery,
		"background_size": c.BackgroundSize,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}

	if c.MaxROISide != nil && *c.MaxROISide <= 0 {
		return fmt.Errorf("max_roi_side must be positive, got %d", *c.MaxROISide)
	}

	if c.BackgroundYX != nil {
		if len(c.BackgroundYX) != 2 || c.BackgroundYX[0] < 0 || c.BackgroundYX[1] < 0 {
			return fmt.Errorf("background_yx must be two non-negative integers, got %v", c.BackgroundYX)
		}
	}

	if c.OutlierFactor != nil && *c.OutlierFactor <= 0 {
		return fmt.Errorf("outlier_factor must be positive, got %f", *c.OutlierFactor)
	}

	if c.Harmonics != nil {
		if len(c.Harmonics) == 0 {
			return fmt.Errorf("harmonics must not be empty")
		}
		seen := make(map[int]bool)
		for _, k := range c.Harmonics {
			if k <= 0 || seen[k] {
				return fmt.Errorf("harmonics must be distinct positive orders, got %v", c.Harmonics)
			}
			seen[k] = true
		}
	}

	if c.Statistics != nil {
		if len(c.Statistics) == 0 {
			return fmt.Errorf("statistics must not be empty")
		}
		for _, s := range c.Statistics {
			if !validStatistics[s] {
				return fmt.Errorf("unknown statistic '%s'", s)
			}
		}
	}

	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	return nil
}

// GetCountsPerRev returns the counts_per_rev value or the default.
func (c *PipelineConfig) GetCountsPerRev() int {
	if c.CountsPerRev == nil {
		return 2400
	}
	return *c.CountsPerRev
}

// GetTimeOffsetHours returns the manual clock offset, or nil to search.
func (c *PipelineConfig) GetTimeOffsetHours() *float64 {
	return c.TimeOffsetHours
}

// GetFrameTimezone returns the frame_timezone value; "" means local time.
func (c *PipelineConfig) GetFrameTimezone() string {
	if c.FrameTimezone == nil {
		return ""
	}
	return *c.FrameTimezone
}

// GetChannel returns the upper-cased channel name or the default.
func (c *PipelineConfig) GetChannel() string {
	if c.Channel == nil || *c.Channel == "" {
		return "GREEN1"
	}
	return strings.ToUpper(*c.Channel)
}

// GetROIMode returns the roi_mode value or the default.
func (c *PipelineConfig) GetROIMode() string {
	if c.ROIMode == nil {
		return ROIModeAuto
	}
	return *c.ROIMode
}

// GetBlobThresholdFraction returns the blob_threshold_fraction value or the default.
func (c *PipelineConfig) GetBlobThresholdFraction() float64 {
	if c.BlobThresholdFraction == nil {
		return 0.5
	}
	return *c.BlobThresholdFraction
}

// GetMinBlobArea returns the min_blob_area value or the default.
func (c *PipelineConfig) GetMinBlobArea() int {
	if c.MinBlobArea == nil {
		return 4
	}
	return *c.MinBlobArea
}

// GetROIPadPx returns the roi_pad_px value or the default.
func (c *PipelineConfig) GetROIPadPx() int {
	if c.ROIPadPx == nil {
		return 3
	}
	return *c.ROIPadPx
}

// GetROIGuardPx returns the roi_guard_px value or the default.
func (c *PipelineConfig) GetROIGuardPx() int {
	if c.ROIGuardPx == nil {
		return 10
	}
	return *c.ROIGuardPx
}

// GetMaxROISide returns the max_roi_side value or the default.
func (c *PipelineConfig) GetMaxROISide() int {
	if c.MaxROISide == nil {
		return 64
	}
	return *c.MaxROISide
}

// GetFixedROIHalf returns the fixed_roi_half value or the default.
func (c *PipelineConfig) GetFixedROIHalf() int {
	if c.FixedROIHalf == nil {
		return 1
	}
	return *c.FixedROIHalf
}

// GetBackgroundYX returns the fixed background corner (row, column).
func (c *PipelineConfig) GetBackgroundYX() (int, int) {
	if len(c.BackgroundYX) != 2 {
		return 50, 50
	}
	return c.BackgroundYX[0], c.BackgroundYX[1]
}

// GetBackgroundSize returns the background_size value or the default.
func (c *PipelineConfig) GetBackgroundSize() int {
	if c.BackgroundSize == nil {
		return 3
	}
	return *c.BackgroundSize
}

// GetOutlierFactor returns the outlier_factor value or the default.
func (c *PipelineConfig) GetOutlierFactor() float64 {
	if c.OutlierFactor == nil {
		return 5.0
	}
	return *c.OutlierFactor
}

// GetOutlierMinMedian returns the outlier_min_median value or the default.
func (c *PipelineConfig) GetOutlierMinMedian() float64 {
	if c.OutlierMinMedian == nil {
		return 1.0
	}
	return *c.OutlierMinMedian
}

// GetHarmonics returns the fitted harmonic orders or the default.
func (c *PipelineConfig) GetHarmonics() []int {
	if len(c.Harmonics) == 0 {
		return []int{2, 4}
	}
	return append([]int(nil), c.Harmonics...)
}

// GetMinFitPoints returns the min_fit_points value or the default.
func (c *PipelineConfig) GetMinFitPoints() int {
	if c.MinFitPoints == nil {
		return 8
	}
	return *c.MinFitPoints
}

// GetCurveSamples returns the curve_samples value or the default.
func (c *PipelineConfig) GetCurveSamples() int {
	if c.CurveSamples == nil {
		return 360
	}
	return *c.CurveSamples
}

// GetStatistics returns the statistic names or the default set.
func (c *PipelineConfig) GetStatistics() []string {
	if len(c.Statistics) == 0 {
		return []string{"one_pixel", "roi_sum", "roi_mean", "roi_median"}
	}
	return append([]string(nil), c.Statistics...)
}

// GetWorkers returns the workers value or the default.
func (c *PipelineConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	return *c.Workers
}

// GetProgressEvery returns the progress_every value or the default.
func (c *PipelineConfig) GetProgressEvery() int {
	if c.ProgressEvery == nil {
		return 100
	}
	return *c.ProgressEvery
}

// GetHTMLCharts returns the html_charts value or the default.
func (c *PipelineConfig) GetHTMLCharts() bool {
	if c.HTMLCharts == nil {
		return false
	}
	return *c.HTMLCharts
}

// SetCountsPerRev overrides counts_per_rev, e.g. from a CLI flag.
func (c *PipelineConfig) SetCountsPerRev(v int) { c.CountsPerRev = ptrInt(v) }

// SetTimeOffsetHours overrides the manual clock offset.
func (c *PipelineConfig) SetTimeOffsetHours(v float64) { c.TimeOffsetHours = ptrFloat64(v) }

// SetChannel overrides the frame channel.
func (c *PipelineConfig) SetChannel(v string) { c.Channel = ptrString(v) }

// SetWorkers overrides the extraction worker count.
func (c *PipelineConfig) SetWorkers(v int) { c.Workers = ptrInt(v) }

// SetHTMLCharts overrides html_charts.
func (c *PipelineConfig) SetHTMLCharts(v bool) { c.HTMLCharts = ptrBool(v) }
