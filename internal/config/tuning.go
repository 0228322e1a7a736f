package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds the detection thresholds, decision margins and settings
// defaults. Every field is optional; the Get* accessors fall back to the
// built-in defaults so partial JSON files are safe.
type TuningConfig struct {
	// Colour detector
	FrameWidth      *int     `json:"frame_width,omitempty"`
	FrameHeight     *int     `json:"frame_height,omitempty"`
	ROIFraction     *float64 `json:"roi_fraction,omitempty"`
	GreenRatio      *float64 `json:"green_ratio,omitempty"`
	BrightnessFloor *int     `json:"brightness_floor,omitempty"`

	// Detection state machine
	OnsetThresholdPercent *float64 `json:"onset_threshold_percent,omitempty"`
	DarkFramesToConfirm   *int     `json:"dark_frames_to_confirm,omitempty"`
	Cooldown              *string  `json:"cooldown,omitempty"`     // duration string like "40s"
	MinInterval           *string  `json:"min_interval,omitempty"` // duration string like "40s"
	MaxInterval           *string  `json:"max_interval,omitempty"` // duration string like "10m"
	FallbackGreenSeconds  *float64 `json:"fallback_green_seconds,omitempty"`

	// Decision engine
	EarlyMarginSeconds      *float64 `json:"early_margin_seconds,omitempty"`
	LateMarginSeconds       *float64 `json:"late_margin_seconds,omitempty"`
	CountdownWarningSeconds *float64 `json:"countdown_warning_seconds,omitempty"`
	EvaluationInterval      *string  `json:"evaluation_interval,omitempty"` // duration string like "100ms"

	// Settings store defaults
	DefaultDescentSeconds *float64 `json:"default_descent_seconds,omitempty"`
	DefaultCycleSeconds   *float64 `json:"default_cycle_seconds,omitempty"`
	DefaultGreenSeconds   *float64 `json:"default_green_seconds,omitempty"`
	DefaultYellowSeconds  *float64 `json:"default_yellow_seconds,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated with
// its built-in default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		FrameWidth:              ptrInt(320),
		FrameHeight:             ptrInt(240),
		ROIFraction:             ptrFloat64(0.4),
		GreenRatio:              ptrFloat64(1.2),
		BrightnessFloor:         ptrInt(60),
		OnsetThresholdPercent:   ptrFloat64(15),
		DarkFramesToConfirm:     ptrInt(10),
		Cooldown:                ptrString("40s"),
		MinInterval:             ptrString("40s"),
		MaxInterval:             ptrString("10m"),
		FallbackGreenSeconds:    ptrFloat64(35),
		EarlyMarginSeconds:      ptrFloat64(2),
		LateMarginSeconds:       ptrFloat64(2),
		CountdownWarningSeconds: ptrFloat64(5),
		EvaluationInterval:      ptrString("100ms"),
		DefaultDescentSeconds:   ptrFloat64(12),
		DefaultCycleSeconds:     ptrFloat64(60),
		DefaultGreenSeconds:     ptrFloat64(25),
		DefaultYellowSeconds:    ptrFloat64(3),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must have
// a .json extension and the file must be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.ROIFraction != nil && (*c.ROIFraction <= 0 || *c.ROIFraction > 1) {
		return fmt.Errorf("roi_fraction must be in (0, 1], got %f", *c.ROIFraction)
	}
	if c.GreenRatio != nil && *c.GreenRatio < 1 {
		return fmt.Errorf("green_ratio must be >= 1, got %f", *c.GreenRatio)
	}
	if c.BrightnessFloor != nil && (*c.BrightnessFloor < 0 || *c.BrightnessFloor > 255) {
		return fmt.Errorf("brightness_floor must be between 0 and 255, got %d", *c.BrightnessFloor)
	}
	if c.OnsetThresholdPercent != nil && (*c.OnsetThresholdPercent < 0 || *c.OnsetThresholdPercent >= 100) {
		return fmt.Errorf("onset_threshold_percent must be in [0, 100), got %f", *c.OnsetThresholdPercent)
	}
	if c.DarkFramesToConfirm != nil && *c.DarkFramesToConfirm < 1 {
		return fmt.Errorf("dark_frames_to_confirm must be positive, got %d", *c.DarkFramesToConfirm)
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}

	for name, v := range map[string]*string{
		"cooldown":            c.Cooldown,
		"min_interval":        c.MinInterval,
		"max_interval":        c.MaxInterval,
		"evaluation_interval": c.EvaluationInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, *v)
		}
	}
	if c.GetMinInterval() > c.GetMaxInterval() {
		return fmt.Errorf("min_interval %s exceeds max_interval %s", c.GetMinInterval(), c.GetMaxInterval())
	}
	if c.GetEvaluationInterval() <= 0 {
		return fmt.Errorf("evaluation_interval must be positive")
	}

	for name, v := range map[string]*float64{
		"early_margin_seconds":      c.EarlyMarginSeconds,
		"late_margin_seconds":       c.LateMarginSeconds,
		"countdown_warning_seconds": c.CountdownWarningSeconds,
		"default_descent_seconds":   c.DefaultDescentSeconds,
		"default_yellow_seconds":    c.DefaultYellowSeconds,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", name, *v)
		}
	}
	for name, v := range map[string]*float64{
		"fallback_green_seconds": c.FallbackGreenSeconds,
		"default_cycle_seconds":  c.DefaultCycleSeconds,
		"default_green_seconds":  c.DefaultGreenSeconds,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}

	return nil
}

func durationOr(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// GetFrameWidth returns the downsampled analysis width in pixels.
func (c *TuningConfig) GetFrameWidth() int { return intOr(c.FrameWidth, 320) }

// GetFrameHeight returns the downsampled analysis height in pixels.
func (c *TuningConfig) GetFrameHeight() int { return intOr(c.FrameHeight, 240) }

// GetROIFraction returns the share of each frame dimension covered by the
// centred region of interest.
func (c *TuningConfig) GetROIFraction() float64 { return floatOr(c.ROIFraction, 0.4) }

// GetGreenRatio returns how much G must exceed R and B for a green pixel.
func (c *TuningConfig) GetGreenRatio() float64 { return floatOr(c.GreenRatio, 1.2) }

// GetBrightnessFloor returns the minimum G channel value for a green pixel.
func (c *TuningConfig) GetBrightnessFloor() int { return intOr(c.BrightnessFloor, 60) }

// GetOnsetThresholdPercent returns the green percentage above which a frame
// counts as lit.
func (c *TuningConfig) GetOnsetThresholdPercent() float64 {
	return floatOr(c.OnsetThresholdPercent, 15)
}

// GetDarkFramesToConfirm returns the consecutive dark frames that end a green phase.
func (c *TuningConfig) GetDarkFramesToConfirm() int { return intOr(c.DarkFramesToConfirm, 10) }

// GetCooldown returns the window after an accepted onset in which further
// rising edges are ignored.
func (c *TuningConfig) GetCooldown() time.Duration { return durationOr(c.Cooldown, 40*time.Second) }

// GetMinInterval returns the shortest plausible onset-to-onset interval.
func (c *TuningConfig) GetMinInterval() time.Duration {
	return durationOr(c.MinInterval, 40*time.Second)
}

// GetMaxInterval returns the longest plausible onset-to-onset interval.
func (c *TuningConfig) GetMaxInterval() time.Duration {
	return durationOr(c.MaxInterval, 600*time.Second)
}

// GetFallbackGreenSeconds returns the green duration reported when no
// green phase was measured during calibration.
func (c *TuningConfig) GetFallbackGreenSeconds() float64 { return floatOr(c.FallbackGreenSeconds, 35) }

func (c *TuningConfig) GetEarlyMarginSeconds() float64 { return floatOr(c.EarlyMarginSeconds, 2) }
func (c *TuningConfig) GetLateMarginSeconds() float64  { return floatOr(c.LateMarginSeconds, 2) }

// GetCountdownWarningSeconds returns the time-to-green at or below which the
// countdown is flagged.
func (c *TuningConfig) GetCountdownWarningSeconds() float64 {
	return floatOr(c.CountdownWarningSeconds, 5)
}

// GetEvaluationInterval returns the period of the live decision loop.
func (c *TuningConfig) GetEvaluationInterval() time.Duration {
	return durationOr(c.EvaluationInterval, 100*time.Millisecond)
}

func (c *TuningConfig) GetDefaultDescentSeconds() float64 { return floatOr(c.DefaultDescentSeconds, 12) }
func (c *TuningConfig) GetDefaultCycleSeconds() float64   { return floatOr(c.DefaultCycleSeconds, 60) }
func (c *TuningConfig) GetDefaultGreenSeconds() float64   { return floatOr(c.DefaultGreenSeconds, 25) }
func (c *TuningConfig) GetDefaultYellowSeconds() float64  { return floatOr(c.DefaultYellowSeconds, 3) }
