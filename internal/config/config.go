// Package config loads and validates run configuration of the spindle tracker
package config

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/LdDl/spindle-track/spindle"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidConfig is returned when configuration values fail validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the complete run configuration. Zero-based indices everywhere
type Config struct {
	// Directory with t{T}_z{Z}_c{C}.tif planes
	Input string `yaml:"input" validate:"required"`
	// Directory for CSV, overlays, plots
	Output string `yaml:"output" validate:"required"`
	// First frame to process
	TimeStart int `yaml:"time_start" validate:"gte=0"`
	// Number of frames to process
	FrameCount     int `yaml:"frame_count" validate:"gte=1"`
	SpindleChannel int `yaml:"spindle_channel" validate:"gte=0"`
	CellChannel    int `yaml:"cell_channel" validate:"gte=0"`
	// Pixels added on every side of the squared box
	Padding  int            `yaml:"padding" validate:"gte=0"`
	Detector DetectorConfig `yaml:"detector"`
	Matcher  MatcherConfig  `yaml:"matcher"`
	Outputs  OutputsConfig  `yaml:"outputs"`
	// Optional sqlite database file. Empty disables persistence
	Database string    `yaml:"database"`
	Log      LogConfig `yaml:"log"`
}

// DetectorConfig mirrors spindle.DetectorOptions
type DetectorConfig struct {
	LowThreshold  float64 `yaml:"low_threshold" validate:"gte=0,lte=1"`
	HighThreshold float64 `yaml:"high_threshold" validate:"gte=0,lte=1,gtefield=LowThreshold"`
	MinArea       int     `yaml:"min_area" validate:"gte=0"`
}

// MatcherConfig mirrors spindle.MatcherOptions
type MatcherConfig struct {
	Algorithm   string  `yaml:"algorithm" validate:"oneof=hungarian greedy"`
	MaxDistance float64 `yaml:"max_distance" validate:"gte=0"`
}

// OutputsConfig toggles optional artifacts. Instance CSV is always written
type OutputsConfig struct {
	Overlays     bool `yaml:"overlays"`
	Trajectories bool `yaml:"trajectories"`
	TrackSummary bool `yaml:"track_summary"`
}

// LogConfig configures internal/logging
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn warning error disabled off"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// Default returns configuration of the original tracking setup. Input and
// Output have no defaults and must be provided
func Default() *Config {
	detector := spindle.DefaultDetectorOptions()
	return &Config{
		Output:         "",
		TimeStart:      1,
		FrameCount:     11,
		SpindleChannel: 1,
		CellChannel:    0,
		Padding:        40,
		Detector: DetectorConfig{
			LowThreshold:  detector.LowThreshold,
			HighThreshold: detector.HighThreshold,
			MinArea:       detector.MinArea,
		},
		Matcher: MatcherConfig{
			Algorithm:   spindle.MatchingAlgorithmHungarian.String(),
			MaxDistance: 0,
		},
		Outputs: OutputsConfig{
			Overlays:     true,
			Trajectories: true,
			TrackSummary: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads YAML configuration from path on top of Default().
// The file must have .yaml or .yml extension and be under 1MB. Unknown keys are rejected.
// Load doesn't validate: flags may still override values, call Validate afterwards.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := strings.ToLower(filepath.Ext(cleanPath)); ext != ".yaml" && ext != ".yml" {
		return nil, errors.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "can't stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "can't read config file")
	}

	cfg := Default()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.Wrap(err, "can't parse config YAML")
	}
	return cfg, nil
}

var (
	vOnce sync.Once
	v     *validator.Validate
)

func getValidator() *validator.Validate {
	vOnce.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		// prefer yaml tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			tag := fld.Tag.Get("yaml")
			if tag == "-" || tag == "" {
				return fld.Name
			}
			if idx := strings.Index(tag, ","); idx >= 0 {
				tag = tag[:idx]
			}
			return tag
		})
	})
	return v
}

// Validate checks every field. All violations are reported in one error
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return errors.Wrap(ErrInvalidConfig, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "oneof":
		return name + " must be one of [" + fe.Param() + "], got " + valueString(fe.Value())
	case "gtefield":
		return name + " must not be below " + fe.Param()
	default:
		return name + " must satisfy " + fe.Tag() + "=" + fe.Param() + ", got " + valueString(fe.Value())
	}
}

func valueString(value any) string {
	out, err := yaml.Marshal(value)
	if err != nil {
		return "?"
	}
	return strings.TrimSpace(string(out))
}

// PipelineOptions converts configuration into spindle pipeline options
func (c *Config) PipelineOptions(logger zerolog.Logger) (spindle.Options, error) {
	algorithm, err := spindle.ParseMatchingAlgorithm(c.Matcher.Algorithm)
	if err != nil {
		return spindle.Options{}, errors.Wrap(ErrInvalidConfig, err.Error())
	}
	return spindle.Options{
		SpindleChannel: c.SpindleChannel,
		CellChannel:    c.CellChannel,
		Padding:        c.Padding,
		Detector: spindle.DetectorOptions{
			LowThreshold:  c.Detector.LowThreshold,
			HighThreshold: c.Detector.HighThreshold,
			MinArea:       c.Detector.MinArea,
		},
		Matcher: spindle.MatcherOptions{
			Algorithm:   algorithm,
			MaxDistance: c.Matcher.MaxDistance,
		},
		Logger: logger,
	}, nil
}
