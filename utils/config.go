package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Config holds the runtime settings threaded through every experiment.
type Config struct {
	Device      string `mapstructure:"device"`
	DataDir     string `mapstructure:"data_dir"`
	ArtifactDir string `mapstructure:"artifact_dir"`
	ResultsDir  string `mapstructure:"results_dir"`
	Workers     int    `mapstructure:"workers"`
	Seed        int64  `mapstructure:"seed"`
	LogLevel    string `mapstructure:"log_level"`
}

// DefaultConfig returns the settings used when neither flags, env nor a config file set them.
func DefaultConfig() Config {
	return Config{
		Device:      "cpu",
		DataDir:     "data",
		ArtifactDir: "tests",
		ResultsDir:  "tests",
		Workers:     1,
		Seed:        0,
		LogLevel:    "info",
	}
}

// acceleratorDevices are recognised but never available in this build.
var acceleratorDevices = map[string]bool{"cuda": true, "gpu": true, "mps": true}

// ValidateConfig validates runtime configuration
func ValidateConfig(config *Config) error {
	switch dev := strings.ToLower(config.Device); {
	case dev == "cpu":
	case acceleratorDevices[dev]:
		return fmt.Errorf("device %q: %w (only cpu is supported)", config.Device, ErrDeviceUnavailable)
	default:
		return fmt.Errorf("unknown device %q", config.Device)
	}

	if config.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}

	if config.ArtifactDir == "" {
		return fmt.Errorf("artifact dir must be set")
	}

	if config.ResultsDir == "" {
		return fmt.Errorf("results dir must be set")
	}

	return nil
}

// ParseIntList parses a comma- or space-separated list of integers
func ParseIntList(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseFloatList parses a comma- or space-separated list of floats
func ParseFloatList(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
}
