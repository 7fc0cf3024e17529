package sweep

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"advbnn/logging"
	"advbnn/results"
)

// File is a sweep description read from YAML.
type File struct {
	Name    string                `yaml:"name"`
	Grid    Grid                  `yaml:"grid"`
	Attack  AttackSpec            `yaml:"attack"`
	Workers int                   `yaml:"workers"`
	Output  string                `yaml:"output"`
	Influx  *results.InfluxConfig `yaml:"influx,omitempty"`
}

// LoadFile reads, expands ${VAR} references in, and validates a sweep file.
func LoadFile(path string) (*File, error) {
	logger := logging.GetLogger()

	raw, err := os.ReadFile(path)
	if err != nil {
		logger.WithField("filepath", path).WithError(err).Error("Failed to read sweep file")
		return nil, err
	}

	var f File
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(raw))), &f); err != nil {
		logger.WithField("filepath", path).WithError(err).Error("Failed to parse sweep file")
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep file %s: %w", path, err)
	}
	return &f, nil
}

func (f *File) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("sweep name is required")
	}
	if f.Workers == 0 {
		f.Workers = 1
	}
	if f.Workers < 0 {
		return fmt.Errorf("workers must be positive, got %d", f.Workers)
	}
	if err := f.Grid.Validate(); err != nil {
		return err
	}
	if err := f.Attack.Validate(); err != nil {
		return err
	}
	if f.Influx != nil && (f.Influx.URL == "" || f.Influx.Bucket == "") {
		return fmt.Errorf("influx section needs url and bucket")
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with its value; unset variables are left as written.
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := strings.Trim(match, "${}")
		if value := os.Getenv(name); value != "" {
			return value
		}
		return match
	})
}
