package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"mixedpower/app"
	"mixedpower/domain/contrasts"
	"mixedpower/domain/sim"
	"mixedpower/internal/errors"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	LogLevel    string         `yaml:"log_level"`
	Database    DatabaseConfig `yaml:"database"`
	Output      OutputConfig   `yaml:"output"`
	Plot        PlotConfig     `yaml:"plot"`
	Sweep       SweepConfig    `yaml:"sweep"`
	TargetPower float64        `yaml:"target_power"`
}

// DatabaseConfig holds the sweep store connection. An empty URL disables
// persistence.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// OutputConfig holds file system paths for generated artifacts
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// PlotConfig holds the external plotting command
type PlotConfig struct {
	Command string        `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// SweepConfig describes a grid sweep as written in a YAML sweep file
type SweepConfig struct {
	SubNs        []int             `yaml:"sub_ns"`
	ItemNs       []int             `yaml:"item_ns"`
	NSims        int               `yaml:"nsims"`
	Seed         int64             `yaml:"seed"`
	Alpha        float64           `yaml:"alpha"`
	Formula      string            `yaml:"formula"`
	Contrasts    map[string]string `yaml:"contrasts"`
	Conditions   bool              `yaml:"conditions"`
	Beta         []float64         `yaml:"beta"`
	Sigma        *float64          `yaml:"sigma"`
	Theta        []float64         `yaml:"theta"`
	Workers      int               `yaml:"workers"`
	OnFitFailure string            `yaml:"on_fit_failure"`
	Names        []string          `yaml:"names"`
}

// DefaultSweep is the between-subjects age design at three sizes each
func DefaultSweep() SweepConfig {
	return SweepConfig{
		SubNs:        []int{20, 30, 40},
		ItemNs:       []int{10, 20, 30},
		NSims:        1000,
		Seed:         42,
		Alpha:        0.05,
		Formula:      "dv ~ 1 + age + (1|item) + (1|subj)",
		Contrasts:    map[string]string{"age": "helmert"},
		Beta:         []float64{0, 0.25},
		Sigma:        sim.Float(2),
		OnFitFailure: string(app.FailAbort),
	}
}

// Load reads .env, the environment and, when sweepFile is not empty, a
// YAML file whose values override both. The result is validated.
func Load(sweepFile string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read .env")
	}

	config := &Config{
		LogLevel: getEnvOrDefault("LOG_LEVEL", "INFO"),
		Database: DatabaseConfig{
			URL: getEnvOrDefault("DATABASE_URL", ""),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("MIXEDPOWER_OUTPUT_DIR", "."),
		},
		Plot: PlotConfig{
			Command: getEnvOrDefault("PLOT_COMMAND", ""),
			Timeout: getEnvDurationOrDefault("PLOT_TIMEOUT", 2*time.Minute),
		},
		Sweep:       loadSweepEnv(),
		TargetPower: getEnvFloatOrDefault("TARGET_POWER", 0.8),
	}

	if sweepFile != "" {
		if err := loadFile(sweepFile, config); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadSweepEnv() SweepConfig {
	s := DefaultSweep()
	s.NSims = getEnvIntOrDefault("NSIMS", s.NSims)
	s.Seed = int64(getEnvIntOrDefault("SEED", int(s.Seed)))
	s.Alpha = getEnvFloatOrDefault("ALPHA", s.Alpha)
	s.Workers = getEnvIntOrDefault("WORKERS", s.Workers)
	s.Conditions = getEnvBoolOrDefault("CONDITIONS", s.Conditions)
	s.OnFitFailure = getEnvOrDefault("ON_FIT_FAILURE", s.OnFitFailure)
	return s
}

// loadFile overlays the YAML file at path onto config. Keys absent from the
// file keep their current values; lists present in the file replace. A file
// that names its own formula also drops the default contrasts and beta,
// which only fit the default formula.
func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to read sweep file: %w", err))
	}

	var probe struct {
		Sweep struct {
			Formula *string `yaml:"formula"`
		} `yaml:"sweep"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to parse %s: %w", path, err))
	}
	if probe.Sweep.Formula != nil {
		config.Sweep.Contrasts = nil
		config.Sweep.Beta = nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && err != io.EOF {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to parse %s: %w", path, err))
	}
	return nil
}

// Validate checks the settings that do not need a fitted model
func (c *Config) Validate() error {
	if !(c.TargetPower > 0 && c.TargetPower <= 1) {
		return errors.ConfigInvalid(fmt.Sprintf("target_power must be in (0, 1], got %g", c.TargetPower))
	}
	if c.Plot.Timeout < 0 {
		return errors.ConfigInvalid("plot timeout must not be negative")
	}
	if c.Sweep.Workers < 0 {
		return errors.ConfigInvalid("workers must not be negative")
	}
	if _, err := contrasts.ParseMap(c.Sweep.Contrasts); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if _, err := c.Sweep.Request(); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	return nil
}

// Request converts the sweep settings into a validated sweep request
func (s SweepConfig) Request() (app.SweepRequest, error) {
	codings, err := contrasts.ParseMap(s.Contrasts)
	if err != nil {
		return app.SweepRequest{}, err
	}
	policy, err := app.ParseFailurePolicy(s.OnFitFailure)
	if err != nil {
		return app.SweepRequest{}, err
	}
	req := app.SweepRequest{
		SubNs:   s.SubNs,
		ItemNs:  s.ItemNs,
		NSims:   s.NSims,
		Seed:    s.Seed,
		Alpha:   s.Alpha,
		Formula: s.Formula,
		Codings: codings,
		Params: sim.Params{
			Beta:  s.Beta,
			Sigma: s.Sigma,
			Theta: s.Theta,
		},
		Conditions:   s.Conditions,
		Workers:      s.Workers,
		OnFitFailure: policy,
		Names:        s.Names,
	}
	if err := req.Validate(); err != nil {
		return app.SweepRequest{}, err
	}
	return req, nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
