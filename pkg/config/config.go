// Package config handles configuration for rpa-runner.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before the file is read.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultElementTimeout    = 15 * time.Second
	DefaultProfileAPIURL     = "http://local.adspower.net:50325"
	DefaultProfileAPITimeout = 60 * time.Second
	DefaultLogLevel          = "info"
)

// Config represents the workspace configuration (config.yaml).
type Config struct {
	// Workers caps concurrent environment runs across all tasks.
	// Zero means twice the CPU count.
	Workers int `yaml:"workers"`

	Timeouts   Timeouts   `yaml:"timeouts"`
	ProfileAPI ProfileAPI `yaml:"profileApi"`
	Metrics    Metrics    `yaml:"metrics"`
	Log        Log        `yaml:"log"`

	// Output is the report directory
	Output string `yaml:"output"`

	// Env is merged into every flow's variables; flow values win
	Env map[string]string `yaml:"env"`
}

// Timeouts are the per-step defaults.
type Timeouts struct {
	Navigation time.Duration `yaml:"navigation"`
	Element    time.Duration `yaml:"element"`
}

// ProfileAPI locates the browser profile manager.
type ProfileAPI struct {
	BaseURL   string        `yaml:"baseUrl"`
	StartPath string        `yaml:"startPath"`
	StopPath  string        `yaml:"stopPath"`
	APIKey    string        `yaml:"apiKey"`
	Timeout   time.Duration `yaml:"timeout"`
	Headless  bool          `yaml:"headless"`
}

// Metrics configures the Prometheus endpoint. Empty Listen disables it.
type Metrics struct {
	Listen string `yaml:"listen"`
}

// Log configures the file logger. Empty File means <home>/logs/rpa-runner.log.
type Log struct {
	File  string `yaml:"file"`
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Timeouts: Timeouts{
			Navigation: DefaultNavigationTimeout,
			Element:    DefaultElementTimeout,
		},
		ProfileAPI: ProfileAPI{
			BaseURL: DefaultProfileAPIURL,
			Timeout: DefaultProfileAPITimeout,
		},
		Log: Log{Level: DefaultLogLevel},
	}
}

// Load loads configuration from a file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"config.yaml", "config.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, use defaults
	return Default(), nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0, got %d", c.Workers)
	}
	if c.Timeouts.Navigation < 0 || c.Timeouts.Element < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// LogFile returns the configured log path or the default under home.
func (c *Config) LogFile() string {
	if c.Log.File != "" {
		return c.Log.File
	}
	return filepath.Join(GetLogsDir(), "rpa-runner.log")
}

// OutputDir returns the configured report directory or the default under
// home.
func (c *Config) OutputDir() string {
	if c.Output != "" {
		return c.Output
	}
	return GetReportsDir()
}
