package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_ValidConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `
workers: 6
timeouts:
  navigation: 45s
  element: 5s
profileApi:
  baseUrl: http://127.0.0.1:50325
  apiKey: secret
  headless: true
metrics:
  listen: ":9464"
log:
  level: debug
output: ./reports
env:
  BASE: https://shop.test
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Workers != 6 {
		t.Errorf("expected workers 6, got %d", cfg.Workers)
	}
	if cfg.Timeouts.Navigation != 45*time.Second || cfg.Timeouts.Element != 5*time.Second {
		t.Errorf("unexpected timeouts %+v", cfg.Timeouts)
	}
	if cfg.ProfileAPI.BaseURL != "http://127.0.0.1:50325" || cfg.ProfileAPI.APIKey != "secret" || !cfg.ProfileAPI.Headless {
		t.Errorf("unexpected profileApi %+v", cfg.ProfileAPI)
	}
	if cfg.ProfileAPI.Timeout != DefaultProfileAPITimeout {
		t.Errorf("profileApi.timeout default lost: %v", cfg.ProfileAPI.Timeout)
	}
	if cfg.Metrics.Listen != ":9464" || cfg.Log.Level != "debug" {
		t.Errorf("unexpected metrics/log %+v %+v", cfg.Metrics, cfg.Log)
	}
	if cfg.OutputDir() != "./reports" {
		t.Errorf("OutputDir() = %s", cfg.OutputDir())
	}
	if cfg.Env["BASE"] != "https://shop.test" {
		t.Errorf("expected env BASE, got %v", cfg.Env)
	}
}

func TestLoad_DefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("workers: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Timeouts.Navigation != DefaultNavigationTimeout || cfg.Timeouts.Element != DefaultElementTimeout {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.ProfileAPI.BaseURL != DefaultProfileAPIURL || cfg.Log.Level != DefaultLogLevel {
		t.Errorf("defaults lost: %+v %+v", cfg.ProfileAPI, cfg.Log)
	}
}

func TestLoad_NonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("workers: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative workers", func(c *Config) { c.Workers = -1 }, true},
		{"negative timeout", func(c *Config) { c.Timeouts.Element = -time.Second }, true},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"upper level", func(c *Config) { c.Log.Level = "WARN" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromDir(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		workers int
	}{
		{"yaml", "config.yaml", 3},
		{"yml", "config.yml", 3},
		{"none", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				if err := os.WriteFile(filepath.Join(dir, tt.file), []byte("workers: 3\n"), 0644); err != nil {
					t.Fatal(err)
				}
			}
			cfg, err := LoadFromDir(dir)
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Workers != tt.workers {
				t.Errorf("workers = %d, want %d", cfg.Workers, tt.workers)
			}
			if cfg.Timeouts.Navigation != DefaultNavigationTimeout {
				t.Error("defaults not applied")
			}
		})
	}
}

func TestDefaultPathsUnderHome(t *testing.T) {
	ResetHome()
	t.Setenv("RPA_RUNNER_HOME", "/test/home")
	defer ResetHome()

	cfg := Default()
	if got := cfg.LogFile(); got != filepath.Join("/test/home", "logs", "rpa-runner.log") {
		t.Errorf("LogFile() = %s", got)
	}
	if got := cfg.OutputDir(); got != filepath.Join("/test/home", "reports") {
		t.Errorf("OutputDir() = %s", got)
	}
}
