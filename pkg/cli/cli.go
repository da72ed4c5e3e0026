// Package cli provides the command-line interface for rpa-runner.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rpa-runner/pkg/config"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to workspace config.yaml (default: ./config.yaml if present)",
		EnvVars: []string{"RPA_CONFIG"},
	},
	&cli.StringSliceFlag{
		Name:  "env-file",
		Usage: "Dotenv files loaded into the process environment before flags are read",
		Value: cli.NewStringSlice(".env"),
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (debug, info, warn, error)",
		EnvVars: []string{"RPA_LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-file",
		Usage:   "Log file path",
		EnvVars: []string{"RPA_LOG_FILE"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Aliases: []string{"v"},
		Usage:   "Print every step as it completes",
		EnvVars: []string{"RPA_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "rpa-runner",
		Usage:   "Batch browser automation across many browser profiles",
		Version: Version,
		Description: `rpa-runner executes one declarative flow against many browser
environments (profiles), sequentially, in random order, or in parallel.

Examples:
  rpa-runner run --flow checkout.yaml --envs k1,k2,k3
  rpa-runner run --flow checkout.yaml --envs-file profiles.txt --mode parallel --parallel 4
  rpa-runner lint flows/`,
		Flags:  GlobalFlags,
		Before: loadDotenv,
		Commands: []*cli.Command{
			runCommand,
			lintCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadDotenv applies --env-file before any EnvVars lookup by subcommands.
// Missing files are skipped; variables already set are kept.
func loadDotenv(c *cli.Context) error {
	if c.Bool("no-ansi") {
		colorsEnabled = false
	}
	for _, path := range c.StringSlice("env-file") {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// loadConfig reads --config, or config.yaml in the working directory.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	return config.LoadFromDir(".")
}
