package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/rpa-runner/pkg/config"
	"github.com/devicelab-dev/rpa-runner/pkg/core"
	"github.com/devicelab-dev/rpa-runner/pkg/driver/cdp"
	"github.com/devicelab-dev/rpa-runner/pkg/driver/mock"
	"github.com/devicelab-dev/rpa-runner/pkg/executor"
	"github.com/devicelab-dev/rpa-runner/pkg/flow"
	"github.com/devicelab-dev/rpa-runner/pkg/interpreter"
	"github.com/devicelab-dev/rpa-runner/pkg/logger"
	"github.com/devicelab-dev/rpa-runner/pkg/metrics"
	"github.com/devicelab-dev/rpa-runner/pkg/report"
	"github.com/devicelab-dev/rpa-runner/pkg/validator"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run a flow across browser environments",
	Description: `Run one flow on every listed environment and write batch-<taskId>.json
to the output directory.

The first interrupt stops dispatching new environments and lets running ones
finish; a second interrupt aborts them.

Examples:
  rpa-runner run --flow login.yaml --envs k1,k2
  rpa-runner run --flow login.yaml --envs-file profiles.txt --mode random
  rpa-runner run --flow login.yaml --envs-file profiles.txt --mode parallel --parallel 5 --priority
  rpa-runner run --flow login.yaml --envs a,b --driver mock -e BASE=https://staging.test`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "flow",
			Aliases:  []string{"f"},
			Usage:    "Flow file (YAML or JSON)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "envs",
			Usage: "Comma-separated environment (profile) IDs",
		},
		&cli.StringFlag{
			Name:  "envs-file",
			Usage: "File with one environment ID per line",
		},
		&cli.StringFlag{
			Name:    "mode",
			Usage:   "Execution mode (sequential, random, parallel)",
			Value:   string(executor.ModeSequential),
			EnvVars: []string{"RPA_MODE"},
		},
		&cli.IntFlag{
			Name:    "parallel",
			Aliases: []string{"p"},
			Usage:   "Maximum concurrent environments in parallel mode",
			Value:   1,
		},
		&cli.BoolFlag{
			Name:  "priority",
			Usage: "Admit this task's runs ahead of other queued work",
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Task name (default: flow name)",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Flow variables (KEY=VALUE), override config and flow file",
		},
		&cli.StringFlag{
			Name:    "driver",
			Aliases: []string{"d"},
			Usage:   "Browser driver (cdp, mock)",
			Value:   "cdp",
			EnvVars: []string{"RPA_DRIVER"},
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Report directory (default: <home>/reports)",
		},
		&cli.BoolFlag{
			Name:  "html",
			Usage: "Also render the report as HTML next to the JSON file",
		},
		&cli.IntFlag{
			Name:    "workers",
			Usage:   "Global cap on concurrent environment runs (default: 2x CPUs)",
			EnvVars: []string{"RPA_WORKERS"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "Serve Prometheus metrics on this address (e.g. :9464)",
			EnvVars: []string{"RPA_METRICS_LISTEN"},
		},

		// Profile API
		&cli.StringFlag{
			Name:    "profile-api-url",
			Usage:   "Browser profile manager base URL",
			EnvVars: []string{"RPA_PROFILE_API_URL"},
		},
		&cli.StringFlag{
			Name:    "profile-api-key",
			Usage:   "Browser profile manager API key",
			EnvVars: []string{"RPA_PROFILE_API_KEY"},
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Start browsers headless",
		},
	},
	Action: runBatch,
}

// RunConfig holds the resolved settings of one run invocation.
type RunConfig struct {
	FlowPath     string
	Environments []string
	Mode         executor.ExecutionMode
	Parallel     int
	Priority     bool
	Name         string
	Variables    map[string]string

	Driver        string
	OutputDir     string
	HTML          bool
	Workers       int
	MetricsListen string
	Verbose       bool

	Timeouts   config.Timeouts
	ProfileAPI config.ProfileAPI
	LogFile    string
	LogLevel   string

	// Stdout receives progress output; nil means os.Stdout
	Stdout io.Writer
}

func runBatch(c *cli.Context) error {
	wsCfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	envs, err := parseEnvironments(c.String("envs"), c.String("envs-file"))
	if err != nil {
		return err
	}
	mode, err := executor.ParseMode(c.String("mode"))
	if err != nil {
		return err
	}

	cfg := &RunConfig{
		FlowPath:      c.String("flow"),
		Environments:  envs,
		Mode:          mode,
		Parallel:      c.Int("parallel"),
		Priority:      c.Bool("priority"),
		Name:          c.String("name"),
		Variables:     parseEnvVars(c.StringSlice("env")),
		Driver:        c.String("driver"),
		OutputDir:     wsCfg.OutputDir(),
		HTML:          c.Bool("html"),
		Workers:       wsCfg.Workers,
		MetricsListen: wsCfg.Metrics.Listen,
		Verbose:       c.Bool("verbose"),
		Timeouts:      wsCfg.Timeouts,
		ProfileAPI:    wsCfg.ProfileAPI,
		LogFile:       wsCfg.LogFile(),
		LogLevel:      wsCfg.Log.Level,
		Stdout:        c.App.Writer,
	}

	// CLI flags override the workspace config
	if c.IsSet("output") {
		cfg.OutputDir = c.String("output")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("metrics-listen") {
		cfg.MetricsListen = c.String("metrics-listen")
	}
	if c.IsSet("log-file") {
		cfg.LogFile = c.String("log-file")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("profile-api-url") {
		cfg.ProfileAPI.BaseURL = c.String("profile-api-url")
	}
	if c.IsSet("profile-api-key") {
		cfg.ProfileAPI.APIKey = c.String("profile-api-key")
	}
	if c.IsSet("headless") {
		cfg.ProfileAPI.Headless = c.Bool("headless")
	}

	f, err := flow.ParseFile(cfg.FlowPath)
	if err != nil {
		return err
	}
	f.Variables = mergeVariables(wsCfg.Env, f.Variables, cfg.Variables)

	task, err := executeRun(c.Context, cfg, f)
	if err != nil {
		return err
	}
	if task.Status != core.TaskCompleted || task.FailedCount > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

// newProvider builds the session provider for the selected driver. The
// returned cleanup releases anything still attached.
func newProvider(cfg *RunConfig) (core.SessionProvider, func(), error) {
	switch cfg.Driver {
	case "mock":
		return mock.New(mock.Config{}), func() {}, nil
	case "cdp", "":
		p := cdp.NewProvider(cdp.Config{
			BaseURL:   cfg.ProfileAPI.BaseURL,
			StartPath: cfg.ProfileAPI.StartPath,
			StopPath:  cfg.ProfileAPI.StopPath,
			APIKey:    cfg.ProfileAPI.APIKey,
			Timeout:   cfg.ProfileAPI.Timeout,
			Headless:  cfg.ProfileAPI.Headless,
		})
		return p, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			p.Close(ctx)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown driver %q (use cdp or mock)", cfg.Driver)
	}
}

// serveMetrics exposes reg on addr until the returned stop is called.
func serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server: %v", err)
		}
	}()
	logger.Info("Serving metrics on %s/metrics", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// executeRun submits f as one batch task and blocks until it finishes.
func executeRun(parent context.Context, cfg *RunConfig, f *flow.Flow) (core.BatchTask, error) {
	if parent == nil {
		parent = context.Background()
	}
	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return core.BatchTask{}, fmt.Errorf("create log dir: %w", err)
	}
	if err := logger.Init(cfg.LogFile, cfg.LogLevel); err != nil {
		return core.BatchTask{}, err
	}
	defer logger.Close()

	logger.Info("=== Batch execution started ===")
	logger.Info("Flow: %s", cfg.FlowPath)
	logger.Info("Driver: %s", cfg.Driver)

	for _, finding := range validator.New().Lint(f) {
		logger.Warn("lint: %s", finding)
		fmt.Fprintf(out, "  %swarning:%s %s\n", color(colorYellow), color(colorReset), finding)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector("rpa_runner", reg)
	if cfg.MetricsListen != "" {
		stop := serveMetrics(cfg.MetricsListen, reg)
		defer stop()
	}

	provider, cleanup, err := newProvider(cfg)
	if err != nil {
		return core.BatchTask{}, err
	}
	defer cleanup()

	con := newConsole(out, cfg.Verbose)
	var writer *report.Writer

	interp := interpreter.New(interpreter.Config{
		NavigationTimeout: cfg.Timeouts.Navigation,
		ElementTimeout:    cfg.Timeouts.Element,
		Metrics:           collector,
	})
	runner := executor.NewFlowRunner(interp, provider, executor.RunnerConfig{
		Metrics: collector,
		OnFlowStart: func(envID, _ string) {
			writer.Running(envID)
		},
		OnStepComplete: func(envID string, _ int, desc string, res core.StepResult) {
			con.step(envID, desc, res)
		},
	})
	sched := executor.NewScheduler(runner, executor.NewRegistry(), executor.SchedulerConfig{
		MaxWorkers: cfg.Workers,
		Metrics:    collector,
	})

	name := cfg.Name
	if name == "" {
		name = f.Name
	}
	if name == "" {
		name = filepath.Base(cfg.FlowPath)
	}

	taskID, err := sched.Submit(executor.BatchRequest{
		Name:           name,
		EnvironmentIDs: cfg.Environments,
		Flow:           f,
		Mode:           cfg.Mode,
		MaxParallel:    cfg.Parallel,
		Priority:       cfg.Priority,
	})
	if err != nil {
		return core.BatchTask{}, err
	}

	queued, _ := sched.GetStatus(taskID)
	writer, err = report.NewWriter(cfg.OutputDir, queued, name)
	if err != nil {
		return core.BatchTask{}, err
	}
	writer.Start()
	con.header(taskID, name, string(cfg.Mode), len(cfg.Environments))

	ctx, abort := context.WithCancel(parent)
	defer abort()

	done := make(chan struct{})
	defer close(done)
	watchSignals(done, func() {
		con.printf("\n  %sInterrupt: finishing running environments (press again to abort)%s\n", color(colorYellow), color(colorReset))
		logger.Info("Interrupt received, cancelling task %s", taskID)
		sched.Cancel(taskID)
	}, func() {
		logger.Info("Second interrupt, aborting task %s", taskID)
		abort()
	})

	started := sched.Start(ctx, taskID,
		func(id string, percent int, envID string) {
			snap, ok := sched.GetStatus(id)
			if !ok {
				return
			}
			res := snap.Results[envID]
			writer.Record(res)
			con.progress(percent, res)
		},
		nil,
	)
	if !started {
		return core.BatchTask{}, fmt.Errorf("task %s could not be started", taskID)
	}

	task, err := sched.Wait(parent, taskID)
	if err != nil {
		return core.BatchTask{}, err
	}
	reportPath := writer.Path()
	if err := writer.End(task); err != nil {
		logger.Error("Failed to write report: %v", err)
	} else if cfg.HTML {
		htmlPath, err := report.GenerateHTML(reportPath, report.HTMLConfig{})
		if err != nil {
			logger.Error("Failed to generate HTML report: %v", err)
		} else {
			reportPath = htmlPath
		}
	}

	logger.Info("Batch finished: %s (%d passed, %d failed)", task.Status, task.SuccessCount, task.FailedCount)
	con.summary(task, reportPath)
	return task, nil
}

// watchSignals calls first on the first interrupt and second on the next.
func watchSignals(done <-chan struct{}, first, second func()) {
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case <-sigCh:
			first()
		case <-done:
			return
		}
		select {
		case <-sigCh:
			second()
		case <-done:
		}
	}()
}
