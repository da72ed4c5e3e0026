package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/devicelab-dev/rpa-runner/pkg/core"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold in milliseconds (5 seconds)
const slowThresholdMs = 5000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// console serializes output from concurrent environment runs.
type console struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func newConsole(w io.Writer, verbose bool) *console {
	return &console{w: w, verbose: verbose}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) header(taskID, flowName string, mode string, envs int) {
	c.printf("\n  %s%s%s  %s(%s, %d environments, task %s)%s\n",
		color(colorBold), flowName, color(colorReset),
		color(colorGray), mode, envs, taskID, color(colorReset))
	c.printf("%s\n", strings.Repeat("─", 60))
}

// step prints one step line in verbose mode.
func (c *console) step(envID string, desc string, res core.StepResult) {
	if !c.verbose {
		return
	}
	ms := res.Duration.Milliseconds()
	if res.OK {
		symbol, symbolColor, durColor := "✓", color(colorGreen), ""
		if ms >= slowThresholdMs {
			symbol, symbolColor, durColor = "⚠", color(colorYellow), color(colorYellow)
		}
		c.printf("    %s%s%s %s[%s]%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), color(colorGray), envID, color(colorReset),
			desc, durColor, formatDuration(ms), color(colorReset))
		return
	}
	c.printf("    %s✗%s %s[%s]%s %s (%s)\n",
		color(colorRed), color(colorReset), color(colorGray), envID, color(colorReset), desc, formatDuration(ms))
	if res.Error != nil {
		c.printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), res.Error.Error())
	}
}

// progress prints a finished environment with the task percentage.
func (c *console) progress(percent int, res core.RunResult) {
	if res.Success {
		c.printf("  %s[%3d%%]%s %s✓%s %s %s%s%s\n",
			color(colorCyan), percent, color(colorReset),
			color(colorGreen), color(colorReset), res.EnvironmentID,
			color(colorGray), formatDuration(res.DurationMs), color(colorReset))
		return
	}
	c.printf("  %s[%3d%%]%s %s✗%s %s %s%s%s\n",
		color(colorCyan), percent, color(colorReset),
		color(colorRed), color(colorReset), res.EnvironmentID,
		color(colorGray), formatDuration(res.DurationMs), color(colorReset))
	if res.Error != nil {
		c.printf("         %s╰─%s %s\n", color(colorGray), color(colorReset), res.Error.Error())
	}
}

// summary prints the per-environment table for a finished task.
func (c *console) summary(task core.BatchTask, reportPath string) {
	order := task.Order
	if len(order) == 0 {
		order = append([]string(nil), task.Environments...)
		sort.Strings(order)
	}

	var b strings.Builder
	tableWidth := 80
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, strings.Repeat("═", tableWidth))
	fmt.Fprintf(&b, "  %-36s %8s %7s %6s %10s\n", "Environment", "Status", "Steps", "Fail", "Duration")
	fmt.Fprintln(&b, strings.Repeat("─", tableWidth))

	for _, id := range order {
		res, ok := task.Results[id]
		status, statusColor := "- SKIP", color(colorCyan)
		switch {
		case !ok:
		case res.Success:
			status, statusColor = "✓ PASS", color(colorGreen)
		default:
			status, statusColor = "✗ FAIL", color(colorRed)
		}

		name := id
		if len(name) > 36 {
			name = name[:33] + "..."
		}
		fmt.Fprintf(&b, "  %-36s %s%8s%s %3d/%-3d %6d %10s\n",
			name, statusColor, status, color(colorReset),
			res.StepsCompleted, res.StepsTotal, res.StepsFailed, formatDuration(res.DurationMs))
	}

	fmt.Fprintln(&b, strings.Repeat("─", tableWidth))
	statusColor := color(colorGreen)
	if task.FailedCount > 0 || task.Status != core.TaskCompleted {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(&b, "  %s%-36s%s %s%8s%s %d passed, %d failed\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, task.Status, color(colorReset),
		task.SuccessCount, task.FailedCount)
	fmt.Fprintln(&b, strings.Repeat("═", tableWidth))
	if reportPath != "" {
		fmt.Fprintf(&b, "  Report: %s\n", reportPath)
	}

	c.printf("%s", b.String())
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
