package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/devicelab-dev/bizflow-runner/pkg/config"
	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/executor"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
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

// Steps slower than this are flagged in the live output.
const slowThreshold = 10 * time.Minute

const bannerWidth = 64

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

func printBanner(w io.Writer, s config.Settings, steps []flow.Step) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("═", bannerWidth))
	fmt.Fprintf(w, "  %sbizflow %s%s - purchase order E2E flow\n", color(colorBold), Version, color(colorReset))
	fmt.Fprintln(w, strings.Repeat("─", bannerWidth))
	fmt.Fprintf(w, "  Workspace:  %s\n", s.Root)
	fmt.Fprintf(w, "  State file: %s\n", s.StatePath)
	if flow.HasPlatform(steps, flow.PlatformMobile) {
		fmt.Fprintf(w, "  Device:     %s\n", deviceLabel(s.Device))
	}
	fmt.Fprintf(w, "  CI:         %t\n", s.CI)
	fmt.Fprintln(w, strings.Repeat("═", bannerWidth))
}

func deviceLabel(d config.Device) string {
	label := executionMode(d.Mode)
	if d.Name != "" || d.UDID != "" {
		label += fmt.Sprintf(" %s (%s)", d.Name, d.UDID)
	}
	return label
}

func executionMode(m config.DeviceMode) string {
	if m == config.DeviceEmulator {
		return "Emulator"
	}
	return "Real Device"
}

// consoleObserver prints live progress banners for every step.
type consoleObserver struct {
	executor.NopObserver
	w io.Writer
}

func (o *consoleObserver) Waiting(step flow.Step, reason string, d time.Duration) {
	fmt.Fprintf(o.w, "\n  %s⏳ Waiting %s%s %s(%s)%s\n",
		color(colorYellow), formatDuration(d), color(colorReset), color(colorGray), reason, color(colorReset))
}

func (o *consoleObserver) StepStart(step flow.Step, index, total int) {
	fmt.Fprintf(o.w, "\n  %s[%d/%d]%s %s▶ Starting: %s%s\n",
		color(colorCyan), index+1, total, color(colorReset), color(colorBold), step.Name, color(colorReset))
	fmt.Fprintf(o.w, "  %s$ %s%s\n", color(colorGray), step.CommandLine(), color(colorReset))
	fmt.Fprintln(o.w, strings.Repeat("─", bannerWidth))
}

func (o *consoleObserver) AttemptEnd(step flow.Step, a core.Attempt, maxAttempts int) {
	if maxAttempts <= 1 {
		return
	}
	if a.Result.OK {
		fmt.Fprintf(o.w, "    %s✓%s attempt %d/%d passed (%s)\n",
			color(colorGreen), color(colorReset), a.Number, maxAttempts, formatDuration(a.Result.Duration))
		return
	}
	fmt.Fprintf(o.w, "    %s✗%s attempt %d/%d failed (%s)\n",
		color(colorRed), color(colorReset), a.Number, maxAttempts, formatDuration(a.Result.Duration))
	fmt.Fprintf(o.w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), a.Result.Reason)
}

func (o *consoleObserver) StepEnd(step flow.Step, outcome core.StepOutcome) {
	if outcome.Status == core.StatusPassed {
		symbol, symbolColor := "✓", color(colorGreen)
		if outcome.Duration >= slowThreshold || outcome.Flaky {
			symbol, symbolColor = "⚠", color(colorYellow)
		}
		fmt.Fprintf(o.w, "  %s%s Completed: %s%s %s(%s)%s\n",
			symbolColor, symbol, step.Name, color(colorReset), color(colorGray), formatDuration(outcome.Duration), color(colorReset))
		return
	}
	fmt.Fprintf(o.w, "  %s✗ Failed: %s%s %s(%s)%s\n",
		color(colorRed), step.Name, color(colorReset), color(colorGray), formatDuration(outcome.Duration), color(colorReset))
	if outcome.Reason != "" {
		fmt.Fprintf(o.w, "    %s╰─%s %s\n", color(colorGray), color(colorReset), outcome.Reason)
	}
}

func (o *consoleObserver) FlowEnd(result *executor.RunResult) {
	fmt.Fprintln(o.w)
	fmt.Fprintln(o.w, strings.Repeat("═", bannerWidth))
	if result.Status == core.StatusPassed {
		fmt.Fprintf(o.w, "  %s%s✓ FULL BUSINESS FLOW PASSED%s\n", color(colorBold), color(colorGreen), color(colorReset))
	} else {
		fmt.Fprintf(o.w, "  %s%s✗ FLOW FAILED%s", color(colorBold), color(colorRed), color(colorReset))
		if result.FailedStep != "" {
			fmt.Fprintf(o.w, " at %s", result.FailedStep)
		}
		fmt.Fprintln(o.w)
		if result.Err != nil {
			fmt.Fprintf(o.w, "    %s╰─%s %v\n", color(colorGray), color(colorReset), result.Err)
		}
	}
	fmt.Fprintln(o.w, strings.Repeat("═", bannerWidth))
}

func printSummary(w io.Writer, result *executor.RunResult) {
	fmt.Fprintln(w)
	passed := fmt.Sprintf("%d/%d", result.PassedSteps, result.TotalSteps)
	if result.PONumber != "" {
		fmt.Fprintf(w, "  PO number: %s%s%s\n", color(colorBold), result.PONumber, color(colorReset))
	}
	fmt.Fprintf(w, "  Run ID:    %s\n\n", result.RunID)

	tableWidth := 78
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-36s %8s %10s %10s\n", "Step", "Status", "Attempts", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, o := range result.Steps {
		status, statusColor := "✓ PASS", color(colorGreen)
		if o.Status == core.StatusFailed {
			status, statusColor = "✗ FAIL", color(colorRed)
		} else if o.Flaky {
			status, statusColor = "⚠ FLAKY", color(colorYellow)
		}
		fmt.Fprintf(w, "  %-36s %s%8s%s %10s %10s\n",
			truncate(o.Name, 36), statusColor, status, color(colorReset),
			fmt.Sprintf("%d/%d", o.Attempts, o.MaxAttempts), formatDuration(o.Duration))
	}
	for _, s := range result.Skipped {
		fmt.Fprintf(w, "  %-36s %s%8s%s %10s %10s\n",
			truncate(s.Name, 36), color(colorCyan), "- SKIP", color(colorReset), "-", "-")
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusColor := color(colorGreen)
	if result.Status != core.StatusPassed {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(w, "  %s%-36s%s %s%8s%s %10s %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, passed, color(colorReset), "", formatDuration(result.Duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

// formatDuration formats a duration for the console.
// Shows milliseconds below 1s, seconds below 1m, minutes otherwise.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
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
