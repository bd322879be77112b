package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bizflow-runner/pkg/config"
	"github.com/devicelab-dev/bizflow-runner/pkg/device"
	"github.com/devicelab-dev/bizflow-runner/pkg/executor"
	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
	"github.com/devicelab-dev/bizflow-runner/pkg/logger"
	"github.com/devicelab-dev/bizflow-runner/pkg/metrics"
	"github.com/devicelab-dev/bizflow-runner/pkg/report"
	"github.com/devicelab-dev/bizflow-runner/pkg/runtimedata"
	"github.com/devicelab-dev/bizflow-runner/pkg/state"
	"github.com/devicelab-dev/bizflow-runner/pkg/validator"
)

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "Run the full purchase-order flow",
	Description: `Run every step of the business flow in order and stop at the first
failure. Exit status is 0 only if every step passed.

Outputs (under --output, default reports/flow):
  - bizflow.log        run log
  - report.json        step results
  - allure-results/    Allure results (unless --no-allure)

Examples:
  bizflow run
  bizflow run --device-mode real
  bizflow run --propagation-wait 2m --metrics-file /var/lib/node_exporter/bizflow.prom`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "state-file",
			Usage: "Flow state file (default: .github/tmp/full-flow-state.json)",
		},
		&cli.StringFlag{
			Name:  "runtime-file",
			Usage: "Runtime data file shared by the steps",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for log and reports",
		},
		&cli.StringFlag{
			Name:  "device-mode",
			Usage: "Mobile target: emulator or real (default: from DEVICE)",
		},
		&cli.DurationFlag{
			Name:  "propagation-wait",
			Usage: "Wait before Goods Receipt for the approved PO to reach mobile",
		},
		&cli.BoolFlag{
			Name:  "no-wait",
			Usage: "Skip all fixed waits (propagation and retry delays)",
		},
		&cli.StringFlag{
			Name:  "metrics-file",
			Usage: "Write Prometheus metrics to this textfile",
		},
		&cli.BoolFlag{
			Name:  "no-allure",
			Usage: "Do not write allure-results",
		},
		&cli.BoolFlag{
			Name:  "log-output",
			Usage: "Also copy step command output into bizflow.log",
		},
		&cli.BoolFlag{
			Name:  "check-device",
			Usage: "Verify the Android device is connected before starting",
		},
	},
	Action: runFlow,
}

func runFlow(c *cli.Context) error {
	ws, err := loadWorkspace(c, c.String("device-mode"))
	if err != nil {
		return err
	}
	s := &ws.settings
	if v := c.String("state-file"); v != "" {
		s.StatePath = config.ResolvePath(s.Root, v)
	}
	if v := c.String("runtime-file"); v != "" {
		s.RuntimePath = config.ResolvePath(s.Root, v)
	}
	if v := c.String("output"); v != "" {
		s.OutputDir = config.ResolvePath(s.Root, v)
	}

	if err := logger.Init(filepath.Join(s.OutputDir, logger.FileName)); err != nil {
		return err
	}
	defer logger.Close()
	logger.SetVerbose(lookupBool(c, "verbose"))

	steps, err := buildSteps(ws, c)
	if err != nil {
		return err
	}
	if err := validator.Validate(s.Root, steps).Err(); err != nil {
		return err
	}

	out := c.App.Writer
	printBanner(out, *s, steps)

	if (c.Bool("check-device") || s.DevicePreflight) && flow.HasPlatform(steps, flow.PlatformMobile) {
		if err := checkDevice(*s); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s✓%s Device %s connected\n", color(colorGreen), color(colorReset), s.Device.UDID)
	}

	env := report.Environment{
		Platform:      "Android",
		Device:        s.Device.Name,
		ExecutionMode: executionMode(s.Device.Mode),
		CI:            s.CI,
	}

	observers := []executor.Observer{&consoleObserver{w: out}}
	var recorder *metrics.Recorder
	if c.String("metrics-file") != "" {
		recorder = metrics.NewRecorder()
		observers = append(observers, recorder)
	}
	if !c.Bool("no-allure") {
		observers = append(observers, report.NewAllureWriter(s.OutputDir, env))
	}

	shell := executor.NewShellExecutor(s.Root, s.ChildEnv())
	if c.Bool("log-output") {
		shell.Stdout = io.MultiWriter(shell.Stdout, logger.GetWriter())
		shell.Stderr = io.MultiWriter(shell.Stderr, logger.GetWriter())
	}

	orch := executor.New(
		shell,
		state.NewStore(s.StatePath),
		executor.Config{
			Runtime:   runtimedata.NewStore(s.RuntimePath),
			Observers: observers,
		},
	)
	logger.Info("run %s: workspace %s, state %s", orch.RunID(), s.Root, s.StatePath)

	result, runErr := orch.Run(steps)
	printSummary(out, result)

	if err := report.WriteSummary(s.OutputDir, report.BuildSummary(result, env)); err != nil {
		logger.Warn("summary not written: %v", err)
	}
	if recorder != nil {
		if err := recorder.WriteTextfile(c.String("metrics-file")); err != nil {
			logger.Warn("metrics not written: %v", err)
			fmt.Fprintf(c.App.ErrWriter, "Warning: metrics not written: %v\n", err)
		}
	}

	return runErr
}

// buildSteps applies config overrides and run flags, then expands the
// command expressions.
func buildSteps(ws *workspace, c *cli.Context) ([]flow.Step, error) {
	steps, err := flow.Build(ws.config)
	if err != nil {
		return nil, err
	}

	if c.IsSet("propagation-wait") {
		for i := range steps {
			if steps[i].ID == flow.StepGoodsReceipt {
				steps[i].WaitBefore = c.Duration("propagation-wait")
			}
		}
	}
	if c.Bool("no-wait") {
		steps = withoutWaits(steps)
	}

	return flow.Expand(steps, ws.settings), nil
}

func withoutWaits(steps []flow.Step) []flow.Step {
	out := make([]flow.Step, len(steps))
	for i, s := range steps {
		s.WaitBefore = 0
		if s.Retry != nil {
			r := *s.Retry
			r.Delay = 0
			s.Retry = &r
		}
		out[i] = s
	}
	return out
}

func checkDevice(s config.Settings) error {
	adb, err := device.FindADB(s.Env["ANDROID_HOME"])
	if err != nil {
		return err
	}
	start := time.Now()
	e, err := adb.CheckConnected(s.Device.UDID)
	if err != nil {
		return err
	}
	logger.Info("device %s (%s) ready, checked in %s", e.Serial, e.State, time.Since(start).Round(time.Millisecond))
	return nil
}
