// Package cli provides the command-line interface for bizflow-runner.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// errFlowFailed signals exit status 1 after the failure was already
// reported on the console.
var errFlowFailed = errors.New("flow failed")

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to workspace bizflow.yaml (default: <workdir>/bizflow.yaml)",
		EnvVars: []string{"BIZFLOW_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "workdir",
		Aliases: []string{"w"},
		Usage:   "Workspace root containing the test suites",
		EnvVars: []string{"BIZFLOW_HOME"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"BIZFLOW_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "bizflow",
		Usage:   "End-to-end business flow runner",
		Version: Version,
		Description: `bizflow runs the purchase-order business flow end to end by chaining
the web (Playwright) and mobile (WebdriverIO) test suites in a fixed order:

  Create PO -> Approve PO -> Goods Receipt -> RM Quality Check -> Bill Passing

Progress is recorded in a state file after every transition so a crashed
or failed run can be inspected with 'bizflow status'.

Examples:
  bizflow run
  bizflow run --device-mode emulator --check-device
  bizflow --workdir ./e2e run --no-wait
  bizflow status --json`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			statusCommand,
			stepsCommand,
			runtimeCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		if !errors.Is(err, errFlowFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
