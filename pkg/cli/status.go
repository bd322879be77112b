package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bizflow-runner/pkg/config"
	"github.com/devicelab-dev/bizflow-runner/pkg/core"
	"github.com/devicelab-dev/bizflow-runner/pkg/state"
)

var statusCommand = &cli.Command{
	Name:  "status",
	Usage: "Show the persisted flow state",
	Description: `Print the last recorded flow state. Exits 1 when the recorded status
is failed, so CI can gate on it after a crashed run.`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "state-file",
			Usage: "Flow state file (default: .github/tmp/full-flow-state.json)",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Print the raw state record",
		},
	},
	Action: showStatus,
}

func showStatus(c *cli.Context) error {
	ws, err := loadWorkspace(c, "")
	if err != nil {
		return err
	}
	path := ws.settings.StatePath
	if v := c.String("state-file"); v != "" {
		path = config.ResolvePath(ws.settings.Root, v)
	}

	st, err := state.NewStore(path).Read()
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no flow state at %s", path)
	}
	if err != nil {
		return err
	}

	out := c.App.Writer
	if c.Bool("json") {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	} else {
		printState(out, st)
	}

	if st.Status == core.StatusFailed {
		return errFlowFailed
	}
	return nil
}

func printState(w io.Writer, st *state.FlowState) {
	statusColor := color(colorCyan)
	switch st.Status {
	case core.StatusPassed:
		statusColor = color(colorGreen)
	case core.StatusFailed:
		statusColor = color(colorRed)
	}

	fmt.Fprintf(w, "  Status:    %s%s%s\n", statusColor, st.Status, color(colorReset))
	fmt.Fprintf(w, "  Step:      %s\n", st.Step)
	if st.MaxAttempts > 0 {
		fmt.Fprintf(w, "  Attempt:   %d/%d\n", st.Attempt, st.MaxAttempts)
	}
	if st.Command != "" {
		fmt.Fprintf(w, "  Command:   %s\n", st.Command)
	}
	if st.Reason != "" {
		fmt.Fprintf(w, "  Reason:    %s\n", st.Reason)
	}
	if st.PONumber != "" {
		fmt.Fprintf(w, "  PO number: %s\n", st.PONumber)
	}
	if st.RunID != "" {
		fmt.Fprintf(w, "  Run ID:    %s\n", st.RunID)
	}
	fmt.Fprintf(w, "  Updated:   %s (%s ago)\n",
		st.Timestamp.Local().Format(time.RFC3339), formatDuration(time.Since(st.Timestamp).Round(time.Second)))
}
