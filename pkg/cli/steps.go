package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bizflow-runner/pkg/flow"
	"github.com/devicelab-dev/bizflow-runner/pkg/validator"
)

var stepsCommand = &cli.Command{
	Name:  "steps",
	Usage: "List the resolved flow steps without running them",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "device-mode",
			Usage: "Mobile target used for command expansion: emulator or real",
		},
	},
	Action: listSteps,
}

func listSteps(c *cli.Context) error {
	ws, err := loadWorkspace(c, c.String("device-mode"))
	if err != nil {
		return err
	}
	steps, err := flow.Build(ws.config)
	if err != nil {
		return err
	}
	steps = flow.Expand(steps, ws.settings)

	out := c.App.Writer
	for i, s := range steps {
		fmt.Fprintf(out, "\n  %s%d. %s%s %s[%s, %s]%s\n",
			color(colorBold), i+1, s.Name, color(colorReset), color(colorGray), s.ID, s.Platform, color(colorReset))
		var policy []string
		if s.WaitBefore > 0 {
			policy = append(policy, "wait "+formatDuration(s.WaitBefore))
		}
		if s.Retry != nil {
			policy = append(policy, fmt.Sprintf("retry %dx every %s", s.MaxAttempts(), formatDuration(s.Retry.Delay)))
		}
		if len(policy) > 0 {
			fmt.Fprintf(out, "     %s\n", strings.Join(policy, ", "))
		}
		fmt.Fprintf(out, "     %s$ %s%s\n", color(colorGray), s.CommandLine(), color(colorReset))
	}
	fmt.Fprintln(out)

	if result := validator.Validate(ws.settings.Root, steps); !result.IsValid() {
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  %s⚠ %v%s\n", color(colorYellow), e, color(colorReset))
		}
		fmt.Fprintln(out)
	}
	return nil
}
