package cli

import (
	"encoding/json"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bizflow-runner/pkg/config"
	"github.com/devicelab-dev/bizflow-runner/pkg/runtimedata"
)

func runtimeFileFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "runtime-file",
		Usage: "Runtime data file (default: common/test-data/runtime/runtimeData.json)",
	}
}

var runtimeCommand = &cli.Command{
	Name:  "runtime",
	Usage: "Inspect or reset the runtime data shared between steps",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "Print runtime data, or a single key",
			ArgsUsage: "[key]",
			Flags:     []cli.Flag{runtimeFileFlag()},
			Action:    showRuntime,
		},
		{
			Name:   "clear",
			Usage:  "Delete the runtime data file before a fresh run",
			Flags:  []cli.Flag{runtimeFileFlag()},
			Action: clearRuntime,
		},
	},
}

func runtimeStore(c *cli.Context) (*runtimedata.Store, error) {
	ws, err := loadWorkspace(c, "")
	if err != nil {
		return nil, err
	}
	path := ws.settings.RuntimePath
	if v := c.String("runtime-file"); v != "" {
		path = config.ResolvePath(ws.settings.Root, v)
	}
	return runtimedata.NewStore(path), nil
}

func showRuntime(c *cli.Context) error {
	store, err := runtimeStore(c)
	if err != nil {
		return err
	}

	if key := c.Args().First(); key != "" {
		v, err := store.Get(key)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, v)
		return nil
	}

	data, err := store.Load()
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(raw))
	return nil
}

func clearRuntime(c *cli.Context) error {
	store, err := runtimeStore(c)
	if err != nil {
		return err
	}
	if err := store.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Cleared %s\n", store.Path())
	return nil
}
