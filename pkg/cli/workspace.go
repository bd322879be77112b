package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/bizflow-runner/pkg/config"
)

// workspace is the configuration shared by all commands.
type workspace struct {
	config   *config.Config
	settings config.Settings
}

// loadWorkspace resolves the workspace root, reads bizflow.yaml and resolves
// settings once from the config, dotenv file and process environment.
func loadWorkspace(c *cli.Context, deviceMode string) (*workspace, error) {
	root := lookupString(c, "workdir")
	if root == "" {
		root = config.GetHome()
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workdir: %w", err)
	}

	var cfg *config.Config
	if path := lookupString(c, "config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromDir(root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	settings, err := config.Resolve(cfg, config.ResolveOptions{
		Root:       root,
		DeviceMode: deviceMode,
		Environ:    config.EnvironMap(os.Environ()),
	})
	if err != nil {
		return nil, err
	}

	return &workspace{config: cfg, settings: settings}, nil
}

// lookupString returns a flag from the nearest context that set it. Global
// flags live in the parent context when a subcommand runs.
func lookupString(c *cli.Context, name string) string {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet(name) {
			return ctx.String(name)
		}
	}
	return c.String(name)
}

func lookupBool(c *cli.Context, name string) bool {
	for _, ctx := range c.Lineage() {
		if ctx.IsSet(name) {
			return ctx.Bool(name)
		}
	}
	return c.Bool(name)
}
