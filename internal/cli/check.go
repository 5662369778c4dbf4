package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/usgs/vdx/internal/config"
)

// Represents the 'vdxd check' command.
type CheckCmd struct {
	Config string `short:"c" help:"Configuration file (TOML or YAML)." placeholder:"PATH" type:"path"`
	Print  bool   `short:"p" help:"Print the resolved configuration as TOML."`
}

// Executes the check command. Sources are registered but not connected.
func (c *CheckCmd) Run(ctx context.Context) error {
	path := c.Config
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	if c.Print {
		out, err := config.Render(cfg)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}
	fmt.Printf("%s: ok (%d sources)\n", path, registry.Len())
	return nil
}
