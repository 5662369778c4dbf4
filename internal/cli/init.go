package cli

import (
	"context"
	"fmt"

	"github.com/usgs/vdx/internal/config"
)

// Represents the 'vdxd init' command.
type InitCmd struct {
	Config string `short:"c" help:"Where to write the example (.toml or .yaml)." placeholder:"PATH" type:"path"`
	Force  bool   `short:"f" help:"Overwrite an existing file."`
}

func (c *InitCmd) Run(ctx context.Context) error {
	path := c.Config
	if path == "" {
		path = config.DefaultPath()
	}
	if err := config.WriteTemplate(path, c.Force); err != nil {
		return err
	}
	fmt.Println(path)
	return nil
}
