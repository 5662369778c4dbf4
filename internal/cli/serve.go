package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/usgs/vdx/internal"
	"github.com/usgs/vdx/internal/config"
	"github.com/usgs/vdx/internal/dispatch"
	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/server"
	"github.com/usgs/vdx/internal/source"
	"github.com/usgs/vdx/internal/sources/builtin"
)

// Represents the 'vdxd serve' command.
type ServeCmd struct {
	Config string `short:"c" help:"Configuration file (TOML or YAML)." placeholder:"PATH" type:"path"`
	Listen string `short:"l" help:"Override the protocol listen address." placeholder:"ADDR"`
	Admin  string `help:"Override the admin HTTP listen address." placeholder:"ADDR"`
}

// Executes the serve command. Blocks until the context is cancelled.
func (c *ServeCmd) Run(ctx context.Context) error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	if c.Admin != "" {
		cfg.AdminListen = c.Admin
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	logger := observability.Component("vdxd")
	logger.Info().
		Str("name", cfg.Name).
		Str("version", internal.Version()).
		Strs("sources", cfg.SourceNames()).
		Msg("starting")

	d := dispatch.New(registry, dispatch.WithLogger(logger))
	srv := server.New(cfg.Server(), registry, d)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}

// loadConfig reads path, or the default path when empty. A missing default
// file yields the built-in defaults.
func loadConfig(path string) (config.Config, error) {
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, os.ErrNotExist) {
		log.Warn().Str("path", path).Msg("no config file, serving without sources")
		return config.Default(), nil
	}
	return config.Config{}, err
}

func buildRegistry(cfg config.Config) (*source.Registry, error) {
	registry := source.NewRegistry(builtin.Factories(), source.WithConstructHook(func(d source.Descriptor, err error) {
		observability.RecordSourceConstruction(d.Kind, err)
		l := observability.Component("registry").With().Str("source", d.Name).Str("kind", d.Kind).Logger()
		if err != nil {
			l.Warn().Err(err).Msg("source construction failed")
			return
		}
		l.Info().Msg("source constructed")
	}))
	if err := config.RegisterSources(registry, cfg.Sources); err != nil {
		return nil, fmt.Errorf("register sources: %w", err)
	}
	return registry, nil
}
