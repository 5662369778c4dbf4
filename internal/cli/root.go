package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"

	"github.com/usgs/vdx/internal"
	"github.com/usgs/vdx/internal/logging"
)

// Represents the root command for the vdxd daemon.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Only log warnings and errors."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Serve VDX requests."`
	Check   CheckCmd   `cmd:"" help:"Validate a configuration file."`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("The VDX data server.\n\nAnswers time-series requests over a line-framed TCP protocol."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Flags override the level chosen from the environment.
func configureLogger() {
	logging.ConfigureRuntime()
	switch {
	case RootCmd.Debug:
		logging.SetLevel(zerolog.DebugLevel)
	case RootCmd.Quiet:
		logging.SetLevel(zerolog.WarnLevel)
	}
}
