package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/usgs/vdx/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("vdxd failed")
		os.Exit(1)
	}
}
