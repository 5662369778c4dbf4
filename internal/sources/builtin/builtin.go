// Package builtin registers every source kind shipped with the server.
package builtin

import (
	"github.com/usgs/vdx/internal/source"
	"github.com/usgs/vdx/internal/sources/csvfile"
	"github.com/usgs/vdx/internal/sources/ratio"
	"github.com/usgs/vdx/internal/sources/sqlts"
)

func Register(f *source.Factories) error {
	if err := sqlts.Register(f); err != nil {
		return err
	}
	if err := f.Register(csvfile.Kind, csvfile.Factory); err != nil {
		return err
	}
	return f.Register(ratio.Kind, ratio.Factory)
}

// Factories returns a fresh set holding every built-in kind.
func Factories() *source.Factories {
	f := source.NewFactories()
	if err := Register(f); err != nil {
		panic(err)
	}
	return f
}
