package config

import (
	"github.com/pelletier/go-toml/v2"
)

type renderedConfig struct {
	Name            string          `toml:"name"`
	Listen          string          `toml:"listen"`
	AdminListen     string          `toml:"admin_listen,omitempty"`
	ReadTimeout     string          `toml:"read_timeout"`
	WriteTimeout    string          `toml:"write_timeout"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	MaxLineBytes    int             `toml:"max_line_bytes"`
	CORSOrigins     []string        `toml:"cors_origins,omitempty"`
	Sources         []renderedEntry `toml:"sources,omitempty"`
}

type renderedEntry struct {
	Name        string            `toml:"name"`
	Kind        string            `toml:"kind"`
	Description string            `toml:"description,omitempty"`
	Params      map[string]string `toml:"params,omitempty"`
}

// Render encodes the resolved configuration, defaults included, as TOML
// that Load accepts.
func Render(cfg Config) ([]byte, error) {
	out := renderedConfig{
		Name:            cfg.Name,
		Listen:          cfg.Listen,
		AdminListen:     cfg.AdminListen,
		ReadTimeout:     cfg.ReadTimeout.String(),
		WriteTimeout:    cfg.WriteTimeout.String(),
		ShutdownTimeout: cfg.ShutdownTimeout.String(),
		MaxLineBytes:    cfg.MaxLineBytes,
		CORSOrigins:     cfg.CORSOrigins,
	}
	for _, e := range cfg.Sources {
		out.Sources = append(out.Sources, renderedEntry(e))
	}
	return toml.Marshal(out)
}
