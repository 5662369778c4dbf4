// Package config loads the vdxd server configuration from TOML or YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/usgs/vdx/internal/server"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	DefaultName     = "vdx"
	defaultFileName = "vdx.toml"
)

// Config is the resolved server configuration.
type Config struct {
	Name            string
	Listen          string
	AdminListen     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	MaxLineBytes    int
	CORSOrigins     []string
	Sources         []SourceEntry
}

// SourceEntry is one [[sources]] block.
type SourceEntry struct {
	Name        string
	Kind        string
	Description string
	Params      map[string]string
}

// fileConfig mirrors the on-disk shape. Pointer fields distinguish unset
// keys from zero values.
type fileConfig struct {
	Name            *string     `toml:"name" yaml:"name"`
	Listen          *string     `toml:"listen" yaml:"listen"`
	AdminListen     *string     `toml:"admin_listen" yaml:"admin_listen"`
	ReadTimeout     *string     `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    *string     `toml:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout *string     `toml:"shutdown_timeout" yaml:"shutdown_timeout"`
	MaxLineBytes    *int        `toml:"max_line_bytes" yaml:"max_line_bytes"`
	CORSOrigins     []string    `toml:"cors_origins" yaml:"cors_origins"`
	Sources         []fileEntry `toml:"sources" yaml:"sources"`
}

type fileEntry struct {
	Name        string         `toml:"name" yaml:"name"`
	Kind        string         `toml:"kind" yaml:"kind"`
	Description string         `toml:"description" yaml:"description"`
	Params      map[string]any `toml:"params" yaml:"params"`
}

// Default returns the configuration used for keys the file leaves unset.
func Default() Config {
	def := server.DefaultConfig()
	return Config{
		Name:            DefaultName,
		Listen:          def.Addr,
		ReadTimeout:     def.ReadTimeout,
		WriteTimeout:    def.WriteTimeout,
		ShutdownTimeout: def.ShutdownTimeout,
		MaxLineBytes:    def.MaxLineBytes,
	}
}

// DefaultPath is $XDG_CONFIG_HOME/vdx/vdx.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, DefaultName, defaultFileName)
}

// Load reads path, picking the decoder from its extension, and validates
// the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var raw fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = decodeYAML(data, &raw)
	default:
		err = decodeTOML(data, &raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	cfg, err := raw.resolve()
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeTOML(data []byte, out *fileConfig) error {
	meta, err := toml.Decode(string(data), out)
	if err != nil {
		return err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("%w: unknown keys %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}
	return nil
}

func decodeYAML(data []byte, out *fileConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (f fileConfig) resolve() (Config, error) {
	cfg := Default()
	if f.Name != nil {
		cfg.Name = strings.TrimSpace(*f.Name)
	}
	if f.Listen != nil {
		cfg.Listen = strings.TrimSpace(*f.Listen)
	}
	if f.AdminListen != nil {
		cfg.AdminListen = strings.TrimSpace(*f.AdminListen)
	}
	durations := []struct {
		key string
		raw *string
		dst *time.Duration
	}{
		{"read_timeout", f.ReadTimeout, &cfg.ReadTimeout},
		{"write_timeout", f.WriteTimeout, &cfg.WriteTimeout},
		{"shutdown_timeout", f.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(*d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, d.key, err)
		}
		*d.dst = v
	}
	if f.MaxLineBytes != nil {
		cfg.MaxLineBytes = *f.MaxLineBytes
	}
	cfg.CORSOrigins = normalizeList(f.CORSOrigins)
	for _, e := range f.Sources {
		cfg.Sources = append(cfg.Sources, SourceEntry{
			Name:        strings.TrimSpace(e.Name),
			Kind:        strings.TrimSpace(e.Kind),
			Description: strings.TrimSpace(e.Description),
			Params:      normalizeParams(e.Params),
		})
	}
	return cfg, nil
}

// normalizeParams stringifies scalar values so `maxrows = 1000` and
// `maxrows = "1000"` mean the same thing.
func normalizeParams(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case []any:
			parts := make([]string, 0, len(tv))
			for _, p := range tv {
				parts = append(parts, fmt.Sprint(p))
			}
			out[k] = strings.Join(parts, ",")
		default:
			out[k] = fmt.Sprint(tv)
		}
	}
	return out
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Validate reports the first invalid field.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("%w: missing listen", ErrInvalidConfig)
	}
	if cfg.ReadTimeout < 0 || cfg.WriteTimeout < 0 || cfg.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	if cfg.MaxLineBytes <= 0 {
		return fmt.Errorf("%w: max_line_bytes must be positive", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(cfg.Sources))
	for i, entry := range cfg.Sources {
		if err := entry.Descriptor().Validate(); err != nil {
			return fmt.Errorf("%w: sources[%d]: %w", ErrInvalidConfig, i, err)
		}
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("%w: sources[%d]: duplicate name %q", ErrInvalidConfig, i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	return nil
}

// Server returns the listener settings.
func (c Config) Server() server.Config {
	return server.Config{
		Addr:            c.Listen,
		AdminAddr:       c.AdminListen,
		ReadTimeout:     c.ReadTimeout,
		WriteTimeout:    c.WriteTimeout,
		ShutdownTimeout: c.ShutdownTimeout,
		MaxLineBytes:    c.MaxLineBytes,
		CORSOrigins:     append([]string(nil), c.CORSOrigins...),
	}
}

// SourceNames returns the configured source names in sorted order.
func (c Config) SourceNames() []string {
	out := make([]string, 0, len(c.Sources))
	for _, e := range c.Sources {
		out = append(out, e.Name)
	}
	sort.Strings(out)
	return out
}
