package source

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// Config is the opaque per-descriptor key/value configuration.
type Config map[string]string

func (c Config) String(key, def string) string {
	if v := strings.TrimSpace(c[key]); v != "" {
		return v
	}
	return def
}

// Required returns the trimmed value or an ErrInvalidDescriptor error.
func (c Config) Required(key string) (string, error) {
	v := strings.TrimSpace(c[key])
	if v == "" {
		return "", fmt.Errorf("%w: missing %q", ErrInvalidDescriptor, key)
	}
	return v, nil
}

// Int parses a non-negative integer, returning def when unset.
func (c Config) Int(key string, def int) (int, error) {
	raw := strings.TrimSpace(c[key])
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s=%q is not a non-negative integer", ErrInvalidDescriptor, key, raw)
	}
	return v, nil
}

// List splits a comma-separated value, dropping empty entries.
func (c Config) List(key string) []string {
	return SplitList(c[key])
}

func (c Config) Clone() Config {
	out := make(Config, len(c))
	maps.Copy(out, c)
	return out
}

// SplitList splits on commas and trims each element.
func SplitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
