package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Template returns an example configuration in the given format.
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config format: %s", format)
	}
}

// WriteTemplate writes the example for path's extension. An existing file
// is kept unless overwrite is set.
func WriteTemplate(path string, overwrite bool) error {
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `name = "vdx"
listen = ":16050"
admin_listen = ":16051"
write_timeout = "30s"
shutdown_timeout = "10s"
max_line_bytes = 65536
cors_origins = ["http://localhost:3000"]

[[sources]]
name = "hvo_tilt"
kind = "tilt"
description = "HVO borehole tiltmeters"
[sources.params]
dsn = "postgres://vdx@localhost/vdx?sslmode=disable"
maxrows = 100000

[[sources]]
name = "hvo_tilt_ratio"
kind = "ratio"
description = "Tilt channel ratios"
[sources.params]
source = "hvo_tilt"

[[sources]]
name = "fixture"
kind = "csv"
description = "Offline fixture series"
[sources.params]
path = "/var/lib/vdx/fixture.csv"
`

const yamlTemplate = `name: vdx
listen: ":16050"
admin_listen: ":16051"
write_timeout: 30s
shutdown_timeout: 10s
max_line_bytes: 65536
cors_origins:
  - http://localhost:3000
sources:
  - name: hvo_tilt
    kind: tilt
    description: HVO borehole tiltmeters
    params:
      dsn: postgres://vdx@localhost/vdx?sslmode=disable
      maxrows: 100000
  - name: fixture
    kind: csv
    description: Offline fixture series
    params:
      path: /var/lib/vdx/fixture.csv
`
