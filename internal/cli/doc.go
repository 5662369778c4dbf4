// Parses flags and runs the vdxd subcommands.
//
//	vdxd serve [--config PATH] [--listen ADDR] [--admin ADDR]
//	vdxd check [--config PATH] [--print]
//	vdxd init  [--config PATH] [--force]
//	vdxd version
//
// Global flags:
//
//	-q, --quiet     Only warnings and errors.
//	-d, --debug     Enable debug output.
//
// Without --config the file is read from $XDG_CONFIG_HOME/vdx/vdx.toml.
package cli
