package sqlts

import (
	"regexp"
	"sort"
)

// KindGeneric takes its value columns from the descriptor config.
const KindGeneric = "generic"

// layouts lists the value columns of each dataset kind. The time column
// "t" always comes first and is not repeated here.
var layouts = map[string][]string{
	"tilt":        {"east", "north", "holetemp", "boxtemp", "instvolt"},
	"strain":      {"dt01", "dt02", "barometer"},
	"gps":         {"x", "y", "z"},
	"rsam":        {"rsam"},
	"hypocenters": {"lat", "lon", "depth", "prefmag"},
	"lightning":   {"lat", "lon", "stationsdetected", "residual"},
	"thermal":     {"temperature"},
	"rainfall":    {"rain"},
	"voltage":     {"voltage"},
}

// Kinds returns every kind served by this package, generic included.
func Kinds() []string {
	out := make([]string, 0, len(layouts)+1)
	for k := range layouts {
		out = append(out, k)
	}
	out = append(out, KindGeneric)
	sort.Strings(out)
	return out
}

// Columns returns the full column list (time first) of a fixed kind.
func Columns(kind string) ([]string, bool) {
	cols, ok := layouts[kind]
	if !ok {
		return nil, false
	}
	return append([]string{timeColumn}, cols...), true
}

const timeColumn = "t"

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	tablePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

func validIdent(s string) bool { return identPattern.MatchString(s) }

// validTable accepts an identifier with an optional schema qualifier.
func validTable(s string) bool { return tablePattern.MatchString(s) }
