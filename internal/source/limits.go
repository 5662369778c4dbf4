package source

import (
	"fmt"
	"strconv"
	"strings"
)

// Request parameter names shared by the dispatcher and sources.
const (
	ParamSource             = "source"
	ParamSourceAlt          = "channel"
	ParamMaxRows            = "maxrows"
	ParamDownsample         = "downsample"
	ParamDownsampleAlt      = "ds"
	ParamDownsampleInterval = "downsampleinterval"
	ParamDownsampleIntAlt   = "dsint"
	ParamAction             = "action"
	ParamChannel            = "ch"
	ParamStart              = "st"
	ParamEnd                = "et"
)

// RowCap is the effective row limit for one request: the source limit,
// lowered by a client maxrows. Zero means unlimited.
func RowCap(sourceMax int, params map[string]string) (int, error) {
	raw := strings.TrimSpace(params[ParamMaxRows])
	if raw == "" {
		return sourceMax, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s=%q must be a positive integer", ErrInvalidParameter, ParamMaxRows, raw)
	}
	if sourceMax == 0 || n < sourceMax {
		return n, nil
	}
	return sourceMax, nil
}

// Downsampled reports whether the request asked for a reducing policy.
func Downsampled(params map[string]string) bool {
	for _, k := range []string{ParamDownsample, ParamDownsampleAlt} {
		v := strings.ToLower(strings.TrimSpace(params[k]))
		if v != "" {
			return v != "none"
		}
	}
	return false
}
