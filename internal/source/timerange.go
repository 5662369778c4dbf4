package source

import (
	"fmt"
	"math"
	"strings"

	"github.com/usgs/vdx/internal/j2ksec"
)

// TimeRange is an inclusive j2ksec window. Open ends are ±Inf.
type TimeRange struct {
	Start float64
	End   float64
}

// Bounded reports whether either end of the window is set.
func (r TimeRange) Bounded() bool {
	return !math.IsInf(r.Start, -1) || !math.IsInf(r.End, 1)
}

func (r TimeRange) Contains(t float64) bool {
	return t >= r.Start && t <= r.End
}

// ParseTimeRange reads st and et from request params. Missing values leave
// that end open; st after et is rejected.
func ParseTimeRange(params map[string]string) (TimeRange, error) {
	r := TimeRange{Start: math.Inf(-1), End: math.Inf(1)}
	if raw := strings.TrimSpace(params[ParamStart]); raw != "" {
		v, err := j2ksec.Parse(raw)
		if err != nil {
			return TimeRange{}, fmt.Errorf("%w: %s: %w", ErrInvalidParameter, ParamStart, err)
		}
		r.Start = v
	}
	if raw := strings.TrimSpace(params[ParamEnd]); raw != "" {
		v, err := j2ksec.Parse(raw)
		if err != nil {
			return TimeRange{}, fmt.Errorf("%w: %s: %w", ErrInvalidParameter, ParamEnd, err)
		}
		r.End = v
	}
	if r.Start > r.End {
		return TimeRange{}, fmt.Errorf("%w: %s after %s", ErrInvalidParameter, ParamStart, ParamEnd)
	}
	return r, nil
}
