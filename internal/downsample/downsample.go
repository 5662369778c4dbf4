// Package downsample reduces matrix row counts before transmission.
package downsample

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/usgs/vdx/internal/protocol/matrix"
)

var ErrInvalidPolicy = errors.New("invalid downsampling policy")

type Kind string

const (
	None       Kind = "none"
	Decimate   Kind = "decimate"
	MeanFilter Kind = "mean"
)

// Policy is a downsampling strategy with its row interval.
type Policy struct {
	Kind     Kind
	Interval int
}

// Requested reports whether the policy reduces anything.
func (p Policy) Requested() bool {
	return p.Kind != None && p.Kind != ""
}

func (p Policy) String() string {
	if !p.Requested() {
		return string(None)
	}
	return fmt.Sprintf("%s(%d)", p.Kind, p.Interval)
}

// Parse builds a Policy from request parameter values. An empty kind means
// None; any other kind needs a positive interval.
func Parse(kind, interval string) (Policy, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case "", None:
		return Policy{Kind: None}, nil
	case Decimate, MeanFilter:
	default:
		return Policy{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, kind)
	}
	n, err := strconv.Atoi(strings.TrimSpace(interval))
	if err != nil || n < 1 {
		return Policy{}, fmt.Errorf("%w: interval %q must be a positive integer", ErrInvalidPolicy, interval)
	}
	return Policy{Kind: k, Interval: n}, nil
}

// Apply returns a reduced matrix. The input is never modified.
func (p Policy) Apply(m *matrix.Matrix) (*matrix.Matrix, error) {
	switch p.Kind {
	case "", None:
		return m, nil
	case Decimate:
		if p.Interval < 1 {
			return nil, fmt.Errorf("%w: interval %d", ErrInvalidPolicy, p.Interval)
		}
		return decimate(m, p.Interval)
	case MeanFilter:
		if p.Interval < 1 {
			return nil, fmt.Errorf("%w: interval %d", ErrInvalidPolicy, p.Interval)
		}
		return meanFilter(m, p.Interval)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, p.Kind)
	}
}

// decimate keeps rows 0, k, 2k, ...
func decimate(m *matrix.Matrix, k int) (*matrix.Matrix, error) {
	out, err := matrix.New(m.Columns())
	if err != nil {
		return nil, err
	}
	for i := 0; i < m.Rows(); i += k {
		if err := out.Append(m.Row(i)...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// meanFilter averages consecutive groups of k rows; the last group may be
// short. Column 0 keeps the group's first time.
func meanFilter(m *matrix.Matrix, k int) (*matrix.Matrix, error) {
	cols := m.Columns()
	out, err := matrix.New(cols)
	if err != nil {
		return nil, err
	}
	row := make([]float64, cols)
	for start := 0; start < m.Rows(); start += k {
		end := min(start+k, m.Rows())
		n := float64(end - start)
		row[0] = m.Time(start)
		for j := 1; j < cols; j++ {
			var sum float64
			for i := start; i < end; i++ {
				sum += m.At(i, j)
			}
			row[j] = sum / n
		}
		if err := out.Append(row...); err != nil {
			return nil, err
		}
	}
	return out, nil
}
