// Package ratio serves the row-by-row quotient of two channels read from
// another registered source.
package ratio

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/rs/zerolog"

	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/protocol/matrix"
	"github.com/usgs/vdx/internal/source"
)

const Kind = "ratio"

// Source divides channel A by channel B. The underlying source is resolved
// on each Fetch so construction never waits on another registry entry.
type Source struct {
	name     string
	resolver source.Resolver
	logger   zerolog.Logger

	underlying string
	maxRows    int
}

func Factory(deps source.Deps) source.Source {
	return &Source{
		name:     deps.Name,
		resolver: deps.Resolver,
		logger:   observability.Component("ratio").With().Str("source", deps.Name).Logger(),
	}
}

func (s *Source) Kind() string { return Kind }

// MaxRows is the configured maxrows, or the underlying source's limit when
// none is configured.
func (s *Source) MaxRows() int {
	if s.maxRows > 0 || s.resolver == nil || s.underlying == "" {
		return s.maxRows
	}
	under, err := s.resolver.Resolve(s.underlying)
	if err != nil {
		return 0
	}
	if _, nested := under.(*Source); nested {
		return 0
	}
	return under.MaxRows()
}

func (s *Source) Initialize(cfg source.Config) error {
	name, err := cfg.Required("source")
	if err != nil {
		return err
	}
	if name == s.name {
		return fmt.Errorf("%w: %s cannot divide itself", source.ErrInvalidDescriptor, name)
	}
	if s.resolver == nil {
		return fmt.Errorf("%w: no resolver", source.ErrInvalidDescriptor)
	}
	if s.maxRows, err = cfg.Int("maxrows", 0); err != nil {
		return err
	}
	s.underlying = name
	return nil
}

func (s *Source) Fetch(ctx context.Context, params map[string]string) (source.Data, error) {
	pair := source.SplitList(params[source.ParamChannel])
	if len(pair) != 2 {
		return nil, fmt.Errorf("%w: %s must name two channels as A,B", source.ErrInvalidParameter, source.ParamChannel)
	}
	if action := strings.TrimSpace(params[source.ParamAction]); action != "" && action != "data" {
		return nil, fmt.Errorf("%w: %q", source.ErrUnsupportedAction, action)
	}
	under, err := s.resolver.Resolve(s.underlying)
	if err != nil {
		return nil, err
	}
	if _, nested := under.(*Source); nested {
		return nil, fmt.Errorf("%w: %s is itself a ratio", source.ErrInvalidDescriptor, s.underlying)
	}

	limit := 0
	if !source.Downsampled(params) {
		if limit, err = source.RowCap(under.MaxRows(), params); err != nil {
			return nil, err
		}
	}
	num, err := fetchTable(ctx, under, params, pair[0], limit)
	if err != nil {
		return nil, err
	}
	den, err := fetchTable(ctx, under, params, pair[1], limit)
	if err != nil {
		return nil, err
	}
	out, err := Combine(num, den)
	if err != nil {
		return nil, fmt.Errorf("%s/%s: %w", pair[0], pair[1], err)
	}
	s.logger.Debug().Str("numerator", pair[0]).Str("denominator", pair[1]).Int("rows", out.Rows()).Msg("combined")
	return out, nil
}

// fetchTable fetches one channel. A non-zero limit rejects a constituent
// longer than the underlying source allows, since a capped backend may have
// already cut the series short.
func fetchTable(ctx context.Context, src source.Source, params map[string]string, channel string, limit int) (*source.Table, error) {
	p := maps.Clone(params)
	if p == nil {
		p = make(map[string]string, 1)
	}
	p[source.ParamChannel] = channel
	data, err := src.Fetch(ctx, p)
	if err != nil {
		return nil, err
	}
	t, ok := data.(*source.Table)
	if !ok || t == nil || t.Matrix == nil {
		return nil, fmt.Errorf("%w: channel %s is not numeric", source.ErrMismatchedSeries, channel)
	}
	if limit > 0 && t.Rows() > limit {
		return nil, fmt.Errorf("%w: channel %s has %d rows, limit is %d; request downsampling or a smaller range",
			source.ErrRowLimitExceeded, channel, t.Rows(), limit)
	}
	return t, nil
}

// Combine divides every value column of a by the same column of b. Time
// comes from a. Row and column counts must agree.
func Combine(a, b *source.Table) (*source.Table, error) {
	if a.Rows() != b.Rows() {
		return nil, fmt.Errorf("%w: %d rows vs %d", source.ErrMismatchedSeries, a.Rows(), b.Rows())
	}
	if a.Columns() != b.Columns() {
		return nil, fmt.Errorf("%w: %d columns vs %d", source.ErrMismatchedSeries, a.Columns(), b.Columns())
	}
	m, err := matrix.New(a.Columns())
	if err != nil {
		return nil, err
	}
	row := make([]float64, a.Columns())
	for i := 0; i < a.Rows(); i++ {
		row[0] = a.Time(i)
		for j := 1; j < len(row); j++ {
			row[j] = a.At(i, j) / b.At(i, j)
		}
		if err := m.Append(row...); err != nil {
			return nil, err
		}
	}
	return source.NewTable(m, append([]string(nil), a.Names...)), nil
}

func (s *Source) Disconnect() error { return nil }

var _ source.Source = (*Source)(nil)
