// Package csvfile serves a time series loaded from a CSV file. Each record
// is "t,v1,v2,..." with t in j2ksec. A leading header record names the
// columns unless the descriptor supplies them.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/protocol/matrix"
	"github.com/usgs/vdx/internal/source"
)

const (
	Kind = "csv"

	ActionData    = "data"
	ActionColumns = "columns"
)

// Source is a read-only source.Source over an in-memory copy of one file.
// It is immutable after Initialize, so Fetch needs no locking.
type Source struct {
	name    string
	logger  zerolog.Logger
	path    string
	maxRows int
	columns []string
	rows    [][]float64
}

func Factory(deps source.Deps) source.Source {
	return &Source{
		name:   deps.Name,
		logger: observability.Component("csvfile").With().Str("source", deps.Name).Logger(),
	}
}

func (s *Source) Kind() string { return Kind }
func (s *Source) MaxRows() int { return s.maxRows }

func (s *Source) Initialize(cfg source.Config) error {
	path, err := cfg.Required("path")
	if err != nil {
		return err
	}
	if s.maxRows, err = cfg.Int("maxrows", 0); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", source.ErrBackingStore, err)
	}
	defer f.Close()

	header, rows, err := load(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", source.ErrBackingStore, path, err)
	}
	columns := cfg.List("columns")
	if len(columns) == 0 {
		columns = header
	}
	width := len(columns)
	if width == 0 && len(rows) > 0 {
		width = len(rows[0])
		columns = defaultColumns(width)
	}
	if width < 1 {
		return fmt.Errorf("%w: %s has no columns", source.ErrInvalidDescriptor, path)
	}
	for i, row := range rows {
		if len(row) != width {
			return fmt.Errorf("%w: %s: record %d has %d fields, want %d", source.ErrInvalidDescriptor, path, i+1, len(row), width)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i][0] < rows[j][0] })

	s.path = path
	s.columns = columns
	s.rows = rows
	s.logger.Info().Str("path", path).Int("rows", len(rows)).Int("columns", width).Msg("loaded")
	return nil
}

// load reads every record. The first record is returned as a header when
// its time field is not numeric.
func load(r io.Reader) ([]string, [][]float64, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var header []string
	var rows [][]float64
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		if line == 1 && !numeric(rec[0]) {
			header = trimAll(rec)
			continue
		}
		row := make([]float64, len(rec))
		for i, field := range rec {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("record %d field %d: %w", line, i+1, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

func numeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(v)
	}
	return out
}

func defaultColumns(n int) []string {
	out := make([]string, n)
	out[0] = "t"
	for i := 1; i < n; i++ {
		out[i] = "v" + strconv.Itoa(i)
	}
	return out
}

func (s *Source) Fetch(_ context.Context, params map[string]string) (source.Data, error) {
	if s.columns == nil {
		return nil, fmt.Errorf("%w: %s not loaded", source.ErrBackingStore, s.name)
	}
	switch action := strings.ToLower(strings.TrimSpace(params[source.ParamAction])); action {
	case "", ActionData:
	case ActionColumns:
		return source.Lines(append([]string(nil), s.columns...)), nil
	default:
		return nil, fmt.Errorf("%w: %q", source.ErrUnsupportedAction, action)
	}

	window, err := source.ParseTimeRange(params)
	if err != nil {
		return nil, err
	}
	lo := sort.Search(len(s.rows), func(i int) bool { return s.rows[i][0] >= window.Start })
	hi := sort.Search(len(s.rows), func(i int) bool { return s.rows[i][0] > window.End })

	m, err := matrix.New(len(s.columns))
	if err != nil {
		return nil, err
	}
	for _, row := range s.rows[lo:hi] {
		if err := m.Append(row...); err != nil {
			return nil, err
		}
	}
	return source.NewTable(m, append([]string(nil), s.columns...)), nil
}

func (s *Source) Disconnect() error { return nil }

var _ source.Source = (*Source)(nil)
