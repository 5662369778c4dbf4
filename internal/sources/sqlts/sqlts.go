// Package sqlts serves channel time series stored in SQL tables. One
// implementation covers every tabular dataset kind; kinds differ only in
// their column layout.
//
// Expected schema, per dataset table:
//
//	<table>(channel text, t double precision, <value columns> double precision)
//	<channels_table>(code text)
package sqlts

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/protocol/matrix"
	"github.com/usgs/vdx/internal/source"
)

const (
	DefaultDriver        = "postgres"
	DefaultChannelsTable = "channels"

	ActionData     = "data"
	ActionChannels = "channels"

	pingTimeout = 5 * time.Second
)

// Source is a source.Source over one SQL table.
type Source struct {
	kind   string
	name   string
	logger zerolog.Logger

	mu            sync.RWMutex
	db            *sql.DB
	table         string
	channelsTable string
	columns       []string
	maxRows       int
}

// Factory returns a source.Factory for kind.
func Factory(kind string) source.Factory {
	return func(deps source.Deps) source.Source {
		return &Source{
			kind:   kind,
			name:   deps.Name,
			logger: observability.Component("sqlts").With().Str("source", deps.Name).Str("kind", kind).Logger(),
		}
	}
}

// Register adds every sqlts kind to f.
func Register(f *source.Factories) error {
	for _, kind := range Kinds() {
		if err := f.Register(kind, Factory(kind)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Source) Kind() string { return s.kind }
func (s *Source) MaxRows() int { return s.maxRows }

// Columns returns the served column names, time first.
func (s *Source) Columns() []string { return append([]string(nil), s.columns...) }

func (s *Source) Initialize(cfg source.Config) error {
	cols, err := s.resolveColumns(cfg)
	if err != nil {
		return err
	}
	s.columns = cols

	s.table = cfg.String("table", s.kind)
	if !validTable(s.table) {
		return fmt.Errorf("%w: table %q", source.ErrInvalidDescriptor, s.table)
	}
	s.channelsTable = cfg.String("channels_table", DefaultChannelsTable)
	if !validTable(s.channelsTable) {
		return fmt.Errorf("%w: channels_table %q", source.ErrInvalidDescriptor, s.channelsTable)
	}
	if s.maxRows, err = cfg.Int("maxrows", 0); err != nil {
		return err
	}

	dsn, err := cfg.Required("dsn")
	if err != nil {
		return err
	}
	driver := cfg.String("driver", DefaultDriver)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", source.ErrBackingStore, driver, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("%w: ping %s: %w", source.ErrBackingStore, driver, err)
	}
	s.mu.Lock()
	s.db = db
	s.mu.Unlock()
	s.logger.Info().Str("driver", driver).Str("table", s.table).Int("maxrows", s.maxRows).Msg("connected")
	return nil
}

func (s *Source) resolveColumns(cfg source.Config) ([]string, error) {
	if s.kind != KindGeneric {
		cols, ok := Columns(s.kind)
		if !ok {
			return nil, fmt.Errorf("%w: %s", source.ErrUnknownKind, s.kind)
		}
		return cols, nil
	}
	values := cfg.List("columns")
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: generic source needs columns", source.ErrInvalidDescriptor)
	}
	cols := []string{timeColumn}
	for _, c := range values {
		if !validIdent(c) || c == timeColumn {
			return nil, fmt.Errorf("%w: column %q", source.ErrInvalidDescriptor, c)
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func (s *Source) Fetch(ctx context.Context, params map[string]string) (source.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("%w: %s not connected", source.ErrBackingStore, s.name)
	}
	switch action := strings.ToLower(strings.TrimSpace(params[source.ParamAction])); action {
	case "", ActionData:
		return s.fetchData(ctx, params)
	case ActionChannels:
		return s.fetchChannels(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", source.ErrUnsupportedAction, action)
	}
}

func (s *Source) fetchChannels(ctx context.Context) (source.Data, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT code FROM "+s.channelsTable+" ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrBackingStore, err)
	}
	defer rows.Close()

	var out source.Lines
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("%w: %w", source.ErrBackingStore, err)
		}
		out = append(out, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrBackingStore, err)
	}
	return out, nil
}

func (s *Source) fetchData(ctx context.Context, params map[string]string) (source.Data, error) {
	channel := strings.TrimSpace(params[source.ParamChannel])
	if channel == "" {
		return nil, fmt.Errorf("%w: missing %s", source.ErrInvalidParameter, source.ParamChannel)
	}
	window, err := source.ParseTimeRange(params)
	if err != nil {
		return nil, err
	}
	limit := 0
	if !source.Downsampled(params) {
		rowCap, err := source.RowCap(s.maxRows, params)
		if err != nil {
			return nil, err
		}
		if rowCap > 0 {
			limit = rowCap + 1
		}
	}

	query, args := s.dataQuery(channel, window, limit)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrBackingStore, err)
	}
	defer rows.Close()

	m, err := matrix.New(len(s.columns))
	if err != nil {
		return nil, err
	}
	scan := make([]sql.NullFloat64, len(s.columns))
	dest := make([]any, len(s.columns))
	for i := range scan {
		dest[i] = &scan[i]
	}
	row := make([]float64, len(s.columns))
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: %w", source.ErrBackingStore, err)
		}
		for i, v := range scan {
			row[i] = math.NaN()
			if v.Valid {
				row[i] = v.Float64
			}
		}
		if err := m.Append(row...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", source.ErrBackingStore, err)
	}
	s.logger.Debug().Str("channel", channel).Int("rows", m.Rows()).Msg("fetched")
	return source.NewTable(m, s.Columns()), nil
}

// dataQuery builds the row query for one channel. A positive limit caps the
// number of rows read.
func (s *Source) dataQuery(channel string, window source.TimeRange, limit int) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(s.columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.table)
	b.WriteString(" WHERE channel = $1")
	args := []any{channel}
	if !math.IsInf(window.Start, -1) {
		args = append(args, window.Start)
		b.WriteString(" AND t >= $" + strconv.Itoa(len(args)))
	}
	if !math.IsInf(window.End, 1) {
		args = append(args, window.End)
		b.WriteString(" AND t <= $" + strconv.Itoa(len(args)))
	}
	b.WriteString(" ORDER BY t")
	if limit > 0 {
		args = append(args, limit)
		b.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}
	return b.String(), args
}

func (s *Source) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return fmt.Errorf("%w: close: %w", source.ErrBackingStore, err)
	}
	s.logger.Info().Msg("disconnected")
	return nil
}

var _ source.Source = (*Source)(nil)
