package sqlts

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/usgs/vdx/internal/source"
	"github.com/usgs/vdx/internal/testutil/testlog"
)

// newMockSource initializes a Source against a sqlmock connection opened
// through the regular driver path.
func newMockSource(t *testing.T, kind string, cfg source.Config) (*Source, sqlmock.Sqlmock) {
	t.Helper()
	dsn := "sqlmock_" + strings.ReplaceAll(t.Name(), "/", "_")
	db, mock, err := sqlmock.NewWithDSN(dsn)
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if cfg == nil {
		cfg = source.Config{}
	}
	cfg["driver"] = "sqlmock"
	cfg["dsn"] = dsn
	s := Factory(kind)(source.Deps{Name: "test_" + kind}).(*Source)
	if err := s.Initialize(cfg); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = s.Disconnect() })
	return s, mock
}

func TestFetchTiltRows(t *testing.T) {
	testlog.Start(t)
	s, mock := newMockSource(t, "tilt", source.Config{"maxrows": "100"})

	query := regexp.QuoteMeta("SELECT t, east, north, holetemp, boxtemp, instvolt FROM tilt WHERE channel = $1 AND t >= $2 AND t <= $3 ORDER BY t LIMIT $4")
	mock.ExpectQuery(query).
		WithArgs("UWE", 10.0, 20.0, int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"t", "east", "north", "holetemp", "boxtemp", "instvolt"}).
			AddRow(10.0, 1.0, 2.0, 3.0, 4.0, 12.5).
			AddRow(15.0, 1.5, 2.5, nil, 4.5, 12.4))

	data, err := s.Fetch(context.Background(), map[string]string{"ch": "UWE", "st": "10", "et": "20"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	table, ok := data.(*source.Table)
	if !ok {
		t.Fatalf("expected *source.Table, got %T", data)
	}
	if table.Rows() != 2 || table.Columns() != 6 {
		t.Fatalf("unexpected shape %dx%d", table.Rows(), table.Columns())
	}
	if got := table.At(1, 1); got != 1.5 {
		t.Fatalf("expected east 1.5, got %v", got)
	}
	if got := table.At(1, 3); !math.IsNaN(got) {
		t.Fatalf("expected NaN for NULL holetemp, got %v", got)
	}
	if table.Names[0] != "t" || table.Names[5] != "instvolt" {
		t.Fatalf("unexpected column names %v", table.Names)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFetchDownsampledSkipsLimit(t *testing.T) {
	testlog.Start(t)
	s, mock := newMockSource(t, "rsam", source.Config{"maxrows": "5"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT t, rsam FROM rsam WHERE channel = $1 ORDER BY t")+"$").
		WithArgs("HVO").
		WillReturnRows(sqlmock.NewRows([]string{"t", "rsam"}).AddRow(1.0, 40.0))

	_, err := s.Fetch(context.Background(), map[string]string{"ch": "HVO", "ds": "mean", "dsint": "10"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFetchClientMaxRowsLowersLimit(t *testing.T) {
	testlog.Start(t)
	s, mock := newMockSource(t, "gps", source.Config{"maxrows": "1000", "table": "geo.gps_solutions"})

	mock.ExpectQuery(regexp.QuoteMeta("SELECT t, x, y, z FROM geo.gps_solutions WHERE channel = $1 ORDER BY t LIMIT $2")).
		WithArgs("KOKE", int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"t", "x", "y", "z"}))

	data, err := s.Fetch(context.Background(), map[string]string{"ch": "KOKE", "maxrows": "10"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if data.Rows() != 0 {
		t.Fatalf("expected empty table, got %d rows", data.Rows())
	}
}

func TestFetchChannels(t *testing.T) {
	testlog.Start(t)
	s, mock := newMockSource(t, "thermal", nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT code FROM channels ORDER BY code")).
		WillReturnRows(sqlmock.NewRows([]string{"code"}).AddRow("HVO").AddRow("KLA"))

	data, err := s.Fetch(context.Background(), map[string]string{"action": "channels"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	lines, ok := data.(source.Lines)
	if !ok || len(lines) != 2 || lines[0] != "HVO" {
		t.Fatalf("unexpected channels %#v", data)
	}
}

func TestFetchBackingStoreError(t *testing.T) {
	testlog.Start(t)
	s, mock := newMockSource(t, "voltage", nil)

	mock.ExpectQuery("SELECT t, voltage FROM voltage").
		WillReturnError(errors.New("connection reset by peer"))

	_, err := s.Fetch(context.Background(), map[string]string{"ch": "UWE"})
	if !errors.Is(err, source.ErrBackingStore) {
		t.Fatalf("expected ErrBackingStore, got %v", err)
	}
}

func TestFetchParameterErrors(t *testing.T) {
	testlog.Start(t)
	s, _ := newMockSource(t, "rainfall", nil)

	cases := map[string]map[string]string{
		"missing channel": {},
		"bad start":       {"ch": "A", "st": "yesterday"},
		"reversed window": {"ch": "A", "st": "20", "et": "10"},
		"bad maxrows":     {"ch": "A", "maxrows": "0"},
	}
	for name, params := range cases {
		if _, err := s.Fetch(context.Background(), params); !errors.Is(err, source.ErrInvalidParameter) {
			t.Fatalf("%s: expected ErrInvalidParameter, got %v", name, err)
		}
	}
	if _, err := s.Fetch(context.Background(), map[string]string{"action": "plot"}); !errors.Is(err, source.ErrUnsupportedAction) {
		t.Fatalf("expected ErrUnsupportedAction, got %v", err)
	}
}

func TestGenericColumns(t *testing.T) {
	testlog.Start(t)
	s, mock := newMockSource(t, KindGeneric, source.Config{"columns": "so2, co2", "table": "gas"})
	if got := strings.Join(s.Columns(), ","); got != "t,so2,co2" {
		t.Fatalf("unexpected columns %s", got)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT t, so2, co2 FROM gas WHERE")).
		WillReturnRows(sqlmock.NewRows([]string{"t", "so2", "co2"}).AddRow(1.0, 2.0, 3.0))
	if _, err := s.Fetch(context.Background(), map[string]string{"ch": "SUM"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}

func TestInitializeRejectsBadDescriptors(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		kind string
		cfg  source.Config
	}{
		{"tilt", source.Config{}},
		{"tilt", source.Config{"dsn": "x", "table": "tilt; DROP TABLE tilt"}},
		{"tilt", source.Config{"dsn": "x", "channels_table": "chan-list"}},
		{"tilt", source.Config{"dsn": "x", "maxrows": "-1"}},
		{KindGeneric, source.Config{"dsn": "x"}},
		{KindGeneric, source.Config{"dsn": "x", "columns": "a,b c"}},
		{"seismic", source.Config{"dsn": "x"}},
	}
	for _, tc := range cases {
		s := Factory(tc.kind)(source.Deps{Name: "bad"})
		err := s.Initialize(tc.cfg)
		if !errors.Is(err, source.ErrInvalidDescriptor) && !errors.Is(err, source.ErrUnknownKind) {
			t.Fatalf("%s %v: expected descriptor error, got %v", tc.kind, tc.cfg, err)
		}
	}
}

func TestFetchBeforeInitialize(t *testing.T) {
	s := Factory("tilt")(source.Deps{Name: "cold"})
	if _, err := s.Fetch(context.Background(), map[string]string{"ch": "A"}); !errors.Is(err, source.ErrBackingStore) {
		t.Fatalf("expected ErrBackingStore, got %v", err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
}

func TestRegisterAllKinds(t *testing.T) {
	f := source.NewFactories()
	if err := Register(f); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := len(f.Kinds()); got != 10 {
		t.Fatalf("expected 10 kinds, got %d: %v", got, f.Kinds())
	}
	if err := Register(f); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
