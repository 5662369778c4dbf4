package csvfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/usgs/vdx/internal/protocol/matrix"
	"github.com/usgs/vdx/internal/result"
	"github.com/usgs/vdx/internal/source"
	"github.com/usgs/vdx/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "series.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newSource(t *testing.T, cfg source.Config) *Source {
	t.Helper()
	s := Factory(source.Deps{Name: "fixture"}).(*Source)
	require.NoError(t, s.Initialize(cfg))
	return s
}

const fixture = `t,east,north
# out of order on purpose
30,3,-3
10,1,-1
20,2,-2
`

func TestFetchSortedAndFiltered(t *testing.T) {
	testlog.Start(t)
	s := newSource(t, source.Config{"path": writeFile(t, fixture)})

	data, err := s.Fetch(context.Background(), map[string]string{})
	require.NoError(t, err)
	table := data.(*source.Table)
	require.Equal(t, 3, table.Rows())
	require.Equal(t, []string{"t", "east", "north"}, table.Names)
	require.NoError(t, table.ValidateTimeOrder())
	require.Equal(t, 10.0, table.Time(0))

	data, err = s.Fetch(context.Background(), map[string]string{"st": "15", "et": "30"})
	require.NoError(t, err)
	table = data.(*source.Table)
	require.Equal(t, 2, table.Rows())
	require.Equal(t, -2.0, table.At(0, 2))
}

func TestFetchColumnsAction(t *testing.T) {
	testlog.Start(t)
	s := newSource(t, source.Config{"path": writeFile(t, fixture), "columns": "time, e, n"})

	data, err := s.Fetch(context.Background(), map[string]string{"action": "columns"})
	require.NoError(t, err)
	require.Equal(t, source.Lines{"time", "e", "n"}, data)
}

func TestColumnsWithQuotedNewlineFailFraming(t *testing.T) {
	testlog.Start(t)
	s := newSource(t, source.Config{"path": writeFile(t, "t,\"tilt\neast\"\n1,2\n")})

	data, err := s.Fetch(context.Background(), map[string]string{"action": "columns"})
	require.NoError(t, err)
	require.Equal(t, source.Lines{"t", "tilt\neast"}, data)

	res := result.NewText(data.(source.Lines))
	require.ErrorIs(t, res.Prepare(), matrix.ErrCodec)
	require.True(t, res.Failed())
}

func TestHeaderlessFile(t *testing.T) {
	testlog.Start(t)
	s := newSource(t, source.Config{"path": writeFile(t, "1,5\n2,6\n"), "maxrows": "10"})
	require.Equal(t, 10, s.MaxRows())

	data, err := s.Fetch(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"t", "v1"}, data.(*source.Table).Names)
}

func TestInitializeErrors(t *testing.T) {
	testlog.Start(t)
	s := Factory(source.Deps{Name: "bad"})

	require.ErrorIs(t, s.Initialize(source.Config{}), source.ErrInvalidDescriptor)
	require.ErrorIs(t, s.Initialize(source.Config{"path": filepath.Join(t.TempDir(), "missing.csv")}), source.ErrBackingStore)
	require.ErrorIs(t, s.Initialize(source.Config{"path": writeFile(t, "t,a\n1,2\n3\n")}), source.ErrInvalidDescriptor)
	require.ErrorIs(t, s.Initialize(source.Config{"path": writeFile(t, "t,a\n1,x\n")}), source.ErrBackingStore)
	require.ErrorIs(t, s.Initialize(source.Config{"path": writeFile(t, fixture), "columns": "t,a"}), source.ErrInvalidDescriptor)
}

func TestFetchErrors(t *testing.T) {
	testlog.Start(t)
	s := newSource(t, source.Config{"path": writeFile(t, fixture)})

	_, err := s.Fetch(context.Background(), map[string]string{"action": "plot"})
	require.ErrorIs(t, err, source.ErrUnsupportedAction)

	_, err = s.Fetch(context.Background(), map[string]string{"st": "40", "et": "30"})
	require.True(t, errors.Is(err, source.ErrInvalidParameter))
}
