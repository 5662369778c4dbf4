package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usgs/vdx/internal/dispatch"
	"github.com/usgs/vdx/internal/server"
	"github.com/usgs/vdx/internal/source"
	"github.com/usgs/vdx/internal/sources/builtin"
	"github.com/usgs/vdx/internal/testutil/testlog"
)

// startServer serves a csv fixture of n rows and returns a connected client.
func startServer(t *testing.T, n int) *Client {
	t.Helper()
	var b strings.Builder
	b.WriteString("t,rsam\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d,%d\n", i, i*10)
	}
	path := filepath.Join(t.TempDir(), "rsam.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))

	reg := source.NewRegistry(builtin.Factories())
	require.NoError(t, reg.Register(source.Descriptor{
		Name:        "rsam_fixture",
		Kind:        "csv",
		Description: "RSAM: 10 minute & fixture",
		Config:      source.Config{"path": path, "maxrows": "100"},
	}))
	srv := server.New(server.DefaultConfig(), reg, dispatch.New(reg, dispatch.WithVersion("2.0.0")))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(ctx, ln)
	}()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	c, err := Dial(dialCtx, ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		<-done
	})
	return c
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClientVersionAndMenu(t *testing.T) {
	testlog.Start(t)
	c := startServer(t, 10)
	ctx := testContext(t)

	v, err := c.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, "2.0.0", v)

	menu, err := c.Menu(ctx)
	require.NoError(t, err)
	require.Equal(t, []MenuEntry{{Name: "rsam_fixture", Kind: "csv", Description: "RSAM: 10 minute & fixture"}}, menu)
}

func TestClientGetData(t *testing.T) {
	testlog.Start(t)
	c := startServer(t, 10)
	ctx := testContext(t)

	resp, err := c.GetData(ctx, "rsam_fixture", map[string]string{"st": "2", "et": "5"})
	require.NoError(t, err)
	require.Equal(t, []string{"t", "rsam"}, resp.Columns)
	require.Equal(t, 4, resp.Matrix.Rows())
	require.Equal(t, 50.0, resp.Matrix.At(3, 1))

	resp, err = c.GetData(ctx, "rsam_fixture", map[string]string{"action": "columns"})
	require.NoError(t, err)
	require.Equal(t, []string{"t", "rsam"}, resp.Lines)
}

func TestClientRowLimitAndDownsample(t *testing.T) {
	testlog.Start(t)
	c := startServer(t, 250)
	ctx := testContext(t)

	_, err := c.GetData(ctx, "rsam_fixture", nil)
	require.ErrorIs(t, err, ErrServer)
	require.Contains(t, err.Error(), "row limit")

	resp, err := c.GetData(ctx, "rsam_fixture", map[string]string{"downsample": "mean", "downsampleinterval": "10"})
	require.NoError(t, err)
	require.Equal(t, 25, resp.Matrix.Rows())
	require.Equal(t, 0.0, resp.Matrix.At(0, 0))
	require.Equal(t, 45.0, resp.Matrix.At(0, 1))
}

func TestClientServerErrorsKeepConnection(t *testing.T) {
	testlog.Start(t)
	c := startServer(t, 10)
	ctx := testContext(t)

	_, err := c.GetData(ctx, "missing", nil)
	require.True(t, errors.Is(err, ErrServer))

	resp, err := c.Do(ctx, "bogus", nil)
	require.NoError(t, err)
	require.Error(t, resp.Err())

	_, err = c.Version(ctx)
	require.NoError(t, err)
}

func TestInferColumns(t *testing.T) {
	cols, err := inferColumns(make([]byte, 4+3*2*8), "3")
	require.NoError(t, err)
	require.Equal(t, 2, cols)

	_, err = inferColumns(make([]byte, 4+7), "3")
	require.ErrorIs(t, err, ErrResponse)
	_, err = inferColumns(make([]byte, 4), "0")
	require.ErrorIs(t, err, ErrResponse)
}
