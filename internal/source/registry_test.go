package source

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/usgs/vdx/internal/testutil/testlog"
)

type fakeSource struct {
	initErr     error
	initDelay   time.Duration
	initialized atomic.Int32
	disconnects atomic.Int32
	cfg         Config
}

func (f *fakeSource) Kind() string { return "fake" }
func (f *fakeSource) MaxRows() int { return 10 }

func (f *fakeSource) Initialize(cfg Config) error {
	time.Sleep(f.initDelay)
	f.initialized.Add(1)
	f.cfg = cfg
	return f.initErr
}

func (f *fakeSource) Fetch(context.Context, map[string]string) (Data, error) {
	return Lines{"a"}, nil
}

func (f *fakeSource) Disconnect() error {
	f.disconnects.Add(1)
	return nil
}

type countingFactory struct {
	mu      sync.Mutex
	built   []*fakeSource
	initErr error
	delay   time.Duration
}

func (c *countingFactory) build(Deps) Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &fakeSource{initErr: c.initErr, initDelay: c.delay}
	c.built = append(c.built, s)
	return s
}

func (c *countingFactory) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.built)
}

func newTestRegistry(t *testing.T, cf *countingFactory, hook ConstructHook) *Registry {
	t.Helper()
	f := NewFactories()
	require.NoError(t, f.Register("fake", cf.build))
	var opts []Option
	if hook != nil {
		opts = append(opts, WithConstructHook(hook))
	}
	return NewRegistry(f, opts...)
}

func TestRegisterRejectsUnknownKindEagerly(t *testing.T) {
	testlog.Start(t)
	r := newTestRegistry(t, &countingFactory{}, nil)
	err := r.Register(Descriptor{Name: "tilt", Kind: "nope"})
	require.ErrorIs(t, err, ErrUnknownKind)
	require.Equal(t, 0, r.Len())
}

func TestRegisterValidatesAndRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	r := newTestRegistry(t, &countingFactory{}, nil)
	require.NoError(t, r.Register(Descriptor{Name: "hvo_tilt", Kind: "fake", Description: "HVO tilt"}))
	require.ErrorIs(t, r.Register(Descriptor{Name: "hvo_tilt", Kind: "fake"}), ErrSourceExists)
	require.ErrorIs(t, r.Register(Descriptor{Name: "", Kind: "fake"}), ErrInvalidDescriptor)
	require.ErrorIs(t, r.Register(Descriptor{Name: "bad name", Kind: "fake"}), ErrInvalidDescriptor)
	require.ErrorIs(t, r.Register(Descriptor{Name: "-lead", Kind: "fake"}), ErrInvalidDescriptor)
}

func TestResolveUnknownSource(t *testing.T) {
	testlog.Start(t)
	r := newTestRegistry(t, &countingFactory{}, nil)
	_, err := r.Resolve("missing")
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestResolveConstructsOnceUnderConcurrency(t *testing.T) {
	testlog.Start(t)
	cf := &countingFactory{delay: 20 * time.Millisecond}
	var hookCalls atomic.Int32
	r := newTestRegistry(t, cf, func(Descriptor, error) { hookCalls.Add(1) })
	require.NoError(t, r.Register(Descriptor{Name: "rsam", Kind: "fake", Config: Config{"k": "v"}}))
	require.False(t, r.Constructed("rsam"))

	const callers = 16
	results := make([]Source, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = r.Resolve("rsam")
		}(i)
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, cf.count())
	require.Equal(t, int32(1), hookCalls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Same(t, results[0], results[i])
	}
	require.Equal(t, int32(1), cf.built[0].initialized.Load())
	require.Equal(t, "v", cf.built[0].cfg["k"])
	require.True(t, r.Constructed("rsam"))
}

func TestResolveInitFailureIsReportedAndRetried(t *testing.T) {
	testlog.Start(t)
	cf := &countingFactory{initErr: errors.New("dial tcp: refused")}
	var lastErr error
	r := newTestRegistry(t, cf, func(_ Descriptor, err error) { lastErr = err })
	require.NoError(t, r.Register(Descriptor{Name: "gps", Kind: "fake"}))

	_, err := r.Resolve("gps")
	require.ErrorIs(t, err, ErrSourceInitFailed)
	require.ErrorIs(t, lastErr, ErrSourceInitFailed)
	require.Contains(t, err.Error(), "dial tcp: refused")
	require.False(t, r.Constructed("gps"))
	require.Equal(t, int32(1), cf.built[0].disconnects.Load())

	cf.mu.Lock()
	cf.initErr = nil
	cf.mu.Unlock()
	src, err := r.Resolve("gps")
	require.NoError(t, err)
	require.NotNil(t, src)
	require.Equal(t, 2, cf.count())
}

func TestResolveNilAndPanickingFactories(t *testing.T) {
	testlog.Start(t)
	f := NewFactories()
	require.NoError(t, f.Register("nil", func(Deps) Source { return nil }))
	require.NoError(t, f.Register("panic", func(Deps) Source { panic("boom") }))
	r := NewRegistry(f)
	require.NoError(t, r.Register(Descriptor{Name: "a", Kind: "nil"}))
	require.NoError(t, r.Register(Descriptor{Name: "b", Kind: "panic"}))

	_, err := r.Resolve("a")
	require.ErrorIs(t, err, ErrSourceInitFailed)
	_, err = r.Resolve("b")
	require.ErrorIs(t, err, ErrSourceInitFailed)
}

func TestDisconnectAllIsIdempotent(t *testing.T) {
	testlog.Start(t)
	cf := &countingFactory{}
	r := newTestRegistry(t, cf, nil)
	require.NoError(t, r.Register(Descriptor{Name: "a", Kind: "fake"}))
	require.NoError(t, r.Register(Descriptor{Name: "b", Kind: "fake"}))

	_, err := r.Resolve("a")
	require.NoError(t, err)

	require.NoError(t, r.DisconnectAll())
	require.NoError(t, r.DisconnectAll())
	require.NoError(t, r.Disconnect("a"))
	require.Equal(t, int32(1), cf.built[0].disconnects.Load())
	require.False(t, r.Constructed("a"))

	_, err = r.Resolve("a")
	require.NoError(t, err)
	require.Equal(t, 2, cf.count())

	require.ErrorIs(t, r.Disconnect("zzz"), ErrUnknownSource)
}

func TestListIsSortedByName(t *testing.T) {
	testlog.Start(t)
	r := newTestRegistry(t, &countingFactory{}, nil)
	for _, name := range []string{"strain", "gps", "tilt"} {
		require.NoError(t, r.Register(Descriptor{Name: name, Kind: "fake", Description: name + " data"}))
	}
	list := r.List()
	require.Len(t, list, 3)
	require.Equal(t, "gps", list[0].Name)
	require.Equal(t, "strain", list[1].Name)
	require.Equal(t, "tilt", list[2].Name)

	d, ok := r.Describe("tilt")
	require.True(t, ok)
	require.Equal(t, "tilt data", d.Description)
}

func TestFactoriesRejectDuplicateKinds(t *testing.T) {
	testlog.Start(t)
	f := NewFactories()
	require.NoError(t, f.Register("b", func(Deps) Source { return nil }))
	require.NoError(t, f.Register("a", func(Deps) Source { return nil }))
	require.ErrorIs(t, f.Register("a", func(Deps) Source { return nil }), ErrKindExists)
	require.ErrorIs(t, f.Register("", func(Deps) Source { return nil }), ErrInvalidDescriptor)
	require.Equal(t, []string{"a", "b"}, f.Kinds())
}

func TestConfigHelpers(t *testing.T) {
	testlog.Start(t)
	cfg := Config{"maxrows": "100", "bad": "-1", "columns": " a, ,b ,c", "dsn": " x "}
	n, err := cfg.Int("maxrows", 0)
	require.NoError(t, err)
	require.Equal(t, 100, n)
	n, err = cfg.Int("unset", 7)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	_, err = cfg.Int("bad", 0)
	require.ErrorIs(t, err, ErrInvalidDescriptor)
	require.Equal(t, []string{"a", "b", "c"}, cfg.List("columns"))
	v, err := cfg.Required("dsn")
	require.NoError(t, err)
	require.Equal(t, "x", v)
	_, err = cfg.Required("missing")
	require.ErrorIs(t, err, ErrInvalidDescriptor)
	require.Equal(t, "def", cfg.String("missing", "def"))
}
