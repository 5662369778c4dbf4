package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/usgs/vdx/internal"
	"github.com/usgs/vdx/internal/downsample"
	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/protocol"
	"github.com/usgs/vdx/internal/protocol/matrix"
	"github.com/usgs/vdx/internal/result"
	"github.com/usgs/vdx/internal/source"
)

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrRowLimitExceeded = source.ErrRowLimitExceeded
	ErrUnsupportedData  = errors.New("unsupported source payload")
)

const (
	CommandVersion = "version"
	CommandMenu    = "menu"
	CommandGetData = "getdata"
	CommandExit    = "exit"
)

// Handler answers one command. Returned errors become error replies.
type Handler func(ctx context.Context, cmd protocol.Command) (result.Result, error)

type handler struct {
	fn     Handler
	closes bool
}

// Reply is a prepared result plus what the session needs to know about it.
type Reply struct {
	Command string
	Result  result.Result
	Err     error
	Close   bool
}

type Option func(*Dispatcher)

func WithVersion(v string) Option {
	return func(d *Dispatcher) { d.version = v }
}

func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher executes commands against a source registry.
type Dispatcher struct {
	registry *source.Registry
	handlers map[string]handler
	version  string
	logger   zerolog.Logger
}

func New(registry *source.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		version:  internal.Version(),
		logger:   log.Logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.handlers = map[string]handler{
		CommandVersion: {fn: d.handleVersion},
		CommandMenu:    {fn: d.handleMenu},
		CommandGetData: {fn: d.handleGetData},
		CommandExit:    {fn: d.handleExit, closes: true},
	}
	return d
}

// Commands lists handler names in sorted order.
func (d *Dispatcher) Commands() []string {
	out := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch parses and executes one command line. The returned Result is
// always prepared; failures of any kind come back as error results.
func (d *Dispatcher) Dispatch(ctx context.Context, line string) Reply {
	start := time.Now()
	reply := d.dispatch(ctx, line)

	if err := reply.Result.Prepare(); err != nil {
		if reply.Err == nil {
			reply.Err = err
		}
		if !reply.Result.Failed() {
			reply.Result = result.NewError(err)
			_ = reply.Result.Prepare()
		}
	}
	if reply.Result.Failed() {
		reply.Close = false
	}

	status := protocol.StatusOK.String()
	if reply.Result.Failed() {
		status = protocol.StatusError.String()
	}
	observability.RecordCommand(metricLabel(reply.Command), status, time.Since(start))
	return reply
}

func (d *Dispatcher) dispatch(ctx context.Context, line string) Reply {
	cmd, err := protocol.ParseCommand(line)
	if err != nil {
		return Reply{Result: result.NewError(err), Err: err}
	}
	h, ok := d.handlers[cmd.Name]
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
		return Reply{Result: result.NewError(err), Err: err}
	}

	res, err := invoke(ctx, h.fn, cmd)
	if err != nil {
		return Reply{Command: cmd.Name, Result: result.NewError(err), Err: err}
	}
	return Reply{Command: cmd.Name, Result: res, Close: h.closes}
}

func invoke(ctx context.Context, fn Handler, cmd protocol.Command) (res result.Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = fmt.Errorf("internal error in %s: %v", cmd.Name, rec)
		}
	}()
	res, err = fn(ctx, cmd)
	if err == nil && res == nil {
		err = fmt.Errorf("internal error in %s: no result", cmd.Name)
	}
	return res, err
}

func metricLabel(command string) string {
	if command == "" {
		return "invalid"
	}
	return command
}

func (d *Dispatcher) handleVersion(context.Context, protocol.Command) (result.Result, error) {
	return result.NewSimple(map[string]string{"version": d.version}), nil
}

func (d *Dispatcher) handleExit(context.Context, protocol.Command) (result.Result, error) {
	return result.NewSimple(nil), nil
}

// handleMenu lists descriptors as name:kind:description lines.
func (d *Dispatcher) handleMenu(context.Context, protocol.Command) (result.Result, error) {
	list := d.registry.List()
	lines := make([]string, 0, len(list))
	for _, desc := range list {
		lines = append(lines, desc.Name+":"+desc.Kind+":"+protocol.Escape(desc.Description))
	}
	return result.NewText(lines), nil
}

func (d *Dispatcher) handleGetData(ctx context.Context, cmd protocol.Command) (result.Result, error) {
	name := cmd.Param(source.ParamSource, source.ParamSourceAlt)
	if name == "" {
		return nil, fmt.Errorf("%w: getdata requires %q", protocol.ErrMalformedCommand, source.ParamSource)
	}
	policy, err := downsample.Parse(
		cmd.Param(source.ParamDownsample, source.ParamDownsampleAlt),
		cmd.Param(source.ParamDownsampleInterval, source.ParamDownsampleIntAlt),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrMalformedCommand, err)
	}

	src, err := d.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	params := cmd.CloneParams()
	limit, err := source.RowCap(src.MaxRows(), params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrMalformedCommand, err)
	}

	data, err := src.Fetch(ctx, params)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("%w: source %q returned nothing", ErrUnsupportedData, name)
	}

	switch v := data.(type) {
	case *source.Table:
		return d.binaryReply(name, v, policy, limit)
	case source.Lines:
		if limit > 0 && v.Rows() > limit {
			return nil, rowLimitError(v.Rows(), limit)
		}
		return result.NewText(v), nil
	default:
		return nil, fmt.Errorf("%w: source %q returned %T", ErrUnsupportedData, name, data)
	}
}

func (d *Dispatcher) binaryReply(name string, t *source.Table, policy downsample.Policy, limit int) (result.Result, error) {
	if t == nil || t.Matrix == nil {
		return nil, fmt.Errorf("%w: source %q returned an empty table", ErrUnsupportedData, name)
	}
	if !policy.Requested() && limit > 0 && t.Rows() > limit {
		return nil, rowLimitError(t.Rows(), limit)
	}

	m := t.Matrix
	if policy.Requested() {
		reduced, err := policy.Apply(m)
		if err != nil {
			return nil, err
		}
		observability.RecordDownsample(string(policy.Kind), m.Rows(), reduced.Rows())
		d.logger.Debug().
			Str("source", name).
			Str("policy", policy.String()).
			Int("rows_in", m.Rows()).
			Int("rows_out", reduced.Rows()).
			Msg("downsampled")
		m = reduced
	}

	res := result.NewBinary(m, matrix.Compress)
	res.Set("rows", strconv.Itoa(m.Rows()))
	if len(t.Names) > 0 {
		res.Set("columns", strings.Join(t.Names, ","))
	}
	return res, nil
}

func rowLimitError(rows, limit int) error {
	return fmt.Errorf("%w: %d rows exceeds limit of %d; request downsampling or a smaller range", ErrRowLimitExceeded, rows, limit)
}
