package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/usgs/vdx/internal/client"
	"github.com/usgs/vdx/internal/logging"
	"github.com/usgs/vdx/internal/protocol/matrix"
)

// ErrNavigateExit signals caller-intent to leave the interactive loop.
var ErrNavigateExit = errors.New("navigate exit")

var cliArgs struct {
	Addr    string        `short:"a" default:"localhost:16050" help:"VDX server address."`
	Timeout time.Duration `short:"t" default:"30s" help:"Per-command timeout."`
	MaxRows int           `default:"20" help:"Rows printed per table; 0 prints all."`
	Command []string      `arg:"" optional:"" help:"Run one command line and exit, e.g. getdata:source=x&ch=A."`
}

func main() {
	kong.Parse(&cliArgs,
		kong.Name("vdxc"),
		kong.Description("Interactive VDX protocol client."),
		kong.UsageOnError(),
	)
	logging.ConfigureRuntime()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cliArgs.Addr, os.Stdin, os.Stdout)
	if err != nil {
		log.Error().Err(err).Str("addr", cliArgs.Addr).Msg("connect failed")
		os.Exit(1)
	}
	defer app.Close()

	if len(cliArgs.Command) > 0 {
		if err := app.execute(ctx, strings.Join(cliArgs.Command, " ")); err != nil && !errors.Is(err, ErrNavigateExit) {
			log.Error().Err(err).Msg("command failed")
			os.Exit(1)
		}
		return
	}
	if err := app.Run(ctx); err != nil {
		log.Error().Err(err).Msg("vdxc failed")
		os.Exit(1)
	}
}

// App is one interactive session against a server.
type App struct {
	reader  *bufio.Reader
	out     io.Writer
	client  *client.Client
	timeout time.Duration
	maxRows int
}

func NewApp(ctx context.Context, addr string, in io.Reader, out io.Writer) (*App, error) {
	c, err := client.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	log.Info().Str("addr", addr).Msg("connected")
	return &App{
		reader:  bufio.NewReader(in),
		out:     out,
		client:  c,
		timeout: cliArgs.Timeout,
		maxRows: cliArgs.MaxRows,
	}, nil
}

// Run reads commands until EOF or quit.
func (a *App) Run(ctx context.Context) error {
	a.printHelp()
	for ctx.Err() == nil {
		line, err := a.promptLine("vdx")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := a.execute(ctx, line); err != nil {
			if errors.Is(err, ErrNavigateExit) {
				return nil
			}
			log.Error().Err(err).Msg("command failed")
		}
	}
	return nil
}

func (a *App) Close() error {
	return a.client.Close()
}

func (a *App) printHelp() {
	fmt.Fprintln(a.out, "Commands:")
	fmt.Fprintln(a.out, "  menu                         list sources")
	fmt.Fprintln(a.out, "  version                      server version")
	fmt.Fprintln(a.out, "  get SOURCE [key=value ...]   getdata with parameters")
	fmt.Fprintln(a.out, "  NAME[:k=v&k=v]               send a raw command line")
	fmt.Fprintln(a.out, "  help | quit")
}

func (a *App) promptLine(label string) (string, error) {
	if strings.TrimSpace(label) != "" {
		fmt.Fprintf(a.out, "%s> ", label)
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (a *App) execute(ctx context.Context, line string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "help", "?":
		a.printHelp()
		return nil
	case "quit", "q":
		return ErrNavigateExit
	case "menu":
		entries, err := a.client.Menu(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(a.out, "%-24s %-12s %s\n", e.Name, e.Kind, e.Description)
		}
		return nil
	case "version":
		v, err := a.client.Version(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, v)
		return nil
	case "get":
		if len(fields) < 2 {
			return fmt.Errorf("usage: get SOURCE [key=value ...]")
		}
		params, err := parseAssignments(fields[2:])
		if err != nil {
			return err
		}
		resp, err := a.client.GetData(ctx, fields[1], params)
		if err != nil {
			return err
		}
		a.printResponse(resp)
		return nil
	}

	name, rawParams, _ := strings.Cut(strings.TrimSpace(line), ":")
	params, err := parseRawParams(rawParams)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(ctx, name, params)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	a.printResponse(resp)
	if strings.EqualFold(name, "exit") {
		return ErrNavigateExit
	}
	return nil
}

func (a *App) printResponse(resp *client.Response) {
	if resp.Matrix != nil {
		printMatrix(a.out, resp.Columns, resp.Matrix, a.maxRows)
		return
	}
	for _, line := range resp.Lines {
		fmt.Fprintln(a.out, line)
	}
	if len(resp.Lines) == 0 {
		fmt.Fprintln(a.out, resp.Frame.Header())
	}
}

func printMatrix(w io.Writer, columns []string, m *matrix.Matrix, limit int) {
	if len(columns) > 0 {
		fmt.Fprintln(w, strings.Join(columns, "\t"))
	}
	n := m.Rows()
	if limit > 0 && n > limit {
		n = limit
	}
	cells := make([]string, m.Columns())
	for i := 0; i < n; i++ {
		for j := range cells {
			cells[j] = strconv.FormatFloat(m.At(i, j), 'g', -1, 64)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if n < m.Rows() {
		fmt.Fprintf(w, "... %d more rows\n", m.Rows()-n)
	}
}

// parseAssignments turns ["ch=HVO", "st=-1h"] into a parameter map.
func parseAssignments(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[k] = v
	}
	return out, nil
}

// parseRawParams reads the unescaped k=v&k=v form typed at the prompt.
func parseRawParams(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return parseAssignments(strings.Split(raw, "&"))
}
