// Package client speaks the VDX protocol from the requesting side. It is
// used by vdxc and by end-to-end tests; it never retries.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/usgs/vdx/internal/protocol"
	"github.com/usgs/vdx/internal/protocol/matrix"
	"github.com/usgs/vdx/internal/source"
)

var (
	ErrServer   = errors.New("server error")
	ErrResponse = errors.New("malformed response")
)

// MaxBodyBytes bounds a single binary body read.
const MaxBodyBytes = 1 << 30

// Response is one decoded reply.
type Response struct {
	Frame   protocol.ResultFrame
	Lines   []string
	Matrix  *matrix.Matrix
	Columns []string
}

// Err returns the server-side failure carried by an error frame.
func (r *Response) Err() error {
	if r.Frame.Status != protocol.StatusError {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrServer, r.Frame.Message)
}

// MenuEntry is one advertised source.
type MenuEntry struct {
	Name        string
	Kind        string
	Description string
}

// Client holds one connection. Calls are serialized; the protocol allows a
// single outstanding command.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

func New(conn net.Conn) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn)}
}

// Do sends name with params and reads the complete reply, body included.
// Error frames are returned as a Response; check Response.Err.
func (c *Client) Do(ctx context.Context, name string, params map[string]string) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = c.conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetDeadline(time.Now()) })
	defer stop()

	line := name
	if len(params) > 0 {
		line += ":" + protocol.EncodeParams(params)
	}
	if _, err := io.WriteString(c.conn, line+"\n"); err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	resp, err := c.readResponse()
	if err != nil {
		return nil, c.ctxErr(ctx, err)
	}
	return resp, nil
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) readResponse() (*Response, error) {
	header, err := c.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	frame, err := protocol.ParseHeader(header)
	if err != nil {
		return nil, fmt.Errorf("%w: header %q", ErrResponse, strings.TrimSpace(header))
	}
	resp := &Response{Frame: frame}
	if frame.Status == protocol.StatusError {
		return resp, nil
	}
	if raw, ok := frame.Params["bytes"]; ok {
		return resp, c.readBinary(resp, raw)
	}
	if raw, ok := frame.Params["lines"]; ok {
		return resp, c.readLines(resp, raw)
	}
	return resp, nil
}

func (c *Client) readLines(resp *Response, raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fmt.Errorf("%w: lines=%q", ErrResponse, raw)
	}
	resp.Lines = make([]string, 0, n)
	for i := 0; i < n; i++ {
		line, err := c.r.ReadString('\n')
		if err != nil {
			return err
		}
		resp.Lines = append(resp.Lines, strings.TrimRight(line, "\r\n"))
	}
	return nil
}

func (c *Client) readBinary(resp *Response, raw string) error {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > MaxBodyBytes {
		return fmt.Errorf("%w: bytes=%q", ErrResponse, raw)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.r, body); err != nil {
		return err
	}
	decoded, err := matrix.Decompress(body)
	if err != nil {
		return err
	}
	resp.Columns = source.SplitList(resp.Frame.Params["columns"])
	cols := len(resp.Columns)
	if cols == 0 {
		cols, err = inferColumns(decoded, resp.Frame.Params["rows"])
		if err != nil {
			return err
		}
	}
	resp.Matrix, err = matrix.Decode(decoded, cols)
	return err
}

// inferColumns derives the column count from the body length when the
// server did not name its columns.
func inferColumns(decoded []byte, rawRows string) (int, error) {
	rows, err := strconv.Atoi(rawRows)
	if err != nil || rows <= 0 {
		return 0, fmt.Errorf("%w: cannot infer columns without rows", ErrResponse)
	}
	payload := len(decoded) - 4
	if payload <= 0 || payload%(rows*8) != 0 {
		return 0, fmt.Errorf("%w: body of %d bytes does not hold %d rows", ErrResponse, len(decoded), rows)
	}
	return payload / (rows * 8), nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	resp, err := c.Do(ctx, "version", nil)
	if err != nil {
		return "", err
	}
	if err := resp.Err(); err != nil {
		return "", err
	}
	return resp.Frame.Params["version"], nil
}

func (c *Client) Menu(ctx context.Context) ([]MenuEntry, error) {
	resp, err := c.Do(ctx, "menu", nil)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	out := make([]MenuEntry, 0, len(resp.Lines))
	for _, line := range resp.Lines {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: menu line %q", ErrResponse, line)
		}
		desc, err := protocol.Unescape(parts[2])
		if err != nil {
			return nil, fmt.Errorf("%w: menu line %q: %w", ErrResponse, line, err)
		}
		out = append(out, MenuEntry{Name: parts[0], Kind: parts[1], Description: desc})
	}
	return out, nil
}

// GetData requests rows from source. Server failures are returned as errors.
func (c *Client) GetData(ctx context.Context, sourceName string, params map[string]string) (*Response, error) {
	p := make(map[string]string, len(params)+1)
	for k, v := range params {
		p[k] = v
	}
	p[source.ParamSource] = sourceName
	resp, err := c.Do(ctx, "getdata", p)
	if err != nil {
		return nil, err
	}
	return resp, resp.Err()
}

// Close says goodbye and closes the connection.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, _ = c.Do(ctx, "exit", nil)
	return c.conn.Close()
}
