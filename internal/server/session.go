package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/rs/zerolog"
	"github.com/usgs/vdx/internal/dispatch"
	"github.com/usgs/vdx/internal/observability"
	"github.com/usgs/vdx/internal/protocol"
	"github.com/usgs/vdx/internal/result"
)

var ErrLineTooLong = errors.New("command line too long")

type State int

const (
	StateAwaitingCommand State = iota
	StateDispatching
	StateWritingResponse
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingCommand:
		return "awaiting_command"
	case StateDispatching:
		return "dispatching"
	case StateWritingResponse:
		return "writing_response"
	default:
		return "closed"
	}
}

// session answers one command at a time on one connection.
type session struct {
	id         uint64
	conn       net.Conn
	cfg        Config
	dispatcher *dispatch.Dispatcher
	logger     zerolog.Logger

	reader *bufio.Reader
	writer *bufio.Writer
	state  State
}

func newSession(id uint64, conn net.Conn, cfg Config, d *dispatch.Dispatcher, logger zerolog.Logger) *session {
	return &session{
		id:         id,
		conn:       conn,
		cfg:        cfg,
		dispatcher: d,
		logger: logger.With().
			Uint64("session", id).
			Str("remote", conn.RemoteAddr().String()).
			Logger(),
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		state:  StateAwaitingCommand,
	}
}

// run loops until the peer leaves, a connection error occurs, or a command
// asks to close. Handler failures never end the loop.
func (s *session) run(ctx context.Context) {
	defer s.conn.Close()
	observability.SessionOpened()
	defer observability.SessionClosed()
	s.logger.Info().Msg("session opened")

	commands := 0
	for ctx.Err() == nil {
		s.state = StateAwaitingCommand
		line, err := s.readCommand(ctx)
		if err != nil {
			s.closeOnReadError(err)
			break
		}
		if isBlank(line) {
			continue
		}

		s.state = StateDispatching
		// A running command is never cancelled; shutdown waits for it.
		reply := s.dispatcher.Dispatch(context.WithoutCancel(ctx), line)
		commands++
		if reply.Err != nil {
			s.logger.Warn().Str("command", reply.Command).Err(reply.Err).Msg("command failed")
		}

		s.state = StateWritingResponse
		n, err := s.write(reply.Result)
		observability.RecordResponseBytes(commandLabel(reply.Command), n)
		if err != nil {
			s.logger.Warn().Err(err).Msg("write failed")
			break
		}
		s.logger.Debug().
			Str("command", reply.Command).
			Bool("ok", !reply.Result.Failed()).
			Int("bytes", n).
			Msg("command answered")
		if reply.Close {
			break
		}
	}
	s.state = StateClosed
	s.logger.Info().Int("commands", commands).Msg("session closed")
}

// readCommand arms the idle deadline, then rechecks ctx: drain cancels ctx
// before expiring deadlines, so a deadline re-armed after drain is never read
// against.
func (s *session) readCommand(ctx context.Context) (string, error) {
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return readLine(s.reader, s.cfg.MaxLineBytes)
}

func (s *session) closeOnReadError(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), errors.Is(err, context.Canceled):
	case errors.Is(err, ErrLineTooLong):
		s.logger.Warn().Err(err).Msg("closing session")
		res := result.NewError(fmt.Errorf("%w: %w", protocol.ErrMalformedCommand, err))
		_ = res.Prepare()
		_, _ = s.write(res)
	default:
		s.logger.Debug().Err(err).Msg("read ended")
	}
}

func (s *session) write(r result.Result) (int, error) {
	if s.cfg.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	cw := &countingWriter{w: s.writer}
	if err := result.Write(cw, r); err != nil {
		return cw.n, err
	}
	return cw.n, s.writer.Flush()
}

// readLine returns one '\n'-terminated line. A line longer than max bytes
// fails with ErrLineTooLong; a final line without '\n' is treated as EOF.
func readLine(r *bufio.Reader, max int) (string, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if max > 0 && len(buf) > max {
			return "", fmt.Errorf("%w: more than %d bytes", ErrLineTooLong, max)
		}
		if err == nil {
			return string(buf), nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", err
	}
}

func isBlank(line string) bool {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case ' ', '\t', '\r', '\n':
		default:
			return false
		}
	}
	return true
}

func commandLabel(command string) string {
	if command == "" {
		return "invalid"
	}
	return command
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
