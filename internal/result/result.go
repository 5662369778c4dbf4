// Package result holds the two-phase reply objects written back to clients.
//
// Lifecycle: construct, optionally SetError, Prepare exactly once, then
// WriteHeader and WriteBody. WriteBody is a no-op on error results.
package result

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/usgs/vdx/internal/protocol"
	"github.com/usgs/vdx/internal/protocol/matrix"
)

var (
	ErrAlreadyPrepared = errors.New("result: already prepared")
	ErrNotPrepared     = errors.New("result: not prepared")
)

// Result is one reply to one command.
type Result interface {
	Set(key, value string)
	SetError(message string)
	Failed() bool
	Frame() protocol.ResultFrame
	Prepare() error
	WriteHeader(w io.Writer) error
	WriteBody(w io.Writer) error
}

// base carries the header state shared by every result kind.
type base struct {
	frame    protocol.ResultFrame
	prepared bool
}

func newBase() base {
	return base{frame: protocol.ResultFrame{Status: protocol.StatusOK, Params: make(map[string]string)}}
}

func (b *base) Set(key, value string) {
	b.frame.Params[key] = value
}

func (b *base) SetError(message string) {
	b.frame.Status = protocol.StatusError
	b.frame.Message = message
}

func (b *base) Failed() bool {
	return b.frame.Status == protocol.StatusError
}

func (b *base) Frame() protocol.ResultFrame {
	return b.frame.Clone()
}

func (b *base) markPrepared() error {
	if b.prepared {
		return ErrAlreadyPrepared
	}
	b.prepared = true
	return nil
}

func (b *base) WriteHeader(w io.Writer) error {
	if !b.prepared {
		return ErrNotPrepared
	}
	_, err := io.WriteString(w, b.frame.Header())
	return err
}

// Simple is a header-only reply.
type Simple struct {
	base
}

// NewSimple returns an ok result with the given parameters.
func NewSimple(params map[string]string) *Simple {
	s := &Simple{base: newBase()}
	for k, v := range params {
		s.Set(k, v)
	}
	return s
}

// NewError returns a failed header-only result carrying err's message.
func NewError(err error) *Simple {
	s := &Simple{base: newBase()}
	s.SetError(err.Error())
	return s
}

func (s *Simple) Prepare() error {
	return s.markPrepared()
}

func (s *Simple) WriteBody(io.Writer) error {
	return nil
}

// Text carries an ordered list of lines.
type Text struct {
	base
	lines []string
}

func NewText(lines []string) *Text {
	return &Text{base: newBase(), lines: lines}
}

func (t *Text) Lines() []string { return t.lines }

// Prepare records "lines". A line holding CR or LF would break the count
// framing, so it fails the result with a codec error instead.
func (t *Text) Prepare() error {
	if err := t.markPrepared(); err != nil {
		return err
	}
	if t.Failed() {
		return nil
	}
	for i, line := range t.lines {
		if strings.ContainsAny(line, "\r\n") {
			err := fmt.Errorf("%w: text line %d contains a line break", matrix.ErrCodec, i+1)
			t.SetError(err.Error())
			return err
		}
	}
	t.Set("lines", strconv.Itoa(len(t.lines)))
	return nil
}

func (t *Text) WriteBody(w io.Writer) error {
	if !t.prepared {
		return ErrNotPrepared
	}
	if t.Failed() {
		return nil
	}
	for _, line := range t.lines {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Encoder is anything with a binary body form.
type Encoder interface {
	Encode() ([]byte, error)
}

// Compressor turns an encoded payload into the transmitted body.
type Compressor func([]byte) ([]byte, error)

// Binary carries a compressed encoded payload.
type Binary struct {
	base
	payload  Encoder
	compress Compressor
	body     []byte
}

func NewBinary(payload Encoder, compress Compressor) *Binary {
	return &Binary{base: newBase(), payload: payload, compress: compress}
}

// Prepare encodes and compresses the payload and records "bytes". A codec
// failure flips the result to an error and is also returned.
func (b *Binary) Prepare() error {
	if err := b.markPrepared(); err != nil {
		return err
	}
	if b.Failed() {
		return nil
	}
	raw, err := b.payload.Encode()
	if err != nil {
		b.SetError(err.Error())
		return err
	}
	body, err := b.compress(raw)
	if err != nil {
		b.SetError(err.Error())
		return err
	}
	b.body = body
	b.Set("bytes", strconv.Itoa(len(body)))
	return nil
}

// Len is the compressed body length; valid after Prepare.
func (b *Binary) Len() int { return len(b.body) }

func (b *Binary) WriteBody(w io.Writer) error {
	if !b.prepared {
		return ErrNotPrepared
	}
	if b.Failed() {
		return nil
	}
	n, err := w.Write(b.body)
	if err != nil {
		return err
	}
	if n != len(b.body) {
		return fmt.Errorf("result: short body write %d/%d: %w", n, len(b.body), io.ErrShortWrite)
	}
	return nil
}

// Write runs WriteHeader then WriteBody.
func Write(w io.Writer, r Result) error {
	if err := r.WriteHeader(w); err != nil {
		return err
	}
	return r.WriteBody(w)
}
