package protocol

import (
	"maps"
	"strings"
)

// Status is the outcome carried by a result header.
type Status int

const (
	StatusOK Status = iota
	StatusError
)

func (s Status) String() string {
	if s == StatusError {
		return "error"
	}
	return "ok"
}

// ResultFrame is the header half of a reply.
type ResultFrame struct {
	Status  Status
	Params  map[string]string
	Message string
}

// Header renders the frame as one newline-terminated line:
//
//	ok: key=value&key=value
//	error: message
func (f ResultFrame) Header() string {
	if f.Status == StatusError {
		return "error: " + oneLine(f.Message) + "\n"
	}
	return "ok: " + EncodeParams(f.Params) + "\n"
}

// RenderHeader is shorthand for f.Header().
func RenderHeader(f ResultFrame) string {
	return f.Header()
}

// ParseHeader is the client-side inverse of Header.
func ParseHeader(line string) (ResultFrame, error) {
	line = strings.TrimRight(line, "\r\n")
	status, rest, ok := strings.Cut(line, ":")
	if !ok {
		return ResultFrame{}, ErrMalformedCommand
	}
	rest = strings.TrimPrefix(rest, " ")
	switch status {
	case "ok":
		params, err := DecodeParams(rest)
		if err != nil {
			return ResultFrame{}, err
		}
		return ResultFrame{Status: StatusOK, Params: params}, nil
	case "error":
		return ResultFrame{Status: StatusError, Params: map[string]string{}, Message: rest}, nil
	default:
		return ResultFrame{}, ErrMalformedCommand
	}
}

// Clone returns a deep copy of the frame.
func (f ResultFrame) Clone() ResultFrame {
	out := f
	out.Params = make(map[string]string, len(f.Params))
	maps.Copy(out.Params, f.Params)
	return out
}

func oneLine(msg string) string {
	if !strings.ContainsAny(msg, "\r\n") {
		return msg
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(msg)
}
