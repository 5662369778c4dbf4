package protocol

import "errors"

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrInvalidEscape    = errors.New("protocol: invalid percent escape")
)
