package source

import "errors"

var (
	ErrUnknownSource     = errors.New("unknown source")
	ErrUnknownKind       = errors.New("unknown source kind")
	ErrSourceInitFailed  = errors.New("source initialization failed")
	ErrMismatchedSeries  = errors.New("mismatched series")
	ErrBackingStore      = errors.New("backing store error")
	ErrInvalidDescriptor = errors.New("invalid source descriptor")
	ErrSourceExists      = errors.New("source already registered")
	ErrKindExists        = errors.New("source kind already registered")
	ErrInvalidParameter  = errors.New("invalid parameter")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrRowLimitExceeded  = errors.New("row limit exceeded")
)
