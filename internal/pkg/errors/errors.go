package errors

import "errors"

var (
	ErrConfiguration = errors.New("configuration")
	ErrInvalid       = errors.New("invalid")
	ErrNotFound      = errors.New("not found")
	ErrUpstream      = errors.New("upstream call failed")
	ErrUnknownTool   = errors.New("unknown tool")
	ErrNoPatient     = errors.New("no patient loaded")
	ErrIndexEmpty    = errors.New("vector index is empty")
	ErrDimension     = errors.New("embedding dimension mismatch")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
