package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrInvalid
	ErrNotFound
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrNoPatient
	ErrUpstream
	ErrAIUnavailable
)
