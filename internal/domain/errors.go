package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderTransient = errors.New("provider temporarily unavailable")
	ErrProviderPermanent = errors.New("provider failure")
	ErrStorageFailure    = errors.New("storage failure")
	ErrTimeout           = errors.New("timed out")
	ErrJobFinalized      = errors.New("job already finalized")
	ErrInvalidTransition = errors.New("invalid status transition")
)
