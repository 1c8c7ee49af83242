package physics

import "errors"

var (
	// ErrWorldFull is returned by CreateBody when the configured body limit
	// is reached. Callers can retry after destroying bodies.
	ErrWorldFull = errors.New("physics: world body limit reached")
	// ErrBodyReleased is returned when an operation targets a body that has
	// already been destroyed.
	ErrBodyReleased = errors.New("physics: body released")
	// ErrNoBackend is returned when a world is constructed without a solver
	// backend.
	ErrNoBackend = errors.New("physics: no backend")
	// ErrUnknownHandle is returned by backends for operations on handles
	// they did not issue.
	ErrUnknownHandle = errors.New("physics: unknown body handle")
)
