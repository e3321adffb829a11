package dispatch

import "errors"

var (
	// ErrShuttingDown is returned by submissions after Close.
	ErrShuttingDown = errors.New("dispatch: shutting down")

	// ErrEmptyScene is returned when a scene resolves to no commands.
	ErrEmptyScene = errors.New("dispatch: scene has no commands")
)
