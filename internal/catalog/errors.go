package catalog

import "errors"

// Domain errors for the catalog package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, catalog.ErrShadeNotFound) {
//	    // handle not found case
//	}
var (
	// ErrShadeNotFound is returned when a shade ID does not exist.
	ErrShadeNotFound = errors.New("catalog: shade not found")

	// ErrShadeExists is returned when creating a shade with an ID or
	// remote/channel pair that already exists.
	ErrShadeExists = errors.New("catalog: shade already exists")

	// ErrSceneNotFound is returned when a scene name does not exist.
	ErrSceneNotFound = errors.New("catalog: scene not found")

	// ErrInvalidShade is returned when shade validation fails.
	ErrInvalidShade = errors.New("catalog: invalid shade")

	// ErrInvalidScene is returned when scene validation fails.
	ErrInvalidScene = errors.New("catalog: invalid scene")

	// ErrInvalidAction is returned when an action value is not recognised.
	ErrInvalidAction = errors.New("catalog: invalid action")

	// ErrCodeUnmapped is returned when a shade has no RF code for the
	// requested action.
	ErrCodeUnmapped = errors.New("catalog: no code for action")
)
