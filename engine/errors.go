package engine

import "errors"

// Error taxonomy. Callers match with errors.Is; the returned errors carry
// context wrapped around these sentinels.
var (
	// ErrCapacity means the requested entities cannot be laid out on the grid.
	ErrCapacity = errors.New("capacity exceeded")
	// ErrInvalidState means an agent or grid is inconsistent.
	ErrInvalidState = errors.New("invalid state")
	// ErrNoActiveSession means a move was requested before any grid was generated.
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidParams means generation parameters are out of range.
	ErrInvalidParams = errors.New("invalid parameters")
)
