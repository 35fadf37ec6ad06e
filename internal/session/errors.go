package session

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// StateInvariantError reports an internal inconsistency in session state.
// The store panics with it; it indicates a bug, not bad input.
type StateInvariantError struct {
	SessionID string
	Detail    string
}

func (e *StateInvariantError) Error() string {
	return fmt.Sprintf("session %s: state invariant violated: %s", e.SessionID, e.Detail)
}
