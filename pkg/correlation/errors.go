package correlation

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateSubmission = errors.New("submission already has a thread")
	ErrUnknownThread       = errors.New("unknown thread")
	ErrAlreadyRelayed      = errors.New("thread already relayed")
	ErrNotRelayed          = errors.New("thread not relayed")
	ErrIdentifierCollision = errors.New("message identifier already correlated")
)

// InvariantError marks a violated data-model invariant, as opposed to a
// transient platform or filesystem failure.
type InvariantError struct {
	Op       string
	ThreadID string
	Err      error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("correlation %s %s: %v", e.Op, e.ThreadID, e.Err)
}

func (e *InvariantError) Unwrap() error { return e.Err }

func invariant(op, id string, err error) error {
	return &InvariantError{Op: op, ThreadID: id, Err: err}
}

// IsInvariant reports whether err carries an InvariantError.
func IsInvariant(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
