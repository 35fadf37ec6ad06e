package llm

import (
	"errors"
	"fmt"
)

// TransientError marks a failure worth retrying: rate limits, 5xx responses,
// dropped connections, deadline hiccups on the remote side.
type TransientError struct {
	Op     string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: transient failure (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is surfaced to the caller without retry.
type PermanentError struct {
	Op     string
	Status int
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: permanent failure (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: permanent failure: %v", e.Op, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// classifyStatus maps an HTTP status to the error kind the retry layer expects.
func classifyStatus(op string, status int, body string) error {
	err := fmt.Errorf("unexpected status %d: %s", status, body)
	if status == 429 || status >= 500 {
		return &TransientError{Op: op, Status: status, Err: err}
	}
	return &PermanentError{Op: op, Status: status, Err: err}
}

var errNoEmbedder = errors.New("wrapped provider does not implement Embedder")
