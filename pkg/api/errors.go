package api

import (
	"errors"
	"fmt"
)

var (
	// ErrSeriesNotFound is returned when a series does not exist.
	ErrSeriesNotFound = errors.New("series not found")

	// ErrBlockNotFound is returned when a block does not exist in its
	// series. At runtime it terminates the affected Progress as failed
	// without consuming retry budget.
	ErrBlockNotFound = errors.New("block not found")

	// ErrProgressNotFound is returned when a progress record does not exist.
	ErrProgressNotFound = errors.New("progress not found")

	// ErrNoEmailAddress is the precondition failure raised by email
	// channels when the visitor has no email on file. Channels wrap it in
	// a recoverable error so the retry supervisor re-arms the block.
	ErrNoEmailAddress = errors.New("visitor has no email address")
)

// ValidationError reports a malformed definition: a dangling block or
// connection reference, an unknown block type, a malformed rule tree.
// Authoring operations raise it synchronously and never persist the
// offending change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError formats a ValidationError.
func NewValidationError(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// recoverableError marks an execution failure as retryable: the retry
// supervisor re-arms the block with a backoff instead of failing the
// Progress outright.
type recoverableError struct {
	err error
}

func (e *recoverableError) Error() string {
	return "recoverable: " + e.err.Error()
}

func (e *recoverableError) Unwrap() error {
	return e.err
}

// NewRecoverableError wraps err so the engine treats the failure as
// retryable. Channel implementations use it for unmet preconditions that
// may resolve on their own, such as a missing email address.
func NewRecoverableError(err error) error {
	if err == nil {
		return nil
	}
	return &recoverableError{err: err}
}

// IsRecoverableError reports whether err indicates a retryable failure.
func IsRecoverableError(err error) bool {
	var r *recoverableError
	return errors.As(err, &r)
}
