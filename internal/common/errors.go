// Package common defines the closed error taxonomy shared by every layer
// of the storage core. Each failure kind is a sentinel error; callers
// match kinds with errors.Is and never need to inspect internals.
package common

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks input rejected before any I/O was attempted
	// (size ceiling, MIME allowlist, malformed arguments).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent file, version, branch, blob or
	// upload session.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied marks a failed permission check.
	ErrAccessDenied = errors.New("access denied")

	// ErrIntegrity marks content that cannot be trusted: a virus scan
	// verdict other than clean, or a decompression algorithm tag that
	// does not match the stored data.
	ErrIntegrity = errors.New("integrity violation")

	// ErrConflict marks merge conflicts, duplicate branch names,
	// concurrent version-number races and similar collisions.
	ErrConflict = errors.New("conflict")

	// ErrBackend marks an I/O failure in the blob store or database.
	ErrBackend = errors.New("backend failure")

	// ErrCompression marks a failed compression attempt. It is always
	// recoverable: the caller stores the original bytes instead.
	ErrCompression = errors.New("compression failed")
)

// Error attaches a taxonomy kind and a human-readable reason to an
// optional underlying cause. It satisfies errors.Is for its kind, so
//
//	errors.Is(err, common.ErrNotFound)
//
// works regardless of how deeply the error is wrapped.
type Error struct {
	Kind   error
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a taxonomy error with a reason and no cause.
func NewError(kind error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError builds a taxonomy error around an underlying cause.
func WrapError(kind error, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// IsNotFound reports whether err carries the not-found kind. It is the
// most frequently tested kind, hence the dedicated helper.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Reason extracts the human-readable reason from a taxonomy error, or
// falls back to the error text for foreign errors.
func Reason(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
