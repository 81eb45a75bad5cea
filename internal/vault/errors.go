package vault

import (
	"errors"
	"fmt"
)

// Error kinds. Each *Error matches its Kind via errors.Is.
var (
	// ErrWriteFailed: secure storage is unavailable or the access-control
	// policy could not be applied.
	ErrWriteFailed = errors.New("vault write failed")

	// ErrAuthFailed: authentication was declined, cancelled or wrong, or the
	// authenticator returned an ambiguous error. Retryable by re-prompting.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrAuthUnavailable: no authentication method is enrolled.
	ErrAuthUnavailable = errors.New("authentication unavailable")

	// ErrNotFound: the vault holds no secret.
	ErrNotFound = errors.New("no secret stored")

	// ErrReadFailed: authentication succeeded but the secret could not be
	// read or unsealed.
	ErrReadFailed = errors.New("vault read failed")
)

// Error wraps a vault failure with the operation and its kind.
type Error struct {
	Op   string // "store", "retrieve", "wipe"
	Kind error  // one of the Err* kinds above
	Err  error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("vault %s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("vault %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func newError(op string, kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Retryable reports whether err can be resolved by prompting again.
// Only ErrAuthFailed is retryable.
func Retryable(err error) bool {
	return errors.Is(err, ErrAuthFailed)
}
