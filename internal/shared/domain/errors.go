package domain

import "errors"

// Error kinds shared by every bounded context. Context errors wrap exactly
// one kind so transports can classify them with errors.Is.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrInvalid   = errors.New("invalid")
	ErrTransient = errors.New("transient failure")
)

// ErrConcurrentModification is returned when a versioned write loses a race.
// It is transient: re-reading and re-applying the change is safe.
var ErrConcurrentModification = NewError(ErrTransient, "concurrent modification")

type kindedError struct {
	kind error
	msg  string
}

func (e *kindedError) Error() string { return e.msg }
func (e *kindedError) Unwrap() error { return e.kind }

// NewError creates a sentinel error of the given kind.
func NewError(kind error, msg string) error {
	return &kindedError{kind: kind, msg: msg}
}

// IsRetryable reports whether the operation may succeed if attempted again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
