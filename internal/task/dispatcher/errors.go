package dispatcher

import (
	"errors"
	"fmt"
)

var (
	ErrNilTask            = errors.New("task is nil")
	ErrNilAction          = errors.New("task action is nil")
	ErrNegativeRecurrence = errors.New("task recurrence must be >= 0")
	ErrAlreadyScheduled   = errors.New("task already scheduled")
	ErrStopped            = errors.New("dispatcher stopped")
)

// PanicError is returned for a task whose action panicked.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// IsPanic reports whether err comes from a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}
