package types

import (
	"errors"
	"fmt"
)

// ErrPort matches every PortError with errors.Is.
var ErrPort = errors.New("source repository failure")

// PortError reports that the source repository could not complete an operation.
type PortError struct {
	Err error
	Op  string // e.g. "list issues", "add label"
}

// NewPortError wraps err as a failure of the named operation.
func NewPortError(op string, err error) *PortError {
	return &PortError{Op: op, Err: err}
}

func (e *PortError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PortError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPort) match any PortError.
func (*PortError) Is(target error) bool {
	return target == ErrPort
}
