package bytecode

import (
	"errors"
	"fmt"
)

// ErrOperandRange is returned when an operand does not fit its field.
var ErrOperandRange = errors.New("operand out of encodable range")

// InternalError reports a broken compiler or VM invariant. It is never caused
// by user code and must abort the current compile or run.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Msg
}

// Internalf builds an InternalError.
func Internalf(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
