package audit

import "fmt"

// Error represents an audit sink failure
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("audit error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("audit error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
