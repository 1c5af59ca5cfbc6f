package explain

import "fmt"

// Error represents a card or receipt generation failure
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("explain error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("explain error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
