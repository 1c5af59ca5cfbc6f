package signing

import "fmt"

// Error represents a canonicalization or signing failure
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("signing error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("signing error: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}
