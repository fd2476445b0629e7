package models

import "fmt"

// RequestValidationError reports malformed input to a boundary operation.
// Nothing is created or mutated when it is returned.
type RequestValidationError struct {
	Field   string
	Message string
}

func (e *RequestValidationError) Error() string {
	if e.Field == "" {
		return "invalid request: " + e.Message
	}
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Message)
}

// InvalidRequest is a shorthand for building a [RequestValidationError].
func InvalidRequest(field, format string, args ...any) error {
	return &RequestValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
