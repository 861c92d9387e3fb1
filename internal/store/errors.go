package store

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes configuration errors.
type ErrorCode string

const (
	// ErrCodeUnregisteredContainer indicates a transaction touched a
	// container that was never registered.
	ErrCodeUnregisteredContainer ErrorCode = "UNREGISTERED_CONTAINER"
)

// ConfigurationError reports a misuse of the Store detected before any
// state was changed.
type ConfigurationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Index is the position of the offending container in the call, or -1.
	Index int
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s: %s (container #%d)", e.Code, e.Message, e.Index)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func newUnregisteredError(index int) *ConfigurationError {
	return &ConfigurationError{
		Code:    ErrCodeUnregisteredContainer,
		Message: "container used for transaction is not registered",
		Index:   index,
	}
}
