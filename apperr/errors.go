// Package apperr defines the error taxonomy shared by the store, the
// prediction service and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeConflict      = "CONFLICT"
	CodeAuth          = "AUTH_ERROR"
	CodeConfiguration = "CONFIG_INVALID"
	CodeStorage       = "DATABASE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeInternal      = "INTERNAL_ERROR"
)

// AppError is a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError
func New(code, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches a message to err, keeping the code of an inner AppError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: err}
	}
	return &AppError{Code: CodeInternal, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// Code returns the code of the outermost AppError in err's chain, or
// CodeInternal.
func Code(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code
func Is(err error, code string) bool {
	return err != nil && Code(err) == code
}

// Message returns the user facing message of err. Causes stay in logs.
func Message(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func Validation(message string) *AppError {
	return New(CodeValidation, message)
}

func Validationf(format string, args ...interface{}) *AppError {
	return New(CodeValidation, fmt.Sprintf(format, args...))
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message)
}

func Auth(message string) *AppError {
	return New(CodeAuth, message)
}

func Configuration(message string, cause error) *AppError {
	return &AppError{Code: CodeConfiguration, Message: message, Cause: cause}
}

func Storage(message string, cause error) *AppError {
	return &AppError{Code: CodeStorage, Message: message, Cause: cause}
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// Result is the (success, message) pair surfaced to callers
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToResult converts an operation outcome into a Result.
func ToResult(err error, okMessage string) Result {
	if err != nil {
		return Result{Success: false, Message: Message(err)}
	}
	return Result{Success: true, Message: okMessage}
}
