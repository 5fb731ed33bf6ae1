// Package errors defines the structured error type used across tagnest.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/conneroisu/tagnest/internal/tagmatch"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeWatch      ErrorType = "watch"
	ErrorTypeInternal   ErrorType = "internal"
)

// TagnestError is a structured error type with context.
type TagnestError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *TagnestError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *TagnestError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *TagnestError) Is(target error) bool {
	var t *TagnestError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *TagnestError) WithContext(key string, value interface{}) *TagnestError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *TagnestError) WithLocation(filePath string, line, column int) *TagnestError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *TagnestError {
	return &TagnestError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *TagnestError {
	return &TagnestError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *TagnestError {
	return &TagnestError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewWatchError creates a file watching error.
func NewWatchError(code, message string, cause error) *TagnestError {
	return &TagnestError{
		Type:        ErrorTypeWatch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *TagnestError {
	return &TagnestError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var te *TagnestError
	if errors.As(err, &te) {
		return te.Recoverable
	}

	return false
}

// IsInputUnavailable reports whether err means a document could not be read.
func IsInputUnavailable(err error) bool {
	if errors.Is(err, tagmatch.ErrInputUnavailable) {
		return true
	}
	var te *TagnestError
	if errors.As(err, &te) {
		return te.Code == ErrCodeInputUnavailable
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level chosen by its type.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var te *TagnestError
	if !errors.As(err, &te) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	switch te.Type {
	case ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Document failed validation",
			"code", te.Code,
			"file", te.FilePath,
			"line", te.Line,
			"column", te.Column)
	case ErrorTypeWatch:
		h.logger.Warn(ctx, err, "Watch error occurred",
			"code", te.Code,
			"file", te.FilePath)
	case ErrorTypeIO:
		h.logger.Error(ctx, err, "Input error occurred",
			"code", te.Code,
			"file", te.FilePath)
	default:
		h.logger.Error(ctx, err, "Error occurred",
			"type", te.Type,
			"code", te.Code)
	}
}

// Common error codes.
const (
	ErrCodeInputUnavailable = "ERR_INPUT_UNAVAILABLE"
	ErrCodeInputTooLarge    = "ERR_INPUT_TOO_LARGE"
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeDocumentInvalid  = "ERR_DOCUMENT_INVALID"
	ErrCodeNestingMismatch  = "ERR_NESTING_MISMATCH"
	ErrCodeUnexpectedClose  = "ERR_UNEXPECTED_CLOSING_TAG"
	ErrCodeMissingClose     = "ERR_MISSING_CLOSING_TAG"
	ErrCodeWatchFailed      = "ERR_WATCH_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// FromDiagnostic converts a matcher diagnostic for file path into a
// validation error.
func FromDiagnostic(path string, d tagmatch.Diagnostic) *TagnestError {
	code := ErrCodeDocumentInvalid
	switch d.Kind {
	case tagmatch.NestingMismatch:
		code = ErrCodeNestingMismatch
	case tagmatch.UnexpectedClosingTag:
		code = ErrCodeUnexpectedClose
	case tagmatch.MissingClosingTag:
		code = ErrCodeMissingClose
	}

	err := NewValidationError(code, d.String()).
		WithLocation(path, d.Line, d.Column).
		WithContext("tag", d.Tag)
	if d.Expected != "" {
		err.WithContext("expected", d.Expected)
	}
	return err
}

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *TagnestError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrInputUnavailable creates an error for a document that cannot be read.
func ErrInputUnavailable(path string, cause error) *TagnestError {
	return NewIOError(ErrCodeInputUnavailable, "input unavailable", cause).
		WithLocation(path, 0, 0)
}
