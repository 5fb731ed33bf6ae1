package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Wrap wraps an error with additional context, creating a TagnestError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *TagnestError {
	if err == nil {
		return nil
	}

	var te *TagnestError
	if errors.As(err, &te) {
		return &TagnestError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       te,
			Context:     te.Context,
			FilePath:    te.FilePath,
			Line:        te.Line,
			Column:      te.Column,
			Recoverable: te.Recoverable,
		}
	}

	return &TagnestError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeWatch,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *TagnestError {
	te := Wrap(err, ErrorTypeIO, code, message)
	if te != nil {
		te.Recoverable = false
	}
	return te
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *TagnestError {
	te := Wrap(err, ErrorTypeConfig, code, message)
	if te != nil {
		te.Recoverable = false
	}
	return te
}

// FormatError renders err for terminal output, one cause per line.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var te *TagnestError
	if !errors.As(err, &te) {
		return err.Error()
	}

	var b strings.Builder
	if te.Code != "" {
		fmt.Fprintf(&b, "%s: ", te.Code)
	}
	b.WriteString(te.Message)
	if te.FilePath != "" {
		fmt.Fprintf(&b, "\n  at %s", te.FilePath)
		if te.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", te.Line, te.Column)
		}
	}
	if te.Cause != nil {
		fmt.Fprintf(&b, "\n  caused by: %v", te.Cause)
	}
	return b.String()
}

// CombineErrors joins the non-nil errors in errs; it returns nil when there
// are none.
func CombineErrors(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}

	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return errors.Join(nonNil...)
	}
}
