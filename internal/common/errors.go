package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Pipeline error taxonomy. A stage error wraps exactly one of these so the
// orchestrator and retry loop can classify it with errors.Is.
var (
	// ErrInput marks an undecodable document; fatal for that document only.
	ErrInput = errors.New("undecodable input document")
	// ErrOCREngine marks an OCR backend failure; fatal for the document, not retried.
	ErrOCREngine = errors.New("ocr engine failure")
	// ErrTransientService marks a structuring-collaborator network/timeout
	// failure; retried per the backoff policy.
	ErrTransientService = errors.New("transient service failure")
	// ErrSchemaValidation marks a structuring response that fails schema or
	// arithmetic invariants; recovered locally, never propagated.
	ErrSchemaValidation = errors.New("schema validation failed")
	// ErrConfiguration marks missing required settings; fatal at startup.
	ErrConfiguration = errors.New("invalid configuration")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// FieldViolation reports a record field that breaks a schema or arithmetic
// invariant, with the expected and observed values.
type FieldViolation struct {
	Field    string
	Expected string
	Actual   string
}

func (e *FieldViolation) Error() string {
	return fmt.Sprintf("field %q violates invariant: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

func (e *FieldViolation) Unwrap() error { return ErrSchemaValidation }
