package errors

import "fmt"

// ErrorCode represents an nbaudit error code.
type ErrorCode string

const (
	ErrResourceUnavailable ErrorCode = "RESOURCE_UNAVAILABLE" // 424
	ErrNoTextDetected      ErrorCode = "NO_TEXT_DETECTED"     // 422
	ErrParseFailure        ErrorCode = "PARSE_FAILURE"        // 400
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"      // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"            // 404
	ErrInternal            ErrorCode = "INTERNAL"             // 500
)

// AuditError represents a structured error with code, status, and details.
type AuditError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	// cause is the underlying error, if any. Not exposed through MCP or CLI output.
	cause error
}

// Error implements the error interface.
func (e *AuditError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AuditError) Unwrap() error {
	return e.cause
}

// NewResourceUnavailable creates an error for an image that could not be
// fetched, decoded, or drawn.
func NewResourceUnavailable(src string, cause error) *AuditError {
	msg := fmt.Sprintf("image unavailable: %s", src)
	if cause != nil {
		msg = fmt.Sprintf("image unavailable: %s: %v", src, cause)
	}
	return &AuditError{
		Code:    ErrResourceUnavailable,
		Status:  424,
		Message: msg,
		Details: map[string]any{"src": src},
		cause:   cause,
	}
}

// NewNoTextDetected creates an error for OCR runs that found no usable words.
func NewNoTextDetected(src string) *AuditError {
	return &AuditError{
		Code:    ErrNoTextDetected,
		Status:  422,
		Message: fmt.Sprintf("no text detected in image: %s", src),
		Details: map[string]any{"src": src},
	}
}

// NewParseFailure creates a 400 error for malformed colors or markup.
func NewParseFailure(what, input string) *AuditError {
	return &AuditError{
		Code:    ErrParseFailure,
		Status:  400,
		Message: fmt.Sprintf("malformed %s: %q", what, input),
		Details: map[string]any{"input": input},
	}
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *AuditError {
	return &AuditError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing notebook or cell.
func NewNotFound(identifier string) *AuditError {
	return &AuditError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *AuditError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &AuditError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if an error is an AuditError with the given code.
func Is(err error, code ErrorCode) bool {
	if aErr, ok := err.(*AuditError); ok {
		return aErr.Code == code
	}
	return false
}
