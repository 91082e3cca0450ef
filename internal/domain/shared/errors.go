package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so that
// errors carrying a specific message still match the sentinel of their kind.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes of the workflow error taxonomy
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeUnauthorizedAction  = "UNAUTHORIZED_ACTION"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeMisconfigured       = "WORKFLOW_MISCONFIGURED"
	CodeNotFound            = "NOT_FOUND"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidTransition   = NewDomainError(CodeInvalidTransition, "Status change not permitted from current state")
	ErrUnauthorized        = NewDomainError(CodeUnauthorizedAction, "Not authorized to perform this action")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrMisconfigured       = NewDomainError(CodeMisconfigured, "Workflow is not configured for this organization")
)

// NewValidationError returns a ValidationError with a specific message
func NewValidationError(message string) *DomainError {
	return NewDomainError(CodeValidation, message)
}

// NewInvalidTransitionError returns an InvalidTransition error with a specific message
func NewInvalidTransitionError(message string) *DomainError {
	return NewDomainError(CodeInvalidTransition, message)
}

// NewUnauthorizedError returns an Unauthorized error with a specific message
func NewUnauthorizedError(message string) *DomainError {
	return NewDomainError(CodeUnauthorizedAction, message)
}

// NewConfigurationError returns a ConfigurationError with a specific message
func NewConfigurationError(message string) *DomainError {
	return NewDomainError(CodeMisconfigured, message)
}

// IsConflict reports whether err is a persistence conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
