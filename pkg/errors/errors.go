package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// Domain errors
	ErrorTypeValidation ErrorType = "VALIDATION"
	ErrorTypeNotFound   ErrorType = "NOT_FOUND"
	ErrorTypeConflict   ErrorType = "CONFLICT"

	// Governance errors
	ErrorTypePolicyViolation ErrorType = "POLICY_VIOLATION"
	ErrorTypeBudgetExceeded  ErrorType = "BUDGET_EXCEEDED"

	// Agent execution errors
	ErrorTypeTaskFailed    ErrorType = "TASK_FAILED"
	ErrorTypeTaskTimeout   ErrorType = "TASK_TIMEOUT"
	ErrorTypeTaskCancelled ErrorType = "TASK_CANCELLED"

	// Application errors
	ErrorTypeInternal    ErrorType = "INTERNAL"
	ErrorTypeUnavailable ErrorType = "UNAVAILABLE"

	// Infrastructure errors
	ErrorTypeDatabase ErrorType = "DATABASE"
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError represents an application-specific error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails adds error details
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewPolicyViolationError creates a governance rejection error.
// The reason is surfaced to the caller verbatim.
func NewPolicyViolationError(reason string) *AppError {
	return &AppError{
		Type:       ErrorTypePolicyViolation,
		Message:    reason,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewBudgetExceededError creates a budget exhaustion error
func NewBudgetExceededError(tenantID string, estimated float64) *AppError {
	return &AppError{
		Type:       ErrorTypeBudgetExceeded,
		Message:    fmt.Sprintf("tenant %s has insufficient budget for estimated cost %.4f", tenantID, estimated),
		HTTPStatus: http.StatusPaymentRequired,
		Details: map[string]interface{}{
			"tenant_id":      tenantID,
			"estimated_cost": estimated,
		},
	}
}

// NewTaskFailedError creates a terminal agent task failure error
func NewTaskFailedError(taskID, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeTaskFailed,
		Message:    fmt.Sprintf("agent task %s failed: %s", taskID, message),
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewTaskTimeoutError creates an error for a task that never reached a terminal status
func NewTaskTimeoutError(taskID string, attempts int) *AppError {
	return &AppError{
		Type:       ErrorTypeTaskTimeout,
		Message:    fmt.Sprintf("agent task %s did not complete after %d poll attempts", taskID, attempts),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// NewTaskCancelledError creates an error for a task cancelled by the execution backend
func NewTaskCancelledError(taskID string) *AppError {
	return &AppError{
		Type:       ErrorTypeTaskCancelled,
		Message:    fmt.Sprintf("agent task %s was cancelled", taskID),
		HTTPStatus: http.StatusConflict,
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewDatabaseError creates a database error
func NewDatabaseError(operation string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeDatabase,
		Message:    fmt.Sprintf("database operation failed: %s", operation),
		Cause:      err,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewExternalError creates an error for a failed external service call
func NewExternalError(service string, err error) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Message:    fmt.Sprintf("external service %s failed", service),
		Cause:      err,
		HTTPStatus: http.StatusBadGateway,
	}
}

// GetAppError extracts an AppError from an error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr := GetAppError(err); appErr != nil {
		return appErr.Type == errorType
	}
	return false
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

// IsPolicyViolation checks if an error is a governance rejection
func IsPolicyViolation(err error) bool {
	return IsType(err, ErrorTypePolicyViolation)
}

// IsBudgetExceeded checks if an error is a budget exhaustion error
func IsBudgetExceeded(err error) bool {
	return IsType(err, ErrorTypeBudgetExceeded)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return IsType(err, ErrorTypeConflict)
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// Wrapf wraps an error with formatted message
func Wrapf(err error, format string, args ...interface{}) error {
	return Wrap(err, fmt.Sprintf(format, args...))
}
