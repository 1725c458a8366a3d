package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"        // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"   // Authentication required
	EFORBIDDEN    = "forbidden"      // Permission denied
	ENOTFOUND     = "not_found"      // Resource not found
	ECONFLICT     = "conflict"       // Resource conflict (e.g., duplicate)
	EINVALIDSTATE = "invalid_state"  // Illegal state transition
	EQUOTA        = "quota_exceeded" // Plan quota exhausted
	EPAYMENT      = "payment"        // Subscription inactive, renewal required
	EUNAVAILABLE  = "unavailable"    // Transient failure, safe to retry after re-checking state
	EINTERNAL     = "internal"       // Internal server error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "connection.request")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return EQUOTA
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return EINVALID
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.Message()
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return "Please correct the highlighted fields."
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.Op
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// IsRetryable reports whether the caller may retry after re-checking state.
func IsRetryable(err error) bool {
	return ErrorCode(err) == EUNAVAILABLE
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Unavailable creates a transient error. The gated action may or may not
// have committed, so callers must re-read state before retrying.
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// SubscriptionInactive blocks a gated action for an expired or cancelled subscription.
func SubscriptionInactive(op string, status SubscriptionStatus) *Error {
	return &Error{
		Code:    EPAYMENT,
		Op:      op,
		Message: fmt.Sprintf("Your subscription is %s. Renew it to continue.", status),
	}
}

// ConnectionAlreadyExists reports a pending or approved connection for the pair.
func ConnectionAlreadyExists(op string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: "A connection between these users already exists",
	}
}

// ConnectionStateInvalid reports an illegal connection transition.
func ConnectionStateInvalid(op, message string) *Error {
	return &Error{
		Code:    EINVALIDSTATE,
		Op:      op,
		Message: message,
	}
}

// QuotaError is returned when a gated action would exceed the plan limit.
// It carries the numbers the client needs to explain the block.
type QuotaError struct {
	Op       string
	Resource ResourceKind
	Tier     PlanTier
	Limit    int
	Used     int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s: %s quota exceeded (used %d of %d)", e.Op, e.Resource, e.Used, e.Limit)
}

// Message returns the user-facing explanation.
func (e *QuotaError) Message() string {
	return fmt.Sprintf("Your %s plan allows %d %s. Upgrade your plan or wait for the next reset.",
		e.Tier.DisplayName(), e.Limit, e.Resource.Noun())
}

// QuotaExceeded creates a quota error.
func QuotaExceeded(op string, resource ResourceKind, tier PlanTier, used, limit int) *QuotaError {
	return &QuotaError{
		Op:       op,
		Resource: resource,
		Tier:     tier,
		Limit:    limit,
		Used:     used,
	}
}

// AsQuotaError extracts a QuotaError from the chain.
func AsQuotaError(err error) (*QuotaError, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

// AddFieldError adds a field error to an existing validation error.
// If err is not a ValidationError, returns a new one.
func AddFieldError(err error, field, message string) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}
	return NewValidationError("", field, message)
}
