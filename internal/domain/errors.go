package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation errors (VALIDATION_*) - caller input malformed, never retried
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationCurrency      ErrorCode = "VALIDATION_CURRENCY_NOT_ALLOWED"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Order errors (ORDER_*)
	ErrorCodeOrderCreationFailed ErrorCode = "ORDER_CREATION_FAILED"

	// Payment attempt errors (ATTEMPT_*)
	ErrorCodeAttemptNotFound     ErrorCode = "ATTEMPT_NOT_FOUND"
	ErrorCodeAttemptInvalidState ErrorCode = "ATTEMPT_INVALID_STATE"
	ErrorCodeAttemptInFlight     ErrorCode = "ATTEMPT_ALREADY_IN_FLIGHT"

	// Gateway errors (GATEWAY_*)
	ErrorCodeUnsupportedMethod  ErrorCode = "GATEWAY_UNSUPPORTED_METHOD"
	ErrorCodeGatewayError       ErrorCode = "GATEWAY_ERROR"
	ErrorCodeCallbackAuthFailed ErrorCode = "GATEWAY_CALLBACK_AUTH_FAILED"
	ErrorCodeMalformedPayload   ErrorCode = "GATEWAY_MALFORMED_PAYLOAD"

	// Billing system errors (BILLING_*)
	ErrorCodeUpstreamUnavailable ErrorCode = "BILLING_UPSTREAM_UNAVAILABLE"
	ErrorCodeInvoiceNotFound     ErrorCode = "BILLING_INVOICE_NOT_FOUND"
	ErrorCodeAlreadyCaptured     ErrorCode = "BILLING_ALREADY_CAPTURED"
	ErrorCodeCaptureFailed       ErrorCode = "BILLING_CAPTURE_FAILED"

	// Concurrency errors (CONFLICT_*)
	ErrorCodeConcurrentConflict ErrorCode = "CONFLICT_CONCURRENT_TRANSITION"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeLedgerError   ErrorCode = "INTERNAL_LEDGER_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail returns a copy of the error with the detail added. The shared
// sentinel instances are handed out on concurrent request paths, so the
// receiver is never mutated.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{
		Err:     e.Err,
		Details: details,
		Code:    e.Code,
		Message: e.Message,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationCurrency ||
		code == ErrorCodeValidationMissingField
}

// IsRetriable checks if an error represents a transient upstream condition
// that the caller may retry with backoff
func IsRetriable(err error) bool {
	return GetErrorCode(err) == ErrorCodeUpstreamUnavailable
}

// Structured error instances
var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "amount must be greater than zero")
	ErrValidationCurrency      = NewDomainError(ErrorCodeValidationCurrency, "currency is not in the configured allow-list")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrAttemptNotFound     = NewDomainError(ErrorCodeAttemptNotFound, "payment attempt not found")
	ErrAttemptInvalidState = NewDomainError(ErrorCodeAttemptInvalidState, "payment attempt is in invalid state for this operation")
	ErrAttemptInFlight     = NewDomainError(ErrorCodeAttemptInFlight, "another payment attempt is already in flight for this invoice")

	ErrUnsupportedMethod  = NewDomainError(ErrorCodeUnsupportedMethod, "unsupported payment method")
	ErrCallbackAuthFailed = NewDomainError(ErrorCodeCallbackAuthFailed, "callback authentication failed")
	ErrMalformedPayload   = NewDomainError(ErrorCodeMalformedPayload, "gateway payload could not be parsed")

	ErrUpstreamUnavailable = NewDomainError(ErrorCodeUpstreamUnavailable, "billing system unavailable")
	ErrInvoiceNotFound     = NewDomainError(ErrorCodeInvoiceNotFound, "invoice not found")
	ErrAlreadyCaptured     = NewDomainError(ErrorCodeAlreadyCaptured, "invoice already captured")

	ErrConcurrentConflict = NewDomainError(ErrorCodeConcurrentConflict, "concurrent state transition conflict")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal error")
)
