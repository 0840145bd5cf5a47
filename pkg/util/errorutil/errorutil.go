package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
)

// Error codes surfaced by the sync pipeline.
const (
	CodeIntegrationUnavailable = "INTEGRATION_UNAVAILABLE"
	CodeExternalUnreachable    = "EXTERNAL_UNREACHABLE"
	CodeExternalRejected       = "EXTERNAL_REJECTED"
	CodeConfigurationInvalid   = "CONFIGURATION_INVALID"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Retryable  bool
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewIntegrationUnavailable signals that no usable integration matched, or
// the explicitly requested one is unusable. Never retried by this layer.
func NewIntegrationUnavailable(message string, details map[string]any) error {
	return NewDomainError(CodeIntegrationUnavailable, message, http.StatusConflict, details)
}

// NewExternalUnreachable signals a timeout or network failure against the
// platform. The whole creation is safe for the caller to retry.
func NewExternalUnreachable(err error, details map[string]any) error {
	return &DomainError{
		Code:       CodeExternalUnreachable,
		Message:    "external platform unreachable",
		HTTPStatus: http.StatusBadGateway,
		Details:    details,
		Retryable:  true,
		Err:        err,
	}
}

// NewExternalRejected carries a platform-side rejection verbatim. Not
// retryable.
func NewExternalRejected(message string, details map[string]any) error {
	return &DomainError{
		Code:       CodeExternalRejected,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

// NewConfigurationInvalid signals missing or malformed credential fields for
// the declared auth type. Raised at configuration time only.
func NewConfigurationInvalid(message string, details map[string]any) error {
	return NewDomainError(CodeConfigurationInvalid, message, http.StatusBadRequest, details)
}

// IsRetryable reports whether the caller may safely retry the operation.
func IsRetryable(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Retryable
	}
	return false
}

// HasCode reports whether err carries the given DomainError code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
