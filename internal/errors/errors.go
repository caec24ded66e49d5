package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	// ErrCodeTransient marks failures expected to succeed on retry
	// (network timeouts, rate limits, temporary unavailability).
	ErrCodeTransient ErrCode = "TRANSIENT"
	// ErrCodePermanent marks failures that must never be retried
	// (auth failures, missing repositories, malformed input).
	ErrCodePermanent ErrCode = "PERMANENT"
	// ErrCodeStateCorrupt marks an unreadable or malformed scan state file.
	ErrCodeStateCorrupt ErrCode = "STATE_CORRUPT"
	// ErrCodeCredentialUnavailable marks an organization with no usable token.
	ErrCodeCredentialUnavailable ErrCode = "CREDENTIAL_UNAVAILABLE"
	// ErrCodeAlreadyExists marks an attempt to initialize state that already has progress.
	ErrCodeAlreadyExists ErrCode = "ALREADY_EXISTS"
	ErrCodeNotFound      ErrCode = "NOT_FOUND"
	ErrCodeBadRequest    ErrCode = "BAD_REQUEST"
	ErrCodeInternal      ErrCode = "INTERNAL_ERROR"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a retry-eligible error
func NewTransientError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: message, Err: err}
}

// NewPermanentError creates a non-retryable error
func NewPermanentError(message string, err error) *AppError {
	return &AppError{Code: ErrCodePermanent, Message: message, Err: err}
}

// NewStateCorruptError creates a corrupt-state error
func NewStateCorruptError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeStateCorrupt, Message: message, Err: err}
}

// NewCredentialUnavailableError creates a missing-credential error
func NewCredentialUnavailableError(org string) *AppError {
	return &AppError{
		Code:    ErrCodeCredentialUnavailable,
		Message: fmt.Sprintf("no credential available for organization %s", org),
	}
}

// NewAlreadyExistsError creates an already-exists error
func NewAlreadyExistsError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeAlreadyExists,
		Message: fmt.Sprintf("%s already exists", resource),
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewBadRequestError creates a new bad request error
func NewBadRequestError(message string) *AppError {
	return &AppError{Code: ErrCodeBadRequest, Message: message}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Err: err}
}

func hasCode(err error, code ErrCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// IsTransient checks if the error is retry-eligible
func IsTransient(err error) bool { return hasCode(err, ErrCodeTransient) }

// IsStateCorrupt checks if the error is a corrupt-state error
func IsStateCorrupt(err error) bool { return hasCode(err, ErrCodeStateCorrupt) }

// IsCredentialUnavailable checks if the error is a missing-credential error
func IsCredentialUnavailable(err error) bool { return hasCode(err, ErrCodeCredentialUnavailable) }

// IsAlreadyExists checks if the error is an already-exists error
func IsAlreadyExists(err error) bool { return hasCode(err, ErrCodeAlreadyExists) }

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsBadRequest checks if the error is a bad request error
func IsBadRequest(err error) bool { return hasCode(err, ErrCodeBadRequest) }
