package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode represents a semantic classification shared across transport layers.
type ErrorCode string

const (
	ErrCodeNotFound     ErrorCode = "NOT_FOUND"
	ErrCodeInvalid      ErrorCode = "INVALID"
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeForbidden    ErrorCode = "FORBIDDEN"
	ErrCodeUnauthorized ErrorCode = "UNAUTHORIZED"
	ErrCodeUnverified   ErrorCode = "UNVERIFIED"
	ErrCodeUnavailable  ErrorCode = "UNAVAILABLE"
	ErrCodeInternal     ErrorCode = "INTERNAL"
)

// Error represents a domain-level error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches domain errors by code and message so wrapped sentinels compare equal.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewError builds a domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with a domain classification.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain errors.
var (
	ErrUserNotFound         = NewError(ErrCodeNotFound, "user not found")
	ErrSessionNotFound      = NewError(ErrCodeNotFound, "session not found")
	ErrSessionCorrupt       = NewError(ErrCodeInvalid, "persisted session is unreadable")
	ErrUnauthorized         = NewError(ErrCodeUnauthorized, "unauthorized")
	ErrInvalidCredentials   = NewError(ErrCodeUnauthorized, "invalid email or password")
	ErrUnverified           = NewError(ErrCodeUnverified, "account email is not verified")
	ErrAccountDisabled      = NewError(ErrCodeForbidden, "account is disabled")
	ErrForbidden            = NewError(ErrCodeForbidden, "forbidden")
	ErrInvalidPayload       = NewError(ErrCodeInvalid, "invalid payload")
	ErrEmailTaken           = NewError(ErrCodeConflict, "email is already registered")
	ErrAlreadyAuthenticated = NewError(ErrCodeConflict, "already signed in")
	ErrSuperseded           = NewError(ErrCodeConflict, "request superseded by a newer one")
	ErrVerificationExpired  = NewError(ErrCodeNotFound, "verification link is invalid or expired")
	ErrUnavailable          = NewError(ErrCodeUnavailable, "identity service is unreachable, please try again")
	ErrUnexpected           = NewError(ErrCodeInternal, "an unexpected error occurred")
)

// IsDomainError helps checking error codes.
func IsDomainError(err error, code ErrorCode) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// Classify normalizes any error into a user-presentable domain error.
// Actionable codes keep their message; everything else becomes ErrUnexpected.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrUnavailable
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		switch dErr.Code {
		case ErrCodeInvalid, ErrCodeUnauthorized, ErrCodeUnverified,
			ErrCodeConflict, ErrCodeForbidden, ErrCodeUnavailable, ErrCodeNotFound:
			return NewError(dErr.Code, dErr.Message)
		}
	}
	return ErrUnexpected
}
