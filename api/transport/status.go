package transport

import (
	"net/http"

	"github.com/fastygo/portal/domain"
)

// StatusFor maps a domain error to an HTTP status and envelope code.
func StatusFor(err error) (int, string) {
	switch {
	case domain.IsDomainError(err, domain.ErrCodeUnauthorized):
		return http.StatusUnauthorized, string(domain.ErrCodeUnauthorized)
	case domain.IsDomainError(err, domain.ErrCodeUnverified):
		return http.StatusForbidden, string(domain.ErrCodeUnverified)
	case domain.IsDomainError(err, domain.ErrCodeForbidden):
		return http.StatusForbidden, string(domain.ErrCodeForbidden)
	case domain.IsDomainError(err, domain.ErrCodeInvalid):
		return http.StatusBadRequest, string(domain.ErrCodeInvalid)
	case domain.IsDomainError(err, domain.ErrCodeNotFound):
		return http.StatusNotFound, string(domain.ErrCodeNotFound)
	case domain.IsDomainError(err, domain.ErrCodeConflict):
		return http.StatusConflict, string(domain.ErrCodeConflict)
	case domain.IsDomainError(err, domain.ErrCodeUnavailable):
		return http.StatusServiceUnavailable, string(domain.ErrCodeUnavailable)
	default:
		return http.StatusInternalServerError, string(domain.ErrCodeInternal)
	}
}

// ErrorEnvelope builds the error response for err. Internal failures never
// expose their message.
func ErrorEnvelope(err error) (int, Envelope) {
	classified := domain.Classify(err)
	status, code := StatusFor(classified)
	return status, NewError(code, classified.Message, nil)
}
