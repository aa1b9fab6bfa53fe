package usecase

import (
	"context"

	"github.com/fastygo/portal/domain"
)

// CredentialService is the identity provider the session store signs users in
// with. Implementations return *domain.Error values for outcomes the user can act
// on (invalid credentials, unverified account, unreachable service); any other
// error is treated as unexpected. Implementations enforce their own timeout.
type CredentialService interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignUp(ctx context.Context, email, password, displayName string) (domain.SignUpResult, error)
	SignOut(ctx context.Context, session *domain.Session) error
	CurrentSession(ctx context.Context, session *domain.Session) (*domain.Session, error)
}

// AuditSink durably stores security events.
type AuditSink interface {
	Record(ctx context.Context, event domain.SecurityEvent) error
}

// AuditSinkFunc adapts a function to the AuditSink interface.
type AuditSinkFunc func(ctx context.Context, event domain.SecurityEvent) error

// Record implements AuditSink.
func (f AuditSinkFunc) Record(ctx context.Context, event domain.SecurityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}
