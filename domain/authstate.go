package domain

// AuthKind enumerates the states the session store can occupy.
type AuthKind string

const (
	AuthUnauthenticated AuthKind = "unauthenticated"
	AuthAuthenticating  AuthKind = "authenticating"
	AuthAuthenticated   AuthKind = "authenticated"
	AuthError           AuthKind = "error"
)

// AuthState is a tagged union. Session is set only for AuthAuthenticated and
// Reason only for AuthError.
type AuthState struct {
	Kind    AuthKind `json:"kind"`
	Session *Session `json:"session,omitempty"`
	Reason  string   `json:"reason,omitempty"`
}

func Unauthenticated() AuthState {
	return AuthState{Kind: AuthUnauthenticated}
}

func Authenticating() AuthState {
	return AuthState{Kind: AuthAuthenticating}
}

// Authenticated wraps a session. An invalid session yields an error state so
// that an authenticated state always carries a session with a user.
func Authenticated(session *Session) AuthState {
	if !session.Valid() {
		return Failed(ErrUnexpected.Message)
	}
	return AuthState{Kind: AuthAuthenticated, Session: session}
}

func Failed(reason string) AuthState {
	if reason == "" {
		reason = ErrUnexpected.Message
	}
	return AuthState{Kind: AuthError, Reason: reason}
}

func (s AuthState) IsAuthenticated() bool {
	return s.Kind == AuthAuthenticated && s.Session.Valid()
}

// User returns the signed-in user or nil.
func (s AuthState) User() *User {
	if !s.IsAuthenticated() {
		return nil
	}
	return s.Session.User
}

func (s AuthState) String() string {
	if s.Kind == "" {
		return string(AuthUnauthenticated)
	}
	return string(s.Kind)
}
