package domain

import "time"

// SecurityEventKind names an identity lifecycle transition.
type SecurityEventKind string

const (
	EventUserLogin       SecurityEventKind = "user_login"
	EventUserLogout      SecurityEventKind = "user_logout"
	EventLoginFailed     SecurityEventKind = "login_failed"
	EventLogoutFailed    SecurityEventKind = "logout_failed"
	EventUserSignup      SecurityEventKind = "user_signup"
	EventSignupFailed    SecurityEventKind = "signup_failed"
	EventSessionRestored SecurityEventKind = "session_restored"
	EventSessionExpired  SecurityEventKind = "session_expired"
)

// Known reports whether the kind is one the audit trail accepts.
func (k SecurityEventKind) Known() bool {
	switch k {
	case EventUserLogin, EventUserLogout, EventLoginFailed, EventLogoutFailed,
		EventUserSignup, EventSignupFailed, EventSessionRestored, EventSessionExpired:
		return true
	}
	return false
}

// SecurityEvent is an immutable audit record. ActorID is nil when the actor is unknown.
type SecurityEvent struct {
	ID        string            `json:"id"`
	Kind      SecurityEventKind `json:"kind"`
	Payload   map[string]any    `json:"payload,omitempty"`
	ActorID   *string           `json:"actor_id"`
	Timestamp time.Time         `json:"timestamp"`
}

// Actor returns the actor id or an empty string.
func (e SecurityEvent) Actor() string {
	if e.ActorID == nil {
		return ""
	}
	return *e.ActorID
}

// ActorRef returns a pointer for a non-empty id, nil otherwise.
func ActorRef(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
