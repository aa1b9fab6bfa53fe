package domain

import "time"

// Session binds a User to a bearer token for a limited validity window.
// Sessions are replaced as a whole, never patched in place.
type Session struct {
	ID        string            `json:"id"`
	Token     string            `json:"token,omitempty"`
	UserID    string            `json:"user_id"`
	User      *User             `json:"user,omitempty"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}

// Valid reports whether the session carries everything an authenticated state needs.
func (s *Session) Valid() bool {
	return s != nil && s.Token != "" && s.User != nil && s.User.ID != ""
}

// Clone returns a deep copy of the session and its user.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	if s.Metadata != nil {
		out.Metadata = make(map[string]string, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// SignUpResult is either a live session or a pending email verification.
type SignUpResult struct {
	Session             *Session `json:"session,omitempty"`
	PendingVerification bool     `json:"pending_verification,omitempty"`
}
