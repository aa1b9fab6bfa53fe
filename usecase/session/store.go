// Package session holds the portal's single authoritative authentication state.
//
// Store is the only writer of domain.AuthState. Every mutation goes through
// SignIn, SignUp, SignOut, Restore, Reset, Refresh or expiry detection in State.
// Each mutating call takes a request token from a monotonically increasing
// counter; a call whose token is no longer current when its remote call
// resolves has its result discarded (last request wins, not last resolution).
//
// Failure policy: sign-in fails closed (no session is kept or persisted on any
// error), sign-out fails open (local state and the persisted session are
// cleared even when the credential service call fails).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
	"github.com/fastygo/portal/usecase"
)

// AuditRecorder accepts security events without blocking. *audit.Emitter
// implements it.
type AuditRecorder interface {
	Record(kind domain.SecurityEventKind, payload map[string]any, actorID string)
}

// Config tunes the store.
type Config struct {
	// RequestTimeout bounds each credential service call. A call that does not
	// answer in time is treated as an error.
	RequestTimeout time.Duration
	Clock          func() time.Time
}

// Principal is the identity view that protected pages read on every render.
type Principal struct {
	State       domain.AuthKind `json:"state"`
	User        *domain.User    `json:"user"`
	IsAdmin     bool            `json:"isAdmin"`
	IsModerator bool            `json:"isModerator"`
	Reason      string          `json:"reason,omitempty"`
}

// Capabilities returns the role flags of the principal.
func (p Principal) Capabilities() domain.Capabilities {
	return domain.Capabilities{IsAdmin: p.IsAdmin, IsModerator: p.IsModerator}
}

type Store struct {
	creds  usecase.CredentialService
	local  repository.LocalSessionRepository
	audit  AuditRecorder
	logger *zap.Logger
	cfg    Config

	mu    sync.RWMutex
	state domain.AuthState
	seq   uint64
}

type nopRecorder struct{}

func (nopRecorder) Record(domain.SecurityEventKind, map[string]any, string) {}

// New builds a store in the unauthenticated state. Call Restore once at boot.
func New(creds usecase.CredentialService, local repository.LocalSessionRepository, recorder AuditRecorder, logger *zap.Logger, cfg Config) *Store {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		creds:  creds,
		local:  local,
		audit:  recorder,
		logger: logger,
		cfg:    cfg,
		state:  domain.Unauthenticated(),
	}
}

// State returns a snapshot of the current state. An authenticated state whose
// session has expired is moved to unauthenticated first.
func (s *Store) State() domain.AuthState {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state.IsAuthenticated() && state.Session.IsExpired(s.cfg.Clock()) {
		s.mu.Lock()
		if s.state.IsAuthenticated() && s.state.Session.IsExpired(s.cfg.Clock()) {
			s.expireLocked(context.Background(), "expired")
		}
		state = s.state
		s.mu.Unlock()
	}
	return snapshot(state)
}

// Principal derives the user and role flags from the current state.
func (s *Store) Principal() Principal {
	return PrincipalOf(s.State())
}

// PrincipalOf derives the principal from a state snapshot. Capabilities are
// recomputed on every call and never cached.
func PrincipalOf(state domain.AuthState) Principal {
	user := state.User()
	caps := domain.ResolveRole(user)
	return Principal{
		State:       state.Kind,
		User:        user,
		IsAdmin:     caps.IsAdmin,
		IsModerator: caps.IsModerator,
		Reason:      state.Reason,
	}
}

// SignIn authenticates with the credential service.
func (s *Store) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	if err := domain.ValidateSignIn(email, password); err != nil {
		return nil, s.rejectInvalid(err)
	}
	email = domain.NormalizeEmail(email)

	token, err := s.begin()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := s.callContext(ctx)
	session, callErr := s.creds.SignIn(callCtx, email, password)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.seq {
		s.logger.Debug("discarding superseded sign-in result", zap.Uint64("request", token), zap.Uint64("current", s.seq))
		return nil, domain.ErrSuperseded
	}
	persistCtx := context.WithoutCancel(ctx)
	if callErr == nil && !session.Valid() {
		callErr = fmt.Errorf("credential service returned an incomplete session")
	}
	if callErr != nil {
		return nil, s.failLocked(persistCtx, domain.EventLoginFailed, email, callErr)
	}

	s.authenticateLocked(persistCtx, domain.EventUserLogin, session, map[string]any{"email": email})
	return session.Clone(), nil
}

// SignUp registers a new account. A pending verification leaves the store
// unauthenticated.
func (s *Store) SignUp(ctx context.Context, email, password, displayName string) (domain.SignUpResult, error) {
	if err := domain.ValidateSignUp(email, password, displayName); err != nil {
		return domain.SignUpResult{}, s.rejectInvalid(err)
	}
	email = domain.NormalizeEmail(email)

	token, err := s.begin()
	if err != nil {
		return domain.SignUpResult{}, err
	}

	callCtx, cancel := s.callContext(ctx)
	result, callErr := s.creds.SignUp(callCtx, email, password, displayName)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.seq {
		s.logger.Debug("discarding superseded sign-up result", zap.Uint64("request", token), zap.Uint64("current", s.seq))
		return domain.SignUpResult{}, domain.ErrSuperseded
	}
	persistCtx := context.WithoutCancel(ctx)
	if callErr == nil && !result.PendingVerification && !result.Session.Valid() {
		callErr = fmt.Errorf("credential service returned neither a session nor a pending verification")
	}
	if callErr != nil {
		return domain.SignUpResult{}, s.failLocked(persistCtx, domain.EventSignupFailed, email, callErr)
	}

	if result.PendingVerification {
		s.audit.Record(domain.EventUserSignup, map[string]any{"email": email, "pending_verification": true}, "")
		s.state = domain.Unauthenticated()
		return domain.SignUpResult{PendingVerification: true}, nil
	}

	s.authenticateLocked(persistCtx, domain.EventUserSignup, result.Session, map[string]any{"email": email})
	return domain.SignUpResult{Session: result.Session.Clone()}, nil
}

// SignOut records the logout, asks the credential service to revoke the
// session, and then clears local state whatever the remote outcome. The remote
// error, if any, is returned after local invalidation.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.seq++
	token := s.seq
	if !s.state.IsAuthenticated() {
		s.state = domain.Unauthenticated()
		s.clearLocked(context.WithoutCancel(ctx))
		s.mu.Unlock()
		return nil
	}
	session := s.state.Session.Clone()
	actorID := session.User.ID
	s.audit.Record(domain.EventUserLogout, nil, actorID)
	s.mu.Unlock()

	callCtx, cancel := s.callContext(ctx)
	remoteErr := s.creds.SignOut(callCtx, session)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	sameSession := s.state.IsAuthenticated() && s.state.Session.ID == session.ID
	if token == s.seq || sameSession {
		s.state = domain.Unauthenticated()
		s.clearLocked(context.WithoutCancel(ctx))
	}

	if remoteErr != nil {
		classified := domain.Classify(remoteErr)
		s.logger.Warn("remote sign-out failed, local session cleared", zap.String("user_id", actorID), zap.Error(remoteErr))
		s.audit.Record(domain.EventLogoutFailed, map[string]any{"code": string(classified.Code)}, actorID)
		return classified
	}
	return nil
}

// Restore reads the persisted session at boot. It never fails: missing,
// unreadable, corrupt or expired values resolve to unauthenticated.
func (s *Store) Restore(ctx context.Context) domain.AuthState {
	s.mu.Lock()
	s.seq++
	token := s.seq
	s.state = domain.Authenticating()
	s.mu.Unlock()

	session, err := s.loadPersisted(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if token != s.seq {
		return snapshot(s.state)
	}

	persistCtx := context.WithoutCancel(ctx)
	switch {
	case err == nil && !session.IsExpired(s.cfg.Clock()):
		s.audit.Record(domain.EventSessionRestored, nil, session.User.ID)
		s.state = domain.Authenticated(session)
		s.logger.Info("session restored", zap.String("user_id", session.User.ID))
	case err == nil:
		s.audit.Record(domain.EventSessionExpired, map[string]any{"reason": "expired_at_boot"}, session.User.ID)
		s.state = domain.Unauthenticated()
		s.clearLocked(persistCtx)
	case errors.Is(err, domain.ErrSessionNotFound):
		s.state = domain.Unauthenticated()
	default:
		s.logger.Warn("discarding unreadable persisted session", zap.Error(err))
		s.state = domain.Unauthenticated()
		if domain.IsDomainError(err, domain.ErrCodeInvalid) {
			s.clearLocked(persistCtx)
		}
	}
	return snapshot(s.state)
}

// Reset acknowledges a failure: error moves back to unauthenticated.
func (s *Store) Reset() domain.AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind == domain.AuthError {
		s.state = domain.Unauthenticated()
	}
	return snapshot(s.state)
}

// Refresh replaces the current session with the credential service's view of
// it, picking up metadata changes. A rejected session is expired locally;
// transport failures leave the state untouched.
func (s *Store) Refresh(ctx context.Context) error {
	current := s.State()
	if !current.IsAuthenticated() {
		return nil
	}
	s.mu.RLock()
	token := s.seq
	s.mu.RUnlock()

	callCtx, cancel := s.callContext(ctx)
	fresh, callErr := s.creds.CurrentSession(callCtx, current.Session)
	cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	stillCurrent := token == s.seq && s.state.IsAuthenticated() && s.state.Session.ID == current.Session.ID
	if !stillCurrent {
		return nil
	}

	persistCtx := context.WithoutCancel(ctx)
	if callErr != nil {
		classified := domain.Classify(callErr)
		switch classified.Code {
		case domain.ErrCodeUnauthorized, domain.ErrCodeNotFound, domain.ErrCodeForbidden:
			s.expireLocked(persistCtx, "revoked")
		default:
			s.logger.Warn("session refresh failed", zap.Error(callErr))
		}
		return classified
	}
	replacement := fresh.Clone()
	if replacement != nil && replacement.Token == "" {
		replacement.Token = current.Session.Token
	}
	if !replacement.Valid() || replacement.User.ID != current.Session.User.ID {
		s.logger.Error("credential service returned a mismatched session on refresh")
		return domain.ErrUnexpected
	}
	if replacement.ID == "" {
		replacement.ID = current.Session.ID
	}
	if replacement.UserID == "" {
		replacement.UserID = replacement.User.ID
	}
	s.state = domain.Authenticated(replacement)
	s.persistLocked(persistCtx, replacement)
	return nil
}

func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.IsAuthenticated() {
		if !s.state.Session.IsExpired(s.cfg.Clock()) {
			return 0, domain.ErrAlreadyAuthenticated
		}
		s.expireLocked(context.Background(), "expired")
	}
	s.seq++
	s.state = domain.Authenticating()
	return s.seq, nil
}

// rejectInvalid handles a call that failed local validation. It makes no
// remote call, but when another sign-in or sign-up is in flight it still
// takes a request token so the pending result is discarded.
func (s *Store) rejectInvalid(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Kind == domain.AuthAuthenticating {
		s.seq++
		s.state = domain.Failed(domain.Classify(err).Message)
	}
	return err
}

func (s *Store) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}

// authenticateLocked enqueues the audit record before committing the state.
func (s *Store) authenticateLocked(ctx context.Context, kind domain.SecurityEventKind, session *domain.Session, payload map[string]any) {
	stored := session.Clone()
	if stored.UserID == "" {
		stored.UserID = stored.User.ID
	}
	s.audit.Record(kind, payload, stored.User.ID)
	s.state = domain.Authenticated(stored)
	s.persistLocked(ctx, stored)
}

func (s *Store) persistLocked(ctx context.Context, session *domain.Session) {
	if s.local == nil {
		return
	}
	if err := s.local.Save(ctx, session); err != nil {
		s.logger.Warn("failed to persist session", zap.String("user_id", session.User.ID), zap.Error(err))
	}
}

func (s *Store) failLocked(ctx context.Context, kind domain.SecurityEventKind, email string, cause error) error {
	classified := domain.Classify(cause)
	if classified.Code == domain.ErrCodeInternal {
		s.logger.Error("credential service call failed", zap.String("kind", string(kind)), zap.Error(cause))
	} else {
		s.logger.Info("authentication rejected", zap.String("kind", string(kind)), zap.String("code", string(classified.Code)))
	}
	s.audit.Record(kind, map[string]any{"email": email, "code": string(classified.Code)}, "")
	s.state = domain.Failed(classified.Message)
	s.clearLocked(ctx)
	return classified
}

func (s *Store) expireLocked(ctx context.Context, reason string) {
	var actorID string
	if user := s.state.User(); user != nil {
		actorID = user.ID
	}
	s.seq++
	s.audit.Record(domain.EventSessionExpired, map[string]any{"reason": reason}, actorID)
	s.state = domain.Unauthenticated()
	s.clearLocked(ctx)
}

func (s *Store) clearLocked(ctx context.Context) {
	if s.local == nil {
		return
	}
	if err := s.local.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted session", zap.Error(err))
	}
}

func (s *Store) loadPersisted(ctx context.Context) (session *domain.Session, err error) {
	if s.local == nil {
		return nil, domain.ErrSessionNotFound
	}
	defer func() {
		if r := recover(); r != nil {
			session, err = nil, domain.WrapError(domain.ErrCodeInvalid, domain.ErrSessionCorrupt.Message, fmt.Errorf("%v", r))
		}
	}()
	session, err = s.local.Load(ctx)
	if err == nil && !session.Valid() {
		return nil, domain.ErrSessionCorrupt
	}
	return session, err
}

func snapshot(state domain.AuthState) domain.AuthState {
	state.Session = state.Session.Clone()
	return state
}
