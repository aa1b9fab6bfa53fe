package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

// TokenIssuer signs the bearer token returned with a session.
type TokenIssuer interface {
	Issue(session *domain.Session) (string, error)
}

type Config struct {
	SessionTTL          time.Duration
	BcryptCost          int
	RequireVerification bool
	VerificationTTL     time.Duration
}

type UseCase struct {
	users         repository.UserRepository
	sessions      repository.SessionRepository
	verifications repository.VerificationRepository
	tokens        TokenIssuer
	cfg           Config
	logger        *zap.Logger
	now           func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

func New(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	verifications repository.VerificationRepository,
	tokens TokenIssuer,
	cfg Config,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = 24 * time.Hour
	}
	return &UseCase{
		users:         users,
		sessions:      sessions,
		verifications: verifications,
		tokens:        tokens,
		cfg:           cfg,
		logger:        logger,
		now:           time.Now,
	}
}

// SignIn checks the password and opens a session. Unknown emails and wrong
// passwords produce the same error.
func (uc *UseCase) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	if err := domain.ValidateSignIn(email, password); err != nil {
		return nil, err
	}

	record, err := uc.users.GetByEmail(ctx, domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(uc.fallbackHash(), []byte(password))
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	switch record.User.Status {
	case domain.UserStatusPending:
		return nil, domain.ErrUnverified
	case domain.UserStatusDisabled:
		return nil, domain.ErrAccountDisabled
	}

	return uc.openSession(ctx, &record.User)
}

// SignUp creates the account. With verification enabled the account stays
// pending and no session is issued.
func (uc *UseCase) SignUp(ctx context.Context, email, password, displayName string) (domain.SignUpResult, error) {
	if err := domain.ValidateSignUp(email, password, displayName); err != nil {
		return domain.SignUpResult{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), uc.cfg.BcryptCost)
	if err != nil {
		return domain.SignUpResult{}, err
	}

	status := domain.UserStatusActive
	if uc.cfg.RequireVerification {
		status = domain.UserStatusPending
	}
	now := uc.now().UTC()
	record := &repository.UserRecord{
		User: domain.User{
			ID:          uuid.NewString(),
			Email:       domain.NormalizeEmail(email),
			DisplayName: strings.TrimSpace(displayName),
			Role:        string(domain.RoleMember),
			Status:      status,
			Metadata:    map[string]string{},
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		PasswordHash: string(hash),
	}
	if err := uc.users.Create(ctx, record); err != nil {
		return domain.SignUpResult{}, err
	}

	if uc.cfg.RequireVerification {
		token := uuid.NewString()
		if err := uc.verifications.Save(ctx, token, record.User.ID, uc.cfg.VerificationTTL); err != nil {
			return domain.SignUpResult{}, err
		}
		uc.logger.Info("verification token issued",
			zap.String("user_id", record.User.ID),
			zap.String("verify_path", "/api/v1/auth/verify/"+token),
		)
		return domain.SignUpResult{PendingVerification: true}, nil
	}

	session, err := uc.openSession(ctx, &record.User)
	if err != nil {
		return domain.SignUpResult{}, err
	}
	return domain.SignUpResult{Session: session}, nil
}

// SignOut revokes the server-side session. Revoking an unknown session is not
// an error.
func (uc *UseCase) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return domain.ErrUnauthorized
	}
	return uc.sessions.Delete(ctx, sessionID)
}

// GetSession returns the session with a freshly loaded user record.
func (uc *UseCase) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired(uc.now()) {
		_ = uc.sessions.Delete(ctx, sessionID)
		return nil, domain.ErrSessionNotFound
	}
	if err := uc.attachUser(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// RefreshSession extends the session by the configured TTL and issues a new
// bearer token for the new expiry.
func (uc *UseCase) RefreshSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := uc.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	expiresAt := uc.now().Add(uc.cfg.SessionTTL).UTC()
	if err := uc.sessions.Extend(ctx, sessionID, expiresAt, uc.cfg.SessionTTL); err != nil {
		return nil, err
	}
	session.ExpiresAt = expiresAt
	if session.Token, err = uc.tokens.Issue(session); err != nil {
		return nil, err
	}
	return session, nil
}

// Verify activates the account bound to a verification token.
func (uc *UseCase) Verify(ctx context.Context, token string) error {
	if token == "" {
		return domain.ErrVerificationExpired
	}
	userID, err := uc.verifications.Consume(ctx, token)
	if err != nil {
		return err
	}
	return uc.users.UpdateStatus(ctx, userID, domain.UserStatusActive)
}

func (uc *UseCase) openSession(ctx context.Context, user *domain.User) (*domain.Session, error) {
	now := uc.now().UTC()
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		User:      user.Clone(),
		CreatedAt: now,
		ExpiresAt: now.Add(uc.cfg.SessionTTL),
	}
	if err := uc.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	token, err := uc.tokens.Issue(session)
	if err != nil {
		_ = uc.sessions.Delete(ctx, session.ID)
		return nil, err
	}
	session.Token = token
	return session, nil
}

func (uc *UseCase) attachUser(ctx context.Context, session *domain.Session) error {
	user, err := uc.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			_ = uc.sessions.Delete(ctx, session.ID)
			return domain.ErrUnauthorized
		}
		return err
	}
	if !user.IsActive() {
		_, _ = uc.sessions.DeleteByUser(ctx, user.ID)
		return domain.ErrAccountDisabled
	}
	session.User = user
	return nil
}

func (uc *UseCase) fallbackHash() []byte {
	uc.dummyOnce.Do(func() {
		uc.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("portal-timing-equalizer"), uc.cfg.BcryptCost)
	})
	return uc.dummyHash
}
