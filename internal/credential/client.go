package credential

import (
	"context"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
)

const (
	pathSignIn  = "/api/v1/auth/signin"
	pathSignUp  = "/api/v1/auth/signup"
	pathSignOut = "/api/v1/auth/signout"
	pathSession = "/api/v1/auth/session"
)

// Client implements usecase.CredentialService against the identity backend.
type Client struct {
	transport *Transport
}

func NewClient(transport *Transport) *Client {
	return &Client{transport: transport}
}

// New builds a client with its own transport.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	return NewClient(NewTransport(cfg, logger, opts...))
}

// Transport exposes the underlying transport so other backend calls share the
// connection pool.
func (c *Client) Transport() *Transport {
	return c.transport
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var session domain.Session
	if err := c.transport.Do(ctx, fasthttp.MethodPost, pathSignIn, "", signInRequest{Email: email, Password: password}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) SignUp(ctx context.Context, email, password, displayName string) (domain.SignUpResult, error) {
	var result domain.SignUpResult
	req := signUpRequest{Email: email, Password: password, DisplayName: displayName}
	if err := c.transport.Do(ctx, fasthttp.MethodPost, pathSignUp, "", req, &result); err != nil {
		return domain.SignUpResult{}, err
	}
	return result, nil
}

func (c *Client) SignOut(ctx context.Context, session *domain.Session) error {
	if session == nil || session.Token == "" {
		return nil
	}
	return c.transport.Do(ctx, fasthttp.MethodPost, pathSignOut, session.Token, nil, nil)
}

// CurrentSession fetches the backend's view of the session, including a fresh
// user record.
func (c *Client) CurrentSession(ctx context.Context, session *domain.Session) (*domain.Session, error) {
	if session == nil || session.Token == "" {
		return nil, domain.ErrUnauthorized
	}
	var fresh domain.Session
	if err := c.transport.Do(ctx, fasthttp.MethodGet, pathSession, session.Token, nil, &fresh); err != nil {
		return nil, err
	}
	return &fresh, nil
}
