// Package credential talks to the identity backend over HTTP.
package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/portal/domain"
	appLogger "github.com/fastygo/portal/pkg/logger"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Option func(*fasthttp.Client)

// WithDial replaces the TCP dialer. Tests use it with in-memory listeners.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *fasthttp.Client) {
		c.Dial = dial
	}
}

// Transport sends JSON requests to the backend and unwraps its response envelope.
type Transport struct {
	client  *fasthttp.Client
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
}

func NewTransport(cfg Config, logger *zap.Logger, opts ...Option) *Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := &fasthttp.Client{
		Name:                "portal",
		ReadTimeout:         cfg.Timeout,
		WriteTimeout:        cfg.Timeout,
		MaxIdleConnDuration: time.Minute,
	}
	for _, opt := range opts {
		opt(client)
	}
	return &Transport{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Do performs one request. A nil in sends no body; a nil out discards the data.
// Transport failures and timeouts are reported as domain.ErrUnavailable.
func (t *Transport) Do(ctx context.Context, method, path, bearer string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(t.baseURL + path)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if bearer != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+bearer)
	}
	if reqID := appLogger.RequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	if err := ctx.Err(); err != nil {
		return unavailable(err)
	}
	if err := t.client.DoDeadline(req, resp, t.deadline(ctx)); err != nil {
		t.logger.Warn("backend request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return unavailable(err)
	}

	status := resp.StatusCode()
	var env envelope
	if body := resp.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil && status < 300 {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}

	if status >= 300 {
		return remoteError(status, env)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s payload: %w", method, path, err)
		}
	}
	return nil
}

func (t *Transport) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(t.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

func unavailable(err error) error {
	return domain.WrapError(domain.ErrCodeUnavailable, domain.ErrUnavailable.Message, err)
}

func remoteError(status int, env envelope) error {
	message := errorMessage(env.Error)
	code := domain.ErrorCode(env.Code)

	switch code {
	case domain.ErrCodeInvalid, domain.ErrCodeUnauthorized, domain.ErrCodeUnverified,
		domain.ErrCodeConflict, domain.ErrCodeForbidden, domain.ErrCodeNotFound:
		if message == "" {
			message = strings.ToLower(strings.ReplaceAll(string(code), "_", " "))
		}
		return domain.NewError(code, message)
	case domain.ErrCodeUnavailable:
		return domain.ErrUnavailable
	}

	switch status {
	case fasthttp.StatusBadGateway, fasthttp.StatusServiceUnavailable, fasthttp.StatusGatewayTimeout:
		return domain.ErrUnavailable
	case fasthttp.StatusUnauthorized:
		return domain.ErrUnauthorized
	}
	return fmt.Errorf("backend responded %d %s: %s", status, env.Code, message)
}

func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return ""
}

// IsUnavailable reports whether err means the backend could not be reached.
func IsUnavailable(err error) bool {
	var dErr *domain.Error
	return errors.As(err, &dErr) && dErr.Code == domain.ErrCodeUnavailable
}

// Ping checks that the backend answers its health endpoint.
func (t *Transport) Ping(ctx context.Context) error {
	return t.Do(ctx, fasthttp.MethodGet, "/health", "", nil, nil)
}
