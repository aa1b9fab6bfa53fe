package httpcontext

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	appLogger "github.com/fastygo/portal/pkg/logger"
)

// HeaderRequestID carries the correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

type key int

const (
	clientIPKey key = iota
	userAgentKey
)

// Adapter turns a fasthttp.RequestCtx into a context.Context with a deadline
// and the request metadata handlers log and audit with.
type Adapter struct {
	timeout      time.Duration
	trustProxies bool
}

// Option customises an Adapter.
type Option func(*Adapter)

// TrustForwardedFor makes ClientIP honour the first X-Forwarded-For entry.
// Enable it only behind a proxy that overwrites the header.
func TrustForwardedFor() Option {
	return func(a *Adapter) { a.trustProxies = true }
}

// NewAdapter constructs an Adapter. A non-positive timeout means 5s.
func NewAdapter(timeout time.Duration, opts ...Option) *Adapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	a := &Adapter{timeout: timeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Attach derives a context bounded by the adapter timeout. The request id is
// reused from the inbound header or generated, and echoed on the response.
func (a *Adapter) Attach(ctx *fasthttp.RequestCtx) (context.Context, context.CancelFunc) {
	stdCtx, cancel := context.WithTimeout(context.Background(), a.timeout)

	reqID := requestID(ctx)
	ctx.Response.Header.Set(HeaderRequestID, reqID)
	stdCtx = appLogger.ContextWithRequestID(stdCtx, reqID)

	var fields []zap.Field
	if ip := a.clientIP(ctx); ip != "" {
		stdCtx = context.WithValue(stdCtx, clientIPKey, ip)
		fields = append(fields, zap.String("client_ip", ip))
	}
	if ua := string(ctx.Request.Header.UserAgent()); ua != "" {
		stdCtx = context.WithValue(stdCtx, userAgentKey, ua)
	}
	stdCtx = appLogger.ContextWithFields(stdCtx, fields...)

	return stdCtx, cancel
}

// ClientIP returns the caller address recorded by Attach.
func ClientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}

// UserAgent returns the User-Agent recorded by Attach.
func UserAgent(ctx context.Context) string {
	ua, _ := ctx.Value(userAgentKey).(string)
	return ua
}

func (a *Adapter) clientIP(ctx *fasthttp.RequestCtx) string {
	if a.trustProxies {
		if forwarded := ctx.Request.Header.Peek(fasthttp.HeaderXForwardedFor); len(forwarded) > 0 {
			first, _, _ := strings.Cut(string(forwarded), ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
	}
	if ip := ctx.RemoteIP(); ip != nil && !ip.IsUnspecified() {
		return ip.String()
	}
	return ""
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if header := strings.TrimSpace(string(ctx.Request.Header.Peek(HeaderRequestID))); header != "" && len(header) <= 128 {
		return header
	}
	return uuid.NewString()
}
