package transport

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope wraps every JSON body the backend and portal send. Error holds a
// human-readable message; Code holds the machine-readable error category.
type Envelope struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  any    `json:"error,omitempty"`
	Meta   any    `json:"meta,omitempty"`
}

func NewSuccess(data any, meta any) Envelope {
	return Envelope{Status: StatusSuccess, Data: data, Meta: meta}
}

func NewError(code string, message any, meta any) Envelope {
	return Envelope{Status: StatusError, Code: code, Error: message, Meta: meta}
}

// Write serialises env as the response. Session and identity payloads must
// not be cached by intermediaries.
func Write(ctx *fasthttp.RequestCtx, status int, env Envelope) {
	body, err := json.Marshal(env)
	if err != nil {
		status = fasthttp.StatusInternalServerError
		body = []byte(`{"status":"error","code":"INTERNAL","error":"internal error"}`)
	}
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.Header.Set(fasthttp.HeaderCacheControl, "no-store")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}
