package transport

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type ProfileUpdateRequest struct {
	DisplayName *string           `json:"display_name"`
	Metadata    map[string]string `json:"metadata"`
}

// SecurityEventQuery reads the audit list filter from the query string.
// A malformed limit falls back to the repository default.
func SecurityEventQuery(args *fasthttp.Args) repository.SecurityEventFilter {
	filter := repository.SecurityEventFilter{
		ActorID: string(args.Peek("actor_id")),
		Kind:    domain.SecurityEventKind(args.Peek("kind")),
	}
	if limit, err := strconv.Atoi(string(args.Peek("limit"))); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(string(args.Peek("offset"))); err == nil && offset > 0 {
		filter.Offset = offset
	}
	return filter
}
