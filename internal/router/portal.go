package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/fastygo/portal/api/portal"
	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/internal/guard"
)

type PortalHandlers struct {
	Pages  *portal.Handler
	Health fasthttp.RequestHandler
}

// NewPortal builds the portal routes. Every section page is wrapped by the
// guard with the role it requires.
func NewPortal(handlers PortalHandlers, g *guard.Guard, signInPath string) *router.Router {
	if signInPath == "" {
		signInPath = "/signin"
	}
	r := router.New()

	if handlers.Health != nil {
		r.GET("/health", handlers.Health)
	}

	// Public routes
	r.GET(signInPath, handlers.Pages.SignInForm)
	r.POST(signInPath, handlers.Pages.SignIn)
	r.POST(signInPath+"/reset", handlers.Pages.Reset)
	r.GET("/signup", handlers.Pages.SignUpForm)
	r.POST("/signup", handlers.Pages.SignUp)
	r.POST("/signout", handlers.Pages.SignOut)
	r.GET("/api/v1/me", handlers.Pages.Me)

	member := g.Protect(domain.RoleMember)
	r.GET("/", member(handlers.Pages.Page("home")))
	for _, section := range []string{"groups", "events", "marketplace", "messages", "profile"} {
		r.GET("/"+section, member(handlers.Pages.Page(section)))
	}
	r.GET("/moderation", g.Protect(domain.RoleModerator)(handlers.Pages.Page("moderation")))
	r.GET("/admin", g.Protect(domain.RoleAdmin)(handlers.Pages.Page("admin")))

	return r
}
