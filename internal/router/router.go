package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/portal/api/handler"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Profile *apiHandler.ProfileHandler
	Audit   *apiHandler.AuditHandler
	Health  *apiHandler.HealthHandler
}

// New builds the identity backend routes.
func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Auth routes
	r.POST("/api/v1/auth/signin", handlers.Auth.SignIn)
	r.POST("/api/v1/auth/signup", handlers.Auth.SignUp)
	r.GET("/api/v1/auth/verify/{token}", handlers.Auth.Verify)
	r.POST("/api/v1/auth/signout", authMiddleware(handlers.Auth.SignOut))
	r.GET("/api/v1/auth/session", authMiddleware(handlers.Auth.Session))
	r.POST("/api/v1/auth/refresh", authMiddleware(handlers.Auth.Refresh))

	// Protected routes
	r.GET("/api/v1/profile", authMiddleware(handlers.Profile.GetProfile))
	r.PUT("/api/v1/profile", authMiddleware(handlers.Profile.UpdateProfile))

	// Audit trail
	r.POST("/api/v1/audit/events", handlers.Audit.Ingest)
	r.GET("/api/v1/audit/events", authMiddleware(handlers.Audit.List))

	return r
}
