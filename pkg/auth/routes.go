package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers the session routes and returns the middleware the
// rest of the API is protected with.
func RegisterRoutes(e *echo.Echo, authService *Service, cookieName string) *Middleware {
	h := &handler{
		authService: authService,
		cookieName:  cookieName,
	}
	mw := NewMiddleware(authService, cookieName)

	g := e.Group("/auth")
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)
	g.GET("/me", h.me, mw.Authenticate)

	return mw
}
