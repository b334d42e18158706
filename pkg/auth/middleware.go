package auth

import (
	"strings"

	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/labstack/echo/v4"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	golog "github.com/robinjoseph08/golib/logger"
)

const (
	contextKeyUserID = "user_id"
	contextKeyEmail  = "email"
)

type Middleware struct {
	authService *Service
	cookieName  string
}

func NewMiddleware(authService *Service, cookieName string) *Middleware {
	return &Middleware{
		authService: authService,
		cookieName:  cookieName,
	}
}

// token reads the session token from the Authorization header, falling back
// to the session cookie.
func (m *Middleware) token(c echo.Context) string {
	if h := c.Request().Header.Get(echo.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookie, err := c.Cookie(m.cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate rejects requests without a valid session token and stores the
// user id on the echo context.
func (m *Middleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := m.token(c)
		if raw == "" {
			return errcodes.Unauthorized("Authentication required.")
		}

		claims, err := m.authService.ValidateToken(raw)
		if err != nil {
			logger.FromEchoContext(c).Debug("rejected session token", golog.Data{"error": err.Error()})
			return errcodes.Unauthorized("Invalid or expired token.")
		}

		c.Set(contextKeyUserID, claims.Subject)
		c.Set(contextKeyEmail, claims.Email)

		return next(c)
	}
}

// Identify is like Authenticate but lets anonymous requests through. Used on
// routes reached by a browser redirect from a third party.
func (m *Middleware) Identify(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if raw := m.token(c); raw != "" {
			if claims, err := m.authService.ValidateToken(raw); err == nil {
				c.Set(contextKeyUserID, claims.Subject)
				c.Set(contextKeyEmail, claims.Email)
			}
		}
		return next(c)
	}
}

// UserID returns the authenticated user's id, or "" outside Authenticate.
func UserID(c echo.Context) string {
	id, _ := c.Get(contextKeyUserID).(string)
	return id
}
