package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	authService *Service
	cookieName  string
}

func (h *handler) cookie(c echo.Context, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Request().TLS != nil || c.Request().Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *handler) login(c echo.Context) error {
	ctx := c.Request().Context()

	params := LoginPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	session, err := h.authService.Login(ctx, params.Email, params.Password)
	if err != nil {
		return errors.WithStack(err)
	}

	c.SetCookie(h.cookie(c, session.Token, int(TokenExpiry.Seconds())))

	return errors.WithStack(c.JSON(http.StatusOK, session))
}

func (h *handler) logout(c echo.Context) error {
	c.SetCookie(h.cookie(c, "", -1))

	return errors.WithStack(c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"}))
}

func (h *handler) me(c echo.Context) error {
	email, _ := c.Get(contextKeyEmail).(string)
	return errors.WithStack(c.JSON(http.StatusOK, MeResponse{
		UserID: UserID(c),
		Email:  email,
	}))
}
