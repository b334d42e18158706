package testutils

import (
	"net/http"
	"time"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	authService    *auth.Service
	tokenService   *tokens.Service
	companyService *companies.Service
}

// createSessionRequest is the request body for creating a test session.
type createSessionRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email"`
}

type createSessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// createSession issues a session token without going through the backend.
// POST /test/session.
func (h *handler) createSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	token, expiresAt, err := h.authService.IssueToken(req.UserID, req.Email)
	if err != nil {
		return errors.Wrap(err, "failed to issue token")
	}

	return c.JSON(http.StatusCreated, createSessionResponse{Token: token, ExpiresAt: expiresAt})
}

// seedTokensRequest is the request body for connecting a fake company.
type seedTokensRequest struct {
	CompanyID    string `json:"company_id" validate:"required,company_id"`
	UserID       string `json:"user_id" validate:"required"`
	AccessToken  string `json:"access_token" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
	ExpiresIn    int64  `json:"expires_in" default:"3600" validate:"min=1"`
}

// seedTokens stores QuickBooks tokens as if user_id had completed the OAuth
// flow.
// POST /test/quickbooks/tokens.
func (h *handler) seedTokens(c echo.Context) error {
	ctx := c.Request().Context()

	var req seedTokensRequest
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	err := h.tokenService.SaveTokens(ctx, req.CompanyID, &quickbooks.Tokens{
		AccessToken:           req.AccessToken,
		RefreshToken:          req.RefreshToken,
		ExpiresIn:             req.ExpiresIn,
		RefreshTokenExpiresIn: 8726400,
		TokenType:             "bearer",
		CreatedAt:             time.Now(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to save tokens")
	}
	if err := h.companyService.Connect(ctx, req.CompanyID, req.UserID); err != nil {
		return errors.Wrap(err, "failed to record company owner")
	}

	return c.NoContent(http.StatusNoContent)
}

type companyQuery struct {
	CompanyID string `query:"company_id" validate:"required,company_id"`
}

// deleteTokens disconnects a company without calling Intuit.
// DELETE /test/quickbooks/tokens.
func (h *handler) deleteTokens(c echo.Context) error {
	ctx := c.Request().Context()

	var req companyQuery
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	if err := h.tokenService.DeleteTokens(ctx, req.CompanyID); err != nil {
		return errors.Wrap(err, "failed to delete tokens")
	}

	return c.NoContent(http.StatusNoContent)
}
