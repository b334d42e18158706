// Package testutils provides test-only API endpoints.
// These routes are only registered when ENVIRONMENT=test.
package testutils

import (
	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes registers test-only routes.
// These endpoints should ONLY be registered in test environments.
func RegisterRoutes(e *echo.Echo, db *bun.DB, authService *auth.Service, tokenService *tokens.Service) {
	h := &handler{
		authService:    authService,
		tokenService:   tokenService,
		companyService: companies.NewService(db),
	}

	test := e.Group("/test")
	test.POST("/session", h.createSession)
	test.POST("/quickbooks/tokens", h.seedTokens)
	test.DELETE("/quickbooks/tokens", h.deleteTokens)
}
