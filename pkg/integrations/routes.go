package integrations

import (
	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the connection routes on the QuickBooks
// integration group. The group itself is not authenticated because the
// callback is reached through a redirect from Intuit.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, client OAuthClient, tokenService *tokens.Service, configService *syncconfig.Service, authMiddleware *auth.Middleware, frontendURL string) {
	h := &handler{
		client:         client,
		tokenService:   tokenService,
		stateService:   NewStateService(db),
		configService:  configService,
		companyService: companies.NewService(db),
		frontendURL:    frontendURL,
	}

	g.GET("/auth", h.authorize, authMiddleware.Authenticate)
	g.GET("/callback", h.callback, authMiddleware.Identify)
	g.GET("/status", h.status, authMiddleware.Authenticate)
	g.DELETE("/connection", h.disconnect, authMiddleware.Authenticate)
}
