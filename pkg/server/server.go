package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cosmoesg/cosmo/pkg/analysis"
	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/backend"
	"github.com/cosmoesg/cosmo/pkg/binder"
	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/expenses"
	"github.com/cosmoesg/cosmo/pkg/integrations"
	"github.com/cosmoesg/cosmo/pkg/joblogs"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/cosmoesg/cosmo/pkg/syncer"
	"github.com/cosmoesg/cosmo/pkg/testutils"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/uptrace/bun"
)

// New builds the HTTP server. syncService is shared with the worker so the
// sync status endpoint sees runs the worker started.
func New(cfg *config.Config, db *bun.DB, qbClient *quickbooks.Client, tokenService *tokens.Service, syncService *syncer.Service) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowCredentials: true,
	}))

	health.RegisterRoutes(e)

	authService := auth.NewService(cfg.JWTSecret, backend.New(cfg))
	authMiddleware := auth.RegisterRoutes(e, authService, cfg.SessionCookieName)

	configService := syncconfig.NewService(db)

	// The connection routes pick their own auth per route because Intuit's
	// callback can arrive without a session.
	integrations.RegisterRoutesWithGroup(e.Group("/integrations/quickbooks"), db, qbClient, tokenService, configService, authMiddleware, cfg.FrontendURL)

	syncGroup := e.Group("/integrations/quickbooks")
	syncGroup.Use(authMiddleware.Authenticate)
	syncer.RegisterRoutesWithGroup(syncGroup, db, syncService, configService)

	expensesGroup := e.Group("/expenses")
	expensesGroup.Use(authMiddleware.Authenticate)
	expenses.RegisterRoutesWithGroup(expensesGroup, db, expenses.NewFetcher(qbClient, tokenService))

	jobsGroup := e.Group("/jobs")
	jobsGroup.Use(authMiddleware.Authenticate)
	jobs.RegisterRoutesWithGroup(jobsGroup, db)
	joblogs.RegisterRoutes(jobsGroup, db)

	analysesGroup := e.Group("/analyses")
	analysesGroup.Use(authMiddleware.Authenticate)
	analysis.RegisterRoutesWithGroup(analysesGroup, db)

	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, db, authService, tokenService)
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
