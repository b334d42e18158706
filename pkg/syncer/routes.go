package syncer

import (
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers the sync routes on the QuickBooks
// integration group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, syncService *Service, configService *syncconfig.Service) {
	h := &handler{
		syncService:    syncService,
		configService:  configService,
		jobService:     jobs.NewService(db),
		companyService: companies.NewService(db),
	}

	g.GET("/sync", h.status)
	g.POST("/sync", h.start)
}
