package analysis

import (
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{
		analysisService: NewService(db),
		companyService:  companies.NewService(db),
		jobService:      jobs.NewService(db),
	}

	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:id", h.retrieve)
}
