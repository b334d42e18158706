package jobs

import (
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB) {
	h := &handler{
		jobService:     NewService(db),
		companyService: companies.NewService(db),
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("/:id/retry", h.retry)
}
