package expenses

import (
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers expense routes on a pre-configured group.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, fetcher *Fetcher) {
	h := &handler{
		expenseService: NewService(db),
		companyService: companies.NewService(db),
		fetcher:        fetcher,
	}

	g.GET("", h.list)
	g.GET("/:id", h.retrieve)
	g.POST("/:id/refresh", h.refresh)
}
