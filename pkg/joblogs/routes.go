package joblogs

import (
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"
)

// RegisterRoutes mounts GET /:id/logs on the jobs group.
func RegisterRoutes(jobsGroup *echo.Group, db *bun.DB) {
	h := &handler{
		jobLogService:  NewService(db),
		jobService:     jobs.NewService(db),
		companyService: companies.NewService(db),
	}

	jobsGroup.GET("/:id/logs", h.list)
}
