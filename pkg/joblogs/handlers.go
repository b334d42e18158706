package joblogs

import (
	"net/http"
	"strconv"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	jobLogService  *Service
	jobService     *jobs.Service
	companyService *companies.Service
}

type ListJobLogsResponse struct {
	Job    *models.Job      `json:"job"`
	Logs   []*models.JobLog `json:"logs"`
	Counts map[string]int   `json:"counts"`
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	jobID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return errcodes.NotFound("Job")
	}

	params := ListJobLogsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	job, err := h.jobService.RetrieveJob(ctx, jobs.RetrieveJobOptions{ID: &jobID})
	if err != nil {
		return errors.WithStack(err)
	}
	if err := jobs.CheckAccess(ctx, h.companyService, job, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	entries, err := h.jobLogService.ListJobLogs(ctx, ListJobLogsOptions{
		JobID:   jobID,
		AfterID: params.AfterID,
		Levels:  params.Level,
		Search:  params.Search,
		Limit:   &params.Limit,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	counts, err := h.jobLogService.CountByLevel(ctx, jobID)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, ListJobLogsResponse{
		Job:    job,
		Logs:   entries,
		Counts: counts,
	}))
}
