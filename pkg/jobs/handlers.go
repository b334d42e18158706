package jobs

import (
	"context"
	"net/http"
	"strconv"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type handler struct {
	jobService     *Service
	companyService *companies.Service
}

type ListJobsResponse struct {
	Jobs  []*models.Job `json:"jobs"`
	Total int           `json:"total"`
}

func jobID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return 0, errcodes.NotFound("Job")
	}
	return id, nil
}

// CheckAccess returns nil when userID owns the company the job belongs to.
// Jobs without a company are never exposed.
func CheckAccess(ctx context.Context, companyService *companies.Service, job *models.Job, userID string) error {
	if job.CompanyID == nil {
		return errcodes.NotFound("Job")
	}
	return companyService.CheckAccess(ctx, *job.CompanyID, userID)
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListJobsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	opts := ListJobsOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		Statuses:  params.Status,
		Type:      params.Type,
		CompanyID: params.CompanyID,
	}
	userID := auth.UserID(c)
	if params.CompanyID != nil {
		if err := h.companyService.CheckAccess(ctx, *params.CompanyID, userID); err != nil {
			return errors.WithStack(err)
		}
	} else {
		owned, err := h.companyService.ListCompanyIDs(ctx, userID)
		if err != nil {
			return errors.WithStack(err)
		}
		if len(owned) == 0 {
			return errors.WithStack(c.JSON(http.StatusOK, ListJobsResponse{[]*models.Job{}, 0}))
		}
		opts.CompanyIDs = owned
	}

	jobs, total, err := h.jobService.ListJobsWithTotal(ctx, opts)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, ListJobsResponse{jobs, total}))
}

func (h *handler) retrieve(c echo.Context) error {
	id, err := jobID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	job, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}
	if err := CheckAccess(ctx, h.companyService, job, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, job))
}

// retry queues a fresh copy of a failed job and returns it with 202.
func (h *handler) retry(c echo.Context) error {
	ctx := c.Request().Context()
	id, err := jobID(c)
	if err != nil {
		return err
	}

	original, err := h.jobService.RetrieveJob(ctx, RetrieveJobOptions{ID: &id})
	if err != nil {
		return errors.WithStack(err)
	}
	if err := CheckAccess(ctx, h.companyService, original, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	job, err := h.jobService.RetryJob(ctx, id)
	if err != nil {
		return errors.WithStack(err)
	}

	logger.FromContext(ctx).Info("job retried", logger.Data{"job_id": id, "retry_job_id": job.ID, "type": job.Type})
	return errors.WithStack(c.JSON(http.StatusAccepted, job))
}
