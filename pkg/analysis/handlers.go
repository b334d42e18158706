package analysis

import (
	"net/http"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type handler struct {
	analysisService *Service
	companyService  *companies.Service
	jobService      *jobs.Service
}

func (h *handler) create(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := CreateAnalysisPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	a := &models.Analysis{
		CompanyID:   params.CompanyID,
		ExpenseIDs:  params.ExpenseIDs,
		UserContext: params.UserContext.toModel(),
	}
	if err := h.analysisService.CreateAnalysis(ctx, a); err != nil {
		return errors.WithStack(err)
	}

	job := &models.Job{
		Type:      models.JobTypeSustainabilityAnalysis,
		Status:    models.JobStatusPending,
		CompanyID: &a.CompanyID,
		DataParsed: &models.JobSustainabilityAnalysisData{
			AnalysisID: a.ID,
		},
	}
	if err := h.jobService.CreateJob(ctx, job); err != nil {
		return errors.WithStack(err)
	}

	a.JobID = &job.ID
	if err := h.analysisService.UpdateAnalysis(ctx, a, UpdateAnalysisOptions{Columns: []string{"job_id"}}); err != nil {
		return errors.WithStack(err)
	}

	log.Info("sustainability analysis queued", logger.Data{"analysis_id": a.ID, "job_id": job.ID})

	return errors.WithStack(c.JSON(http.StatusAccepted, a))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	a, err := h.analysisService.RetrieveAnalysis(ctx, c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, a.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, a))
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListAnalysesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	analyses, total, err := h.analysisService.ListAnalysesWithTotal(ctx, ListAnalysesOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		CompanyID: &params.CompanyID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, struct {
		Analyses []*models.Analysis `json:"analyses"`
		Total    int                `json:"total"`
	}{analyses, total}))
}
