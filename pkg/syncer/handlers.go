package syncer

import (
	"net/http"
	"time"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

type handler struct {
	syncService    *Service
	configService  *syncconfig.Service
	jobService     *jobs.Service
	companyService *companies.Service
}

type statusResponse struct {
	RunState
	SavedConfig       *models.SyncConfig `json:"saved_config"`
	ShouldSync        bool               `json:"should_sync"`
	TimeUntilNextSync int64              `json:"time_until_next_sync"`
}

func (h *handler) status(c echo.Context) error {
	ctx := c.Request().Context()

	params := StatusQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	cfg, err := h.configService.GetConfig(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}
	shouldSync, err := h.configService.ShouldSync(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}
	remaining, err := h.configService.TimeUntilNextSync(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}

	resp := statusResponse{
		RunState:          h.syncService.Status(params.CompanyID),
		SavedConfig:       cfg,
		ShouldSync:        shouldSync,
		TimeUntilNextSync: remaining.Milliseconds(),
	}
	// Runs started by another process only leave a trace in the config.
	if resp.LastSyncTime == nil && cfg != nil {
		resp.LastSyncTime = cfg.LastSyncTime
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

// preferencesFrom fills in whatever the caller left out.
func preferencesFrom(p PreferencesPayload) models.SyncPreferences {
	prefs := models.DefaultSyncPreferences()
	if len(p.DataTypes) > 0 {
		prefs.DataTypes = p.DataTypes
	}
	if p.SyncFrequency != "" {
		prefs.SyncFrequency = p.SyncFrequency
	}
	if p.ImportPeriod != "" {
		prefs.ImportPeriod = p.ImportPeriod
	}
	return prefs
}

func (h *handler) start(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := StartSyncPayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}
	companyID := params.CompanyID
	prefs := preferencesFrom(params.Preferences)

	if !params.ForceSyncNow {
		due, err := h.configService.ShouldSync(ctx, companyID)
		if err != nil {
			return errors.WithStack(err)
		}
		if !due {
			cfg, err := h.configService.GetConfig(ctx, companyID)
			if err != nil {
				return errors.WithStack(err)
			}
			remaining, err := h.configService.TimeUntilNextSync(ctx, companyID)
			if err != nil {
				return errors.WithStack(err)
			}
			var next *time.Time
			if cfg != nil {
				next = cfg.NextSyncTime
			}
			return errors.WithStack(c.JSON(http.StatusOK, map[string]interface{}{
				"status":               "waiting",
				"message":              "No sync is needed yet.",
				"next_sync_time":       next,
				"time_until_next_sync": remaining.Milliseconds(),
			}))
		}
	}

	connected, err := h.syncService.Connected(ctx, companyID)
	if err != nil {
		return errors.WithStack(err)
	}
	if !connected {
		return errcodes.NotConnected(companyID)
	}

	active, err := h.jobService.HasActiveJob(ctx, models.JobTypeQuickBooksSync, &companyID)
	if err != nil {
		return errors.WithStack(err)
	}
	if active || h.syncService.IsRunning(companyID) {
		return errcodes.Conflict("A sync is already running for this company.")
	}

	if _, err := h.configService.SaveConfig(ctx, companyID, prefs, nil); err != nil {
		return errors.WithStack(err)
	}

	job := &models.Job{
		Type:      models.JobTypeQuickBooksSync,
		Status:    models.JobStatusPending,
		CompanyID: &companyID,
		DataParsed: &models.JobQuickBooksSyncData{
			CompanyID:   companyID,
			Preferences: prefs,
		},
	}
	if err := h.jobService.CreateJob(ctx, job); err != nil {
		return errors.WithStack(err)
	}

	log.Info("quickbooks sync queued", logger.Data{"company_id": companyID, "job_id": job.ID})

	return errors.WithStack(c.JSON(http.StatusAccepted, map[string]interface{}{
		"status":      "queued",
		"job_id":      job.ID,
		"preferences": prefs,
	}))
}
