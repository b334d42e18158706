package worker

import (
	"context"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

// scheduleJobs queues a sync for every company whose next sync time has
// passed and drops finished jobs past their retention. A non-positive
// interval disables scheduling.
func (w *Worker) scheduleJobs() {
	if w.config.SchedulerInterval <= 0 {
		<-w.shutdown
		w.doneScheduling <- struct{}{}
		return
	}

	ticker := time.NewTicker(w.config.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.shutdown:
			w.doneScheduling <- struct{}{}
			return
		case <-ticker.C:
			ctx := w.log.WithContext(w.ctx)
			if _, err := w.scheduleDueSyncs(ctx); err != nil {
				w.log.Err(err).Error("schedule syncs error")
			}
			if _, err := w.pruneFinishedJobs(ctx); err != nil {
				w.log.Err(err).Error("prune jobs error")
			}
		}
	}
}

// scheduleDueSyncs returns how many jobs it queued. Companies with a sync
// already queued or running, or without a usable token, are skipped.
func (w *Worker) scheduleDueSyncs(ctx context.Context) (int, error) {
	log := logger.FromContext(ctx)

	due, err := w.configService.ListDue(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}

	queued := 0
	for _, cfg := range due {
		companyID := cfg.CompanyID

		active, err := w.jobService.HasActiveJob(ctx, models.JobTypeQuickBooksSync, &companyID)
		if err != nil {
			return queued, errors.WithStack(err)
		}
		if active || w.syncService.IsRunning(companyID) {
			continue
		}

		connected, err := w.syncService.Connected(ctx, companyID)
		if err != nil {
			return queued, errors.WithStack(err)
		}
		if !connected {
			log.Debug("skipping scheduled sync for disconnected company", logger.Data{"company_id": companyID})
			continue
		}

		job := &models.Job{
			Type:      models.JobTypeQuickBooksSync,
			Status:    models.JobStatusPending,
			CompanyID: &companyID,
			DataParsed: &models.JobQuickBooksSyncData{
				CompanyID:   companyID,
				Preferences: cfg.Preferences,
				Scheduled:   true,
			},
		}
		if err := w.jobService.CreateJob(ctx, job); err != nil {
			return queued, errors.WithStack(err)
		}
		queued++
		log.Info("scheduled quickbooks sync", logger.Data{"company_id": companyID, "job_id": job.ID})
	}

	return queued, nil
}

func (w *Worker) pruneFinishedJobs(ctx context.Context) (int, error) {
	if w.config.JobRetention <= 0 {
		return 0, nil
	}

	n, err := w.jobService.PruneFinishedJobs(ctx, time.Now().Add(-w.config.JobRetention))
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if n > 0 {
		logger.FromContext(ctx).Info("pruned finished jobs", logger.Data{"count": n, "retention": w.config.JobRetention.String()})
	}
	return n, nil
}
