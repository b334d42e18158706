package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmoesg/cosmo/pkg/analysis"
	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/cosmoesg/cosmo/pkg/joblogs"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/cosmoesg/cosmo/pkg/syncer"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
	"github.com/uptrace/bun"
)

const (
	fetchInterval = 5 * time.Second
	// drainInterval is used right after a job was found, so a backlog is
	// worked through without waiting a full fetch interval per job.
	drainInterval = 100 * time.Millisecond
)

var processID = uuid.New().String()

type processFunc func(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger) error

type Worker struct {
	config *config.Config
	log    logger.Logger

	processFuncs map[string]processFunc

	analysisRunner *analysis.Runner
	configService  *syncconfig.Service
	jobLogService  *joblogs.Service
	jobService     *jobs.Service
	syncService    *syncer.Service

	// ctx is canceled on shutdown so long polls and fetches stop early.
	ctx    context.Context
	cancel context.CancelFunc

	queue          chan *models.Job
	shutdown       chan struct{}
	doneFetching   chan struct{}
	doneScheduling chan struct{}
	doneProcessing chan struct{}
}

func New(cfg *config.Config, db *bun.DB, syncService *syncer.Service, analysisRunner *analysis.Runner) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	w := &Worker{
		config: cfg,
		log:    logger.New(),

		analysisRunner: analysisRunner,
		configService:  syncconfig.NewService(db),
		jobLogService:  joblogs.NewService(db),
		jobService:     jobs.NewService(db),
		syncService:    syncService,

		ctx:    ctx,
		cancel: cancel,

		queue:          make(chan *models.Job, cfg.WorkerProcesses),
		shutdown:       make(chan struct{}),
		doneFetching:   make(chan struct{}),
		doneScheduling: make(chan struct{}),
		doneProcessing: make(chan struct{}, cfg.WorkerProcesses),
	}

	w.processFuncs = map[string]processFunc{
		models.JobTypeQuickBooksSync:         w.ProcessSyncJob,
		models.JobTypeSustainabilityAnalysis: w.ProcessAnalysisJob,
	}

	return w
}

func (w *Worker) Start() {
	n, err := w.jobService.ResetInProgress(w.ctx, processID)
	if err != nil {
		w.log.Err(err).Error("reset in progress jobs error")
	} else if n > 0 {
		w.log.Info("requeued interrupted jobs", logger.Data{"count": n})
	}

	go w.fetchJobs()
	go w.scheduleJobs()
	for i := 0; i < w.config.WorkerProcesses; i++ {
		go w.processJobs()
	}
}

func (w *Worker) fetchJobs() {
	timer := time.NewTimer(fetchInterval)

	for {
		select {
		case <-w.shutdown:
			// We're shutting down, so stop adding more jobs to the queue.
			w.doneFetching <- struct{}{}
			return
		case <-timer.C:
			job, err := w.jobService.ClaimNextJob(w.ctx, processID)
			if err != nil {
				w.log.Err(err).Error("claim job error")
				timer.Reset(fetchInterval)
				continue
			}
			if job == nil {
				timer.Reset(fetchInterval)
				continue
			}
			select {
			case w.queue <- job:
			case <-w.shutdown:
				// The claimed job is requeued by ResetInProgress on the next
				// start.
				w.doneFetching <- struct{}{}
				return
			}
			timer.Reset(drainInterval)
		}
	}
}

func (w *Worker) processJobs() {
	for {
		select {
		case <-w.shutdown:
			w.doneProcessing <- struct{}{}
			return
		case job := <-w.queue:
			w.processJob(job)
		}
	}
}

func (w *Worker) processJob(job *models.Job) {
	// Prep the context to be passed down to the process function.
	log := w.log.ID(uuid.New().String()).Root(logger.Data{"job_id": job.ID, "type": job.Type, "process_id": processID})
	ctx := log.WithContext(w.ctx)
	jobLog := w.jobLogService.NewJobLogger(ctx, job.ID, log)

	err := w.run(ctx, job, jobLog)
	if err != nil && w.ctx.Err() != nil {
		// Interrupted by shutdown. Leave the job in progress so it's picked
		// up again after the restart.
		log.Warn("job interrupted by shutdown")
		return
	}

	// Update job so that it's not picked up anymore.
	cols := []string{"status"}
	if err != nil {
		job.Status = models.JobStatusFailed
		job.Error = pointerutil.String(err.Error())
		cols = append(cols, "error")
	} else {
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		cols = append(cols, "progress")
	}

	// The job context may already be done, so don't use it here.
	if err := w.jobService.UpdateJob(log.WithContext(context.Background()), job, jobs.UpdateJobOptions{Columns: cols}); err != nil {
		log.Err(err).Error("update job error")
	}
}

// run invokes the process function for the job, turning panics into errors.
func (w *Worker) run(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger) (err error) {
	fn, ok := w.processFuncs[job.Type]
	if !ok {
		err = errors.Errorf("can't find process function for type %q", job.Type)
		jobLog.Error("unknown job type", err, nil)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
			jobLog.Fatal("job panicked", err, nil)
		}
	}()

	err = fn(ctx, job, jobLog)
	if err != nil {
		jobLog.Error("job failed", err, nil)
	}
	return err
}

// ProcessSyncJob runs a QuickBooks sync and mirrors its progress onto the job.
func (w *Worker) ProcessSyncJob(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger) error {
	data, ok := job.DataParsed.(*models.JobQuickBooksSyncData)
	if !ok {
		return errors.Errorf("unexpected data for %s job", job.Type)
	}

	jobLog = jobLog.With(logger.Data{"company_id": data.CompanyID})
	jobLog.Info("starting quickbooks sync", logger.Data{
		"data_types":    data.Preferences.DataTypes,
		"import_period": data.Preferences.ImportPeriod,
		"scheduled":     data.Scheduled,
	})

	progress := func(p int, msg string) {
		job.Progress = p
		if err := w.jobService.UpdateJob(ctx, job, jobs.UpdateJobOptions{Columns: []string{"progress"}}); err != nil {
			jobLog.Warn("couldn't record progress", logger.Data{"error": err.Error()})
		}
		jobLog.Info(msg, logger.Data{"progress": p})
	}

	state, err := w.syncService.StartSync(ctx, data.CompanyID, data.Preferences, progress)
	if err != nil {
		return err
	}

	jobLog.Info("quickbooks sync finished", logger.Data{"total_items": state.TotalItemsSynced})
	return nil
}

// ProcessAnalysisJob runs a stored sustainability analysis to completion.
func (w *Worker) ProcessAnalysisJob(ctx context.Context, job *models.Job, jobLog *joblogs.JobLogger) error {
	data, ok := job.DataParsed.(*models.JobSustainabilityAnalysisData)
	if !ok {
		return errors.Errorf("unexpected data for %s job", job.Type)
	}

	jobLog = jobLog.With(logger.Data{"analysis_id": data.AnalysisID})
	jobLog.Info("starting sustainability analysis", nil)

	a, err := w.analysisRunner.Run(ctx, data.AnalysisID)
	if err != nil {
		return err
	}

	fields := logger.Data{"expenses": len(a.ExpenseIDs)}
	if a.Result != nil {
		fields["sustainable_percentage"] = fmt.Sprintf("%.2f", a.Result.SustainablePercentage)
	}
	jobLog.Info("sustainability analysis finished", fields)
	return nil
}

func (w *Worker) Shutdown() {
	close(w.shutdown)
	w.cancel()

	<-w.doneFetching
	<-w.doneScheduling
	for i := 0; i < w.config.WorkerProcesses; i++ {
		<-w.doneProcessing
	}
}
