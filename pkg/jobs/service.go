package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

var activeStatuses = []string{models.JobStatusPending, models.JobStatusInProgress}

type RetrieveJobOptions struct {
	ID        *int
	CompanyID *string
	// CompanyIDs restricts results to any of these companies when not empty.
	CompanyIDs []string
}

type ListJobsOptions struct {
	Limit     *int
	Offset    *int
	Statuses  []string
	Type      *string
	CompanyID *string
	// OldestFirst orders by creation time ascending. The API lists newest
	// first.
	OldestFirst bool
}

type UpdateJobOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJob(ctx context.Context, job *models.Job) error {
	return errors.WithStack(createJob(ctx, svc.db, job))
}

func createJob(ctx context.Context, db bun.IDB, job *models.Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}
	if job.Data == "" {
		if err := job.MarshalData(); err != nil {
			return errors.WithStack(err)
		}
	}

	_, err := db.NewInsert().
		Model(job).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveJob(ctx context.Context, opts RetrieveJobOptions) (*models.Job, error) {
	job := &models.Job{}

	q := svc.db.NewSelect().Model(job)
	if opts.ID != nil {
		q = q.Where("j.id = ?", *opts.ID)
	}
	if opts.CompanyID != nil {
		q = q.Where("j.company_id = ?", *opts.CompanyID)
	}
	if len(opts.CompanyIDs) > 0 {
		q = q.Where("j.company_id IN (?)", bun.In(opts.CompanyIDs))
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Job")
		}
		return nil, errors.WithStack(err)
	}

	return job, errors.WithStack(job.UnmarshalData())
}

func (svc *Service) ListJobs(ctx context.Context, opts ListJobsOptions) ([]*models.Job, error) {
	jobs := []*models.Job{}
	if err := svc.listQuery(&jobs, opts).Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return jobs, errors.WithStack(unmarshalAll(jobs))
}

func (svc *Service) ListJobsWithTotal(ctx context.Context, opts ListJobsOptions) ([]*models.Job, int, error) {
	jobs := []*models.Job{}
	total, err := svc.listQuery(&jobs, opts).ScanAndCount(ctx)
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}
	return jobs, total, errors.WithStack(unmarshalAll(jobs))
}

func (svc *Service) listQuery(jobs *[]*models.Job, opts ListJobsOptions) *bun.SelectQuery {
	q := svc.db.NewSelect().Model(jobs)

	if opts.OldestFirst {
		q = q.Order("j.created_at ASC", "j.id ASC")
	} else {
		q = q.Order("j.created_at DESC", "j.id DESC")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if len(opts.Statuses) > 0 {
		q = q.Where("j.status IN (?)", bun.In(opts.Statuses))
	}
	if opts.Type != nil {
		q = q.Where("j.type = ?", *opts.Type)
	}
	if opts.CompanyID != nil {
		q = q.Where("j.company_id = ?", *opts.CompanyID)
	}
	return q
}

func unmarshalAll(jobs []*models.Job) error {
	for _, job := range jobs {
		if err := job.UnmarshalData(); err != nil {
			return err
		}
	}
	return nil
}

// HasActiveJob reports whether a pending or in-progress job of the given type
// exists for the company. A nil companyID matches any company.
func (svc *Service) HasActiveJob(ctx context.Context, jobType string, companyID *string) (bool, error) {
	return hasActiveJob(ctx, svc.db, jobType, companyID)
}

func hasActiveJob(ctx context.Context, db bun.IDB, jobType string, companyID *string) (bool, error) {
	q := db.NewSelect().
		Model((*models.Job)(nil)).
		Where("type = ?", jobType).
		Where("status IN (?)", bun.In(activeStatuses))
	if companyID != nil {
		q = q.Where("company_id = ?", *companyID)
	}

	exists, err := q.Exists(ctx)
	return exists, errors.WithStack(err)
}

func (svc *Service) UpdateJob(ctx context.Context, job *models.Job, opts UpdateJobOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	job.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	res, err := svc.db.NewUpdate().
		Model(job).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return errors.WithStack(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errcodes.NotFound("Job")
	}
	return nil
}

// ClaimNextJob moves the oldest pending job to in_progress under processID
// and returns it, or nil when the queue is empty. The status check in the
// update keeps two processes from claiming the same job.
func (svc *Service) ClaimNextJob(ctx context.Context, processID string) (*models.Job, error) {
	var claimed *models.Job

	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		job := &models.Job{}
		err := tx.NewSelect().
			Model(job).
			Where("j.status = ?", models.JobStatusPending).
			Order("j.created_at ASC", "j.id ASC").
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}

		job.Status = models.JobStatusInProgress
		job.ProcessID = &processID
		job.UpdatedAt = time.Now()
		res, err := tx.NewUpdate().
			Model(job).
			Column("status", "process_id", "updated_at").
			WherePK().
			Where("status = ?", models.JobStatusPending).
			Exec(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			claimed = job
		}
		return nil
	})
	if err != nil || claimed == nil {
		return nil, errors.WithStack(err)
	}

	return claimed, errors.WithStack(claimed.UnmarshalData())
}

// RetryJob queues a copy of a failed job. The original row is left as is so
// its logs stay attached to it.
func (svc *Service) RetryJob(ctx context.Context, id int) (*models.Job, error) {
	var retry *models.Job

	err := svc.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		failed := &models.Job{}
		err := tx.NewSelect().Model(failed).Where("j.id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return errcodes.NotFound("Job")
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if failed.Status != models.JobStatusFailed {
			return errcodes.Conflict("Only failed jobs can be retried.")
		}

		active, err := hasActiveJob(ctx, tx, failed.Type, failed.CompanyID)
		if err != nil {
			return err
		}
		if active {
			return errcodes.Conflict("A job of this type is already queued or running.")
		}

		retry = &models.Job{
			Type:      failed.Type,
			Data:      failed.Data,
			CompanyID: failed.CompanyID,
		}
		return createJob(ctx, tx, retry)
	})
	if err != nil {
		return nil, err
	}

	return retry, errors.WithStack(retry.UnmarshalData())
}

// ResetInProgress puts jobs claimed by a process that no longer exists back
// in the queue. It's called once on startup.
func (svc *Service) ResetInProgress(ctx context.Context, currentProcessID string) (int, error) {
	res, err := svc.db.NewUpdate().
		Model((*models.Job)(nil)).
		Set("status = ?", models.JobStatusPending).
		Set("process_id = NULL").
		Set("updated_at = ?", time.Now()).
		Where("status = ?", models.JobStatusInProgress).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("process_id IS NULL").WhereOr("process_id != ?", currentProcessID)
		}).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return int(n), errors.WithStack(err)
}

// PruneFinishedJobs deletes completed and failed jobs last touched before
// cutoff. Their logs go with them through the foreign key.
func (svc *Service) PruneFinishedJobs(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := svc.db.NewDelete().
		Model((*models.Job)(nil)).
		Where("status IN (?)", bun.In([]string{models.JobStatusCompleted, models.JobStatusFailed})).
		Where("updated_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	n, err := res.RowsAffected()
	return int(n), errors.WithStack(err)
}
