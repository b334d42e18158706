package joblogs

import (
	"context"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListJobLogsOptions struct {
	JobID   int
	AfterID *int
	Levels  []string
	Search  *string
	Limit   *int
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateJobLog(ctx context.Context, entry *models.JobLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := svc.db.NewInsert().
		Model(entry).
		Returning("*").
		Exec(ctx)
	return errors.WithStack(err)
}

// ListJobLogs returns entries oldest first. AfterID lets a client tail a
// running job by passing the last id it has seen.
func (svc *Service) ListJobLogs(ctx context.Context, opts ListJobLogsOptions) ([]*models.JobLog, error) {
	entries := []*models.JobLog{}

	q := svc.db.NewSelect().
		Model(&entries).
		Where("jl.job_id = ?", opts.JobID).
		Order("jl.id ASC")

	if opts.AfterID != nil {
		q = q.Where("jl.id > ?", *opts.AfterID)
	}
	if len(opts.Levels) > 0 {
		q = q.Where("jl.level IN (?)", bun.In(opts.Levels))
	}
	if opts.Search != nil && *opts.Search != "" {
		q = q.Where("jl.message LIKE ?", "%"+*opts.Search+"%")
	}
	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, errors.WithStack(err)
	}
	return entries, nil
}

// CountByLevel returns how many entries the job has per level. Levels with
// no entries are absent.
func (svc *Service) CountByLevel(ctx context.Context, jobID int) (map[string]int, error) {
	var rows []struct {
		Level string `bun:"level"`
		Count int    `bun:"count"`
	}
	err := svc.db.NewSelect().
		Model((*models.JobLog)(nil)).
		ColumnExpr("jl.level AS level").
		ColumnExpr("COUNT(*) AS count").
		Where("jl.job_id = ?", jobID).
		Group("jl.level").
		Scan(ctx, &rows)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Level] = r.Count
	}
	return counts, nil
}
