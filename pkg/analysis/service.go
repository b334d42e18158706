package analysis

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListAnalysesOptions struct {
	Limit     *int
	Offset    *int
	CompanyID *string

	includeTotal bool
}

type UpdateAnalysisOptions struct {
	Columns []string
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

func (svc *Service) CreateAnalysis(ctx context.Context, a *models.Analysis) error {
	now := time.Now()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = models.AnalysisStatusIdle
	}
	if a.ExpenseIDs == nil {
		a.ExpenseIDs = []string{}
	}

	_, err := svc.db.NewInsert().
		Model(a).
		Exec(ctx)
	return errors.WithStack(err)
}

func (svc *Service) RetrieveAnalysis(ctx context.Context, id string) (*models.Analysis, error) {
	a := &models.Analysis{}

	err := svc.db.NewSelect().
		Model(a).
		Where("a.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Analysis")
		}
		return nil, errors.WithStack(err)
	}
	if a.ExpenseIDs == nil {
		a.ExpenseIDs = []string{}
	}

	return a, nil
}

func (svc *Service) ListAnalyses(ctx context.Context, opts ListAnalysesOptions) ([]*models.Analysis, error) {
	a, _, err := svc.listAnalysesWithTotal(ctx, opts)
	return a, errors.WithStack(err)
}

func (svc *Service) ListAnalysesWithTotal(ctx context.Context, opts ListAnalysesOptions) ([]*models.Analysis, int, error) {
	opts.includeTotal = true
	return svc.listAnalysesWithTotal(ctx, opts)
}

func (svc *Service) listAnalysesWithTotal(ctx context.Context, opts ListAnalysesOptions) ([]*models.Analysis, int, error) {
	analyses := []*models.Analysis{}
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&analyses).
		Order("a.created_at DESC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.CompanyID != nil {
		q = q.Where("a.company_id = ?", *opts.CompanyID)
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return analyses, total, nil
}

func (svc *Service) UpdateAnalysis(ctx context.Context, a *models.Analysis, opts UpdateAnalysisOptions) error {
	if len(opts.Columns) == 0 {
		return nil
	}

	a.UpdatedAt = time.Now()
	columns := append(opts.Columns, "updated_at")

	_, err := svc.db.NewUpdate().
		Model(a).
		Column(columns...).
		WherePK().
		Exec(ctx)
	return errors.WithStack(err)
}
