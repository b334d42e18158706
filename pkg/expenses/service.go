package expenses

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type ListExpensesOptions struct {
	Limit     *int
	Offset    *int
	CompanyID *string
	IDs       []string

	includeTotal bool
}

type Service struct {
	db *bun.DB
}

func NewService(db *bun.DB) *Service {
	return &Service{db}
}

// UpsertExpenses stores the given expenses in a single transaction. Rows are
// keyed by company and normalized id, so importing the same record twice
// updates it in place.
func (svc *Service) UpsertExpenses(ctx context.Context, expenses []*models.Expense) (int, error) {
	if len(expenses) == 0 {
		return 0, nil
	}

	now := time.Now()
	for _, e := range expenses {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
	}

	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&expenses).
			On("CONFLICT (company_id, id) DO UPDATE").
			Set("updated_at = EXCLUDED.updated_at").
			Set("date = EXCLUDED.date").
			Set("description = EXCLUDED.description").
			Set("amount = EXCLUDED.amount").
			Set("currency = EXCLUDED.currency").
			Set("category = EXCLUDED.category").
			Set("supplier = EXCLUDED.supplier").
			Set("notes = EXCLUDED.notes").
			Set("payment_method = EXCLUDED.payment_method").
			Set("source_id = EXCLUDED.source_id").
			Set("source_system = EXCLUDED.source_system").
			Set("raw_data = EXCLUDED.raw_data").
			Exec(ctx)
		return errors.WithStack(err)
	})
	if err != nil {
		return 0, err
	}

	return len(expenses), nil
}

func (svc *Service) RetrieveExpense(ctx context.Context, companyID, id string) (*models.Expense, error) {
	expense := &models.Expense{}

	err := svc.db.NewSelect().
		Model(expense).
		Where("e.company_id = ?", companyID).
		Where("e.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errcodes.NotFound("Expense")
		}
		return nil, errors.WithStack(err)
	}

	return expense, nil
}

func (svc *Service) ListExpenses(ctx context.Context, opts ListExpensesOptions) ([]*models.Expense, error) {
	e, _, err := svc.listExpensesWithTotal(ctx, opts)
	return e, errors.WithStack(err)
}

func (svc *Service) ListExpensesWithTotal(ctx context.Context, opts ListExpensesOptions) ([]*models.Expense, int, error) {
	opts.includeTotal = true
	return svc.listExpensesWithTotal(ctx, opts)
}

func (svc *Service) listExpensesWithTotal(ctx context.Context, opts ListExpensesOptions) ([]*models.Expense, int, error) {
	expenses := []*models.Expense{}
	var total int
	var err error

	q := svc.db.NewSelect().
		Model(&expenses).
		Order("e.date DESC", "e.id ASC")

	if opts.Limit != nil {
		q = q.Limit(*opts.Limit)
	}
	if opts.Offset != nil {
		q = q.Offset(*opts.Offset)
	}
	if opts.CompanyID != nil {
		q = q.Where("e.company_id = ?", *opts.CompanyID)
	}
	if opts.IDs != nil {
		q = q.Where("e.id IN (?)", bun.In(opts.IDs))
	}

	if opts.includeTotal {
		total, err = q.ScanAndCount(ctx)
	} else {
		err = q.Scan(ctx)
	}
	if err != nil {
		return nil, 0, errors.WithStack(err)
	}

	return expenses, total, nil
}
