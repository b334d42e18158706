package companies

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

type Service struct {
	db  *bun.DB
	now func() time.Time
}

func NewService(db *bun.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Connect makes userID the owner of the company. Authorizing a company again
// from another Cosmo account moves it to that account, since completing the
// Intuit consent screen proves access to the company.
func (svc *Service) Connect(ctx context.Context, companyID, userID string) error {
	now := svc.now()
	_, err := svc.db.NewInsert().
		Model(&models.Company{
			CompanyID:   companyID,
			CreatedAt:   now,
			UpdatedAt:   now,
			UserID:      userID,
			ConnectedAt: now,
		}).
		On("CONFLICT (company_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("user_id = EXCLUDED.user_id").
		Set("connected_at = EXCLUDED.connected_at").
		Exec(ctx)
	return errors.WithStack(err)
}

// RetrieveCompany returns nil when nobody ever connected the company.
func (svc *Service) RetrieveCompany(ctx context.Context, companyID string) (*models.Company, error) {
	company := &models.Company{}
	err := svc.db.NewSelect().
		Model(company).
		Where("qc.company_id = ?", companyID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return company, nil
}

// ListCompanyIDs returns the companies userID owns.
func (svc *Service) ListCompanyIDs(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := svc.db.NewSelect().
		Model((*models.Company)(nil)).
		Column("qc.company_id").
		Where("qc.user_id = ?", userID).
		Order("qc.company_id ASC").
		Scan(ctx, &ids)
	return ids, errors.WithStack(err)
}

// CheckAccess returns nil when userID owns the company. A company nobody
// connected is reported as not connected, one owned by someone else as
// forbidden.
func (svc *Service) CheckAccess(ctx context.Context, companyID, userID string) error {
	company, err := svc.RetrieveCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if company == nil {
		return errcodes.NotConnected(companyID)
	}
	if userID == "" || company.UserID != userID {
		return errcodes.Forbidden("Access to this QuickBooks company")
	}
	return nil
}
