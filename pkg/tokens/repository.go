package tokens

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// Repository is the durable side of the token store.
type Repository interface {
	Get(ctx context.Context, companyID string) (*models.QuickBooksToken, error)
	Set(ctx context.Context, token *models.QuickBooksToken) error
	Delete(ctx context.Context, companyID string) error
}

type bunRepository struct {
	db *bun.DB
}

func NewRepository(db *bun.DB) Repository {
	return &bunRepository{db}
}

// Get returns nil when the company has never connected.
func (r *bunRepository) Get(ctx context.Context, companyID string) (*models.QuickBooksToken, error) {
	token := &models.QuickBooksToken{}
	err := r.db.NewSelect().
		Model(token).
		Where("qt.company_id = ?", companyID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errors.WithStack(err)
	}
	return token, nil
}

func (r *bunRepository) Set(ctx context.Context, token *models.QuickBooksToken) error {
	token.UpdatedAt = time.Now()
	_, err := r.db.NewInsert().
		Model(token).
		On("CONFLICT (company_id) DO UPDATE").
		Set("updated_at = EXCLUDED.updated_at").
		Set("access_token = EXCLUDED.access_token").
		Set("refresh_token = EXCLUDED.refresh_token").
		Set("token_type = EXCLUDED.token_type").
		Set("expires_in = EXCLUDED.expires_in").
		Set("refresh_token_expires_in = EXCLUDED.refresh_token_expires_in").
		Set("issued_at = EXCLUDED.issued_at").
		Exec(ctx)
	return errors.WithStack(err)
}

func (r *bunRepository) Delete(ctx context.Context, companyID string) error {
	_, err := r.db.NewDelete().
		Model((*models.QuickBooksToken)(nil)).
		Where("company_id = ?", companyID).
		Exec(ctx)
	return errors.WithStack(err)
}
