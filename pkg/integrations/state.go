package integrations

import (
	"context"
	"database/sql"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// StateTTL is how long a user has to finish the Intuit consent screen.
const StateTTL = 10 * time.Minute

// ErrInvalidState is returned for unknown, expired, reused or foreign states.
var ErrInvalidState = errors.New("invalid oauth state")

// StateService issues the OAuth state parameter and checks it on the way
// back. Each state belongs to the user that started the flow and can be used
// once.
type StateService struct {
	db  *bun.DB
	now func() time.Time
}

func NewStateService(db *bun.DB) *StateService {
	return &StateService{db: db, now: time.Now}
}

func (svc *StateService) Create(ctx context.Context, userID string) (string, error) {
	now := svc.now()

	// Abandoned flows are cleaned up here rather than by a separate job.
	_, err := svc.db.NewDelete().
		Model((*models.OAuthState)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return "", errors.WithStack(err)
	}

	state := &models.OAuthState{
		State:     uuid.New().String(),
		CreatedAt: now,
		ExpiresAt: now.Add(StateTTL),
		UserID:    userID,
	}
	if _, err := svc.db.NewInsert().Model(state).Exec(ctx); err != nil {
		return "", errors.WithStack(err)
	}
	return state.State, nil
}

// Consume deletes the state whether or not it turns out to be valid.
func (svc *StateService) Consume(ctx context.Context, state, userID string) error {
	if state == "" {
		return errors.WithStack(ErrInvalidState)
	}

	row := &models.OAuthState{}
	err := svc.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(row).
			Where("os.state = ?", state).
			Scan(ctx)
		if err != nil {
			return err
		}

		_, err = tx.NewDelete().
			Model((*models.OAuthState)(nil)).
			Where("state = ?", state).
			Exec(ctx)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return errors.WithStack(ErrInvalidState)
	}
	if err != nil {
		return errors.WithStack(err)
	}

	if !svc.now().Before(row.ExpiresAt) || row.UserID != userID {
		return errors.WithStack(ErrInvalidState)
	}
	return nil
}
