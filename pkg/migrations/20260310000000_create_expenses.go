package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE expenses (
				id TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				company_id TEXT NOT NULL,
				date TEXT,
				description TEXT NOT NULL,
				amount TEXT NOT NULL,
				currency TEXT NOT NULL,
				category TEXT,
				supplier TEXT,
				notes TEXT,
				payment_method TEXT,
				source_id TEXT NOT NULL,
				source_system TEXT NOT NULL,
				raw_data TEXT,
				PRIMARY KEY (company_id, id)
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_expenses_company_id_date ON expenses(company_id, date)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS expenses")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
