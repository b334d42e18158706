package migrations

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec(`
			CREATE TABLE analyses (
				id TEXT PRIMARY KEY,
				created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
				company_id TEXT NOT NULL,
				status TEXT NOT NULL,
				expense_ids TEXT NOT NULL,
				user_context TEXT NOT NULL,
				remote_job_id TEXT,
				result TEXT,
				error TEXT,
				job_id INTEGER REFERENCES jobs(id) ON DELETE SET NULL
			)
`)
		if err != nil {
			return errors.WithStack(err)
		}
		_, err = db.Exec(`CREATE INDEX ix_analyses_company_id ON analyses(company_id)`)
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("DROP TABLE IF EXISTS analyses")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
