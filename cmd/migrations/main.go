package main

import (
	"os"
	"strings"

	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/cosmoesg/cosmo/pkg/database"
	"github.com/cosmoesg/cosmo/pkg/migrations"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
)

func main() {
	log := logger.New()

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}
	defer db.Close()

	app := &cli.App{
		Name:  "migrations",
		Usage: "manage the Cosmo database schema",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply every pending migration",
				Action: func(c *cli.Context) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						log.Info("no new migrations to run")
						return nil
					}
					log.Info("migrated", logger.Data{"group_id": group.ID, "migrations": group.Migrations.String()})
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "roll back the last migration group",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "required outside of development"},
				},
				Action: func(c *cli.Context) error {
					if cfg.Environment != "development" && !c.Bool("yes") {
						return errors.Errorf("refusing to roll back in %s without --yes", cfg.Environment)
					}
					group, err := migrations.RollbackLast(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						log.Info("no groups to roll back")
						return nil
					}
					log.Info("rolled back", logger.Data{"group_id": group.ID, "migrations": group.Migrations.String()})
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "list pending migrations",
				Action: func(c *cli.Context) error {
					pending, err := migrations.Pending(c.Context, db)
					if err != nil {
						return err
					}
					log.Info("migration status", logger.Data{"pending": len(pending), "names": pending.String()})
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "create a Go migration in pkg/migrations",
				ArgsUsage: "<words of the name>",
				Action: func(c *cli.Context) error {
					return create(c, db)
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("migrations failed")
	}
}

func create(c *cli.Context, db *bun.DB) error {
	if c.NArg() == 0 {
		return errors.New("a migration name is required")
	}
	name := strings.ToLower(strings.Join(c.Args().Slice(), "_"))

	mf, err := migrations.NewMigrator(db).CreateGoMigration(c.Context, name, migrate.WithGoTemplate(migrationTemplate))
	if err != nil {
		return errors.WithStack(err)
	}
	logger.New().Info("created migration", logger.Data{"name": mf.Name, "path": mf.Path})
	return nil
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
