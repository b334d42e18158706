package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// queryHook logs queries slower than slow at warn level, and every query at
// debug level when verbose is set.
type queryHook struct {
	log     logger.Logger
	slow    time.Duration
	verbose bool
}

func (*queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (qh *queryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	elapsed := time.Since(event.StartTime)
	data := logger.Data{"duration_ms": elapsed.Milliseconds(), "operation": event.Operation()}

	switch {
	case qh.slow > 0 && elapsed >= qh.slow:
		qh.log.Warn("slow query", data, logger.Data{"query": event.Query})
	case qh.verbose:
		qh.log.Debug(event.Query, data)
	}
}

func New(cfg *config.Config) (*bun.DB, error) {
	drv := sqliteshim.Driver()
	drvCtx, ok := drv.(interface {
		OpenConnector(name string) (driver.Connector, error)
	})
	if !ok {
		return nil, errors.New("sqlite driver does not support OpenConnector")
	}
	connector, err := drvCtx.OpenConnector(cfg.DatabaseFilePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	sqldb := sql.OpenDB(newRetryConnector(connector, cfg.DatabaseMaxRetries))
	// SQLite only allows one writer. Funnelling everything through a single
	// connection also keeps :memory: databases from splitting per connection.
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	level := "info"
	if cfg.DatabaseDebug {
		level = "debug"
	}
	db.AddQueryHook(&queryHook{
		log:     logger.NewWithLevel(level),
		slow:    cfg.DatabaseSlowQuery,
		verbose: cfg.DatabaseDebug,
	})

	for i := 0; i < cfg.DatabaseConnectRetryCount; i++ {
		_, err = db.Exec("SELECT 1")
		if err != nil {
			time.Sleep(cfg.DatabaseConnectRetryDelay)
			continue
		}
		break
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, errors.Wrapf(err, "failed to run %q", p)
		}
	}

	_, err = db.Exec("PRAGMA busy_timeout=?", cfg.DatabaseBusyTimeout.Milliseconds())
	if err != nil {
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}

	return db, nil
}
