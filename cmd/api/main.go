package main

import (
	"context"
	"net"
	"net/http"

	"github.com/cosmoesg/cosmo/pkg/analysis"
	"github.com/cosmoesg/cosmo/pkg/backend"
	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/cosmoesg/cosmo/pkg/database"
	"github.com/cosmoesg/cosmo/pkg/expenses"
	"github.com/cosmoesg/cosmo/pkg/migrations"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/cosmoesg/cosmo/pkg/server"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/cosmoesg/cosmo/pkg/syncer"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/cosmoesg/cosmo/pkg/version"
	"github.com/cosmoesg/cosmo/pkg/worker"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting cosmo", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	qbClient, err := quickbooks.NewClient(quickbooks.ConfigFromApp(cfg))
	if err != nil {
		log.Err(err).Fatal("quickbooks client error")
	}

	box, err := tokens.NewSecretBox(cfg.TokenEncryptionKey)
	if err != nil {
		log.Err(err).Fatal("token encryption key error")
	}
	tokenService := tokens.NewService(tokens.NewRepository(db), box, qbClient)

	expenseService := expenses.NewService(db)
	syncService := syncer.NewService(tokenService, expenses.NewFetcher(qbClient, tokenService), expenseService, syncconfig.NewService(db))

	analyzer := analysis.NewAnalyzer(backend.New(cfg), cfg.AnalysisPollInterval, cfg.AnalysisTimeout)
	analysisRunner := analysis.NewRunner(analysis.NewService(db), expenseService, analyzer)

	wrkr := worker.New(cfg, db, syncService, analysisRunner)

	srv, err := server.New(cfg, db, qbClient, tokenService, syncService)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String(), "quickbooks_environment": cfg.QuickbooksEnvironment})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started", logger.Data{"processes": cfg.WorkerProcesses, "scheduler_interval": cfg.SchedulerInterval.String()})

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}
