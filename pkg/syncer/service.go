package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/cosmoesg/cosmo/pkg/expenses"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
)

const (
	ProgressFetching = 20
	ProgressFetched  = 50
	ProgressDone     = 100
)

// RunState describes the latest sync of one company.
type RunState struct {
	IsRunning        bool       `json:"is_running"`
	LastSyncTime     *time.Time `json:"last_sync_time"`
	CompanyID        string     `json:"company_id"`
	Error            *string    `json:"error"`
	Progress         int        `json:"progress"`
	TotalItemsSynced int        `json:"total_items_synced"`
}

type ExpenseFetcher interface {
	FetchExpenses(ctx context.Context, companyID, fromDate string) ([]*models.Expense, error)
}

type ExpenseStore interface {
	UpsertExpenses(ctx context.Context, expenses []*models.Expense) (int, error)
}

// ProgressFunc is told about every progress change of a run. It may be nil.
type ProgressFunc func(progress int, msg string)

// Service runs syncs. Each company has its own run state, so a long sync for
// one company never blocks another.
type Service struct {
	tokens  expenses.AccessTokenProvider
	fetcher ExpenseFetcher
	store   ExpenseStore
	configs *syncconfig.Service

	mu   sync.Mutex
	runs map[string]*RunState

	now func() time.Time
}

func NewService(tokens expenses.AccessTokenProvider, fetcher ExpenseFetcher, store ExpenseStore, configs *syncconfig.Service) *Service {
	return &Service{
		tokens:  tokens,
		fetcher: fetcher,
		store:   store,
		configs: configs,
		runs:    map[string]*RunState{},
		now:     time.Now,
	}
}

// StartDate returns the YYYY-MM-DD cutoff for importPeriod counted back from
// now, or "" when everything should be imported.
func StartDate(importPeriod string, now time.Time) (string, error) {
	now = now.UTC()
	var start time.Time
	switch importPeriod {
	case models.ImportPeriod1Month:
		start = now.AddDate(0, -1, 0)
	case models.ImportPeriod3Months:
		start = now.AddDate(0, -3, 0)
	case models.ImportPeriod6Months:
		start = now.AddDate(0, -6, 0)
	case models.ImportPeriod1Year:
		start = now.AddDate(-1, 0, 0)
	case models.ImportPeriodAll:
		return "", nil
	default:
		return "", errors.Errorf("unknown import period %q", importPeriod)
	}
	return start.Format("2006-01-02"), nil
}

// Status returns a copy of the company's run state. A company that never
// synced in this process gets an idle state.
func (svc *Service) Status(companyID string) RunState {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	run, ok := svc.runs[companyID]
	if !ok {
		return RunState{CompanyID: companyID}
	}
	return *run
}

// IsRunning reports whether the company has a sync in flight.
func (svc *Service) IsRunning(companyID string) bool {
	return svc.Status(companyID).IsRunning
}

func (svc *Service) update(companyID string, fn func(run *RunState)) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	run, ok := svc.runs[companyID]
	if !ok {
		run = &RunState{CompanyID: companyID}
		svc.runs[companyID] = run
	}
	fn(run)
}

// begin claims the company's run slot.
func (svc *Service) begin(companyID string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	run, ok := svc.runs[companyID]
	if ok && run.IsRunning {
		return errors.WithStack(&AlreadyRunningError{CompanyID: companyID})
	}
	if !ok {
		run = &RunState{CompanyID: companyID}
		svc.runs[companyID] = run
	}
	run.IsRunning = true
	run.Error = nil
	run.Progress = 0
	run.TotalItemsSynced = 0
	return nil
}

// StartSync runs one sync for the company and blocks until it finishes.
// Preferences and stats are only saved when every step succeeds.
func (svc *Service) StartSync(ctx context.Context, companyID string, prefs models.SyncPreferences, progress ProgressFunc) (*RunState, error) {
	log := logger.FromContext(ctx)
	if progress == nil {
		progress = func(int, string) {}
	}

	if svc.IsRunning(companyID) {
		return nil, errors.WithStack(&AlreadyRunningError{CompanyID: companyID})
	}

	token, err := svc.tokens.EnsureValidAccessToken(ctx, companyID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if token == "" {
		nerr := &NotAuthenticatedError{CompanyID: companyID}
		msg := nerr.Error()
		svc.update(companyID, func(run *RunState) {
			if !run.IsRunning {
				run.Error = &msg
			}
		})
		return nil, errors.WithStack(nerr)
	}

	if err := svc.begin(companyID); err != nil {
		return nil, err
	}

	started := svc.now()
	itemsByType, err := svc.run(ctx, companyID, prefs, progress)
	if err == nil {
		now := svc.now()
		if _, err = svc.configs.RecordSync(ctx, companyID, prefs, now, now.Sub(started), itemsByType); err == nil {
			total := 0
			for _, n := range itemsByType {
				total += n
			}
			svc.update(companyID, func(run *RunState) {
				run.IsRunning = false
				run.LastSyncTime = &now
				run.Progress = ProgressDone
				run.TotalItemsSynced = total
			})
			progress(ProgressDone, "sync completed")
			log.Info("quickbooks sync completed", logger.Data{
				"company_id":  companyID,
				"total_items": total,
				"duration_ms": now.Sub(started).Milliseconds(),
			})
			state := svc.Status(companyID)
			return &state, nil
		}
	}

	msg := err.Error()
	svc.update(companyID, func(run *RunState) {
		run.IsRunning = false
		run.Error = &msg
		run.Progress = 0
	})
	log.Err(err).Error("quickbooks sync failed", logger.Data{"company_id": companyID})
	return nil, err
}

func (svc *Service) run(ctx context.Context, companyID string, prefs models.SyncPreferences, progress ProgressFunc) (map[string]int, error) {
	log := logger.FromContext(ctx)

	fromDate, err := StartDate(prefs.ImportPeriod, svc.now())
	if err != nil {
		return nil, err
	}

	itemsByType := map[string]int{}
	seen := map[string]bool{}
	for _, dataType := range prefs.DataTypes {
		// Stored preferences may predate validation of repeated entries.
		if seen[dataType] {
			continue
		}
		seen[dataType] = true

		switch dataType {
		case models.DataTypeExpenses:
			svc.setProgress(companyID, ProgressFetching)
			progress(ProgressFetching, "fetching expenses")

			list, err := svc.fetcher.FetchExpenses(ctx, companyID, fromDate)
			if err != nil {
				return nil, err
			}
			svc.update(companyID, func(run *RunState) {
				run.Progress = ProgressFetched
				run.TotalItemsSynced += len(list)
			})
			progress(ProgressFetched, "fetched expenses")

			if _, err := svc.store.UpsertExpenses(ctx, list); err != nil {
				return nil, err
			}
			itemsByType[models.DataTypeExpenses] = len(list)
		default:
			log.Warn("skipping unsupported data type", logger.Data{
				"company_id": companyID,
				"data_type":  dataType,
			})
		}
	}
	return itemsByType, nil
}

func (svc *Service) setProgress(companyID string, p int) {
	svc.update(companyID, func(run *RunState) {
		run.Progress = p
	})
}

// Connected reports whether the company currently has a usable access token.
func (svc *Service) Connected(ctx context.Context, companyID string) (bool, error) {
	token, err := svc.tokens.EnsureValidAccessToken(ctx, companyID)
	if err != nil {
		return false, errors.WithStack(err)
	}
	return token != "", nil
}
