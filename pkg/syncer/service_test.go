package syncer

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/cosmoesg/cosmo/pkg/expenses"
	"github.com/cosmoesg/cosmo/pkg/migrations"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

type fakeTokens struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (f *fakeTokens) EnsureValidAccessToken(_ context.Context, companyID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[companyID], nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	fetch func(companyID, fromDate string) ([]*models.Expense, error)
}

func (f *fakeFetcher) FetchExpenses(_ context.Context, companyID, fromDate string) ([]*models.Expense, error) {
	f.mu.Lock()
	f.calls = append(f.calls, companyID+"|"+fromDate)
	f.mu.Unlock()
	return f.fetch(companyID, fromDate)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func sampleExpenses(companyID string, n int) []*models.Expense {
	out := make([]*models.Expense, 0, n)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		out = append(out, &models.Expense{
			ID:           "qb-purchase-" + companyID + id,
			CompanyID:    companyID,
			Date:         "2026-02-01",
			Description:  "Purchase #" + id,
			Amount:       decimal.NewFromInt(int64(10 * (i + 1))),
			Currency:     "USD",
			SourceID:     id,
			SourceSystem: models.SourceSystemQuickBooks,
		})
	}
	return out
}

type testContext struct {
	ctx     context.Context
	db      *bun.DB
	svc     *Service
	tokens  *fakeTokens
	fetcher *fakeFetcher
	configs *syncconfig.Service
	store   *expenses.Service
}

func newTestContext(t *testing.T) *testContext {
	t.Helper()

	db := newTestDB(t)
	tokens := &fakeTokens{tokens: map[string]string{"realm-1": "access-1", "realm-2": "access-2"}}
	fetcher := &fakeFetcher{fetch: func(companyID, _ string) ([]*models.Expense, error) {
		return sampleExpenses(companyID, 2), nil
	}}
	configs := syncconfig.NewService(db)
	store := expenses.NewService(db)

	return &testContext{
		ctx:     logger.New().WithContext(context.Background()),
		db:      db,
		svc:     NewService(tokens, fetcher, store, configs),
		tokens:  tokens,
		fetcher: fetcher,
		configs: configs,
		store:   store,
	}
}

func TestStartDate(t *testing.T) {
	now := time.Date(2026, 5, 15, 23, 30, 0, 0, time.UTC)

	cases := map[string]string{
		models.ImportPeriod1Month:  "2026-04-15",
		models.ImportPeriod3Months: "2026-02-15",
		models.ImportPeriod6Months: "2025-11-15",
		models.ImportPeriod1Year:   "2025-05-15",
		models.ImportPeriodAll:     "",
	}
	for period, want := range cases {
		got, err := StartDate(period, now)
		require.NoError(t, err, period)
		assert.Equal(t, want, got, period)
	}

	_, err := StartDate("2weeks", now)
	assert.Error(t, err)
}

func TestStartSync_Success(t *testing.T) {
	tc := newTestContext(t)

	var reported []int
	state, err := tc.svc.StartSync(tc.ctx, "realm-1", models.DefaultSyncPreferences(), func(p int, _ string) {
		reported = append(reported, p)
	})
	require.NoError(t, err)

	assert.False(t, state.IsRunning)
	assert.Equal(t, ProgressDone, state.Progress)
	assert.Equal(t, 2, state.TotalItemsSynced)
	assert.Nil(t, state.Error)
	require.NotNil(t, state.LastSyncTime)
	assert.Equal(t, []int{ProgressFetching, ProgressFetched, ProgressDone}, reported)

	cfg, err := tc.configs.GetConfig(tc.ctx, "realm-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.NotNil(t, cfg.LastSyncTime)
	require.NotNil(t, cfg.NextSyncTime)
	assert.Equal(t, 2, cfg.SyncStats.TotalItemsSynced)
	assert.Equal(t, 2, cfg.SyncStats.ItemsByType[models.DataTypeExpenses])

	stored, err := tc.store.ListExpenses(tc.ctx, expenses.ListExpensesOptions{CompanyID: &state.CompanyID})
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	require.Equal(t, 1, tc.fetcher.callCount())
	assert.Contains(t, tc.fetcher.calls[0], "realm-1|")
	assert.NotEqual(t, "realm-1|", tc.fetcher.calls[0])
}

func TestStartSync_AllPeriodHasNoCutoff(t *testing.T) {
	tc := newTestContext(t)

	prefs := models.DefaultSyncPreferences()
	prefs.ImportPeriod = models.ImportPeriodAll
	_, err := tc.svc.StartSync(tc.ctx, "realm-1", prefs, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"realm-1|"}, tc.fetcher.calls)
}

func TestStartSync_NotAuthenticated(t *testing.T) {
	tc := newTestContext(t)

	_, err := tc.svc.StartSync(tc.ctx, "realm-3", models.DefaultSyncPreferences(), nil)
	require.Error(t, err)

	var nerr *NotAuthenticatedError
	require.True(t, errors.As(err, &nerr))
	assert.True(t, errors.Is(err, quickbooks.ErrNotAuthenticated))
	assert.Zero(t, tc.fetcher.callCount())

	state := tc.svc.Status("realm-3")
	assert.False(t, state.IsRunning)
	require.NotNil(t, state.Error)

	cfg, err := tc.configs.GetConfig(tc.ctx, "realm-3")
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestStartSync_FailureLeavesStatsUnchanged(t *testing.T) {
	tc := newTestContext(t)

	_, err := tc.svc.StartSync(tc.ctx, "realm-1", models.DefaultSyncPreferences(), nil)
	require.NoError(t, err)
	before, err := tc.configs.GetConfig(tc.ctx, "realm-1")
	require.NoError(t, err)

	tc.fetcher.fetch = func(string, string) ([]*models.Expense, error) {
		return nil, &quickbooks.RemoteQueryError{StatusCode: 500, Body: "boom"}
	}
	_, err = tc.svc.StartSync(tc.ctx, "realm-1", models.DefaultSyncPreferences(), nil)
	require.Error(t, err)

	state := tc.svc.Status("realm-1")
	assert.False(t, state.IsRunning)
	assert.Zero(t, state.Progress)
	require.NotNil(t, state.Error)
	assert.Contains(t, *state.Error, "500")

	after, err := tc.configs.GetConfig(tc.ctx, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, before.SyncStats, after.SyncStats)
	assert.True(t, before.LastSyncTime.Equal(*after.LastSyncTime))
}

func TestStartSync_SkipsUnsupportedDataTypes(t *testing.T) {
	tc := newTestContext(t)

	prefs := models.DefaultSyncPreferences()
	prefs.DataTypes = []string{models.DataTypeInvoices, models.DataTypeVendors}
	state, err := tc.svc.StartSync(tc.ctx, "realm-1", prefs, nil)
	require.NoError(t, err)

	assert.Zero(t, tc.fetcher.callCount())
	assert.Equal(t, 0, state.TotalItemsSynced)
	assert.Equal(t, ProgressDone, state.Progress)
}

func TestStartSync_RepeatedDataTypeRunsOnce(t *testing.T) {
	tc := newTestContext(t)

	prefs := models.DefaultSyncPreferences()
	prefs.DataTypes = []string{models.DataTypeExpenses, models.DataTypeExpenses}
	state, err := tc.svc.StartSync(tc.ctx, "realm-1", prefs, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, tc.fetcher.callCount())
	assert.Equal(t, 2, state.TotalItemsSynced)

	cfg, err := tc.configs.GetConfig(tc.ctx, "realm-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 2, cfg.SyncStats.TotalItemsSynced)
	assert.Equal(t, 2, cfg.SyncStats.ItemsByType[models.DataTypeExpenses])
}

func TestStartSync_AlreadyRunningDoesNotBlockOtherCompanies(t *testing.T) {
	tc := newTestContext(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	tc.fetcher.fetch = func(companyID, _ string) ([]*models.Expense, error) {
		if companyID == "realm-1" {
			close(entered)
			<-release
		}
		return sampleExpenses(companyID, 1), nil
	}

	done := make(chan error, 1)
	go func() {
		_, err := tc.svc.StartSync(tc.ctx, "realm-1", models.DefaultSyncPreferences(), nil)
		done <- err
	}()
	<-entered

	running := tc.svc.Status("realm-1")
	assert.True(t, running.IsRunning)
	assert.Equal(t, ProgressFetching, running.Progress)

	_, err := tc.svc.StartSync(tc.ctx, "realm-1", models.DefaultSyncPreferences(), nil)
	var rerr *AlreadyRunningError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "realm-1", rerr.CompanyID)

	// The rejected call leaves the running state alone.
	assert.Equal(t, running, tc.svc.Status("realm-1"))

	state, err := tc.svc.StartSync(tc.ctx, "realm-2", models.DefaultSyncPreferences(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, state.TotalItemsSynced)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, tc.svc.IsRunning("realm-1"))
}

func TestStatus_UnknownCompanyIsIdle(t *testing.T) {
	tc := newTestContext(t)

	state := tc.svc.Status("realm-9")
	assert.Equal(t, RunState{CompanyID: "realm-9"}, state)
}
