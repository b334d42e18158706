package syncer

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cosmoesg/cosmo/pkg/binder"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/jobs"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncTestContext(t *testing.T, method, target, payload string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	return newSyncTestContextAs(t, method, target, payload, "user-1")
}

func newSyncTestContextAs(t *testing.T, method, target, payload, userID string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	b, err := binder.New()
	require.NoError(t, err)
	e.Binder = b
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	if payload != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rr := httptest.NewRecorder()
	c := e.NewContext(req, rr)
	c.Set("user_id", userID)
	return c, rr
}

// newHandler gives user-1 the two connected test companies.
func newHandler(t *testing.T, tc *testContext) *handler {
	t.Helper()

	h := &handler{
		syncService:    tc.svc,
		configService:  tc.configs,
		jobService:     jobs.NewService(tc.db),
		companyService: companies.NewService(tc.db),
	}
	require.NoError(t, h.companyService.Connect(tc.ctx, "realm-1", "user-1"))
	require.NoError(t, h.companyService.Connect(tc.ctx, "realm-2", "user-1"))
	return h
}

func TestHandlerStart_QueuesJobWithDefaults(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	c, rr := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync", `{"company_id":"realm-1"}`)
	require.NoError(t, h.start(c))
	assert.Equal(t, http.StatusAccepted, rr.Code)

	var resp struct {
		Status      string                 `json:"status"`
		JobID       int                    `json:"job_id"`
		Preferences models.SyncPreferences `json:"preferences"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, models.DefaultSyncPreferences(), resp.Preferences)

	job, err := h.jobService.RetrieveJob(tc.ctx, jobs.RetrieveJobOptions{ID: &resp.JobID})
	require.NoError(t, err)
	data := job.DataParsed.(*models.JobQuickBooksSyncData)
	assert.Equal(t, "realm-1", data.CompanyID)

	cfg, err := tc.configs.GetConfig(tc.ctx, "realm-1")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Nil(t, cfg.LastSyncTime)
}

func TestHandlerStart_ConflictWhenQueued(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	c, _ := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync", `{"company_id":"realm-1","force_sync_now":true}`)
	require.NoError(t, h.start(c))

	c, _ = newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync", `{"company_id":"realm-1","force_sync_now":true}`)
	err := h.start(c)
	var cerr *errcodes.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusConflict, cerr.HTTPCode)

	// Another company is unaffected.
	c, rr := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync", `{"company_id":"realm-2","force_sync_now":true}`)
	require.NoError(t, h.start(c))
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestHandlerStart_WaitingWhenNotDue(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	now := time.Now()
	_, err := tc.configs.SaveConfig(tc.ctx, "realm-1", models.DefaultSyncPreferences(), &now)
	require.NoError(t, err)

	c, rr := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync",
		`{"company_id":"realm-1","preferences":{"sync_frequency":"hourly"}}`)
	require.NoError(t, h.start(c))
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Status            string     `json:"status"`
		NextSyncTime      *time.Time `json:"next_sync_time"`
		TimeUntilNextSync int64      `json:"time_until_next_sync"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "waiting", resp.Status)
	require.NotNil(t, resp.NextSyncTime)
	assert.Greater(t, resp.TimeUntilNextSync, int64(0))

	// Preferences are not touched while waiting.
	cfg, err := tc.configs.GetConfig(tc.ctx, "realm-1")
	require.NoError(t, err)
	assert.Equal(t, models.SyncFrequencyDaily, cfg.Preferences.SyncFrequency)
}

func TestHandlerStart_NotConnected(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	c, _ := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync", `{"company_id":"realm-3"}`)
	err := h.start(c)

	var cerr *errcodes.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "not_connected", cerr.Code)
}

func TestHandlerStart_RejectsInvalidPreferences(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	c, _ := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync",
		`{"company_id":"realm-1","preferences":{"import_period":"2weeks"}}`)
	err := h.start(c)

	var cerr *errcodes.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusUnprocessableEntity, cerr.HTTPCode)
}

func TestHandlerStart_RejectsDuplicateDataTypes(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	c, _ := newSyncTestContext(t, http.MethodPost, "/integrations/quickbooks/sync",
		`{"company_id":"realm-1","force_sync_now":true,"preferences":{"data_types":["expenses","expenses"]}}`)
	err := h.start(c)

	var cerr *errcodes.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusUnprocessableEntity, cerr.HTTPCode)
}

func TestHandler_OtherUsersCompanyIsForbidden(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	c, _ := newSyncTestContextAs(t, http.MethodPost, "/integrations/quickbooks/sync", `{"company_id":"realm-1","force_sync_now":true}`, "user-2")
	err := h.start(c)
	var cerr *errcodes.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusForbidden, cerr.HTTPCode)

	active, err := h.jobService.HasActiveJob(tc.ctx, models.JobTypeQuickBooksSync, nil)
	require.NoError(t, err)
	assert.False(t, active)

	c, _ = newSyncTestContextAs(t, http.MethodGet, "/integrations/quickbooks/sync?company_id=realm-1", "", "user-2")
	err = h.status(c)
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, http.StatusForbidden, cerr.HTTPCode)
}

func TestHandlerStatus(t *testing.T) {
	tc := newTestContext(t)
	h := newHandler(t, tc)

	_, err := tc.svc.StartSync(tc.ctx, "realm-1", models.DefaultSyncPreferences(), nil)
	require.NoError(t, err)

	c, rr := newSyncTestContext(t, http.MethodGet, "/integrations/quickbooks/sync?company_id=realm-1", "")
	require.NoError(t, h.status(c))
	assert.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "realm-1", resp["company_id"])
	assert.Equal(t, false, resp["is_running"])
	assert.Equal(t, float64(100), resp["progress"])
	assert.Equal(t, false, resp["should_sync"])
	assert.NotNil(t, resp["saved_config"])
	assert.Greater(t, resp["time_until_next_sync"].(float64), float64(0))
}
