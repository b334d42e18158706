package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/cosmoesg/cosmo/pkg/database"
	"github.com/cosmoesg/cosmo/pkg/expenses"
	"github.com/cosmoesg/cosmo/pkg/migrations"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/cosmoesg/cosmo/pkg/syncer"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	cfg := config.NewForTest()
	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})
	_, err = migrations.BringUpToDate(context.Background(), db)
	require.NoError(t, err)

	qbClient, err := quickbooks.NewClient(quickbooks.ConfigFromApp(cfg))
	require.NoError(t, err)
	box, err := tokens.NewSecretBox(cfg.TokenEncryptionKey)
	require.NoError(t, err)
	tokenService := tokens.NewService(tokens.NewRepository(db), box, qbClient)
	syncService := syncer.NewService(tokenService, expenses.NewFetcher(qbClient, tokenService), expenses.NewService(db), syncconfig.NewService(db))

	srv, err := New(cfg, db, qbClient, tokenService, syncService)
	require.NoError(t, err)
	return srv.Handler
}

func do(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func testSession(t *testing.T, h http.Handler, userID string) string {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/test/session", "", `{"user_id":"`+userID+`","email":"`+userID+`@example.com"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestServer_RequiresSession(t *testing.T) {
	h := newTestServer(t)

	for _, target := range []string{
		"/expenses?company_id=realm-1",
		"/jobs",
		"/analyses?company_id=realm-1",
		"/integrations/quickbooks/status?company_id=realm-1",
		"/integrations/quickbooks/sync?company_id=realm-1",
		"/auth/me",
	} {
		rr := do(t, h, http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, target)
		assert.Contains(t, rr.Body.String(), "unauthorized", target)
	}
}

func TestServer_SessionFlow(t *testing.T) {
	h := newTestServer(t)
	token := testSession(t, h, "user-1")

	rr := do(t, h, http.MethodGet, "/auth/me", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"user_id":"user-1"`)

	rr = do(t, h, http.MethodGet, "/integrations/quickbooks/status?company_id=realm-1", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"connected":false`)

	rr = do(t, h, http.MethodPost, "/test/quickbooks/tokens", "", `{"company_id":"realm-1","user_id":"user-1","access_token":"a","refresh_token":"r"}`)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/integrations/quickbooks/status?company_id=realm-1", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"connected":true`)

	rr = do(t, h, http.MethodPost, "/integrations/quickbooks/sync", token, `{"company_id":"realm-1","force_sync_now":true}`)
	assert.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/jobs?type=quickbooks_sync", token, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"total":1`)
}

func TestServer_OtherUsersCompanyIsForbidden(t *testing.T) {
	h := newTestServer(t)
	other := testSession(t, h, "user-2")

	rr := do(t, h, http.MethodPost, "/test/quickbooks/tokens", "", `{"company_id":"realm-1","user_id":"user-1","access_token":"a","refresh_token":"r"}`)
	require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())

	for _, target := range []string{
		"/expenses?company_id=realm-1",
		"/integrations/quickbooks/status?company_id=realm-1",
		"/integrations/quickbooks/sync?company_id=realm-1",
	} {
		rr = do(t, h, http.MethodGet, target, other, "")
		assert.Equal(t, http.StatusForbidden, rr.Code, target)
		assert.Contains(t, rr.Body.String(), "forbidden", target)
	}

	rr = do(t, h, http.MethodPost, "/integrations/quickbooks/sync", other, `{"company_id":"realm-1","force_sync_now":true}`)
	assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())

	rr = do(t, h, http.MethodDelete, "/integrations/quickbooks/connection?company_id=realm-1", other, "")
	assert.Equal(t, http.StatusForbidden, rr.Code, rr.Body.String())
}

func TestServer_CallbackWithoutSessionRedirects(t *testing.T) {
	h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/integrations/quickbooks/callback?code=c&realmId=realm-1&state=forged", "", "")
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "http://localhost:3000/integrations/quickbooks?error=invalid_state", rr.Header().Get("Location"))
}

func TestServer_NotFound(t *testing.T) {
	h := newTestServer(t)

	rr := do(t, h, http.MethodGet, "/does-not-exist", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_found")
}
