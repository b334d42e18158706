package expenses

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) EnsureValidAccessToken(_ context.Context, _ string) (string, error) {
	return s.token, s.err
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc, tokens AccessTokenProvider) *Fetcher {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := quickbooks.NewClient(quickbooks.Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost/callback",
		APIBaseURL:   srv.URL,
		MinorVersion: 75,
	})
	require.NoError(t, err)

	return NewFetcher(client, tokens)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFetchExpenses_PurchasesThenBills(t *testing.T) {
	var mu sync.Mutex
	var statements []string

	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/company/realm-1/query", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))
		assert.Equal(t, "75", r.URL.Query().Get("minorversion"))

		q := r.URL.Query().Get("query")
		mu.Lock()
		statements = append(statements, q)
		mu.Unlock()

		switch {
		case strings.Contains(q, "FROM Purchase"):
			writeJSON(w, http.StatusOK, `{"QueryResponse":{"Purchase":[{"Id":"1","TxnDate":"2026-02-01","TotalAmt":10.5,"PaymentType":"Cash"}]}}`)
		case strings.Contains(q, "FROM Bill"):
			writeJSON(w, http.StatusOK, `{"QueryResponse":{"Bill":[{"Id":"9","TxnDate":"2026-02-02","TotalAmt":99}]}}`)
		}
	}, staticTokens{token: "access-1"})

	list, err := f.FetchExpenses(context.Background(), "realm-1", "2026-01-01")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "qb-purchase-1", list[0].ID)
	assert.Equal(t, "qb-bill-9", list[1].ID)
	require.NotNil(t, list[1].PaymentMethod)
	assert.Equal(t, "Factura", *list[1].PaymentMethod)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, statements, 2)
	for _, s := range statements {
		assert.Contains(t, s, "WHERE MetaData.LastUpdatedTime >= '2026-01-01'")
	}
}

func TestFetchExpenses_NoCutoff(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NotContains(t, r.URL.Query().Get("query"), "WHERE")
		writeJSON(w, http.StatusOK, `{"QueryResponse":{}}`)
	}, staticTokens{token: "access-1"})

	list, err := f.FetchExpenses(context.Background(), "realm-1", "")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestFetchExpenses_NotAuthenticated(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		t.Error("no request expected")
	}, staticTokens{})

	_, err := f.FetchExpenses(context.Background(), "realm-1", "")
	assert.True(t, errors.Is(err, quickbooks.ErrNotAuthenticated))
}

func TestFetchExpenses_RemoteError(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"Fault":{"Error":[{"Message":"bad query","code":"4000"}],"type":"ValidationFault"}}`)
	}, staticTokens{token: "access-1"})

	_, err := f.FetchExpenses(context.Background(), "realm-1", "")
	require.Error(t, err)

	var rerr *quickbooks.RemoteQueryError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, http.StatusBadRequest, rerr.StatusCode)
	assert.Contains(t, rerr.Body, "bad query")
}

func TestFetchExpenseByID(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/company/realm-1/bill/9":
			writeJSON(w, http.StatusOK, `{"Bill":{"Id":"9","TotalAmt":5,"VendorRef":{"value":"3","name":"Solar Inc"}}}`)
		default:
			writeJSON(w, http.StatusNotFound, `{}`)
		}
	}, staticTokens{token: "access-1"})

	e, err := f.FetchExpenseByID(context.Background(), "realm-1", "9", quickbooks.EntityBill)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "qb-bill-9", e.ID)
	require.NotNil(t, e.Supplier)
	assert.Equal(t, "Solar Inc", *e.Supplier)

	e, err = f.FetchExpenseByID(context.Background(), "realm-1", "404", quickbooks.EntityPurchase)
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = f.FetchExpenseByID(context.Background(), "realm-1", "1", "Invoice")
	assert.Error(t, err)
}
