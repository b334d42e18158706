package analysis

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cosmoesg/cosmo/pkg/backend"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalysisBackend answers pending for the first pendingPolls polls and
// then with finalBody.
type fakeAnalysisBackend struct {
	pendingPolls int32
	finalBody    string
	startStatus  int
	startBody    string

	polls    atomic.Int32
	received atomic.Value
}

func (f *fakeAnalysisBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case analyzePath:
		var req Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.received.Store(req)
		if f.startStatus != 0 {
			w.WriteHeader(f.startStatus)
		}
		body := f.startBody
		if body == "" {
			body = `{"jobId":"remote-1"}`
		}
		_, _ = w.Write([]byte(body))
	case resultPath:
		if r.URL.Query().Get("jobId") != "remote-1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		n := f.polls.Add(1)
		if n <= f.pendingPolls || f.finalBody == "" {
			_, _ = w.Write([]byte(`{"status":"pending"}`))
			return
		}
		_, _ = w.Write([]byte(f.finalBody))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAnalyzer(t *testing.T, f *fakeAnalysisBackend, timeout time.Duration) *Analyzer {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	client := backend.NewClient(srv.URL, time.Second, time.Millisecond)
	return NewAnalyzer(client, 5*time.Millisecond, timeout)
}

func testRequest() Request {
	return Request{
		Expenses: []Expense{{ID: "qb-purchase-1", Date: "2026-01-02", Description: "Diesel", Amount: decimal.RequireFromString("42.50"), Currency: "EUR"}},
		UserContext: models.AnalysisUserContext{
			EUTaxonomySectorIDs: []string{"transport"},
			CompanyName:         "Acme",
		},
	}
}

func TestAnalyzer_Done(t *testing.T) {
	t.Parallel()

	f := &fakeAnalysisBackend{
		pendingPolls: 2,
		finalBody:    `{"status":"done","result":{"sustainableTotal":"10.5","nonSustainableTotal":32,"sustainablePercentage":24.7,"recommendations":["Switch to EVs"],"model":"gpt","usage":{"totalTokens":120}}}`,
	}
	a := newTestAnalyzer(t, f, time.Second)

	op, err := a.Start(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "remote-1", op.JobID())

	result, err := op.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AnalysisStatusDone, op.State())
	assert.Equal(t, int32(3), f.polls.Load())
	assert.True(t, decimal.RequireFromString("10.5").Equal(result.SustainableTotal))
	assert.True(t, decimal.NewFromInt(32).Equal(result.NonSustainableTotal))
	assert.Equal(t, []string{"Switch to EVs"}, result.Recommendations)
	assert.Equal(t, 120, result.Usage.TotalTokens)

	sent := f.received.Load().(Request)
	assert.Equal(t, DefaultOptions(), sent.Options)
	assert.Equal(t, "Acme", sent.UserContext.CompanyName)
	require.Len(t, sent.Expenses, 1)
	assert.Equal(t, "qb-purchase-1", sent.Expenses[0].ID)
}

func TestAnalyzer_RemoteError(t *testing.T) {
	t.Parallel()

	f := &fakeAnalysisBackend{finalBody: `{"status":"error","error":"model overloaded"}`}
	a := newTestAnalyzer(t, f, time.Second)

	op, err := a.Start(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = op.Wait(context.Background())
	var rerr *RemoteError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "model overloaded", rerr.Message)
	assert.Equal(t, models.AnalysisStatusErrored, op.State())
}

func TestAnalyzer_TimesOut(t *testing.T) {
	t.Parallel()

	f := &fakeAnalysisBackend{}
	a := newTestAnalyzer(t, f, 50*time.Millisecond)

	op, err := a.Start(context.Background(), testRequest())
	require.NoError(t, err)

	_, err = op.Wait(context.Background())
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, models.AnalysisStatusTimedOut, op.State())
	assert.Positive(t, f.polls.Load())
}

func TestAnalyzer_Cancel(t *testing.T) {
	t.Parallel()

	f := &fakeAnalysisBackend{}
	a := newTestAnalyzer(t, f, time.Minute)

	op, err := a.Start(context.Background(), testRequest())
	require.NoError(t, err)
	op.Cancel()

	select {
	case <-op.Done():
	case <-time.After(time.Second):
		t.Fatal("operation did not stop after cancel")
	}
	_, err = op.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
	assert.Equal(t, models.AnalysisStatusErrored, op.State())
}

func TestAnalyzer_StartFailures(t *testing.T) {
	t.Parallel()

	t.Run("backend rejects", func(tt *testing.T) {
		f := &fakeAnalysisBackend{startStatus: http.StatusBadRequest, startBody: `{"message":"too many expenses"}`}
		a := newTestAnalyzer(tt, f, time.Second)

		_, err := a.Start(context.Background(), testRequest())
		var apiErr *backend.APIError
		require.True(tt, errors.As(err, &apiErr))
		assert.Equal(tt, "too many expenses", apiErr.Message)
	})

	t.Run("no job id", func(tt *testing.T) {
		f := &fakeAnalysisBackend{startBody: `{}`}
		a := newTestAnalyzer(tt, f, time.Second)

		_, err := a.Start(context.Background(), testRequest())
		assert.Error(tt, err)
	})

	t.Run("no expenses", func(tt *testing.T) {
		f := &fakeAnalysisBackend{}
		a := newTestAnalyzer(tt, f, time.Second)

		_, err := a.Start(context.Background(), Request{})
		assert.Error(tt, err)
		assert.Nil(tt, f.received.Load())
	})
}
