package analysis

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shopspring/decimal"
)

const (
	analyzePath = "/ai/analyze-sustainability"
	resultPath  = "/ai/analyze-sustainability-result"

	remoteStatusDone  = "done"
	remoteStatusError = "error"
)

var (
	ErrTimedOut = errors.New("sustainability analysis timed out")
	ErrCanceled = errors.New("sustainability analysis canceled")
)

// RemoteError is a failure reported by the analysis backend for a job.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return "sustainability analysis failed"
	}
	return "sustainability analysis failed: " + e.Message
}

// Backend is the part of backend.Client the analyzer talks through.
type Backend interface {
	Get(ctx context.Context, path string, query url.Values, out interface{}) error
	Post(ctx context.Context, path string, in, out interface{}) error
}

type Options struct {
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"maxTokens"`
	ResponseFormat string  `json:"responseFormat"`
}

func DefaultOptions() Options {
	return Options{Temperature: 0.3, MaxTokens: 3000, ResponseFormat: "json_object"}
}

// Expense is the trimmed down expense the analysis backend expects.
type Expense struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Category    string          `json:"category"`
	Supplier    string          `json:"supplier"`
}

func ExpenseFrom(e *models.Expense) Expense {
	out := Expense{
		ID:          e.ID,
		Date:        e.Date,
		Description: e.Description,
		Amount:      e.Amount,
		Currency:    e.Currency,
	}
	if e.Category != nil {
		out.Category = *e.Category
	}
	if e.Supplier != nil {
		out.Supplier = *e.Supplier
	}
	return out
}

type Request struct {
	Expenses    []Expense                  `json:"expenses"`
	UserContext models.AnalysisUserContext `json:"userContext"`
	Options     Options                    `json:"options"`
}

type startResponse struct {
	JobID string `json:"jobId"`
}

type pollResponse struct {
	Status string                 `json:"status"`
	Result *models.AnalysisResult `json:"result"`
	Error  string                 `json:"error"`
}

// Analyzer submits sustainability analyses to the backend and polls for
// their results.
type Analyzer struct {
	backend      Backend
	pollInterval time.Duration
	timeout      time.Duration
}

func NewAnalyzer(b Backend, pollInterval, timeout time.Duration) *Analyzer {
	if pollInterval <= 0 {
		pollInterval = 3 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Analyzer{backend: b, pollInterval: pollInterval, timeout: timeout}
}

// Start submits req and begins polling in the background. An error is only
// returned when the job could not be created at all.
func (a *Analyzer) Start(ctx context.Context, req Request) (*Operation, error) {
	if len(req.Expenses) == 0 {
		return nil, errors.New("no expenses to analyze")
	}
	if req.Options == (Options{}) {
		req.Options = DefaultOptions()
	}

	var started startResponse
	if err := a.backend.Post(ctx, analyzePath, req, &started); err != nil {
		return nil, err
	}
	if started.JobID == "" {
		return nil, errors.New("analysis backend returned no job id")
	}

	pollCtx, cancel := context.WithTimeout(ctx, a.timeout)
	op := &Operation{
		jobID:  started.JobID,
		state:  models.AnalysisStatusPolling,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go a.poll(pollCtx, ctx, op)

	return op, nil
}

func (a *Analyzer) poll(ctx, parent context.Context, op *Operation) {
	defer op.cancel()
	log := logger.FromContext(parent)

	query := url.Values{"jobId": []string{op.jobID}}
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			op.finish(a.stopReason(ctx, parent, op))
			return
		case <-ticker.C:
		}

		var resp pollResponse
		if err := a.backend.Get(ctx, resultPath, query, &resp); err != nil {
			if ctx.Err() != nil {
				op.finish(a.stopReason(ctx, parent, op))
				return
			}
			op.finish(models.AnalysisStatusErrored, nil, err)
			return
		}

		switch resp.Status {
		case remoteStatusDone:
			if resp.Result == nil {
				resp.Result = &models.AnalysisResult{}
			}
			op.finish(models.AnalysisStatusDone, resp.Result, nil)
			return
		case remoteStatusError:
			op.finish(models.AnalysisStatusErrored, nil, errors.WithStack(&RemoteError{Message: resp.Error}))
			return
		default:
			log.Debug("sustainability analysis pending", logger.Data{"remote_job_id": op.jobID, "status": resp.Status})
		}
	}
}

func (a *Analyzer) stopReason(ctx, parent context.Context, op *Operation) (string, *models.AnalysisResult, error) {
	if op.canceled() {
		return models.AnalysisStatusErrored, nil, errors.WithStack(ErrCanceled)
	}
	if parent.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return models.AnalysisStatusTimedOut, nil, errors.WithStack(ErrTimedOut)
	}
	return models.AnalysisStatusErrored, nil, errors.WithStack(ctx.Err())
}

// Operation is one submitted analysis. Its state moves from polling to
// exactly one of done, timed_out or errored.
type Operation struct {
	jobID string

	mu         sync.Mutex
	state      string
	result     *models.AnalysisResult
	err        error
	isCanceled bool

	done   chan struct{}
	cancel context.CancelFunc
}

// JobID is the backend's id for the analysis.
func (op *Operation) JobID() string {
	return op.jobID
}

func (op *Operation) State() string {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.state
}

// Done is closed once the operation reaches a final state.
func (op *Operation) Done() <-chan struct{} {
	return op.done
}

// Cancel stops polling. It is a no-op once the operation has finished.
func (op *Operation) Cancel() {
	op.mu.Lock()
	op.isCanceled = true
	op.mu.Unlock()
	op.cancel()
}

// Wait blocks until the operation finishes or ctx is done.
func (op *Operation) Wait(ctx context.Context) (*models.AnalysisResult, error) {
	select {
	case <-op.done:
	case <-ctx.Done():
		return nil, errors.WithStack(ctx.Err())
	}
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.result, op.err
}

func (op *Operation) canceled() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.isCanceled
}

func (op *Operation) finish(state string, result *models.AnalysisResult, err error) {
	op.mu.Lock()
	op.state = state
	op.result = result
	op.err = err
	op.mu.Unlock()
	close(op.done)
}
