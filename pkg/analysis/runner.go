package analysis

import (
	"context"

	"github.com/cosmoesg/cosmo/pkg/expenses"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
)

// MaxExpenses caps how many expenses go into one analysis when the caller
// doesn't pick them.
const MaxExpenses = 500

// Runner drives a stored analysis through the analyzer and records the
// outcome on its row.
type Runner struct {
	analyses *Service
	expenses *expenses.Service
	analyzer *Analyzer
}

func NewRunner(analyses *Service, expenseService *expenses.Service, analyzer *Analyzer) *Runner {
	return &Runner{analyses: analyses, expenses: expenseService, analyzer: analyzer}
}

// Run blocks until the analysis reaches a final state. The returned error is
// the reason it did not end up done; the row already reflects it.
func (r *Runner) Run(ctx context.Context, analysisID string) (*models.Analysis, error) {
	log := logger.FromContext(ctx)

	a, err := r.analyses.RetrieveAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}

	selected, err := r.selectExpenses(ctx, a)
	if err != nil {
		return a, r.fail(ctx, a, models.AnalysisStatusErrored, err)
	}
	if len(selected) == 0 {
		return a, r.fail(ctx, a, models.AnalysisStatusErrored, errors.New("no expenses to analyze"))
	}

	req := Request{UserContext: a.UserContext, Options: DefaultOptions()}
	a.ExpenseIDs = make([]string, 0, len(selected))
	for _, e := range selected {
		req.Expenses = append(req.Expenses, ExpenseFrom(e))
		a.ExpenseIDs = append(a.ExpenseIDs, e.ID)
	}

	op, err := r.analyzer.Start(ctx, req)
	if err != nil {
		return a, r.fail(ctx, a, models.AnalysisStatusErrored, err)
	}
	defer op.Cancel()

	a.Status = models.AnalysisStatusPolling
	a.RemoteJobID = pointerutil.String(op.JobID())
	err = r.analyses.UpdateAnalysis(ctx, a, UpdateAnalysisOptions{Columns: []string{"status", "remote_job_id", "expense_ids"}})
	if err != nil {
		return a, errors.WithStack(err)
	}
	log.Info("sustainability analysis submitted", logger.Data{
		"analysis_id":   a.ID,
		"remote_job_id": op.JobID(),
		"expenses":      len(selected),
	})

	result, err := op.Wait(ctx)
	if err != nil {
		status := op.State()
		if status == models.AnalysisStatusPolling {
			status = models.AnalysisStatusErrored
		}
		return a, r.fail(ctx, a, status, err)
	}

	a.Status = models.AnalysisStatusDone
	a.Result = result
	a.Error = nil
	err = r.analyses.UpdateAnalysis(ctx, a, UpdateAnalysisOptions{Columns: []string{"status", "result", "error"}})
	if err != nil {
		return a, errors.WithStack(err)
	}
	return a, nil
}

func (r *Runner) selectExpenses(ctx context.Context, a *models.Analysis) ([]*models.Expense, error) {
	opts := expenses.ListExpensesOptions{CompanyID: &a.CompanyID}
	if len(a.ExpenseIDs) > 0 {
		opts.IDs = a.ExpenseIDs
	} else {
		opts.Limit = pointerutil.Int(MaxExpenses)
	}
	return r.expenses.ListExpenses(ctx, opts)
}

func (r *Runner) fail(ctx context.Context, a *models.Analysis, status string, cause error) error {
	a.Status = status
	a.Error = pointerutil.String(cause.Error())
	err := r.analyses.UpdateAnalysis(ctx, a, UpdateAnalysisOptions{Columns: []string{"status", "error", "expense_ids"}})
	if err != nil {
		logger.FromContext(ctx).Err(err).Error("recording analysis failure", logger.Data{"analysis_id": a.ID})
	}
	return cause
}
