package models

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	AnalysisStatusIdle     = "idle"
	AnalysisStatusPolling  = "polling"
	AnalysisStatusDone     = "done"
	AnalysisStatusTimedOut = "timed_out"
	AnalysisStatusErrored  = "errored"
)

type AnalysisUserContext struct {
	EUTaxonomySectorIDs   []string `json:"euTaxonomySectorIds"`
	EUTaxonomySectorNames []string `json:"euTaxonomySectorNames"`
	EUTaxonomyActivities  []string `json:"euTaxonomyActivities"`
	CompanyName           string   `json:"companyName"`
}

type AnalysisUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// AnalysisResult mirrors what the analysis backend returns once a job is done.
type AnalysisResult struct {
	SustainableExpenses    []json.RawMessage `json:"sustainableExpenses"`
	NonSustainableExpenses []json.RawMessage `json:"nonSustainableExpenses"`
	SustainableTotal       decimal.Decimal   `json:"sustainableTotal"`
	NonSustainableTotal    decimal.Decimal   `json:"nonSustainableTotal"`
	SustainablePercentage  float64           `json:"sustainablePercentage"`
	Recommendations        []string          `json:"recommendations"`
	Model                  string            `json:"model"`
	Usage                  AnalysisUsage     `json:"usage"`
}

type Analysis struct {
	bun.BaseModel `bun:"table:analyses,alias:a"`

	ID          string              `bun:",pk" json:"id"`
	CreatedAt   time.Time           `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time           `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	CompanyID   string              `bun:",notnull" json:"company_id"`
	Status      string              `bun:",notnull" json:"status"`
	ExpenseIDs  []string            `bun:"type:text" json:"expense_ids"`
	UserContext AnalysisUserContext `bun:"type:text" json:"user_context"`
	RemoteJobID *string             `json:"remote_job_id,omitempty"`
	Result      *AnalysisResult     `bun:"type:text" json:"result,omitempty"`
	Error       *string             `json:"error,omitempty"`
	JobID       *int                `json:"job_id,omitempty"`
}
