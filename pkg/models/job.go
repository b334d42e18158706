package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/uptrace/bun"
)

const (
	JobStatusPending    = "pending"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

const (
	JobTypeQuickBooksSync         = "quickbooks_sync"
	JobTypeSustainabilityAnalysis = "sustainability_analysis"
)

type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j"`

	ID         int         `bun:",pk,nullzero" json:"id"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
	Type       string      `bun:",nullzero" json:"type"`
	Status     string      `bun:",nullzero" json:"status"`
	Data       string      `bun:",nullzero" json:"-"`
	DataParsed interface{} `bun:"-" json:"data"`
	Progress   int         `json:"progress"`
	Error      *string     `json:"error,omitempty"`
	ProcessID  *string     `json:"process_id,omitempty"`
	CompanyID  *string     `json:"company_id,omitempty"`
}

func (job *Job) UnmarshalData() error {
	switch job.Type {
	case JobTypeQuickBooksSync:
		job.DataParsed = &JobQuickBooksSyncData{}
	case JobTypeSustainabilityAnalysis:
		job.DataParsed = &JobSustainabilityAnalysisData{}
	default:
		return errors.Errorf("unknown job type %q", job.Type)
	}

	err := json.Unmarshal([]byte(job.Data), job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// MarshalData serializes DataParsed into Data so it can be stored.
func (job *Job) MarshalData() error {
	if job.DataParsed == nil {
		job.Data = "{}"
		return nil
	}
	b, err := json.Marshal(job.DataParsed)
	if err != nil {
		return errors.WithStack(err)
	}
	job.Data = string(b)
	return nil
}

type JobQuickBooksSyncData struct {
	CompanyID   string          `json:"company_id"`
	Preferences SyncPreferences `json:"preferences"`
	// Scheduled is true when the scheduler queued the job rather than a user.
	Scheduled bool `json:"scheduled"`
}

type JobSustainabilityAnalysisData struct {
	AnalysisID string `json:"analysis_id"`
}
