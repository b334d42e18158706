package models

import (
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const SourceSystemQuickBooks = "quickbooks"

// Expense is the source-agnostic shape every imported expense-like record is
// normalized into. IDs are prefixed by the kind of source record so purchases
// and bills never collide. Source ids are only unique within one company, so
// rows are keyed by company and id together.
type Expense struct {
	bun.BaseModel `bun:"table:expenses,alias:e"`

	CompanyID     string          `bun:",pk" json:"company_id"`
	ID            string          `bun:",pk" json:"id"`
	CreatedAt     time.Time       `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time       `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
	Amount        decimal.Decimal `bun:"type:text" json:"amount"`
	Currency      string          `json:"currency"`
	Category      *string         `json:"category,omitempty"`
	Supplier      *string         `json:"supplier,omitempty"`
	Notes         *string         `json:"notes,omitempty"`
	PaymentMethod *string         `json:"payment_method,omitempty"`
	SourceID      string          `json:"source_id"`
	SourceSystem  string          `json:"source_system"`
	RawData       json.RawMessage `bun:"type:text" json:"raw_data,omitempty"`
}
