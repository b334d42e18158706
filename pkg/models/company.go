package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Company records which Cosmo user connected a QuickBooks company. It is kept
// after a disconnect so the company's imported data stays with that user.
type Company struct {
	bun.BaseModel `bun:"table:quickbooks_companies,alias:qc"`

	CompanyID   string    `bun:",pk" json:"company_id"`
	CreatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updated_at"`
	UserID      string    `bun:",notnull" json:"user_id"`
	ConnectedAt time.Time `bun:",notnull" json:"connected_at"`
}
