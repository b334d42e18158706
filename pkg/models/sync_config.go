package models

import (
	"time"

	"github.com/uptrace/bun"
)

const (
	DataTypeExpenses = "expenses"
	DataTypeInvoices = "invoices"
	DataTypeVendors  = "vendors"
)

const (
	SyncFrequencyHourly  = "hourly"
	SyncFrequency6Hours  = "6hours"
	SyncFrequency12Hours = "12hours"
	SyncFrequencyDaily   = "daily"
)

const (
	ImportPeriod1Month  = "1month"
	ImportPeriod3Months = "3months"
	ImportPeriod6Months = "6months"
	ImportPeriod1Year   = "1year"
	ImportPeriodAll     = "all"
)

type SyncPreferences struct {
	DataTypes     []string `json:"data_types"`
	SyncFrequency string   `json:"sync_frequency"`
	ImportPeriod  string   `json:"import_period"`
}

// DefaultSyncPreferences is what a company gets when it asks for a sync
// without saying what to sync.
func DefaultSyncPreferences() SyncPreferences {
	return SyncPreferences{
		DataTypes:     []string{DataTypeExpenses},
		SyncFrequency: SyncFrequencyDaily,
		ImportPeriod:  ImportPeriod1Month,
	}
}

type SyncStats struct {
	TotalItemsSynced   int            `json:"total_items_synced"`
	LastSyncDurationMS int64          `json:"last_sync_duration_ms"`
	ItemsByType        map[string]int `json:"items_by_type"`
}

type SyncConfig struct {
	bun.BaseModel `bun:"table:quickbooks_sync_configs,alias:qsc"`

	CompanyID    string          `bun:",pk" json:"company_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	Preferences  SyncPreferences `bun:"type:text" json:"preferences"`
	LastSyncTime *time.Time      `json:"last_sync_time"`
	NextSyncTime *time.Time      `json:"next_sync_time"`
	SyncStats    SyncStats       `bun:"type:text" json:"sync_stats"`
}
