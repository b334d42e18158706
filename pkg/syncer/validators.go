package syncer

type StatusQuery struct {
	CompanyID string `query:"company_id" json:"company_id" validate:"required,company_id"`
}

type PreferencesPayload struct {
	DataTypes     []string `json:"data_types" validate:"omitempty,max=3,unique,dive,oneof=expenses invoices vendors"`
	SyncFrequency string   `json:"sync_frequency" mod:"trim" validate:"omitempty,oneof=hourly 6hours 12hours daily"`
	ImportPeriod  string   `json:"import_period" mod:"trim" validate:"omitempty,oneof=1month 3months 6months 1year all"`
}

type StartSyncPayload struct {
	CompanyID    string             `json:"company_id" mod:"trim" validate:"required,company_id"`
	Preferences  PreferencesPayload `json:"preferences"`
	ForceSyncNow bool               `json:"force_sync_now"`
}
