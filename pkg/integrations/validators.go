package integrations

import "time"

type CompanyQuery struct {
	CompanyID string `query:"company_id" json:"company_id" validate:"required,company_id"`
}

type StatusResponse struct {
	Connected      bool       `json:"connected"`
	CompanyID      string     `json:"company_id"`
	TokenExpiresAt *time.Time `json:"token_expires_at"`
	LastSyncTime   *time.Time `json:"last_sync_time"`
}
