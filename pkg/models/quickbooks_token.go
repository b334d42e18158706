package models

import (
	"time"

	"github.com/uptrace/bun"
)

// QuickBooksToken is the stored form of a company's OAuth tokens. The access
// and refresh tokens are sealed before they reach this struct.
type QuickBooksToken struct {
	bun.BaseModel `bun:"table:quickbooks_tokens,alias:qt"`

	CompanyID             string    `bun:",pk"`
	CreatedAt             time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt             time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	AccessToken           string    `bun:",notnull"`
	RefreshToken          string    `bun:",notnull"`
	TokenType             string    `bun:",notnull"`
	ExpiresIn             int64     `bun:",notnull"`
	RefreshTokenExpiresIn int64     `bun:",notnull"`
	IssuedAt              time.Time `bun:",notnull"`
}
