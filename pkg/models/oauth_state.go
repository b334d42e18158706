package models

import (
	"time"

	"github.com/uptrace/bun"
)

type OAuthState struct {
	bun.BaseModel `bun:"table:oauth_states,alias:os"`

	State     string    `bun:",pk"`
	CreatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	ExpiresAt time.Time `bun:",notnull"`
	UserID    string    `bun:",notnull"`
}
