package quickbooks

import "time"

// RefreshMargin is how long before the real expiry an access token is
// already treated as expired.
const RefreshMargin = 60 * time.Second

// Tokens is one OAuth grant for a company. CreatedAt is stamped when the
// grant was obtained, so CreatedAt + ExpiresIn is the access token expiry.
type Tokens struct {
	AccessToken           string    `json:"access_token"`
	RefreshToken          string    `json:"refresh_token"`
	ExpiresIn             int64     `json:"expires_in"`
	RefreshTokenExpiresIn int64     `json:"x_refresh_token_expires_in"`
	TokenType             string    `json:"token_type"`
	CreatedAt             time.Time `json:"created_at"`
}

func (t *Tokens) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

func (t *Tokens) RefreshTokenExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.RefreshTokenExpiresIn) * time.Second)
}

// NeedsRefresh is true from RefreshMargin before expiry onwards.
func (t *Tokens) NeedsRefresh(now time.Time) bool {
	return !now.Before(t.ExpiresAt().Add(-RefreshMargin))
}
