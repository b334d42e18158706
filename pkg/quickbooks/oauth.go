package quickbooks

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

// AuthURL is where the user is sent to grant access. The caller owns state:
// it must be persisted and checked again on the callback.
func (c *Client) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for tokens. Codes are single use,
// so this is never retried.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Tokens, error) {
	tok, err := c.oauth.Exchange(c.oauthContext(ctx), code)
	if err != nil {
		return nil, c.tokenError("exchange", err)
	}
	return c.tokensFrom(tok), nil
}

// RefreshAccessToken obtains a fresh access token. Intuit may rotate the
// refresh token; when it doesn't, the old one is carried over.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*Tokens, error) {
	var tok *oauth2.Token
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		var err error
		tok, err = c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err == nil {
			return nil
		}
		err = c.tokenError("refresh", err)
		var nerr *NetworkError
		if errors.As(err, &nerr) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return c.tokensFrom(tok), nil
}

// Revoke invalidates a refresh or access token at Intuit, which also drops
// the app's connection to the company.
func (c *Client) Revoke(ctx context.Context, token string) error {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return errors.WithStack(err)
	}
	_, err = c.send(ctx, "revoke", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RevokeURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	return err
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

func (c *Client) tokenError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		aerr := &AuthExchangeError{
			Code:        rerr.ErrorCode,
			Description: rerr.ErrorDescription,
		}
		if rerr.Response != nil {
			aerr.StatusCode = rerr.Response.StatusCode
		}
		return errors.WithStack(aerr)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errors.WithStack(err)
	}
	return &NetworkError{Op: op, Err: err}
}

func (c *Client) tokensFrom(tok *oauth2.Token) *Tokens {
	t := &Tokens{
		AccessToken:           tok.AccessToken,
		RefreshToken:          tok.RefreshToken,
		TokenType:             tok.TokenType,
		ExpiresIn:             tok.ExpiresIn,
		RefreshTokenExpiresIn: extraInt(tok, "x_refresh_token_expires_in"),
		CreatedAt:             c.now(),
	}
	if t.ExpiresIn == 0 {
		t.ExpiresIn = extraInt(tok, "expires_in")
	}
	return t
}

func extraInt(tok *oauth2.Token, key string) int64 {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}
