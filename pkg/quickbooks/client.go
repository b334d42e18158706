package quickbooks

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
)

const (
	AuthorizationEndpoint = "https://appcenter.intuit.com/connect/oauth2"
	TokenEndpoint         = "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer"
	RevokeEndpoint        = "https://developer.api.intuit.com/v2/oauth2/tokens/revoke"
	SandboxBaseURL        = "https://sandbox-quickbooks.api.intuit.com"
	ProductionBaseURL     = "https://quickbooks.api.intuit.com"

	ScopeAccounting = "com.intuit.quickbooks.accounting"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Environment  string

	// Endpoint overrides. Empty means the Intuit defaults for Environment.
	AuthURL    string
	TokenURL   string
	RevokeURL  string
	APIBaseURL string

	MinorVersion int
	Timeout      time.Duration
	MaxRetries   int
}

func ConfigFromApp(cfg *config.Config) Config {
	return Config{
		ClientID:     cfg.QuickbooksClientID,
		ClientSecret: cfg.QuickbooksClientSecret,
		RedirectURI:  cfg.QuickbooksRedirectURI,
		Environment:  cfg.QuickbooksEnvironment,
		MinorVersion: cfg.QuickbooksMinorVersion,
		Timeout:      cfg.QuickbooksRequestTimeout,
		MaxRetries:   cfg.QuickbooksMaxRetries,
	}
}

func (c Config) validate() error {
	switch {
	case c.ClientID == "":
		return errors.WithStack(&ConfigurationError{Field: "QUICKBOOKS_CLIENT_ID"})
	case c.ClientSecret == "":
		return errors.WithStack(&ConfigurationError{Field: "QUICKBOOKS_CLIENT_SECRET"})
	case c.RedirectURI == "":
		return errors.WithStack(&ConfigurationError{Field: "QUICKBOOKS_REDIRECT_URI"})
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.AuthURL == "" {
		c.AuthURL = AuthorizationEndpoint
	}
	if c.TokenURL == "" {
		c.TokenURL = TokenEndpoint
	}
	if c.RevokeURL == "" {
		c.RevokeURL = RevokeEndpoint
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = SandboxBaseURL
		if c.Environment == config.EnvironmentProduction {
			c.APIBaseURL = ProductionBaseURL
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c
}

// Client talks to Intuit: the OAuth endpoints and the accounting API. It
// holds no per-company state; access tokens are passed in by the caller.
type Client struct {
	cfg     Config
	oauth   *oauth2.Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	now     func() time.Time
}

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{ScopeAccounting},
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		http: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "quickbooks",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Only outages count against the breaker; a 400 for a bad query
			// says nothing about Intuit's health.
			IsSuccessful: func(err error) bool {
				return err == nil || !isTransient(err)
			},
		}),
		now: time.Now,
	}, nil
}

func (c *Client) backoff() retry.Backoff {
	b := retry.NewExponential(250 * time.Millisecond)
	b = retry.WithJitterPercent(20, b)
	b = retry.WithCappedDuration(5*time.Second, b)
	return retry.WithMaxRetries(uint64(c.cfg.MaxRetries), b)
}

func isTransient(err error) bool {
	var nerr *NetworkError
	if errors.As(err, &nerr) {
		return true
	}
	var rerr *RemoteQueryError
	if errors.As(err, &rerr) {
		return rerr.retryable()
	}
	return false
}

type response struct {
	status int
	body   []byte
}

// send executes the request built by newReq through the circuit breaker,
// retrying transient failures with backoff. Non-2xx answers come back as
// *RemoteQueryError.
func (c *Client) send(ctx context.Context, op string, newReq func(ctx context.Context) (*http.Request, error)) (*response, error) {
	var out *response
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		res, err := c.breaker.Execute(func() (interface{}, error) {
			req, err := newReq(ctx)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			resp, err := c.http.Do(req)
			if err != nil {
				return nil, &NetworkError{Op: op, Err: err}
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return nil, &NetworkError{Op: op, Err: err}
			}
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				return nil, newRemoteQueryError(resp.StatusCode, body)
			}
			return &response{status: resp.StatusCode, body: body}, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return &NetworkError{Op: op, Err: err}
			}
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = res.(*response)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
