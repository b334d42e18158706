package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cosmoesg/cosmo/pkg/config"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	"github.com/segmentio/encoding/json"
)

// APIError is a non-2xx answer from the backend. StatusCode is 0 when the
// backend could not be reached at all.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	Data       json.RawMessage
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.StatusCode, e.Message)
}

type tokenKey struct{}

// WithToken attaches a bearer token to every backend call made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// Client is a small JSON client for the Cosmo backend API. Transport errors
// are retried once; HTTP errors never are.
type Client struct {
	baseURL    string
	http       *http.Client
	retryDelay time.Duration

	// apiToken is sent when ctx carries no token of its own, which is the
	// case for calls made by the worker.
	apiToken string
}

func New(cfg *config.Config) *Client {
	c := NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.BackendRetryDelay)
	c.apiToken = cfg.BackendAPIToken
	return c
}

func NewClient(baseURL string, timeout, retryDelay time.Duration) *Client {
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		retryDelay: retryDelay,
	}
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out interface{}) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out interface{}) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

func (c *Client) token(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey{}).(string); ok && token != "" {
		return token
	}
	return c.apiToken
}

// Do sends in as the JSON body (when non-nil) and decodes the response into
// out (when non-nil).
func (c *Client) Do(ctx context.Context, method, path string, in, out interface{}) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return errors.WithStack(err)
		}
		payload = b
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(path, "/")

	var resp *http.Response
	b := retry.WithMaxRetries(1, retry.NewConstant(c.retryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return errors.WithStack(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err = c.http.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return errors.WithStack(ctx.Err())
		}
		return errors.WithStack(&APIError{Status: "Network Error", Message: err.Error()})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WithStack(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.WithStack(newAPIError(resp, body))
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	return errors.Wrapf(json.Unmarshal(body, out), "decoding %s %s", method, path)
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Message:    fmt.Sprintf("Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}

	var data struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Valid(body) {
		apiErr.Data = body
		if err := json.Unmarshal(body, &data); err == nil {
			switch {
			case data.Message != "":
				apiErr.Message = data.Message
			case data.Error != "":
				apiErr.Message = data.Error
			}
		}
	}
	return apiErr
}
