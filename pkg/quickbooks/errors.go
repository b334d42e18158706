package quickbooks

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// ErrNotAuthenticated is returned when a company has no usable tokens and
// has to go through the authorization flow again.
var ErrNotAuthenticated = errors.New("quickbooks company is not authenticated")

// ConfigurationError means the client was built without a credential it
// needs. It is returned before any request is attempted.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("quickbooks: missing required configuration %s", e.Field)
}

// AuthExchangeError is a non-2xx answer from the token endpoint.
type AuthExchangeError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *AuthExchangeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("quickbooks token request failed (%d %s): %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("quickbooks token request failed (%d %s)", e.StatusCode, e.Code)
}

// RemoteQueryError is a non-2xx answer from the accounting API. Body holds
// the raw response so callers can surface it.
type RemoteQueryError struct {
	StatusCode int
	Body       string
	FaultType  string
	FaultCode  string
	Message    string
}

func (e *RemoteQueryError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("quickbooks API error %d (%s): %s", e.StatusCode, e.FaultCode, e.Message)
	}
	return fmt.Sprintf("quickbooks API returned status %d: %s", e.StatusCode, e.Body)
}

// NotFound reports whether the API said the requested object doesn't exist.
// QuickBooks answers some lookups with a 400 and fault code 610 instead of a
// 404.
func (e *RemoteQueryError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.FaultCode == "610"
}

func (e *RemoteQueryError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// NetworkError wraps transport failures: DNS, resets, timeouts, an open
// circuit breaker.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("quickbooks %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

type faultResponse struct {
	Fault struct {
		Type  string `json:"type"`
		Error []struct {
			Message string `json:"Message"`
			Detail  string `json:"Detail"`
			Code    string `json:"code"`
		} `json:"Error"`
	} `json:"Fault"`
}

func newRemoteQueryError(status int, body []byte) *RemoteQueryError {
	rerr := &RemoteQueryError{StatusCode: status, Body: string(body)}

	var fault faultResponse
	if err := json.Unmarshal(body, &fault); err == nil && len(fault.Fault.Error) > 0 {
		first := fault.Fault.Error[0]
		rerr.FaultType = fault.Fault.Type
		rerr.FaultCode = first.Code
		rerr.Message = first.Message
		if first.Detail != "" {
			rerr.Message += ": " + first.Detail
		}
	}

	return rerr
}
