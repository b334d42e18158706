package syncer

import (
	"fmt"

	"github.com/cosmoesg/cosmo/pkg/quickbooks"
)

// AlreadyRunningError is returned when a company already has a sync in
// flight.
type AlreadyRunningError struct {
	CompanyID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("a sync is already running for company %s", e.CompanyID)
}

// NotAuthenticatedError is returned when the company has no usable tokens.
type NotAuthenticatedError struct {
	CompanyID string
}

func (e *NotAuthenticatedError) Error() string {
	return fmt.Sprintf("company %s has no valid QuickBooks access token; authorize the application first", e.CompanyID)
}

func (e *NotAuthenticatedError) Unwrap() error {
	return quickbooks.ErrNotAuthenticated
}
