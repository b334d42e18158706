package expenses

import (
	"context"
	"strings"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"golang.org/x/sync/errgroup"
)

// AccessTokenProvider hands out a usable access token for a company, or ""
// when the company has to reauthorize.
type AccessTokenProvider interface {
	EnsureValidAccessToken(ctx context.Context, companyID string) (string, error)
}

// Fetcher pulls expense-like records out of QuickBooks and normalizes them.
type Fetcher struct {
	client *quickbooks.Client
	tokens AccessTokenProvider
}

func NewFetcher(client *quickbooks.Client, tokens AccessTokenProvider) *Fetcher {
	return &Fetcher{client: client, tokens: tokens}
}

func (f *Fetcher) accessToken(ctx context.Context, companyID string) (string, error) {
	token, err := f.tokens.EnsureValidAccessToken(ctx, companyID)
	if err != nil {
		return "", errors.WithStack(err)
	}
	if token == "" {
		return "", errors.WithStack(quickbooks.ErrNotAuthenticated)
	}
	return token, nil
}

// FetchExpenses returns every purchase and bill updated on or after fromDate
// (YYYY-MM-DD). An empty fromDate fetches everything. Purchases come first.
func (f *Fetcher) FetchExpenses(ctx context.Context, companyID, fromDate string) ([]*models.Expense, error) {
	token, err := f.accessToken(ctx, companyID)
	if err != nil {
		return nil, err
	}

	where := ""
	if fromDate != "" {
		where = "MetaData.LastUpdatedTime >= '" + strings.ReplaceAll(fromDate, "'", "") + "'"
	}

	var purchases, bills []json.RawMessage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := f.client.QueryAll(gctx, companyID, token, quickbooks.EntityPurchase, where)
		purchases = rows
		return err
	})
	g.Go(func() error {
		rows, err := f.client.QueryAll(gctx, companyID, token, quickbooks.EntityBill, where)
		bills = rows
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]*models.Expense, 0, len(purchases)+len(bills))
	for _, raw := range purchases {
		e, err := quickbooks.MapPurchase(companyID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	for _, raw := range bills {
		e, err := quickbooks.MapBill(companyID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// FetchExpenseByID reads a single purchase or bill. It returns nil, nil when
// QuickBooks no longer has the record.
func (f *Fetcher) FetchExpenseByID(ctx context.Context, companyID, id, entity string) (*models.Expense, error) {
	if entity != quickbooks.EntityPurchase && entity != quickbooks.EntityBill {
		return nil, errors.Errorf("unsupported expense entity %q", entity)
	}

	token, err := f.accessToken(ctx, companyID)
	if err != nil {
		return nil, err
	}

	raw, err := f.client.Read(ctx, companyID, token, entity, id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	return quickbooks.Map(entity, companyID, raw)
}
