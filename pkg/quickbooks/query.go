package quickbooks

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// MaxResults is the largest page the query endpoint hands out.
const MaxResults = 1000

func (c *Client) companyURL(companyID string, parts ...string) string {
	u := strings.TrimRight(c.cfg.APIBaseURL, "/") + "/v3/company/" + url.PathEscape(companyID)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func (c *Client) get(ctx context.Context, op, accessToken, endpoint string, params url.Values) ([]byte, error) {
	if c.cfg.MinorVersion > 0 {
		params.Set("minorversion", strconv.Itoa(c.cfg.MinorVersion))
	}
	res, err := c.send(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	return res.body, nil
}

// Query runs a single query statement and returns the rows of entity.
func (c *Client) Query(ctx context.Context, companyID, accessToken, entity, statement string) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("query", statement)

	body, err := c.get(ctx, "query", accessToken, c.companyURL(companyID, "query"), params)
	if err != nil {
		return nil, err
	}

	var payload struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decoding query response")
	}

	raw, ok := payload.QueryResponse[entity]
	if !ok {
		return nil, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, errors.Wrapf(err, "decoding %s rows", entity)
	}
	return rows, nil
}

// QueryAll selects every row of entity matching where, paging through the
// results MaxResults at a time. An empty where selects everything.
func (c *Client) QueryAll(ctx context.Context, companyID, accessToken, entity, where string) ([]json.RawMessage, error) {
	base := "SELECT * FROM " + entity
	if where != "" {
		base += " WHERE " + where
	}

	var all []json.RawMessage
	for start := 1; ; start += MaxResults {
		statement := fmt.Sprintf("%s STARTPOSITION %d MAXRESULTS %d", base, start, MaxResults)
		rows, err := c.Query(ctx, companyID, accessToken, entity, statement)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < MaxResults {
			return all, nil
		}
	}
}

// Read fetches one entity by id. A missing object returns nil, nil.
func (c *Client) Read(ctx context.Context, companyID, accessToken, entity, id string) (json.RawMessage, error) {
	body, err := c.get(ctx, "read", accessToken, c.companyURL(companyID, strings.ToLower(entity), id), url.Values{})
	if err != nil {
		var rerr *RemoteQueryError
		if errors.As(err, &rerr) && rerr.NotFound() {
			return nil, nil
		}
		return nil, err
	}

	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decoding read response")
	}
	return payload[entity], nil
}
