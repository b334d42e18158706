package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"golang.org/x/sync/singleflight"
)

// CacheTTL bounds how stale a cached read can be.
const CacheTTL = 60 * time.Second

// Refresher exchanges a refresh token for a new grant.
type Refresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*quickbooks.Tokens, error)
}

type cacheEntry struct {
	tokens   *quickbooks.Tokens
	cachedAt time.Time
}

// Service stores OAuth tokens per company and keeps access tokens fresh.
type Service struct {
	repo      Repository
	box       Encryptor
	refresher Refresher

	mu      sync.Mutex
	cache   map[string]cacheEntry
	refresh singleflight.Group

	now func() time.Time
}

func NewService(repo Repository, box Encryptor, refresher Refresher) *Service {
	return &Service{
		repo:      repo,
		box:       box,
		refresher: refresher,
		cache:     map[string]cacheEntry{},
		now:       time.Now,
	}
}

// SaveTokens replaces whatever is stored for the company.
func (svc *Service) SaveTokens(ctx context.Context, companyID string, tokens *quickbooks.Tokens) error {
	access, err := svc.box.Encrypt(tokens.AccessToken)
	if err != nil {
		return errors.WithStack(err)
	}
	refresh, err := svc.box.Encrypt(tokens.RefreshToken)
	if err != nil {
		return errors.WithStack(err)
	}

	err = svc.repo.Set(ctx, &models.QuickBooksToken{
		CompanyID:             companyID,
		AccessToken:           access,
		RefreshToken:          refresh,
		TokenType:             tokens.TokenType,
		ExpiresIn:             tokens.ExpiresIn,
		RefreshTokenExpiresIn: tokens.RefreshTokenExpiresIn,
		IssuedAt:              tokens.CreatedAt,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	copied := *tokens
	svc.mu.Lock()
	svc.cache[companyID] = cacheEntry{tokens: &copied, cachedAt: svc.now()}
	svc.mu.Unlock()

	return nil
}

// GetTokens returns nil when the company has no stored tokens.
func (svc *Service) GetTokens(ctx context.Context, companyID string) (*quickbooks.Tokens, error) {
	svc.mu.Lock()
	entry, ok := svc.cache[companyID]
	svc.mu.Unlock()
	if ok && svc.now().Sub(entry.cachedAt) < CacheTTL {
		copied := *entry.tokens
		return &copied, nil
	}

	row, err := svc.repo.Get(ctx, companyID)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if row == nil {
		svc.forget(companyID)
		return nil, nil
	}

	tokens, err := svc.open(row)
	if err != nil {
		return nil, err
	}

	svc.mu.Lock()
	svc.cache[companyID] = cacheEntry{tokens: tokens, cachedAt: svc.now()}
	svc.mu.Unlock()

	copied := *tokens
	return &copied, nil
}

func (svc *Service) DeleteTokens(ctx context.Context, companyID string) error {
	svc.forget(companyID)
	return errors.WithStack(svc.repo.Delete(ctx, companyID))
}

// EnsureValidAccessToken returns an access token that is good for at least
// another minute, refreshing it first if needed. An empty string means the
// company must authorize again: either it never connected or the refresh
// was rejected.
func (svc *Service) EnsureValidAccessToken(ctx context.Context, companyID string) (string, error) {
	tokens, err := svc.GetTokens(ctx, companyID)
	if err != nil {
		return "", err
	}
	if tokens == nil {
		return "", nil
	}
	if !tokens.NeedsRefresh(svc.now()) {
		return tokens.AccessToken, nil
	}

	// Concurrent callers for the same company share one refresh call.
	v, err, _ := svc.refresh.Do(companyID, func() (interface{}, error) {
		refreshed, err := svc.refresher.RefreshAccessToken(ctx, tokens.RefreshToken)
		if err != nil {
			return nil, &refreshFailure{err}
		}
		if err := svc.SaveTokens(ctx, companyID, refreshed); err != nil {
			return nil, err
		}
		return refreshed.AccessToken, nil
	})
	var rf *refreshFailure
	if errors.As(err, &rf) {
		logger.FromContext(ctx).Warn("quickbooks token refresh failed", logger.Data{
			"company_id": companyID,
			"error":      rf.err.Error(),
		})
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// refreshFailure marks errors that came from Intuit rather than from our own
// storage.
type refreshFailure struct {
	err error
}

func (f *refreshFailure) Error() string {
	return f.err.Error()
}

func (svc *Service) forget(companyID string) {
	svc.mu.Lock()
	delete(svc.cache, companyID)
	svc.mu.Unlock()
}

func (svc *Service) open(row *models.QuickBooksToken) (*quickbooks.Tokens, error) {
	access, err := svc.box.Decrypt(row.AccessToken)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	refresh, err := svc.box.Decrypt(row.RefreshToken)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &quickbooks.Tokens{
		AccessToken:           access,
		RefreshToken:          refresh,
		ExpiresIn:             row.ExpiresIn,
		RefreshTokenExpiresIn: row.RefreshTokenExpiresIn,
		TokenType:             row.TokenType,
		CreatedAt:             row.IssuedAt,
	}, nil
}
