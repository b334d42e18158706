package integrations

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/cosmoesg/cosmo/pkg/syncconfig"
	"github.com/cosmoesg/cosmo/pkg/tokens"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/pointerutil"
)

const (
	callbackErrorInvalidState = "invalid_state"
	callbackErrorFailed       = "callback_failed"
	callbackErrorAuthFailed   = "auth_failed"
)

// OAuthClient is the part of quickbooks.Client the connection flow needs.
type OAuthClient interface {
	AuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*quickbooks.Tokens, error)
	Revoke(ctx context.Context, token string) error
}

type handler struct {
	client         OAuthClient
	tokenService   *tokens.Service
	stateService   *StateService
	configService  *syncconfig.Service
	companyService *companies.Service
	frontendURL    string
}

// redirectToFrontend sends the browser back to the integrations page with
// either a success marker or an error code.
func (h *handler) redirectToFrontend(c echo.Context, params url.Values) error {
	target := strings.TrimRight(h.frontendURL, "/") + "/integrations/quickbooks?" + params.Encode()
	return errors.WithStack(c.Redirect(http.StatusFound, target))
}

func (h *handler) fail(c echo.Context, code string) error {
	return h.redirectToFrontend(c, url.Values{"error": []string{code}})
}

func (h *handler) authorize(c echo.Context) error {
	ctx := c.Request().Context()

	state, err := h.stateService.Create(ctx, auth.UserID(c))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.Redirect(http.StatusFound, h.client.AuthURL(state)))
}

// callback is where Intuit sends the user after the consent screen. Failures
// are reported to the frontend through the redirect, never as JSON.
func (h *handler) callback(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	code := c.QueryParam("code")
	companyID := c.QueryParam("realmId")
	state := c.QueryParam("state")

	if err := h.stateService.Consume(ctx, state, auth.UserID(c)); err != nil {
		if errors.Is(err, ErrInvalidState) {
			log.Warn("quickbooks callback with invalid state", logger.Data{"company_id": companyID})
			return h.fail(c, callbackErrorInvalidState)
		}
		log.Err(err).Error("consuming oauth state")
		return h.fail(c, callbackErrorFailed)
	}

	if denied := c.QueryParam("error"); denied != "" {
		log.Warn("quickbooks authorization denied", logger.Data{"error": denied})
		return h.fail(c, callbackErrorAuthFailed)
	}
	if code == "" || companyID == "" {
		return h.fail(c, callbackErrorFailed)
	}

	granted, err := h.client.ExchangeCode(ctx, code)
	if err != nil {
		log.Err(err).Warn("quickbooks code exchange failed", logger.Data{"company_id": companyID})
		return h.fail(c, callbackErrorAuthFailed)
	}

	if err := h.tokenService.SaveTokens(ctx, companyID, granted); err != nil {
		log.Err(err).Error("saving quickbooks tokens", logger.Data{"company_id": companyID})
		return h.fail(c, callbackErrorFailed)
	}
	if err := h.companyService.Connect(ctx, companyID, auth.UserID(c)); err != nil {
		log.Err(err).Error("recording quickbooks company owner", logger.Data{"company_id": companyID})
		return h.fail(c, callbackErrorFailed)
	}

	log.Info("quickbooks company connected", logger.Data{"company_id": companyID})

	return h.redirectToFrontend(c, url.Values{
		"status":  []string{"success"},
		"company": []string{companyID},
	})
}

func (h *handler) status(c echo.Context) error {
	ctx := c.Request().Context()

	params := CompanyQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	resp := StatusResponse{CompanyID: params.CompanyID}

	company, err := h.companyService.RetrieveCompany(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}
	if company == nil {
		return errors.WithStack(c.JSON(http.StatusOK, resp))
	}
	if company.UserID != auth.UserID(c) {
		return errcodes.Forbidden("Access to this QuickBooks company")
	}

	stored, err := h.tokenService.GetTokens(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}
	if stored != nil {
		resp.Connected = true
		resp.TokenExpiresAt = pointerutil.Time(stored.ExpiresAt())
	}

	cfg, err := h.configService.GetConfig(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}
	if cfg != nil {
		resp.LastSyncTime = cfg.LastSyncTime
	}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) disconnect(c echo.Context) error {
	ctx := c.Request().Context()
	log := logger.FromContext(ctx)

	params := CompanyQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	stored, err := h.tokenService.GetTokens(ctx, params.CompanyID)
	if err != nil {
		return errors.WithStack(err)
	}
	if stored == nil {
		return errcodes.NotConnected(params.CompanyID)
	}

	// Intuit failing to revoke must not keep the company connected here.
	if err := h.client.Revoke(ctx, stored.RefreshToken); err != nil {
		log.Err(err).Warn("quickbooks token revocation failed", logger.Data{"company_id": params.CompanyID})
	}

	if err := h.tokenService.DeleteTokens(ctx, params.CompanyID); err != nil {
		return errors.WithStack(err)
	}

	log.Info("quickbooks company disconnected", logger.Data{"company_id": params.CompanyID})

	return errors.WithStack(c.JSON(http.StatusOK, StatusResponse{CompanyID: params.CompanyID}))
}
