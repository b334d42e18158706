package expenses

import (
	"net/http"

	"github.com/cosmoesg/cosmo/pkg/auth"
	"github.com/cosmoesg/cosmo/pkg/companies"
	"github.com/cosmoesg/cosmo/pkg/errcodes"
	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/cosmoesg/cosmo/pkg/quickbooks"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	expenseService *Service
	companyService *companies.Service
	fetcher        *Fetcher
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListExpensesQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	expenses, total, err := h.expenseService.ListExpensesWithTotal(ctx, ListExpensesOptions{
		Limit:     &params.Limit,
		Offset:    &params.Offset,
		CompanyID: &params.CompanyID,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Expenses []*models.Expense `json:"expenses"`
		Total    int               `json:"total"`
	}{expenses, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retrieve(c echo.Context) error {
	ctx := c.Request().Context()

	params := RetrieveExpenseQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	expense, err := h.expenseService.RetrieveExpense(ctx, params.CompanyID, c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, expense))
}

// refresh re-reads one expense from QuickBooks and stores the new version.
func (h *handler) refresh(c echo.Context) error {
	ctx := c.Request().Context()

	params := RefreshExpensePayload{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}
	if err := h.companyService.CheckAccess(ctx, params.CompanyID, auth.UserID(c)); err != nil {
		return errors.WithStack(err)
	}

	existing, err := h.expenseService.RetrieveExpense(ctx, params.CompanyID, c.Param("id"))
	if err != nil {
		return errors.WithStack(err)
	}
	if existing.SourceSystem != models.SourceSystemQuickBooks {
		return errcodes.ValidationError("Only QuickBooks expenses can be refreshed.")
	}
	entity, sourceID, ok := quickbooks.ParseExpenseID(existing.ID)
	if !ok {
		return errcodes.ValidationError("Expense id is not a QuickBooks id.")
	}

	fresh, err := h.fetcher.FetchExpenseByID(ctx, existing.CompanyID, sourceID, entity)
	if err != nil {
		if errors.Is(err, quickbooks.ErrNotAuthenticated) {
			return errcodes.NotConnected(existing.CompanyID)
		}
		var rerr *quickbooks.RemoteQueryError
		var nerr *quickbooks.NetworkError
		if errors.As(err, &rerr) || errors.As(err, &nerr) {
			return errcodes.UpstreamError("QuickBooks")
		}
		return errors.WithStack(err)
	}
	if fresh == nil {
		return errcodes.NotFound("QuickBooks record")
	}

	fresh.CreatedAt = existing.CreatedAt
	if _, err := h.expenseService.UpsertExpenses(ctx, []*models.Expense{fresh}); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, fresh))
}
