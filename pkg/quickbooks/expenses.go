package quickbooks

import (
	"strings"

	"github.com/cosmoesg/cosmo/pkg/models"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
	"github.com/shopspring/decimal"
)

const (
	EntityPurchase = "Purchase"
	EntityBill     = "Bill"

	purchaseIDPrefix = "qb-purchase-"
	billIDPrefix     = "qb-bill-"

	defaultCurrency = "USD"
	// Bills have no payment type of their own.
	billPaymentMethod = "Factura"
)

type Ref struct {
	Value string `json:"value"`
	Name  string `json:"name"`
}

func (r *Ref) name() *string {
	if r == nil {
		return nil
	}
	return optional(r.Name)
}

type Purchase struct {
	ID          string          `json:"Id"`
	DocNumber   string          `json:"DocNumber"`
	TxnDate     string          `json:"TxnDate"`
	TotalAmt    decimal.Decimal `json:"TotalAmt"`
	PrivateNote string          `json:"PrivateNote"`
	PaymentType string          `json:"PaymentType"`
	CurrencyRef *Ref            `json:"CurrencyRef"`
	AccountRef  *Ref            `json:"AccountRef"`
	EntityRef   *Ref            `json:"EntityRef"`
}

type Bill struct {
	ID           string          `json:"Id"`
	DocNumber    string          `json:"DocNumber"`
	TxnDate      string          `json:"TxnDate"`
	TotalAmt     decimal.Decimal `json:"TotalAmt"`
	PrivateNote  string          `json:"PrivateNote"`
	CurrencyRef  *Ref            `json:"CurrencyRef"`
	APAccountRef *Ref            `json:"APAccountRef"`
	VendorRef    *Ref            `json:"VendorRef"`
}

// MapPurchase normalizes a Purchase row into an Expense.
func MapPurchase(companyID string, raw json.RawMessage) (*models.Expense, error) {
	var p Purchase
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errors.Wrap(err, "decoding purchase")
	}

	description := p.PrivateNote
	if description == "" {
		description = "Purchase #" + firstNonEmpty(p.DocNumber, p.ID)
	}

	return &models.Expense{
		ID:            purchaseIDPrefix + p.ID,
		CompanyID:     companyID,
		Date:          p.TxnDate,
		Description:   description,
		Amount:        p.TotalAmt,
		Currency:      currency(p.CurrencyRef),
		Category:      p.AccountRef.name(),
		Supplier:      p.EntityRef.name(),
		Notes:         optional(p.PrivateNote),
		PaymentMethod: optional(p.PaymentType),
		SourceID:      p.ID,
		SourceSystem:  models.SourceSystemQuickBooks,
		RawData:       raw,
	}, nil
}

// MapBill normalizes a Bill row into an Expense.
func MapBill(companyID string, raw json.RawMessage) (*models.Expense, error) {
	var b Bill
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.Wrap(err, "decoding bill")
	}

	description := b.PrivateNote
	if description == "" {
		description = "Bill #" + firstNonEmpty(b.DocNumber, b.ID)
	}
	method := billPaymentMethod

	return &models.Expense{
		ID:            billIDPrefix + b.ID,
		CompanyID:     companyID,
		Date:          b.TxnDate,
		Description:   description,
		Amount:        b.TotalAmt,
		Currency:      currency(b.CurrencyRef),
		Category:      b.APAccountRef.name(),
		Supplier:      b.VendorRef.name(),
		Notes:         optional(b.PrivateNote),
		PaymentMethod: &method,
		SourceID:      b.ID,
		SourceSystem:  models.SourceSystemQuickBooks,
		RawData:       raw,
	}, nil
}

func currency(ref *Ref) string {
	if ref == nil || ref.Value == "" {
		return defaultCurrency
	}
	return ref.Value
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ParseExpenseID splits a normalized expense id back into the entity it came
// from and its QuickBooks id.
func ParseExpenseID(id string) (entity, sourceID string, ok bool) {
	switch {
	case strings.HasPrefix(id, purchaseIDPrefix) && len(id) > len(purchaseIDPrefix):
		return EntityPurchase, strings.TrimPrefix(id, purchaseIDPrefix), true
	case strings.HasPrefix(id, billIDPrefix) && len(id) > len(billIDPrefix):
		return EntityBill, strings.TrimPrefix(id, billIDPrefix), true
	}
	return "", "", false
}

// Map dispatches to the mapper for entity.
func Map(entity, companyID string, raw json.RawMessage) (*models.Expense, error) {
	switch entity {
	case EntityPurchase:
		return MapPurchase(companyID, raw)
	case EntityBill:
		return MapBill(companyID, raw)
	}
	return nil, errors.Errorf("unsupported expense entity %q", entity)
}
