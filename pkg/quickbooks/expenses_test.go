package quickbooks

import (
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPurchase(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"Id":"42","TotalAmt":100,"TxnDate":"2024-01-01","CurrencyRef":{"value":"EUR"},"EntityRef":{"name":"Acme"}}`)

	expense, err := MapPurchase("realm-1", raw)
	require.NoError(t, err)

	assert.Equal(t, "qb-purchase-42", expense.ID)
	assert.Equal(t, "realm-1", expense.CompanyID)
	assert.Equal(t, "2024-01-01", expense.Date)
	assert.Equal(t, "100", expense.Amount.String())
	assert.Equal(t, "EUR", expense.Currency)
	require.NotNil(t, expense.Supplier)
	assert.Equal(t, "Acme", *expense.Supplier)
	assert.Equal(t, "quickbooks", expense.SourceSystem)
	assert.Equal(t, "42", expense.SourceID)
	assert.Equal(t, "Purchase #42", expense.Description)
	assert.Nil(t, expense.Category)
	assert.Nil(t, expense.PaymentMethod)
	assert.JSONEq(t, string(raw), string(expense.RawData))
}

func TestMapPurchase_FullRecord(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"Id":"7","DocNumber":"D-7","TxnDate":"2026-02-03","TotalAmt":"12.50",
		"PrivateNote":"Team lunch","PaymentType":"CreditCard",
		"AccountRef":{"value":"13","name":"Meals"},"EntityRef":{"value":"3","name":"Cafe"}
	}`)

	expense, err := MapPurchase("realm-1", raw)
	require.NoError(t, err)

	assert.Equal(t, "Team lunch", expense.Description)
	assert.Equal(t, "12.5", expense.Amount.String())
	assert.Equal(t, "USD", expense.Currency)
	assert.Equal(t, "Meals", *expense.Category)
	assert.Equal(t, "Team lunch", *expense.Notes)
	assert.Equal(t, "CreditCard", *expense.PaymentMethod)
}

func TestMapPurchase_DescriptionFallsBackToDocNumber(t *testing.T) {
	t.Parallel()

	expense, err := MapPurchase("realm-1", json.RawMessage(`{"Id":"7","DocNumber":"D-7","TotalAmt":1}`))
	require.NoError(t, err)
	assert.Equal(t, "Purchase #D-7", expense.Description)
}

func TestMapBill(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"Id":"5","TxnDate":"2026-01-15","TotalAmt":250.75,"APAccountRef":{"name":"Accounts Payable"},"VendorRef":{"name":"Energy Co"}}`)

	expense, err := MapBill("realm-1", raw)
	require.NoError(t, err)

	assert.Equal(t, "qb-bill-5", expense.ID)
	assert.Equal(t, "Bill #5", expense.Description)
	assert.Equal(t, "250.75", expense.Amount.String())
	assert.Equal(t, "USD", expense.Currency)
	assert.Equal(t, "Accounts Payable", *expense.Category)
	assert.Equal(t, "Energy Co", *expense.Supplier)
	require.NotNil(t, expense.PaymentMethod)
	assert.Equal(t, "Factura", *expense.PaymentMethod)
}

func TestMapBill_IgnoresPaymentType(t *testing.T) {
	t.Parallel()

	expense, err := MapBill("realm-1", json.RawMessage(`{"Id":"6","TotalAmt":1,"PaymentType":"Cash"}`))
	require.NoError(t, err)
	assert.Equal(t, "Factura", *expense.PaymentMethod)
}

func TestTokens_NeedsRefresh(t *testing.T) {
	t.Parallel()

	tokens := &Tokens{ExpiresIn: 3600, CreatedAt: fixedNow}

	assert.False(t, tokens.NeedsRefresh(fixedNow))
	assert.False(t, tokens.NeedsRefresh(fixedNow.Add(time.Hour-RefreshMargin-time.Nanosecond)))
	assert.True(t, tokens.NeedsRefresh(fixedNow.Add(time.Hour-RefreshMargin)))
	assert.True(t, tokens.NeedsRefresh(fixedNow.Add(2*time.Hour)))
}

func TestParseExpenseID(t *testing.T) {
	t.Parallel()

	entity, id, ok := ParseExpenseID("qb-purchase-42")
	assert.True(t, ok)
	assert.Equal(t, EntityPurchase, entity)
	assert.Equal(t, "42", id)

	entity, id, ok = ParseExpenseID("qb-bill-7")
	assert.True(t, ok)
	assert.Equal(t, EntityBill, entity)
	assert.Equal(t, "7", id)

	_, _, ok = ParseExpenseID("qb-bill-")
	assert.False(t, ok)
	_, _, ok = ParseExpenseID("manual-1")
	assert.False(t, ok)
}

func TestMap_UnknownEntity(t *testing.T) {
	t.Parallel()

	_, err := Map("Invoice", "realm-1", []byte(`{}`))
	assert.Error(t, err)
}
