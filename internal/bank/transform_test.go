package bank

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poen/internal/core"
)

const samplePayment = `{
	"id": 369127,
	"created": "2019-09-09 14:07:38.942900",
	"updated": "2019-09-09 14:07:38.942900",
	"monetary_account_id": 27307,
	"amount": {"currency": "EUR", "value": "500.00"},
	"balance_after_mutation": {"currency": "EUR", "value": "500.00"},
	"alias": {"name": "Highchurch", "type": "IBAN", "value": "NL13BUNQ9900299981"},
	"counterparty_alias": {"name": "S. Daddy", "type": "IBAN", "value": "NL65BUNQ9900000188"},
	"description": "Requesting some spending money.",
	"type": "BUNQ",
	"sub_type": "REQUEST",
	"allow_chat": true,
	"attachment": [],
	"geolocation": {"latitude": 52.1, "longitude": 4.3},
	"request_reference_split_the_bill": [],
	"scheduled_id": null
}`

func TestFlatten(t *testing.T) {
	f, err := Flatten(RawPayment(samplePayment))
	require.NoError(t, err)

	assert.Contains(t, f, "bank_payment_id")
	assert.NotContains(t, f, "id")
	assert.Equal(t, "NL13BUNQ9900299981", f["alias_value"])
	assert.Equal(t, "500.00", f["amount_value"])
	for _, k := range []string{"allow_chat", "attachment", "geolocation", "geolocation_latitude", "request_reference_split_the_bill", "scheduled_id"} {
		assert.NotContains(t, f, k)
	}
}

func TestTransformPayment(t *testing.T) {
	p, err := TransformPayment(RawPayment(samplePayment))
	require.NoError(t, err)

	require.NotNil(t, p.BankPaymentID)
	assert.Equal(t, int64(369127), *p.BankPaymentID)
	assert.Equal(t, core.Alias{Name: "Highchurch", Type: "IBAN", Value: "NL13BUNQ9900299981"}, p.Alias)
	assert.Equal(t, "NL65BUNQ9900000188", p.Counterparty.Value)
	assert.True(t, p.Amount.Decimal().Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "EUR", p.Amount.Currency)
	assert.True(t, p.BalanceAfterMutation.Value.Valid)
	require.NotNil(t, p.MonetaryAccountID)
	assert.Equal(t, int64(27307), *p.MonetaryAccountID)
	assert.Equal(t, core.PaymentTypeBank, p.Type)
	assert.Equal(t, "REQUEST", p.SubType)
	assert.Equal(t, "BUNQ", p.BankType)
	assert.Equal(t, time.Date(2019, 9, 9, 14, 7, 38, 942900000, time.UTC), p.Created)
	assert.Nil(t, p.ProjectID)
	assert.Nil(t, p.SubprojectID)
}

func TestTransformPayment_ProviderTypes(t *testing.T) {
	for _, bankType := range []string{"IDEAL", "EBA_SCT", "SWIFT", "MASTERCARD", ""} {
		raw := fmt.Sprintf(`{"id": 7, "type": %q, "amount": {"currency": "EUR", "value": "-1.00"}}`, bankType)
		p, err := TransformPayment(RawPayment(raw))
		require.NoError(t, err, bankType)
		assert.Equal(t, core.PaymentTypeBank, p.Type, bankType)
		assert.Equal(t, bankType, p.BankType)
		assert.NoError(t, p.Type.Validate())
	}
}

func TestTransformPaymentErrors(t *testing.T) {
	_, err := TransformPayment(RawPayment(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayment)

	_, err = TransformPayment(RawPayment(`{"description": "no id"}`))
	assert.ErrorIs(t, err, ErrMalformedPayment)

	_, err = TransformPayment(RawPayment(`{"id": 1, "amount": {"currency": "EUR", "value": "abc"}}`))
	var te *TransformError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "amount_value", te.Field)

	_, err = TransformPayment(RawPayment(`{"id": 1, "created": "yesterday"}`))
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "created", te.Field)
}

func TestTransformPaymentMissingAmount(t *testing.T) {
	p, err := TransformPayment(RawPayment(`{"id": 7}`))
	require.NoError(t, err)
	assert.False(t, p.Amount.Value.Valid)
	assert.True(t, p.Amount.Decimal().IsZero())
}
