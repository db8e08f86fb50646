package bank

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"poen/internal/core"
)

// Fields of a provider record that are never stored.
var skippedFields = map[string]struct{}{
	"allow_chat":                       {},
	"attachment":                       {},
	"request_reference_split_the_bill": {},
	"geolocation":                      {},
	"scheduled_id":                     {},
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

var ErrMalformedPayment = errors.New("malformed payment record")

// TransformError describes a record field that could not be mapped.
type TransformError struct {
	Field string
	Value string
	Err   error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform field %s=%q: %v", e.Field, e.Value, e.Err)
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// Flatten turns a raw record into a flat field map. Nested objects are
// flattened one level into parent_child keys, id becomes bank_payment_id
// and unused fields are dropped.
func Flatten(raw RawPayment) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayment, err)
	}

	out := make(map[string]any, len(record))
	for k, v := range record {
		if _, skip := skippedFields[k]; skip {
			continue
		}
		if k == "id" {
			k = "bank_payment_id"
		}
		if nested, ok := v.(map[string]any); ok {
			for k2, v2 := range nested {
				out[k+"_"+k2] = v2
			}
			continue
		}
		out[k] = v
	}
	return out, nil
}

// TransformPayment maps a raw provider record to an unlinked ledger payment.
// Every record becomes a bank payment; the provider's own transaction type
// is kept in BankType.
func TransformPayment(raw RawPayment) (core.Payment, error) {
	f, err := Flatten(raw)
	if err != nil {
		return core.Payment{}, err
	}

	id, err := intField(f, "bank_payment_id")
	if err != nil {
		return core.Payment{}, err
	}
	if id == nil {
		return core.Payment{}, &TransformError{Field: "bank_payment_id", Err: ErrMalformedPayment}
	}

	p := core.Payment{
		BankPaymentID: id,
		Alias: core.Alias{
			Name:  stringField(f, "alias_name"),
			Type:  stringField(f, "alias_type"),
			Value: stringField(f, "alias_value"),
		},
		Counterparty: core.Alias{
			Name:  stringField(f, "counterparty_alias_name"),
			Type:  stringField(f, "counterparty_alias_type"),
			Value: stringField(f, "counterparty_alias_value"),
		},
		Description: stringField(f, "description"),
		SubType:     stringField(f, "sub_type"),
		Type:        core.PaymentTypeBank,
		BankType:    stringField(f, "type"),
		Route:       core.RouteSubsidie,
	}

	if p.Amount, err = moneyField(f, "amount"); err != nil {
		return core.Payment{}, err
	}
	if p.BalanceAfterMutation, err = moneyField(f, "balance_after_mutation"); err != nil {
		return core.Payment{}, err
	}
	if p.MonetaryAccountID, err = intField(f, "monetary_account_id"); err != nil {
		return core.Payment{}, err
	}
	if p.Created, err = timeField(f, "created"); err != nil {
		return core.Payment{}, err
	}
	if p.Updated, err = timeField(f, "updated"); err != nil {
		return core.Payment{}, err
	}
	return p, nil
}

func stringField(f map[string]any, key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func intField(f map[string]any, key string) (*int64, error) {
	var s string
	switch v := f[key].(type) {
	case nil:
		return nil, nil
	case json.Number:
		s = v.String()
	case string:
		s = v
	default:
		return nil, &TransformError{Field: key, Value: fmt.Sprint(v), Err: ErrMalformedPayment}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, &TransformError{Field: key, Value: s, Err: err}
	}
	return &n, nil
}

func moneyField(f map[string]any, prefix string) (core.Money, error) {
	m := core.Money{Currency: stringField(f, prefix+"_currency")}
	raw := stringField(f, prefix+"_value")
	if raw == "" {
		return m, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return m, &TransformError{Field: prefix + "_value", Value: raw, Err: err}
	}
	m.Value = decimal.NewNullDecimal(d)
	if m.Currency == "" {
		m.Currency = core.DefaultCurrency
	}
	return m, nil
}

func timeField(f map[string]any, key string) (time.Time, error) {
	raw := strings.TrimSpace(stringField(f, key))
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &TransformError{Field: key, Value: raw, Err: ErrMalformedPayment}
}
