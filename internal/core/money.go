// Package core provides money parsing, rounding and display helpers.
//
// Amounts are accumulated as shopspring decimals in full precision and only
// rounded to whole currency units when they are formatted for display.
package core

import (
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

const DefaultCurrency = "EUR"

// Money is a currency code plus an optional decimal value.
type Money struct {
	Currency string
	Value    decimal.NullDecimal
}

func NewMoney(currency string, v decimal.Decimal) Money {
	return Money{Currency: currency, Value: decimal.NewNullDecimal(v)}
}

// Decimal returns the value, treating a missing amount as zero.
func (m Money) Decimal() decimal.Decimal {
	if !m.Value.Valid {
		return decimal.Zero
	}
	return m.Value.Decimal
}

func (m Money) IsPositive() bool {
	return m.Decimal().IsPositive()
}

func (m Money) IsNegative() bool {
	return m.Decimal().IsNegative()
}

// ParseAmount converts a user supplied amount to a decimal.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign. More than two fractional digits are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("-12,5")  -> -12.5
//	ParseAmount("1.2.3")  -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(digits, ".")
	if len(parts) > 2 || parts[0] == "" && (len(parts) == 1 || parts[1] == "") {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if len(parts) == 2 && len(parts[1]) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(strings.TrimPrefix(s, "+"))
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// RoundUnits rounds to whole currency units, half to even.
func RoundUnits(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(0)
}

// FormatCurrency renders a value as whole euros with Dutch digit grouping,
// e.g. "€ 1.234" or "€ -300".
func FormatCurrency(d decimal.Decimal) string {
	return "€ " + groupUnits(RoundUnits(d))
}

// FormatPercent renders a ratio (0.3) as a whole percentage ("30%").
func FormatPercent(ratio decimal.Decimal) string {
	return groupUnits(RoundUnits(ratio.Shift(2))) + "%"
}

func groupUnits(d decimal.Decimal) string {
	return humanize.FormatInteger("#.###,", int(d.IntPart()))
}
