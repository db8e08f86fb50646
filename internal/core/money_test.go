package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"-12,5", "-12.5", true},
		{"+7", "7", true},
		{" 2.50 ", "2.5", true},
		{"0", "", false},
		{"1.005", "", false},
		{"--1", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error, got %s", tc.in, got)
		}
	}
}

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "€ 0"},
		{"500", "€ 500"},
		{"1234.4", "€ 1.234"},
		{"1234567", "€ 1.234.567"},
		{"-300", "€ -300"},
		{"2.5", "€ 2"}, // half to even
		{"3.5", "€ 4"},
	}
	for _, tc := range cases {
		if got := FormatCurrency(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("FormatCurrency(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0%"},
		{"0.3", "30%"},
		{"0.125", "12%"},
		{"1", "100%"},
		{"12.5", "1.250%"},
	}
	for _, tc := range cases {
		if got := FormatPercent(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("FormatPercent(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNewAmounts(t *testing.T) {
	budget := int64(1000)
	a := NewAmounts(1, decimal.NewFromInt(500), decimal.NewFromInt(300), &budget)
	if !a.Left.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("left = %s, want 700", a.Left)
	}
	if a.PercentageSpentStr != "30%" {
		t.Fatalf("percentage = %q, want 30%%", a.PercentageSpentStr)
	}

	// Left is computed from rounded figures: round(10.5)=10, round(0.5)=0.
	a = NewAmounts(2, decimal.RequireFromString("10.5"), decimal.RequireFromString("0.5"), nil)
	if !a.Left.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("left = %s, want 10", a.Left)
	}

	zero := NewAmounts(3, decimal.Zero, decimal.Zero, nil)
	if !zero.PercentageSpent.IsZero() || zero.PercentageSpentStr != "0%" {
		t.Fatalf("zero denominator gave %s (%q)", zero.PercentageSpent, zero.PercentageSpentStr)
	}
}

func TestMoneyNullValue(t *testing.T) {
	var m Money
	if !m.Decimal().IsZero() || m.IsPositive() || m.IsNegative() {
		t.Fatalf("null money should behave as zero")
	}
}
