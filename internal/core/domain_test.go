package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestRouteValidate(t *testing.T) {
	for _, r := range []Route{RouteSubsidie, RouteInbesteding, RouteAanbesteding} {
		if err := r.Validate(); err != nil {
			t.Fatalf("%s expected ok, got %v", r, err)
		}
	}
	if err := Route("lening").Validate(); !errors.Is(err, ErrInvalidRoute) {
		t.Fatalf("expected ErrInvalidRoute, got %v", err)
	}
}

func TestCategoryValidate(t *testing.T) {
	pid := int64(1)
	sid := int64(2)
	cases := []struct {
		c  Category
		ok bool
	}{
		{Category{Name: "Eten", ProjectID: &pid}, true},
		{Category{Name: "Eten", SubprojectID: &sid}, true},
		{Category{Name: "Eten"}, false},
		{Category{Name: "Eten", ProjectID: &pid, SubprojectID: &sid}, false},
		{Category{Name: " ", ProjectID: &pid}, false},
	}
	for i, tc := range cases {
		err := tc.c.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestPaymentValidate(t *testing.T) {
	pid := int64(1)
	good := Payment{
		ProjectID: &pid,
		Amount:    NewMoney(DefaultCurrency, decimal.NewFromInt(-25)),
		Type:      PaymentTypeManual,
		Route:     RouteInbesteding,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []Payment{
		{Amount: NewMoney(DefaultCurrency, decimal.NewFromInt(1))},
		{ProjectID: &pid},
		{ProjectID: &pid, Amount: NewMoney(DefaultCurrency, decimal.Zero)},
		{ProjectID: &pid, Amount: NewMoney(DefaultCurrency, decimal.NewFromInt(1)), Route: "x"},
	}
	for i, p := range bads {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestConflictErrorUnwrap(t *testing.T) {
	err := error(&ConflictError{Entity: "project", Field: "iban", Value: "NL01"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("conflict error should unwrap to ErrDuplicate")
	}
	if err.Error() != "project iban 'NL01' already exists" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestSameIBAN(t *testing.T) {
	a, b := "NL01", "NL02"
	if !SameIBAN(nil, nil) || SameIBAN(&a, nil) || SameIBAN(&a, &b) || !SameIBAN(&a, StringPtr(" NL01 ")) {
		t.Fatalf("SameIBAN gave unexpected results")
	}
}

func TestPaymentTypeValidate(t *testing.T) {
	for _, pt := range []PaymentType{PaymentTypeBank, PaymentTypeManual} {
		if err := pt.Validate(); err != nil {
			t.Errorf("%s expected ok, got %v", pt, err)
		}
	}
	for _, pt := range []PaymentType{"", "IDEAL", "bunq"} {
		if err := pt.Validate(); !errors.Is(err, ErrInvalidType) {
			t.Errorf("%q: expected ErrInvalidType, got %v", pt, err)
		}
	}
}

func TestFunderValidate(t *testing.T) {
	cases := []struct {
		name string
		f    Funder
		want error
	}{
		{"ok", Funder{ProjectID: 1, Name: "Gemeente Amsterdam", URL: "https://www.amsterdam.nl"}, nil},
		{"empty name", Funder{ProjectID: 1, Name: " ", URL: "https://www.amsterdam.nl"}, ErrEmptyName},
		{"no scheme", Funder{ProjectID: 1, Name: "Fonds", URL: "www.fonds.nl"}, ErrInvalidURL},
		{"ftp", Funder{ProjectID: 1, Name: "Fonds", URL: "ftp://fonds.nl"}, ErrInvalidURL},
		{"empty url", Funder{ProjectID: 1, Name: "Fonds"}, ErrInvalidURL},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected ok, got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := (Funder{Name: "Fonds", URL: "https://fonds.nl"}).Validate(); err == nil {
		t.Error("expected an error without project")
	}
}
