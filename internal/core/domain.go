package core

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	PaymentTypeBank   PaymentType = "BUNQ"
	PaymentTypeManual PaymentType = "MANUAL"
)

const (
	RouteSubsidie     Route = "subsidie"
	RouteInbesteding  Route = "inbesteding"
	RouteAanbesteding Route = "aanbesteding"
)

type (
	PaymentType string

	// Route classifies how a payment was procured.
	Route string

	Project struct {
		ID                  int64
		Name                string
		Description         string
		IBAN                *string
		IBANName            string
		Budget              *int64
		ContainsSubprojects bool
		Hidden              bool
	}

	Subproject struct {
		ID          int64
		ProjectID   int64
		Name        string
		Description string
		IBAN        *string
		IBANName    string
		Budget      *int64
		Hidden      bool
	}

	// Alias is one side of a bank transaction.
	Alias struct {
		Name  string
		Type  string
		Value string
	}

	Payment struct {
		ID                   int64
		BankPaymentID        *int64 // nil for manual payments
		Alias                Alias  // sender side
		Counterparty         Alias
		Amount               Money
		BalanceAfterMutation Money
		Description          string
		Created              time.Time
		Updated              time.Time
		MonetaryAccountID    *int64
		SubType              string
		Type                 PaymentType
		BankType             string // provider transaction type (IDEAL, SWIFT ...); empty for manual payments
		Route                Route
		ProjectID            *int64
		SubprojectID         *int64
		CategoryID           *int64
		ShortUserDescription string
		LongUserDescription  string
		Hidden               bool
	}

	// IBAN is a bank account number known for a project through its bank link.
	IBAN struct {
		ProjectID int64
		IBAN      string
		IBANName  string
	}

	// Funder is an organization credited on a project's page.
	Funder struct {
		ID        int64
		ProjectID int64
		Name      string
		URL       string
	}

	// Category labels payments of exactly one project or one subproject.
	Category struct {
		ID           int64
		Name         string
		ProjectID    *int64
		SubprojectID *int64
	}
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicate        = errors.New("duplicate value")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidRoute     = errors.New("invalid route")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidScope     = errors.New("category must belong to exactly one project or subproject")
	ErrImmutablePayment = errors.New("bank payments cannot be removed")
	ErrMissingLink      = errors.New("payment must be linked to a project or subproject")
	ErrInvalidType      = errors.New("invalid payment type")
	ErrInvalidURL       = errors.New("invalid url")
)

// ConflictError reports a uniqueness violation on a named field.
type ConflictError struct {
	Entity string
	Field  string
	Value  string
}

func (e *ConflictError) Error() string {
	return e.Entity + " " + e.Field + " '" + e.Value + "' already exists"
}

func (e *ConflictError) Unwrap() error {
	return ErrDuplicate
}

// IsBank reports whether the payment was imported from the bank provider.
func (p Payment) IsBank() bool {
	return p.Type != PaymentTypeManual
}

func (t PaymentType) Validate() error {
	switch t {
	case PaymentTypeBank, PaymentTypeManual:
		return nil
	default:
		return ErrInvalidType
	}
}

func (r Route) Validate() error {
	switch r {
	case RouteSubsidie, RouteInbesteding, RouteAanbesteding:
		return nil
	default:
		return ErrInvalidRoute
	}
}

func (p Project) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 120 {
		return errors.New("name too long (max 120 characters)")
	}
	if p.IBAN != nil && len(*p.IBAN) > 34 {
		return errors.New("IBAN too long (max 34 characters)")
	}
	if p.Budget != nil && *p.Budget < 0 {
		return errors.New("budget cannot be negative")
	}
	return nil
}

func (s Subproject) Validate() error {
	if s.ProjectID == 0 {
		return errors.New("subproject requires a project")
	}
	if strings.TrimSpace(s.Name) == "" {
		return ErrEmptyName
	}
	if len(s.Name) > 120 {
		return errors.New("name too long (max 120 characters)")
	}
	if s.IBAN != nil && len(*s.IBAN) > 34 {
		return errors.New("IBAN too long (max 34 characters)")
	}
	if s.Budget != nil && *s.Budget < 0 {
		return errors.New("budget cannot be negative")
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if (c.ProjectID == nil) == (c.SubprojectID == nil) {
		return ErrInvalidScope
	}
	return nil
}

func (f Funder) Validate() error {
	if f.ProjectID == 0 {
		return errors.New("funder requires a project")
	}
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if len(f.Name) > 120 {
		return errors.New("name too long (max 120 characters)")
	}
	if len(f.URL) > 2000 {
		return errors.New("url too long (max 2000 characters)")
	}
	u, err := url.Parse(f.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}

// Validate checks a manually entered payment.
func (p Payment) Validate() error {
	if p.ProjectID == nil && p.SubprojectID == nil {
		return ErrMissingLink
	}
	if !p.Amount.Value.Valid || p.Amount.Value.Decimal.IsZero() {
		return ErrInvalidAmount
	}
	if p.Route != "" {
		if err := p.Route.Validate(); err != nil {
			return err
		}
	}
	if len(p.ShortUserDescription) > 100 {
		return errors.New("short description too long (max 100 characters)")
	}
	if len(p.LongUserDescription) > 1000 {
		return errors.New("long description too long (max 1000 characters)")
	}
	return nil
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// SameIBAN compares two optional IBANs.
func SameIBAN(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
