// Package bank holds the port to the external bank provider together with
// the helpers that turn its payment records into ledger payments.
package bank

import (
	"context"
	"encoding/json"
	"errors"
)

// DefaultPageSize is the number of payments requested per page.
const DefaultPageSize = 10

var ErrNoCredential = errors.New("no bank credential for project")

type (
	// Credential is the stored token a project authorized for its bank link.
	Credential struct {
		ProjectID int64
		Token     string
	}

	// MonetaryAccount is one active bank account behind a credential.
	MonetaryAccount struct {
		ID          int64
		Description string
		Aliases     []AccountAlias
	}

	AccountAlias struct {
		Type  string // IBAN, EMAIL, PHONE_NUMBER ...
		Value string
		Name  string
	}

	// Cursor selects a page of payment history. The first call uses only
	// Count; later calls pass the provider's opaque previous-page params.
	Cursor struct {
		Count  int
		Params map[string]string
	}

	// RawPayment is a payment record exactly as the provider encodes it.
	RawPayment = json.RawMessage

	// Page is one page of payments, newest first. Previous is nil when no
	// older page exists.
	Page struct {
		Records  []RawPayment
		Previous *Cursor
	}

	// Provider is the bank service the ingestion talks to.
	Provider interface {
		MonetaryAccounts(ctx context.Context, cred Credential) ([]MonetaryAccount, error)
		ListPayments(ctx context.Context, cred Credential, accountID int64, cursor Cursor) (Page, error)
	}

	// CredentialStore holds bank credentials per project. GetCredential
	// returns ErrNoCredential when the project has no bank link.
	CredentialStore interface {
		GetCredential(ctx context.Context, projectID int64) (Credential, error)
		PutCredential(ctx context.Context, projectID int64, token string) error
	}
)

// FirstPage is the cursor of the newest page.
func FirstPage(size int) Cursor {
	if size <= 0 {
		size = DefaultPageSize
	}
	return Cursor{Count: size}
}

// IBANAlias returns the account's IBAN alias.
func (a MonetaryAccount) IBANAlias() (AccountAlias, bool) {
	for _, al := range a.Aliases {
		if al.Type == "IBAN" {
			return al, true
		}
	}
	return AccountAlias{}, false
}
