package services

import (
	"context"
	"errors"
	"fmt"

	"poen/internal/bank"
	"poen/internal/core"
	"poen/internal/ledger"
	plog "poen/internal/log"
)

// IBANLedger stores IBAN records inside a transaction.
type IBANLedger interface {
	ledger.IBANStore
	InTx(ctx context.Context, fn func(tx ledger.Tx) error) error
}

// IBANDirectory keeps the IBANs behind each project's bank link.
type IBANDirectory struct {
	ledger   IBANLedger
	provider bank.Provider
	creds    bank.CredentialStore
}

func NewIBANDirectory(l IBANLedger, provider bank.Provider, creds bank.CredentialStore) *IBANDirectory {
	return &IBANDirectory{ledger: l, provider: provider, creds: creds}
}

// RefreshIBANs replaces the project's IBAN records with the IBAN aliases of
// its monetary accounts and returns how many were stored. A project without
// bank link ends up with no records. Accounts are fetched before anything is
// written, so a provider failure leaves the previous records in place.
func (d *IBANDirectory) RefreshIBANs(ctx context.Context, projectID int64) (int, error) {
	return d.refresh(ctx, projectID, d.provider)
}

// refresh lists accounts through provider, which lets a project run share
// its paced provider with the ingestion that follows.
func (d *IBANDirectory) refresh(ctx context.Context, projectID int64, provider bank.Provider) (int, error) {
	logger := plog.FromContext(ctx).WithComponent(plog.ComponentIBANs).With(plog.FieldProjectID, projectID)

	var ibans []core.IBAN
	cred, err := d.creds.GetCredential(ctx, projectID)
	switch {
	case errors.Is(err, bank.ErrNoCredential):
		logger.InfoContext(ctx, "Project has no bank link, clearing IBANs")
	case err != nil:
		return 0, fmt.Errorf("load bank credential: %w", err)
	default:
		accounts, err := provider.MonetaryAccounts(ctx, cred)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to list monetary accounts", plog.FieldError, err)
			return 0, fmt.Errorf("list monetary accounts: %w", err)
		}
		seen := make(map[string]struct{}, len(accounts))
		for _, acc := range accounts {
			alias, ok := acc.IBANAlias()
			if !ok {
				continue
			}
			if _, dup := seen[alias.Value]; dup {
				continue
			}
			seen[alias.Value] = struct{}{}
			ibans = append(ibans, core.IBAN{ProjectID: projectID, IBAN: alias.Value, IBANName: alias.Name})
		}
	}

	err = d.ledger.InTx(ctx, func(tx ledger.Tx) error {
		return tx.ReplaceIBANs(ctx, projectID, ibans)
	})
	if err != nil {
		return 0, fmt.Errorf("replace IBANs: %w", err)
	}

	logger.InfoContext(ctx, "IBANs refreshed", plog.FieldCount, len(ibans))
	return len(ibans), nil
}

// ListIBANs returns the stored IBAN records of a project.
func (d *IBANDirectory) ListIBANs(ctx context.Context, projectID int64) ([]core.IBAN, error) {
	return d.ledger.ListIBANs(ctx, projectID)
}
