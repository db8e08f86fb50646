package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"poen/internal/bank"
	"poen/internal/core"
	"poen/internal/ledger"
	plog "poen/internal/log"
)

type IngestConfig struct {
	// PageSize is the number of payments requested per provider call (default: 10)
	PageSize int

	// ProviderInterval is the minimum spacing between provider calls within
	// one project run (default: 1s)
	ProviderInterval time.Duration

	// NewPacer builds the pacer shared by all provider calls of one project
	// run (default: one call per ProviderInterval)
	NewPacer func() bank.Pacer
}

func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		PageSize:         bank.DefaultPageSize,
		ProviderInterval: time.Second,
	}
}

// IngestLedger is the part of the ledger ingestion reads and writes.
type IngestLedger interface {
	ledger.ProjectReader
	ledger.PaymentReader
	ledger.PaymentWriter
}

// AccountReport counts what one monetary account contributed to a run.
type AccountReport struct {
	AccountID   int64
	IBAN        string
	IBANName    string
	NewPayments int
	Err         error
}

// IngestReport summarizes one ingestion run for a project.
type IngestReport struct {
	RunID     string
	ProjectID int64
	Started   time.Time
	Finished  time.Time
	Accounts  []AccountReport
	Err       error // set when the run stopped before reading any account
}

// NewPayments is the number of payments stored by the run.
func (r IngestReport) NewPayments() int {
	n := 0
	for _, a := range r.Accounts {
		n += a.NewPayments
	}
	return n
}

// Failed reports whether the run or any account hit an error.
func (r IngestReport) Failed() bool {
	if r.Err != nil {
		return true
	}
	for _, a := range r.Accounts {
		if a.Err != nil {
			return true
		}
	}
	return false
}

// Ingestor pulls new bank payments into the ledger.
type Ingestor struct {
	ledger   IngestLedger
	provider bank.Provider
	creds    bank.CredentialStore
	config   IngestConfig
}

func NewIngestor(l IngestLedger, provider bank.Provider, creds bank.CredentialStore, config IngestConfig) *Ingestor {
	if config.PageSize <= 0 {
		config.PageSize = bank.DefaultPageSize
	}
	if config.ProviderInterval <= 0 {
		config.ProviderInterval = time.Second
	}
	if config.NewPacer == nil {
		interval := config.ProviderInterval
		config.NewPacer = func() bank.Pacer { return bank.NewPacer(interval) }
	}
	return &Ingestor{
		ledger:   l,
		provider: provider,
		creds:    creds,
		config:   config,
	}
}

// link is the project and subproject a payment alias resolves to.
type link struct {
	projectID    *int64
	subprojectID *int64
}

// Paced returns the provider behind a fresh pacer. Every provider call of one
// project run goes through the same paced provider.
func (i *Ingestor) Paced() bank.Provider {
	return bank.ThrottleWith(i.provider, i.config.NewPacer())
}

// IngestNewPayments walks each monetary account of the project backward
// from the newest payment and stores payments until it reaches one that is
// already known. Failures are logged and reported, never returned.
func (i *Ingestor) IngestNewPayments(ctx context.Context, projectID int64) IngestReport {
	return i.ingest(ctx, projectID, i.Paced())
}

func (i *Ingestor) ingest(ctx context.Context, projectID int64, provider bank.Provider) IngestReport {
	report := IngestReport{
		RunID:     uuid.NewString(),
		ProjectID: projectID,
		Started:   time.Now(),
	}
	defer func() { report.Finished = time.Now() }()

	logger := plog.FromContext(ctx).
		WithComponent(plog.ComponentIngestion).
		With(plog.FieldRunID, report.RunID, plog.FieldProjectID, projectID)
	ctx = plog.NewContext(ctx, logger)

	cred, err := i.creds.GetCredential(ctx, projectID)
	if err != nil {
		if errors.Is(err, bank.ErrNoCredential) {
			logger.InfoContext(ctx, "Project has no bank link, skipping ingestion")
		} else {
			logger.ErrorContext(ctx, "Failed to load bank credential", plog.FieldError, err)
			report.Err = err
		}
		report.Finished = time.Now()
		return report
	}

	accounts, err := provider.MonetaryAccounts(ctx, cred)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to list monetary accounts", plog.FieldError, err)
		report.Err = err
		report.Finished = time.Now()
		return report
	}

	links := gocache.New(gocache.NoExpiration, 0)
	for _, acc := range accounts {
		if ctx.Err() != nil {
			break
		}
		report.Accounts = append(report.Accounts, i.ingestAccount(ctx, provider, cred, acc, links))
	}

	report.Finished = time.Now()
	logger.InfoContext(ctx, "Ingestion finished",
		plog.FieldCount, report.NewPayments(),
		"accounts", len(report.Accounts),
		"duration", report.Finished.Sub(report.Started))
	return report
}

func (i *Ingestor) ingestAccount(ctx context.Context, provider bank.Provider, cred bank.Credential, acc bank.MonetaryAccount, links *gocache.Cache) AccountReport {
	rep := AccountReport{AccountID: acc.ID}
	if alias, ok := acc.IBANAlias(); ok {
		rep.IBAN, rep.IBANName = alias.Value, alias.Name
	}
	logger := plog.FromContext(ctx).With(plog.FieldAccountID, acc.ID, plog.FieldIBAN, rep.IBAN)

	cursor := bank.FirstPage(i.config.PageSize)
	for {
		page, err := provider.ListPayments(ctx, cred, acc.ID, cursor)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to retrieve payments", plog.FieldError, err)
			rep.Err = err
			break
		}
		if len(page.Records) == 0 {
			break
		}

		stop, err := i.storePage(ctx, page, links)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to store payment", plog.FieldError, err)
			rep.Err = err
		}
		rep.NewPayments += stop.stored
		if stop.reached || err != nil || page.Previous == nil {
			break
		}
		cursor = *page.Previous
	}

	logger.InfoContext(ctx, fmt.Sprintf("Project %d: retrieved %d payments for %s (%s)",
		cred.ProjectID, rep.NewPayments, rep.IBAN, rep.IBANName),
		plog.FieldCount, rep.NewPayments)
	return rep
}

type pageResult struct {
	stored  int
	reached bool // an already known payment was found
}

func (i *Ingestor) storePage(ctx context.Context, page bank.Page, links *gocache.Cache) (pageResult, error) {
	var res pageResult
	for _, raw := range page.Records {
		p, err := bank.TransformPayment(raw)
		if err != nil {
			return res, fmt.Errorf("transform payment: %w", err)
		}

		exists, err := i.ledger.BankPaymentExists(ctx, *p.BankPaymentID)
		if err != nil {
			return res, err
		}
		if exists {
			res.reached = true
			return res, nil
		}

		l, err := i.resolve(ctx, p.Alias.Value, links)
		if err != nil {
			return res, err
		}
		p.ProjectID, p.SubprojectID = l.projectID, l.subprojectID

		if _, err := i.ledger.CreatePayment(ctx, p); err != nil {
			if errors.Is(err, core.ErrDuplicate) {
				// Stored concurrently by another run.
				res.reached = true
				return res, nil
			}
			return res, fmt.Errorf("store bank payment %d: %w", *p.BankPaymentID, err)
		}
		res.stored++
		slog.DebugContext(ctx, "Stored bank payment", plog.FieldBankPaymentID, *p.BankPaymentID)
	}
	return res, nil
}

// resolve maps an alias IBAN to the project and subproject using it. Results
// are cached for the duration of one run.
func (i *Ingestor) resolve(ctx context.Context, iban string, links *gocache.Cache) (link, error) {
	if iban == "" {
		return link{}, nil
	}
	if cached, ok := links.Get(iban); ok {
		return cached.(link), nil
	}

	var l link
	project, err := i.ledger.FindProjectByIBAN(ctx, iban)
	switch {
	case err == nil:
		l.projectID = &project.ID
	case !errors.Is(err, core.ErrNotFound):
		return link{}, err
	}
	sub, err := i.ledger.FindSubprojectByIBAN(ctx, iban)
	switch {
	case err == nil:
		l.subprojectID = &sub.ID
	case !errors.Is(err, core.ErrNotFound):
		return link{}, err
	}

	links.Set(iban, l, gocache.NoExpiration)
	return l, nil
}
