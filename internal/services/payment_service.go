package services

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"poen/internal/core"
	"poen/internal/ledger"
	plog "poen/internal/log"
)

// PaymentDetails are the fields users may edit on any payment. An empty
// Route keeps the current one.
type PaymentDetails struct {
	Route                core.Route
	CategoryID           *int64
	ShortUserDescription string
	LongUserDescription  string
	Hidden               bool
}

// PaymentService orchestrates manual payments and payment details
type PaymentService struct {
	store ledger.Store
	now   func() time.Time
}

func NewPaymentService(store ledger.Store) *PaymentService {
	return &PaymentService{store: store, now: time.Now}
}

// WithClock replaces the time source used for manual payment timestamps.
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// AddManualPayment stores a user entered payment on a project or subproject.
func (s *PaymentService) AddManualPayment(ctx context.Context, p core.Payment) (int64, error) {
	p.ID = 0
	p.Type = core.PaymentTypeManual
	p.BankPaymentID = nil
	p.MonetaryAccountID = nil
	p.BalanceAfterMutation = core.Money{}
	if p.Route == "" {
		p.Route = core.RouteSubsidie
	}
	if p.Amount.Currency == "" {
		p.Amount.Currency = core.DefaultCurrency
	}
	if p.Created.IsZero() {
		p.Created = s.now().UTC()
	}
	p.Updated = s.now().UTC()

	if err := p.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		if err := checkPaymentLinks(ctx, tx, p); err != nil {
			return err
		}
		var err error
		id, err = tx.CreatePayment(ctx, p)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("add manual payment: %w", err)
	}

	slog.InfoContext(ctx, "Manual payment added",
		plog.FieldPaymentID, id,
		"amount", p.Amount.Decimal().String(),
		"route", p.Route)
	return id, nil
}

// UpdateDetails edits the descriptive fields of a payment. Financial fields
// are never touched, so this is allowed for bank payments too.
func (s *PaymentService) UpdateDetails(ctx context.Context, paymentID int64, d PaymentDetails) error {
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if d.Route != "" {
			p.Route = d.Route
		}
		p.CategoryID = d.CategoryID
		p.ShortUserDescription = d.ShortUserDescription
		p.LongUserDescription = d.LongUserDescription
		p.Hidden = d.Hidden

		if err := p.Route.Validate(); err != nil {
			return err
		}
		if len(p.ShortUserDescription) > 100 {
			return fmt.Errorf("short description too long (max 100 characters)")
		}
		if len(p.LongUserDescription) > 1000 {
			return fmt.Errorf("long description too long (max 1000 characters)")
		}
		if err := checkCategory(ctx, tx, p); err != nil {
			return err
		}
		return tx.UpdatePaymentDetails(ctx, p)
	})
}

// RemovePayment deletes a manual payment. Bank payments are kept.
func (s *PaymentService) RemovePayment(ctx context.Context, paymentID int64) error {
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p.IsBank() {
			return fmt.Errorf("payment %d: %w", paymentID, core.ErrImmutablePayment)
		}
		return tx.DeletePayment(ctx, paymentID)
	})
}

// ProjectPayments returns the payments of a project and of its subprojects,
// newest first, each payment once.
func (s *PaymentService) ProjectPayments(ctx context.Context, projectID int64) ([]core.Payment, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	payments, err := s.store.ListProjectPayments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.ListSubprojects(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for _, sub := range subs {
		sp, err := s.store.ListSubprojectPayments(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		payments = append(payments, sp...)
	}

	slices.SortFunc(payments, func(a, b core.Payment) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return slices.CompactFunc(payments, func(a, b core.Payment) bool { return a.ID == b.ID }), nil
}

func checkPaymentLinks(ctx context.Context, tx ledger.Tx, p core.Payment) error {
	if p.ProjectID != nil {
		if _, err := tx.GetProject(ctx, *p.ProjectID); err != nil {
			return err
		}
	}
	if p.SubprojectID != nil {
		sub, err := tx.GetSubproject(ctx, *p.SubprojectID)
		if err != nil {
			return err
		}
		if p.ProjectID != nil && sub.ProjectID != *p.ProjectID {
			return fmt.Errorf("subproject %d does not belong to project %d", sub.ID, *p.ProjectID)
		}
	}
	return checkCategory(ctx, tx, p)
}

// checkCategory requires the category to belong to the payment's project or
// subproject.
func checkCategory(ctx context.Context, tx ledger.Tx, p core.Payment) error {
	if p.CategoryID == nil {
		return nil
	}
	c, err := tx.GetCategory(ctx, *p.CategoryID)
	if err != nil {
		return err
	}
	inProject := c.ProjectID != nil && p.ProjectID != nil && *c.ProjectID == *p.ProjectID
	inSubproject := c.SubprojectID != nil && p.SubprojectID != nil && *c.SubprojectID == *p.SubprojectID
	if !inProject && !inSubproject {
		return fmt.Errorf("category %d: %w", c.ID, core.ErrInvalidScope)
	}
	return nil
}
