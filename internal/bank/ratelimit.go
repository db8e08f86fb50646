package bank

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer blocks until the next provider call may go out. *rate.Limiter
// implements it.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NewPacer allows one call per interval with a burst of one. A zero interval
// disables the spacing.
func NewPacer(interval time.Duration) *rate.Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return rate.NewLimiter(limit, 1)
}

type unpaced struct{}

func (unpaced) Wait(ctx context.Context) error { return ctx.Err() }

// Unpaced never waits.
var Unpaced Pacer = unpaced{}

// Throttled spaces calls to the wrapped provider through one Pacer. One
// Throttled serves every call of a project run, so runs for distinct
// projects do not share a budget.
type Throttled struct {
	next  Provider
	pacer Pacer
}

// Throttle wraps p so calls are at least interval apart.
func Throttle(p Provider, interval time.Duration) *Throttled {
	return ThrottleWith(p, NewPacer(interval))
}

func ThrottleWith(p Provider, pacer Pacer) *Throttled {
	return &Throttled{next: p, pacer: pacer}
}

func (t *Throttled) MonetaryAccounts(ctx context.Context, cred Credential) ([]MonetaryAccount, error) {
	if err := t.pacer.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.MonetaryAccounts(ctx, cred)
}

func (t *Throttled) ListPayments(ctx context.Context, cred Credential, accountID int64, cursor Cursor) (Page, error) {
	if err := t.pacer.Wait(ctx); err != nil {
		return Page{}, err
	}
	return t.next.ListPayments(ctx, cred, accountID, cursor)
}
