package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingProvider struct {
	at []time.Time
}

func (c *countingProvider) MonetaryAccounts(ctx context.Context, cred Credential) ([]MonetaryAccount, error) {
	c.at = append(c.at, time.Now())
	return nil, nil
}

func (c *countingProvider) ListPayments(ctx context.Context, cred Credential, accountID int64, cursor Cursor) (Page, error) {
	c.at = append(c.at, time.Now())
	return Page{}, nil
}

func TestThrottleSpacesCalls(t *testing.T) {
	inner := &countingProvider{}
	p := Throttle(inner, 40*time.Millisecond)
	ctx := context.Background()

	_, err := p.MonetaryAccounts(ctx, Credential{})
	require.NoError(t, err)
	_, err = p.ListPayments(ctx, Credential{}, 1, FirstPage(0))
	require.NoError(t, err)
	_, err = p.ListPayments(ctx, Credential{}, 1, FirstPage(0))
	require.NoError(t, err)

	require.Len(t, inner.at, 3)
	for i := 1; i < len(inner.at); i++ {
		assert.GreaterOrEqual(t, inner.at[i].Sub(inner.at[i-1]), 30*time.Millisecond)
	}
}

func TestThrottleHonoursContext(t *testing.T) {
	p := Throttle(&countingProvider{}, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := p.MonetaryAccounts(ctx, Credential{})
	require.NoError(t, err)

	cancel()
	_, err = p.ListPayments(ctx, Credential{}, 1, FirstPage(0))
	assert.Error(t, err)
}

type countingPacer struct{ waits int }

func (c *countingPacer) Wait(ctx context.Context) error {
	c.waits++
	return ctx.Err()
}

func TestThrottleWithWaitsBeforeEveryCall(t *testing.T) {
	inner := &countingProvider{}
	pacer := &countingPacer{}
	p := ThrottleWith(inner, pacer)

	_, _ = p.MonetaryAccounts(context.Background(), Credential{})
	_, _ = p.ListPayments(context.Background(), Credential{}, 1, FirstPage(0))
	assert.Equal(t, 2, pacer.waits)
	assert.Len(t, inner.at, 2)
}

func TestUnpaced(t *testing.T) {
	assert.NoError(t, Unpaced.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Unpaced.Wait(ctx), context.Canceled)
}

func TestFirstPage(t *testing.T) {
	assert.Equal(t, Cursor{Count: DefaultPageSize}, FirstPage(0))
	assert.Equal(t, Cursor{Count: 25}, FirstPage(25))
}
