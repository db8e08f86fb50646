package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineClient never dials; the breaker is driven directly.
func offlineClient() *Client {
	return &Client{url: "amqp://unused", exchangeName: "poen", queueName: "poen.sync"}
}

func TestExponentialBackoff_ReachesCap(t *testing.T) {
	var prev time.Duration
	for attempt := range 8 {
		d := exponentialBackoff(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, maxBackoff, "attempt %d", attempt)
		prev = d
	}
	assert.Equal(t, time.Second, exponentialBackoff(0))
	assert.Equal(t, 16*time.Second, exponentialBackoff(4))
	assert.Equal(t, maxBackoff, exponentialBackoff(5))
	assert.Equal(t, maxBackoff, exponentialBackoff(64))
}

func TestIsConnectionError(t *testing.T) {
	reconnect := []error{
		amqp091.ErrClosed,
		fmt.Errorf("publish message: %w", amqp091.ErrClosed),
		io.EOF,
		errors.New("write tcp: broken pipe"),
		errors.New("use of closed network connection"),
	}
	for _, err := range reconnect {
		assert.True(t, isConnectionError(err), "%v", err)
	}

	assert.False(t, isConnectionError(nil))
	assert.False(t, isConnectionError(errors.New("PRECONDITION_FAILED - inequivalent arg")))
	assert.False(t, isConnectionError(errDeliveriesClosed))
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	c := offlineClient()
	require.False(t, c.isCircuitOpen())

	for range maxFailures - 1 {
		c.recordFailure()
	}
	assert.False(t, c.isCircuitOpen(), "below threshold")

	c.recordFailure()
	assert.True(t, c.isCircuitOpen(), "threshold reached")

	// After the open timeout a single trial call is let through.
	c.mu.Lock()
	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	c.mu.Unlock()
	assert.False(t, c.isCircuitOpen())
	assert.Equal(t, StateHalfOpen, atomic.LoadInt32(&c.state))

	// A failed trial call reopens at once.
	c.recordFailure()
	assert.Equal(t, StateOpen, atomic.LoadInt32(&c.state))

	c.recordSuccess()
	assert.Equal(t, StateClosed, atomic.LoadInt32(&c.state))
	assert.Zero(t, atomic.LoadInt64(&c.failureCount))
}

func TestPublish_RefusedWhileOpen(t *testing.T) {
	c := offlineClient()
	atomic.StoreInt32(&c.state, StateOpen)
	c.lastFailure = time.Now()

	err := c.PublishSyncRequest(context.Background(), 4, "req-1")
	assert.ErrorContains(t, err, "circuit breaker is open")

	msg := &PaymentsIngestedMessage{RunID: "run-1", ProjectID: 4, NewPayments: 2}
	err = c.PublishPaymentsIngested(context.Background(), msg)
	assert.ErrorContains(t, err, EventsRoutingKey)
	assert.False(t, msg.Timestamp.IsZero(), "timestamp is stamped before publishing")
}

func TestPublish_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := offlineClient().PublishSyncRequest(ctx, 4, "req-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSyncRequestMessage(t *testing.T) {
	before := time.Now()
	msg := NewSyncRequestMessage(12, "req-9")
	assert.Equal(t, int64(12), msg.ProjectID)
	assert.Equal(t, "req-9", msg.RequestID)
	assert.False(t, msg.Timestamp.Before(before))

	data, err := msg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"project_id":12`)

	got, err := SyncRequestMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, msg.ProjectID, got.ProjectID)
	assert.True(t, msg.Timestamp.Equal(got.Timestamp))

	// The request id is optional on the wire.
	got, err = SyncRequestMessageFromJSON([]byte(`{"project_id":3}`))
	require.NoError(t, err)
	assert.Empty(t, got.RequestID)
}

func TestPaymentsIngestedMessage(t *testing.T) {
	data := []byte(`{"run_id":"r1","project_id":5,"new_payments":3,"accounts":2,"failed":true,"timestamp":"2024-03-01T10:00:00Z"}`)
	msg, err := PaymentsIngestedMessageFromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "r1", msg.RunID)
	assert.Equal(t, int64(5), msg.ProjectID)
	assert.Equal(t, 3, msg.NewPayments)
	assert.Equal(t, 2, msg.Accounts)
	assert.True(t, msg.Failed)
	assert.True(t, msg.Timestamp.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestMessages_RejectMalformedJSON(t *testing.T) {
	_, err := SyncRequestMessageFromJSON([]byte(`{"project_id":`))
	assert.Error(t, err)
	_, err = PaymentsIngestedMessageFromJSON([]byte(`[]`))
	assert.Error(t, err)
}
