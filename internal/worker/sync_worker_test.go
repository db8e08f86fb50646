package worker

import (
	"context"
	"encoding/json"
	"testing"

	"poen/internal/amqp"
	"poen/internal/bank"
	"poen/internal/bank/fixture"
	"poen/internal/core"
	"poen/internal/ledger/memory"
	"poen/internal/services"
)

type fakePublisher struct {
	messages []*amqp.PaymentsIngestedMessage
}

func (f *fakePublisher) PublishPaymentsIngested(_ context.Context, msg *amqp.PaymentsIngestedMessage) error {
	f.messages = append(f.messages, msg)
	return nil
}

func setupWorker(t *testing.T) (*SyncWorker, *memory.Store, *fixture.Provider, *fakePublisher, int64) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	projectID, err := store.CreateProject(ctx, core.Project{Name: "Buurthuis"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.PutCredential(ctx, projectID, "token"); err != nil {
		t.Fatalf("PutCredential: %v", err)
	}

	provider := fixture.New(nil)
	provider.Set(projectID, fixture.History{Accounts: []fixture.Account{{
		ID:      1,
		Aliases: []bank.AccountAlias{{Type: "IBAN", Value: "NL01POEN", Name: "Poen"}},
		Payments: []json.RawMessage{
			json.RawMessage(`{"id": 2, "amount": {"currency": "EUR", "value": "-5.00"}, "alias": {"type": "IBAN", "value": "NL01POEN"}}`),
			json.RawMessage(`{"id": 1, "amount": {"currency": "EUR", "value": "50.00"}, "alias": {"type": "IBAN", "value": "NL01POEN"}}`),
		},
	}}})

	config := services.DefaultIngestConfig()
	config.NewPacer = func() bank.Pacer { return bank.Unpaced }
	ingestor := services.NewIngestor(store, provider, store, config)

	publisher := &fakePublisher{}
	scheduler := services.NewIngestScheduler(store, ingestor, nil, NewIngestEvents(publisher), services.DefaultIngestSchedulerConfig())
	return NewSyncWorker(store, scheduler), store, provider, publisher, projectID
}

func TestHandleSyncMessage(t *testing.T) {
	w, store, _, publisher, projectID := setupWorker(t)
	ctx := context.Background()

	if err := w.HandleSyncMessage(ctx, amqp.NewSyncRequestMessage(projectID, "req-1")); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}

	exists, err := store.BankPaymentExists(ctx, 2)
	if err != nil || !exists {
		t.Errorf("expected bank payment 2 to be stored, exists=%v err=%v", exists, err)
	}
	if len(publisher.messages) != 1 {
		t.Fatalf("expected 1 event, got %d", len(publisher.messages))
	}
	msg := publisher.messages[0]
	if msg.ProjectID != projectID || msg.NewPayments != 2 || msg.Failed {
		t.Errorf("unexpected event %+v", msg)
	}

	// A repeated request ingests nothing and publishes nothing.
	if err := w.HandleSyncMessage(ctx, amqp.NewSyncRequestMessage(projectID, "req-2")); err != nil {
		t.Fatalf("HandleSyncMessage: %v", err)
	}
	if len(publisher.messages) != 1 {
		t.Errorf("expected no new event, got %d", len(publisher.messages))
	}
}

func TestHandleSyncMessage_UnknownProject(t *testing.T) {
	w, _, _, publisher, _ := setupWorker(t)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewSyncRequestMessage(999, "")); err != nil {
		t.Errorf("unknown projects should be dropped, got %v", err)
	}
	if len(publisher.messages) != 0 {
		t.Errorf("expected no events, got %d", len(publisher.messages))
	}
}

func TestHandleSyncMessage_ProviderDownIsAcked(t *testing.T) {
	w, store, _, publisher, _ := setupWorker(t)
	ctx := context.Background()

	other, err := store.CreateProject(ctx, core.Project{Name: "Zonder fixture"})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if err := store.PutCredential(ctx, other, "token"); err != nil {
		t.Fatalf("PutCredential: %v", err)
	}

	// Redelivering would only hit the failing bank again in a tight loop.
	for range 2 {
		if err := w.HandleSyncMessage(ctx, amqp.NewSyncRequestMessage(other, "")); err != nil {
			t.Fatalf("provider failures should be acked, got %v", err)
		}
	}
	if len(publisher.messages) != 0 {
		t.Errorf("expected no events for a failed run, got %d", len(publisher.messages))
	}
}

func TestIngestEvents_NilPublisher(t *testing.T) {
	events := NewIngestEvents(nil)
	if err := events.PaymentsIngested(context.Background(), services.IngestReport{ProjectID: 1}); err != nil {
		t.Errorf("nil publisher should be a no-op, got %v", err)
	}
}
