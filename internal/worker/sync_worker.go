package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"poen/internal/amqp"
	"poen/internal/core"
	"poen/internal/ledger"
	plog "poen/internal/log"
	"poen/internal/services"
)

// SyncWorker handles on-demand ingestion requests arriving over AMQP
type SyncWorker struct {
	projects  ledger.ProjectReader
	scheduler *services.IngestScheduler
}

func NewSyncWorker(projects ledger.ProjectReader, scheduler *services.IngestScheduler) *SyncWorker {
	return &SyncWorker{
		projects:  projects,
		scheduler: scheduler,
	}
}

// HandleSyncMessage ingests the requested project. Requests for unknown
// projects are dropped; a request for a project that is already being
// ingested is satisfied by the running ingestion. A bank failure is logged
// and acked; the next scheduled run retries the project.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.SyncRequestMessage) error {
	logger := plog.FromContext(ctx).WithComponent(plog.ComponentWorker).
		With(plog.FieldProjectID, msg.ProjectID, plog.FieldRequestID, msg.RequestID)

	logger.InfoContext(ctx, "Processing sync request")

	if _, err := w.projects.GetProject(ctx, msg.ProjectID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			logger.WarnContext(ctx, "Dropping sync request for unknown project")
			return nil
		}
		return fmt.Errorf("get project: %w", err)
	}

	report, ran := w.scheduler.IngestProject(ctx, msg.ProjectID)
	if !ran {
		return nil
	}
	if report.Err != nil {
		logger.WarnContext(ctx, "Bank unavailable, leaving project to the next scheduled run",
			plog.FieldRunID, report.RunID, plog.FieldError, report.Err)
		return nil
	}

	logger.InfoContext(ctx, "Sync request completed",
		plog.FieldRunID, report.RunID,
		plog.FieldCount, report.NewPayments())
	return nil
}

// EventPublisher is implemented by *amqp.Client.
type EventPublisher interface {
	PublishPaymentsIngested(ctx context.Context, msg *amqp.PaymentsIngestedMessage) error
}

// IngestEvents turns ingestion reports into payments.ingested events.
type IngestEvents struct {
	publisher EventPublisher
}

func NewIngestEvents(publisher EventPublisher) *IngestEvents {
	return &IngestEvents{publisher: publisher}
}

func (e *IngestEvents) PaymentsIngested(ctx context.Context, report services.IngestReport) error {
	if e.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping ingestion event")
		return nil
	}
	return e.publisher.PublishPaymentsIngested(ctx, &amqp.PaymentsIngestedMessage{
		RunID:       report.RunID,
		ProjectID:   report.ProjectID,
		NewPayments: report.NewPayments(),
		Accounts:    len(report.Accounts),
		Failed:      report.Failed(),
		Timestamp:   report.Finished,
	})
}
