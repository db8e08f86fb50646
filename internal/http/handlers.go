package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"poen/internal/ledger"
	plog "poen/internal/log"
	"poen/internal/middleware/trace"
	"poen/internal/services"
)

// SyncPublisher queues an on-demand ingestion. *amqp.Client implements it.
type SyncPublisher interface {
	PublishSyncRequest(ctx context.Context, projectID int64, requestID string) error
}

// Deps are the services the API serves. Sync and Scheduler are optional:
// with a publisher a sync request is queued for the worker, without one it
// runs inline on the scheduler.
type Deps struct {
	Projects  ledger.ProjectReader
	Amounts   *services.Calculator
	Entities  *services.EntityService
	Directory *services.IBANDirectory
	Payments  *services.PaymentService
	Exporter  *services.Exporter
	Funders   *services.FunderService
	Sync      SyncPublisher
	Scheduler *services.IngestScheduler
}

type handlers struct {
	Deps
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handlers) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if _, err := h.Projects.ListProjects(ctx); err != nil {
		plog.FromContext(ctx).WarnContext(ctx, "Readiness check failed", plog.FieldError, err)
		http.Error(w, "ledger unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handlers) handleProjectAmounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	amounts, err := h.Amounts.ProjectAmounts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAmountsResponse(amounts))
}

func (h *handlers) handleSubprojectAmounts(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	amounts, err := h.Amounts.SubprojectAmounts(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAmountsResponse(amounts))
}

func (h *handlers) handleTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Amounts.Totals(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTotalsResponse(totals))
}

func (h *handlers) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Projects.GetProject(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}

	switch {
	case h.Sync != nil:
		requestID := trace.GetRequestID(ctx)
		if err := h.Sync.PublishSyncRequest(ctx, id, requestID); err != nil {
			plog.FromContext(ctx).ErrorContext(ctx, "Failed to queue sync request",
				plog.FieldProjectID, id, plog.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync queue unavailable"})
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"project_id": id, "request_id": requestID})

	case h.Scheduler != nil:
		report, ran := h.Scheduler.IngestProject(ctx, id)
		if !ran {
			writeJSON(w, http.StatusConflict, errorResponse{Error: "ingestion already in progress"})
			return
		}
		if report.Err != nil {
			plog.FromContext(ctx).WarnContext(ctx, "Inline ingestion failed",
				plog.FieldProjectID, id, plog.FieldError, report.Err)
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "bank provider unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, newIngestResponse(report))

	default:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync is not configured"})
	}
}

func (h *handlers) handleListFunders(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	funders, err := h.Funders.ForProject(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]funderResponse, 0, len(funders))
	for _, f := range funders {
		resp = append(resp, funderResponse{ID: f.ID, Name: f.Name, URL: f.URL})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleRefreshIBANs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Projects.GetProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Directory.RefreshIBANs(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeIBANs(w, r, id)
}

func (h *handlers) handleListIBANs(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Projects.GetProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	h.writeIBANs(w, r, id)
}

func (h *handlers) writeIBANs(w http.ResponseWriter, r *http.Request, projectID int64) {
	ibans, err := h.Directory.ListIBANs(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]ibanResponse, 0, len(ibans))
	for _, i := range ibans {
		resp = append(resp, ibanResponse{IBAN: i.IBAN, IBANName: i.IBANName})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleSetProjectIBAN(w http.ResponseWriter, r *http.Request) {
	h.setIBAN(w, r, h.Entities.UpdateProjectIBAN)
}

func (h *handlers) handleSetSubprojectIBAN(w http.ResponseWriter, r *http.Request) {
	h.setIBAN(w, r, h.Entities.UpdateSubprojectIBAN)
}

func (h *handlers) setIBAN(w http.ResponseWriter, r *http.Request, update func(context.Context, int64, *string, string) error) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setIBANRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	iban, name, err := req.normalize()
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := update(r.Context(), id, iban, name); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) handleProjectPayments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := h.Projects.GetProject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	payments, err := h.Payments.ProjectPayments(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, newPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	project, err := h.Projects.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Buffer so a failure can still produce an error status.
	var buf bytes.Buffer
	if _, err := h.Exporter.ExportProject(r.Context(), &buf, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.Exporter.ExportFileName(project)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
