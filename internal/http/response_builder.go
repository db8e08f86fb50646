package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"poen/internal/bank"
	"poen/internal/core"
	plog "poen/internal/log"
	"poen/internal/services"
)

type errorResponse struct {
	Error string `json:"error"`
}

type amountsResponse struct {
	ID              int64  `json:"id"`
	Awarded         string `json:"awarded"`
	Spent           string `json:"spent"`
	Left            string `json:"left"`
	PercentageSpent string `json:"percentage_spent"`
	Display         struct {
		Awarded         string `json:"awarded"`
		Spent           string `json:"spent"`
		Left            string `json:"left"`
		PercentageSpent string `json:"percentage_spent"`
	} `json:"display"`
}

func newAmountsResponse(a core.Amounts) amountsResponse {
	resp := amountsResponse{
		ID:              a.ID,
		Awarded:         a.Awarded.StringFixed(2),
		Spent:           a.Spent.StringFixed(2),
		Left:            a.Left.StringFixed(2),
		PercentageSpent: a.PercentageSpent.StringFixed(4),
	}
	resp.Display.Awarded = a.AwardedStr
	resp.Display.Spent = a.SpentStr
	resp.Display.Left = a.LeftStr
	resp.Display.PercentageSpent = a.PercentageSpentStr
	return resp
}

type funderResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type totalsResponse struct {
	Awarded string `json:"awarded"`
	Spent   string `json:"spent"`
	Display struct {
		Awarded string `json:"awarded"`
		Spent   string `json:"spent"`
	} `json:"display"`
}

func newTotalsResponse(t core.Totals) totalsResponse {
	resp := totalsResponse{
		Awarded: t.Awarded.StringFixed(2),
		Spent:   t.Spent.StringFixed(2),
	}
	resp.Display.Awarded = t.AwardedStr
	resp.Display.Spent = t.SpentStr
	return resp
}

type ibanResponse struct {
	IBAN     string `json:"iban"`
	IBANName string `json:"iban_name"`
}

type accountResponse struct {
	AccountID   int64  `json:"account_id"`
	IBAN        string `json:"iban"`
	NewPayments int    `json:"new_payments"`
	Error       string `json:"error,omitempty"`
}

type ingestResponse struct {
	RunID       string            `json:"run_id"`
	ProjectID   int64             `json:"project_id"`
	NewPayments int               `json:"new_payments"`
	Accounts    []accountResponse `json:"accounts"`
}

func newIngestResponse(r services.IngestReport) ingestResponse {
	resp := ingestResponse{
		RunID:       r.RunID,
		ProjectID:   r.ProjectID,
		NewPayments: r.NewPayments(),
		Accounts:    make([]accountResponse, 0, len(r.Accounts)),
	}
	for _, a := range r.Accounts {
		acc := accountResponse{AccountID: a.AccountID, IBAN: a.IBAN, NewPayments: a.NewPayments}
		if a.Err != nil {
			acc.Error = a.Err.Error()
		}
		resp.Accounts = append(resp.Accounts, acc)
	}
	return resp
}

type paymentResponse struct {
	ID                   int64  `json:"id"`
	BankPaymentID        *int64 `json:"bank_payment_id,omitempty"`
	Type                 string `json:"type"`
	BankType             string `json:"bank_type,omitempty"`
	Route                string `json:"route"`
	Currency             string `json:"currency"`
	Amount               string `json:"amount"`
	Counterparty         string `json:"counterparty"`
	CounterpartyIBAN     string `json:"counterparty_iban"`
	Description          string `json:"description"`
	Created              string `json:"created"`
	ProjectID            *int64 `json:"project_id,omitempty"`
	SubprojectID         *int64 `json:"subproject_id,omitempty"`
	CategoryID           *int64 `json:"category_id,omitempty"`
	ShortUserDescription string `json:"short_user_description,omitempty"`
	Hidden               bool   `json:"hidden"`
}

func newPaymentResponse(p core.Payment) paymentResponse {
	return paymentResponse{
		ID:                   p.ID,
		BankPaymentID:        p.BankPaymentID,
		Type:                 string(p.Type),
		BankType:             p.BankType,
		Route:                string(p.Route),
		Currency:             p.Amount.Currency,
		Amount:               p.Amount.Decimal().StringFixed(2),
		Counterparty:         p.Counterparty.Name,
		CounterpartyIBAN:     p.Counterparty.Value,
		Description:          p.Description,
		Created:              p.Created.UTC().Format("2006-01-02T15:04:05Z"),
		ProjectID:            p.ProjectID,
		SubprojectID:         p.SubprojectID,
		CategoryID:           p.CategoryID,
		ShortUserDescription: p.ShortUserDescription,
		Hidden:               p.Hidden,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var conflict *core.ConflictError
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, bank.ErrNoCredential):
		return http.StatusNotFound
	case errors.As(err, &conflict), errors.Is(err, core.ErrDuplicate), errors.Is(err, core.ErrImmutablePayment):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidRoute),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrInvalidScope),
		errors.Is(err, core.ErrMissingLink),
		errors.Is(err, core.ErrInvalidType),
		errors.Is(err, core.ErrInvalidURL),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes err as a JSON error body. Internal errors are logged and
// replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		plog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			plog.FieldPath, r.URL.Path, plog.FieldError, err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}
