package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"poen/internal/core"
	plog "poen/internal/log"
)

const exportTimestampLayout = "2006_01_02-15_04_05"

// PaymentRow is one line of a payment export.
type PaymentRow struct {
	ID                   int64  `csv:"id"`
	BankPaymentID        string `csv:"bank_payment_id"`
	Created              string `csv:"created"`
	Type                 string `csv:"type"`
	BankType             string `csv:"bank_type"`
	Route                string `csv:"route"`
	Project              string `csv:"project"`
	Subproject           string `csv:"subproject"`
	Category             string `csv:"category"`
	AmountCurrency       string `csv:"amount_currency"`
	AmountValue          string `csv:"amount_value"`
	AliasName            string `csv:"alias_name"`
	AliasValue           string `csv:"alias_value"`
	CounterpartyName     string `csv:"counterparty_alias_name"`
	CounterpartyValue    string `csv:"counterparty_alias_value"`
	Description          string `csv:"description"`
	ShortUserDescription string `csv:"short_user_description"`
	LongUserDescription  string `csv:"long_user_description"`
	Hidden               bool   `csv:"hidden"`
}

// Exporter writes a project's payments as CSV.
type Exporter struct {
	payments *PaymentService
	store    interface {
		GetProject(ctx context.Context, id int64) (core.Project, error)
		ListSubprojects(ctx context.Context, projectID int64) ([]core.Subproject, error)
		GetCategory(ctx context.Context, id int64) (core.Category, error)
	}
	now func() time.Time
}

func NewExporter(payments *PaymentService) *Exporter {
	return &Exporter{payments: payments, store: payments.store, now: time.Now}
}

// ExportFileName is the download name of a project export, e.g.
// "buurthuis_2024_01_15-12_30_00.csv".
func (e *Exporter) ExportFileName(project core.Project) string {
	return fmt.Sprintf("%s_%s.csv", slug(project.Name), e.now().Format(exportTimestampLayout))
}

// ExportProject writes every payment of the project and its subprojects and
// returns the number of rows.
func (e *Exporter) ExportProject(ctx context.Context, w io.Writer, projectID int64) (int, error) {
	project, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return 0, err
	}
	payments, err := e.payments.ProjectPayments(ctx, projectID)
	if err != nil {
		return 0, err
	}
	subs, err := e.store.ListSubprojects(ctx, projectID)
	if err != nil {
		return 0, err
	}
	subNames := make(map[int64]string, len(subs))
	for _, s := range subs {
		subNames[s.ID] = s.Name
	}

	categories := map[int64]string{}
	rows := make([]*PaymentRow, 0, len(payments))
	for _, p := range payments {
		row := &PaymentRow{
			ID:                   p.ID,
			Created:              p.Created.Format(time.DateTime),
			Type:                 string(p.Type),
			BankType:             p.BankType,
			Route:                string(p.Route),
			AmountCurrency:       p.Amount.Currency,
			AliasName:            p.Alias.Name,
			AliasValue:           p.Alias.Value,
			CounterpartyName:     p.Counterparty.Name,
			CounterpartyValue:    p.Counterparty.Value,
			Description:          p.Description,
			ShortUserDescription: p.ShortUserDescription,
			LongUserDescription:  p.LongUserDescription,
			Hidden:               p.Hidden,
		}
		if p.BankPaymentID != nil {
			row.BankPaymentID = fmt.Sprint(*p.BankPaymentID)
		}
		if p.Amount.Value.Valid {
			row.AmountValue = p.Amount.Value.Decimal.StringFixed(2)
		}
		if p.ProjectID != nil {
			row.Project = project.Name
		}
		if p.SubprojectID != nil {
			row.Subproject = subNames[*p.SubprojectID]
		}
		if p.CategoryID != nil {
			name, ok := categories[*p.CategoryID]
			if !ok {
				if c, err := e.store.GetCategory(ctx, *p.CategoryID); err == nil {
					name = c.Name
				}
				categories[*p.CategoryID] = name
			}
			row.Category = name
		}
		rows = append(rows, row)
	}

	if err := gocsv.MarshalCSV(rows, gocsv.NewSafeCSVWriter(csv.NewWriter(w))); err != nil {
		return 0, fmt.Errorf("write payments CSV: %w", err)
	}

	slog.InfoContext(ctx, "Exported payments",
		plog.FieldProjectID, projectID,
		plog.FieldCount, len(rows))
	return len(rows), nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "project"
	}
	return s
}
