package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poen/internal/core"
	"poen/internal/ledger/memory"
)

var fixedNow = time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC)

func manualPayment(projectID, subprojectID *int64, amount string) core.Payment {
	return core.Payment{
		ProjectID:            projectID,
		SubprojectID:         subprojectID,
		Amount:               core.Money{Value: decimal.NewNullDecimal(decimal.RequireFromString(amount))},
		ShortUserDescription: "Verf",
	}
}

func TestAddManualPayment(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewPaymentService(store).WithClock(func() time.Time { return fixedNow })

	projectID, err := store.CreateProject(ctx, core.Project{Name: "Buurthuis"})
	require.NoError(t, err)

	id, err := svc.AddManualPayment(ctx, manualPayment(&projectID, nil, "-12.50"))
	require.NoError(t, err)

	p, err := store.GetPayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, core.PaymentTypeManual, p.Type)
	assert.Equal(t, core.RouteSubsidie, p.Route)
	assert.Equal(t, core.DefaultCurrency, p.Amount.Currency)
	assert.Nil(t, p.BankPaymentID)
	assert.Equal(t, fixedNow, p.Created)

	tests := []struct {
		name    string
		payment core.Payment
		wantErr error
	}{
		{"zero amount", manualPayment(&projectID, nil, "0"), core.ErrInvalidAmount},
		{"no link", manualPayment(nil, nil, "5"), core.ErrMissingLink},
		{"unknown project", manualPayment(ptr(int64(999)), nil, "5"), core.ErrNotFound},
		{"bad route", func() core.Payment {
			p := manualPayment(&projectID, nil, "5")
			p.Route = "lening"
			return p
		}(), core.ErrInvalidRoute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AddManualPayment(ctx, tt.payment)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRemovePaymentKeepsBankPayments(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewPaymentService(store)

	projectID, err := store.CreateProject(ctx, core.Project{Name: "Buurthuis"})
	require.NoError(t, err)
	manualID, err := svc.AddManualPayment(ctx, manualPayment(&projectID, nil, "20"))
	require.NoError(t, err)
	bankID := storePayment(t, store, 77, "NL01A", "NL99X", -5)

	assert.ErrorIs(t, svc.RemovePayment(ctx, bankID), core.ErrImmutablePayment)
	require.NoError(t, svc.RemovePayment(ctx, manualID))

	_, err = store.GetPayment(ctx, manualID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = store.GetPayment(ctx, bankID)
	assert.NoError(t, err)
}

func TestUpdateDetailsOfBankPayment(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewPaymentService(store)
	categories := NewCategoryService(store)

	projectID, err := store.CreateProject(ctx, core.Project{Name: "Buurthuis"})
	require.NoError(t, err)
	other, err := store.CreateProject(ctx, core.Project{Name: "Ander"})
	require.NoError(t, err)
	bankID := storePayment(t, store, 77, "NL01A", "NL99X", -5)
	_, err = store.LinkProjectPayments(ctx, projectID, "NL01A")
	require.NoError(t, err)

	catID, err := categories.Create(ctx, core.Category{Name: "Materiaal", ProjectID: &projectID})
	require.NoError(t, err)
	foreignCat, err := categories.Create(ctx, core.Category{Name: "Materiaal", ProjectID: &other})
	require.NoError(t, err)

	err = svc.UpdateDetails(ctx, bankID, PaymentDetails{
		Route:                core.RouteAanbesteding,
		CategoryID:           &catID,
		ShortUserDescription: "Hout",
	})
	require.NoError(t, err)

	p, err := store.GetPayment(ctx, bankID)
	require.NoError(t, err)
	assert.Equal(t, core.RouteAanbesteding, p.Route)
	assert.Equal(t, "Hout", p.ShortUserDescription)
	assert.True(t, p.Amount.Decimal().Equal(decimal.NewFromInt(-5)), "amount is immutable")

	err = svc.UpdateDetails(ctx, bankID, PaymentDetails{CategoryID: &foreignCat})
	assert.ErrorIs(t, err, core.ErrInvalidScope)

	// Deleting the category clears the link.
	require.NoError(t, categories.Delete(ctx, catID))
	p, err = store.GetPayment(ctx, bankID)
	require.NoError(t, err)
	assert.Nil(t, p.CategoryID)
}

func TestCategoryNamesUniquePerScope(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	categories := NewCategoryService(store)

	projectID, err := store.CreateProject(ctx, core.Project{Name: "Buurthuis", ContainsSubprojects: true})
	require.NoError(t, err)
	subID, err := store.CreateSubproject(ctx, core.Subproject{ProjectID: projectID, Name: "Moestuin"})
	require.NoError(t, err)

	_, err = categories.Create(ctx, core.Category{Name: "Zaad", ProjectID: &projectID})
	require.NoError(t, err)
	_, err = categories.Create(ctx, core.Category{Name: "Zaad", SubprojectID: &subID})
	require.NoError(t, err, "same name in another scope")
	_, err = categories.Create(ctx, core.Category{Name: " Zaad ", ProjectID: &projectID})
	assert.ErrorIs(t, err, core.ErrDuplicate)
	_, err = categories.Create(ctx, core.Category{Name: "Beide", ProjectID: &projectID, SubprojectID: &subID})
	assert.ErrorIs(t, err, core.ErrInvalidScope)
	assert.ErrorIs(t, categories.Rename(ctx, 1, "  "), core.ErrEmptyName)

	list, err := categories.ForSubproject(ctx, subID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Zaad", list[0].Name)
}

func TestExportProject(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	payments := NewPaymentService(store).WithClock(func() time.Time { return fixedNow })
	exporter := NewExporter(payments)
	exporter.now = func() time.Time { return fixedNow }

	projectID, err := store.CreateProject(ctx, core.Project{Name: "Buurthuis Noord", ContainsSubprojects: true})
	require.NoError(t, err)
	subID, err := store.CreateSubproject(ctx, core.Subproject{ProjectID: projectID, Name: "Moestuin"})
	require.NoError(t, err)

	_, err = payments.AddManualPayment(ctx, manualPayment(&projectID, nil, "1000"))
	require.NoError(t, err)
	_, err = payments.AddManualPayment(ctx, manualPayment(nil, &subID, "-12.5"))
	require.NoError(t, err)
	// Linked to both: exported once.
	_, err = payments.AddManualPayment(ctx, manualPayment(&projectID, &subID, "-3"))
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := exporter.ExportProject(ctx, &buf, projectID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var rows []*PaymentRow
	require.NoError(t, gocsv.UnmarshalBytes(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	values := []string{rows[0].AmountValue, rows[1].AmountValue, rows[2].AmountValue}
	assert.ElementsMatch(t, []string{"1000.00", "-12.50", "-3.00"}, values)
	for _, r := range rows {
		if r.AmountValue == "-12.50" {
			assert.Equal(t, "Moestuin", r.Subproject)
			assert.Empty(t, r.Project)
		}
	}

	project, err := store.GetProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, "buurthuis-noord_2024_01_15-12_30_00.csv", exporter.ExportFileName(project))

	_, err = exporter.ExportProject(ctx, &buf, 999)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
