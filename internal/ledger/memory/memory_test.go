package memory

import (
	"context"
	"errors"
	"testing"

	"poen/internal/bank"
	"poen/internal/core"
	"poen/internal/ledger"
)

func ptr[T any](v T) *T { return &v }

func TestProjectUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreateProject(ctx, core.Project{Name: "A", IBAN: ptr("NL01")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateProject(ctx, core.Project{Name: "A"}); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected duplicate name, got %v", err)
	}
	_, err := s.CreateProject(ctx, core.Project{Name: "B", IBAN: ptr("NL01")})
	var conflict *core.ConflictError
	if !errors.As(err, &conflict) || conflict.Field != "iban" {
		t.Fatalf("expected iban conflict, got %v", err)
	}
	if _, err := s.CreateProject(ctx, core.Project{Name: "C"}); err != nil {
		t.Fatalf("projects without iban must not clash: %v", err)
	}
	if _, err := s.CreateProject(ctx, core.Project{Name: "D"}); err != nil {
		t.Fatalf("projects without iban must not clash: %v", err)
	}
}

func TestBankPaymentDedup(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreatePayment(ctx, core.Payment{BankPaymentID: ptr(int64(1))}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreatePayment(ctx, core.Payment{BankPaymentID: ptr(int64(1))}); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	// Manual payments carry no bank id.
	for range 2 {
		if _, err := s.CreatePayment(ctx, core.Payment{Type: core.PaymentTypeManual}); err != nil {
			t.Fatalf("manual create: %v", err)
		}
	}
	ok, _ := s.BankPaymentExists(ctx, 1)
	if !ok {
		t.Fatalf("expected bank payment 1 to exist")
	}
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid, _ := s.CreateProject(ctx, core.Project{Name: "A"})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		if _, err := tx.CreatePayment(ctx, core.Payment{ProjectID: &pid}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	payments, _ := s.ListProjectPayments(ctx, pid)
	if len(payments) != 0 {
		t.Fatalf("rolled back tx left %d payments", len(payments))
	}

	err = s.InTx(ctx, func(tx ledger.Tx) error {
		_, err := tx.CreatePayment(ctx, core.Payment{ProjectID: &pid})
		return err
	})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	payments, _ = s.ListProjectPayments(ctx, pid)
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment after commit, got %d", len(payments))
	}
}

func TestDeleteProjectKeepsPayments(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid, _ := s.CreateProject(ctx, core.Project{Name: "A", ContainsSubprojects: true})
	sid, _ := s.CreateSubproject(ctx, core.Subproject{ProjectID: pid, Name: "S"})
	cid, _ := s.CreateCategory(ctx, core.Category{Name: "Eten", SubprojectID: &sid})
	payID, _ := s.CreatePayment(ctx, core.Payment{ProjectID: &pid, SubprojectID: &sid, CategoryID: &cid})
	_ = s.ReplaceIBANs(ctx, pid, []core.IBAN{{IBAN: "NL01"}})
	_ = s.PutCredential(ctx, pid, "token")

	if err := s.DeleteProject(ctx, pid); err != nil {
		t.Fatalf("delete: %v", err)
	}

	p, err := s.GetPayment(ctx, payID)
	if err != nil {
		t.Fatalf("payment should survive: %v", err)
	}
	if p.ProjectID != nil || p.SubprojectID != nil || p.CategoryID != nil {
		t.Fatalf("links should be cleared: %+v", p)
	}
	if _, err := s.GetSubproject(ctx, sid); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("subproject should be gone, got %v", err)
	}
	if ibans, _ := s.ListIBANs(ctx, pid); len(ibans) != 0 {
		t.Fatalf("ibans should be gone: %v", ibans)
	}
	if _, err := s.GetCredential(ctx, pid); !errors.Is(err, bank.ErrNoCredential) {
		t.Fatalf("credential should be gone, got %v", err)
	}
}

func TestCategoryScope(t *testing.T) {
	ctx := context.Background()
	s := New()
	p1, _ := s.CreateProject(ctx, core.Project{Name: "A"})
	p2, _ := s.CreateProject(ctx, core.Project{Name: "B"})

	if _, err := s.CreateCategory(ctx, core.Category{Name: "Eten", ProjectID: &p1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateCategory(ctx, core.Category{Name: "Eten", ProjectID: &p2}); err != nil {
		t.Fatalf("same name in another scope: %v", err)
	}
	if _, err := s.CreateCategory(ctx, core.Category{Name: "Eten", ProjectID: &p1}); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	cats, _ := s.ListCategories(ctx, &p1, nil)
	if len(cats) != 1 {
		t.Fatalf("expected 1 category, got %d", len(cats))
	}
}

func TestRelink(t *testing.T) {
	ctx := context.Background()
	s := New()
	pid, _ := s.CreateProject(ctx, core.Project{Name: "A"})
	_, _ = s.CreatePayment(ctx, core.Payment{Alias: core.Alias{Value: "NL01"}, ProjectID: &pid})
	_, _ = s.CreatePayment(ctx, core.Payment{Alias: core.Alias{Value: "NL02"}})

	n, _ := s.ClearProjectLinks(ctx, pid)
	if n != 1 {
		t.Fatalf("cleared %d, want 1", n)
	}
	n, _ = s.LinkProjectPayments(ctx, pid, "NL02")
	if n != 1 {
		t.Fatalf("linked %d, want 1", n)
	}
	payments, _ := s.ListProjectPayments(ctx, pid)
	if len(payments) != 1 || payments[0].Alias.Value != "NL02" {
		t.Fatalf("unexpected links: %+v", payments)
	}
}

func TestFundersFollowProject(t *testing.T) {
	ctx := context.Background()
	s := New()

	pid, err := s.CreateProject(ctx, core.Project{Name: "Buurthuis"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := s.CreateFunder(ctx, core.Funder{ProjectID: 99, Name: "X", URL: "https://x.nl"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected unknown project, got %v", err)
	}

	fid, err := s.CreateFunder(ctx, core.Funder{ProjectID: pid, Name: "Gemeente", URL: "https://gemeente.nl"})
	if err != nil {
		t.Fatalf("create funder: %v", err)
	}
	if _, err := s.CreateFunder(ctx, core.Funder{ProjectID: pid, Name: "Fonds", URL: "https://fonds.nl"}); err != nil {
		t.Fatalf("create funder: %v", err)
	}

	if err := s.UpdateFunder(ctx, core.Funder{ID: fid, ProjectID: 123, Name: "Stadsdeel", URL: "https://stadsdeel.nl"}); err != nil {
		t.Fatalf("update funder: %v", err)
	}
	f, err := s.GetFunder(ctx, fid)
	if err != nil || f.Name != "Stadsdeel" || f.ProjectID != pid {
		t.Fatalf("unexpected funder %+v, err %v", f, err)
	}

	funders, _ := s.ListFunders(ctx, pid)
	if len(funders) != 2 || funders[0].ID != fid {
		t.Fatalf("unexpected funders %+v", funders)
	}

	if err := s.DeleteProject(ctx, pid); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if funders, _ := s.ListFunders(ctx, pid); len(funders) != 0 {
		t.Fatalf("funders must be deleted with their project, got %+v", funders)
	}
	if err := s.DeleteFunder(ctx, fid); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreatePaymentRejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.CreatePayment(ctx, core.Payment{BankPaymentID: ptr(int64(3)), Type: "IDEAL"}); !errors.Is(err, core.ErrInvalidType) {
		t.Fatalf("expected ErrInvalidType, got %v", err)
	}
	id, err := s.CreatePayment(ctx, core.Payment{BankPaymentID: ptr(int64(3)), BankType: "IDEAL"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	p, _ := s.GetPayment(ctx, id)
	if p.Type != core.PaymentTypeBank || p.BankType != "IDEAL" {
		t.Fatalf("unexpected payment %+v", p)
	}
}
