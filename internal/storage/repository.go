package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"poen/internal/bank"
	"poen/internal/core"
	"poen/internal/ledger"
)

// SQLiteRepository is the SQLite implementation of ledger.Store and
// bank.CredentialStore.
type SQLiteRepository struct {
	*repo
	db *sql.DB
}

// repo carries every ledger operation over a Queries bound to either the
// database or an open transaction.
type repo struct {
	queries *Queries
}

var (
	_ ledger.Store         = (*SQLiteRepository)(nil)
	_ bank.CredentialStore = (*SQLiteRepository)(nil)
)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool opens
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection serializes writers; WAL keeps readers going.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		repo: &repo{queries: New(db)},
		db:   db,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InTx runs fn in a database transaction, committing only when fn succeeds.
func (r *SQLiteRepository) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&repo{queries: r.queries.WithTx(tx)}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func notFound(err error, entity string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", entity, id, core.ErrNotFound)
	}
	return fmt.Errorf("get %s %v: %w", entity, id, err)
}

func mustAffect(n int64, err error, entity string, id int64) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, core.ErrNotFound)
	}
	return nil
}

func projectValues(name string, iban *string) map[string]string {
	v := map[string]string{"name": name}
	if iban != nil {
		v["iban"] = *iban
	}
	return v
}

// Projects and subprojects

func (r *repo) GetProject(ctx context.Context, id int64) (core.Project, error) {
	p, err := r.queries.GetProject(ctx, id)
	if err != nil {
		return core.Project{}, notFound(err, "project", id)
	}
	return p, nil
}

func (r *repo) ListProjects(ctx context.Context) ([]core.Project, error) {
	items, err := r.queries.ListProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return items, nil
}

func (r *repo) GetSubproject(ctx context.Context, id int64) (core.Subproject, error) {
	s, err := r.queries.GetSubproject(ctx, id)
	if err != nil {
		return core.Subproject{}, notFound(err, "subproject", id)
	}
	return s, nil
}

func (r *repo) ListSubprojects(ctx context.Context, projectID int64) ([]core.Subproject, error) {
	items, err := r.queries.ListSubprojects(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list subprojects of project %d: %w", projectID, err)
	}
	return items, nil
}

func (r *repo) FindProjectByIBAN(ctx context.Context, iban string) (core.Project, error) {
	p, err := r.queries.GetProjectByIBAN(ctx, iban)
	if err != nil {
		return core.Project{}, notFound(err, "project with iban", iban)
	}
	return p, nil
}

func (r *repo) FindSubprojectByIBAN(ctx context.Context, iban string) (core.Subproject, error) {
	s, err := r.queries.GetSubprojectByIBAN(ctx, iban)
	if err != nil {
		return core.Subproject{}, notFound(err, "subproject with iban", iban)
	}
	return s, nil
}

func (r *repo) CreateProject(ctx context.Context, p core.Project) (int64, error) {
	id, err := r.queries.CreateProject(ctx, p)
	if err != nil {
		return 0, mapConstraint(err, projectValues(p.Name, p.IBAN))
	}
	return id, nil
}

func (r *repo) UpdateProject(ctx context.Context, p core.Project) error {
	n, err := r.queries.UpdateProject(ctx, p)
	return mustAffect(n, mapConstraint(err, projectValues(p.Name, p.IBAN)), "project", p.ID)
}

func (r *repo) DeleteProject(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteProject(ctx, id)
	return mustAffect(n, err, "project", id)
}

func (r *repo) CreateSubproject(ctx context.Context, s core.Subproject) (int64, error) {
	id, err := r.queries.CreateSubproject(ctx, s)
	if err != nil {
		return 0, mapConstraint(err, projectValues(s.Name, s.IBAN))
	}
	return id, nil
}

func (r *repo) UpdateSubproject(ctx context.Context, s core.Subproject) error {
	n, err := r.queries.UpdateSubproject(ctx, s)
	return mustAffect(n, mapConstraint(err, projectValues(s.Name, s.IBAN)), "subproject", s.ID)
}

func (r *repo) DeleteSubproject(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteSubproject(ctx, id)
	return mustAffect(n, err, "subproject", id)
}

// Payments

func (r *repo) GetPayment(ctx context.Context, id int64) (core.Payment, error) {
	p, err := r.queries.GetPayment(ctx, id)
	if err != nil {
		return core.Payment{}, notFound(err, "payment", id)
	}
	return p, nil
}

func (r *repo) ListProjectPayments(ctx context.Context, projectID int64) ([]core.Payment, error) {
	items, err := r.queries.ListProjectPayments(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list payments of project %d: %w", projectID, err)
	}
	return items, nil
}

func (r *repo) ListSubprojectPayments(ctx context.Context, subprojectID int64) ([]core.Payment, error) {
	items, err := r.queries.ListSubprojectPayments(ctx, subprojectID)
	if err != nil {
		return nil, fmt.Errorf("list payments of subproject %d: %w", subprojectID, err)
	}
	return items, nil
}

func (r *repo) BankPaymentExists(ctx context.Context, bankPaymentID int64) (bool, error) {
	ok, err := r.queries.BankPaymentExists(ctx, bankPaymentID)
	if err != nil {
		return false, fmt.Errorf("lookup bank payment %d: %w", bankPaymentID, err)
	}
	return ok, nil
}

func (r *repo) CreatePayment(ctx context.Context, p core.Payment) (int64, error) {
	if p.Type == "" {
		p.Type = core.PaymentTypeBank
	}
	if err := p.Type.Validate(); err != nil {
		return 0, fmt.Errorf("payment type %q: %w", p.Type, err)
	}
	if p.Route == "" {
		p.Route = core.RouteSubsidie
	}
	if p.Amount.Currency == "" {
		p.Amount.Currency = core.DefaultCurrency
	}
	id, err := r.queries.CreatePayment(ctx, p)
	if err != nil {
		values := map[string]string{}
		if p.BankPaymentID != nil {
			values["bank_payment_id"] = strconv.FormatInt(*p.BankPaymentID, 10)
		}
		return 0, mapConstraint(err, values)
	}
	return id, nil
}

func (r *repo) UpdatePaymentDetails(ctx context.Context, p core.Payment) error {
	n, err := r.queries.UpdatePaymentDetails(ctx, p)
	return mustAffect(n, err, "payment", p.ID)
}

func (r *repo) DeletePayment(ctx context.Context, id int64) error {
	n, err := r.queries.DeletePayment(ctx, id)
	return mustAffect(n, err, "payment", id)
}

// Links

func (r *repo) ClearProjectLinks(ctx context.Context, projectID int64) (int64, error) {
	return r.queries.ClearProjectLinks(ctx, projectID)
}

func (r *repo) LinkProjectPayments(ctx context.Context, projectID int64, iban string) (int64, error) {
	return r.queries.LinkProjectPayments(ctx, projectID, iban)
}

func (r *repo) ClearSubprojectLinks(ctx context.Context, subprojectID int64) (int64, error) {
	return r.queries.ClearSubprojectLinks(ctx, subprojectID)
}

func (r *repo) LinkSubprojectPayments(ctx context.Context, subprojectID int64, iban string) (int64, error) {
	return r.queries.LinkSubprojectPayments(ctx, subprojectID, iban)
}

// IBANs

func (r *repo) ReplaceIBANs(ctx context.Context, projectID int64, ibans []core.IBAN) error {
	if err := r.queries.DeleteProjectIBANs(ctx, projectID); err != nil {
		return fmt.Errorf("delete ibans of project %d: %w", projectID, err)
	}
	for _, i := range ibans {
		i.ProjectID = projectID
		if err := r.queries.InsertProjectIBAN(ctx, i); err != nil {
			return mapConstraint(err, map[string]string{"iban": i.IBAN})
		}
	}
	return nil
}

func (r *repo) ListIBANs(ctx context.Context, projectID int64) ([]core.IBAN, error) {
	items, err := r.queries.ListProjectIBANs(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list ibans of project %d: %w", projectID, err)
	}
	return items, nil
}

// Categories

func (r *repo) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	c, err := r.queries.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, notFound(err, "category", id)
	}
	return c, nil
}

func (r *repo) ListCategories(ctx context.Context, projectID, subprojectID *int64) ([]core.Category, error) {
	items, err := r.queries.ListCategories(ctx, projectID, subprojectID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

func (r *repo) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	id, err := r.queries.CreateCategory(ctx, c)
	if err != nil {
		return 0, mapConstraint(err, map[string]string{"name": c.Name})
	}
	return id, nil
}

func (r *repo) RenameCategory(ctx context.Context, id int64, name string) error {
	n, err := r.queries.RenameCategory(ctx, id, name)
	return mustAffect(n, mapConstraint(err, map[string]string{"name": name}), "category", id)
}

func (r *repo) DeleteCategory(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteCategory(ctx, id)
	return mustAffect(n, err, "category", id)
}

// Funders

func (r *repo) GetFunder(ctx context.Context, id int64) (core.Funder, error) {
	f, err := r.queries.GetFunder(ctx, id)
	if err != nil {
		return core.Funder{}, notFound(err, "funder", id)
	}
	return f, nil
}

func (r *repo) ListFunders(ctx context.Context, projectID int64) ([]core.Funder, error) {
	items, err := r.queries.ListFunders(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list funders of project %d: %w", projectID, err)
	}
	return items, nil
}

func (r *repo) CreateFunder(ctx context.Context, f core.Funder) (int64, error) {
	if _, err := r.GetProject(ctx, f.ProjectID); err != nil {
		return 0, err
	}
	id, err := r.queries.CreateFunder(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("create funder: %w", err)
	}
	return id, nil
}

func (r *repo) UpdateFunder(ctx context.Context, f core.Funder) error {
	n, err := r.queries.UpdateFunder(ctx, f)
	return mustAffect(n, err, "funder", f.ID)
}

func (r *repo) DeleteFunder(ctx context.Context, id int64) error {
	n, err := r.queries.DeleteFunder(ctx, id)
	return mustAffect(n, err, "funder", id)
}

// Credentials

func (r *repo) GetCredential(ctx context.Context, projectID int64) (bank.Credential, error) {
	token, err := r.queries.GetCredential(ctx, projectID)
	if errors.Is(err, sql.ErrNoRows) {
		return bank.Credential{}, bank.ErrNoCredential
	}
	if err != nil {
		return bank.Credential{}, fmt.Errorf("get credential of project %d: %w", projectID, err)
	}
	return bank.Credential{ProjectID: projectID, Token: token}, nil
}

func (r *repo) PutCredential(ctx context.Context, projectID int64, token string) error {
	if err := r.queries.PutCredential(ctx, projectID, token); err != nil {
		return fmt.Errorf("store credential of project %d: %w", projectID, err)
	}
	return nil
}
