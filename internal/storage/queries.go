package storage

import (
	"context"
	"database/sql"
	"time"

	"poen/internal/core"
)

const projectColumns = `id, name, description, iban, iban_name, budget, contains_subprojects, hidden`

func scanProject(row scanner) (core.Project, error) {
	var (
		p      core.Project
		iban   sql.NullString
		budget sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &iban, &p.IBANName, &budget, &p.ContainsSubprojects, &p.Hidden)
	p.IBAN = stringPtr(iban)
	p.Budget = intPtr(budget)
	return p, err
}

const getProject = `SELECT ` + projectColumns + ` FROM projects WHERE id = ?`

func (q *Queries) GetProject(ctx context.Context, id int64) (core.Project, error) {
	return scanProject(q.db.QueryRowContext(ctx, getProject, id))
}

const getProjectByIBAN = `SELECT ` + projectColumns + ` FROM projects WHERE iban = ?`

func (q *Queries) GetProjectByIBAN(ctx context.Context, iban string) (core.Project, error) {
	return scanProject(q.db.QueryRowContext(ctx, getProjectByIBAN, iban))
}

const listProjects = `SELECT ` + projectColumns + ` FROM projects ORDER BY id`

func (q *Queries) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := q.db.QueryContext(ctx, listProjects)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const createProject = `INSERT INTO projects (name, description, iban, iban_name, budget, contains_subprojects, hidden)
VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateProject(ctx context.Context, p core.Project) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createProject,
		p.Name, p.Description, nullString(p.IBAN), p.IBANName, nullInt(p.Budget), p.ContainsSubprojects, p.Hidden,
	).Scan(&id)
	return id, err
}

// contains_subprojects is fixed at creation and not part of the update.
const updateProject = `UPDATE projects
SET name = ?, description = ?, iban = ?, iban_name = ?, budget = ?, hidden = ?
WHERE id = ?`

func (q *Queries) UpdateProject(ctx context.Context, p core.Project) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateProject,
		p.Name, p.Description, nullString(p.IBAN), p.IBANName, nullInt(p.Budget), p.Hidden, p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteProject = `DELETE FROM projects WHERE id = ?`

func (q *Queries) DeleteProject(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteProject, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const subprojectColumns = `id, project_id, name, description, iban, iban_name, budget, hidden`

func scanSubproject(row scanner) (core.Subproject, error) {
	var (
		s      core.Subproject
		iban   sql.NullString
		budget sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.ProjectID, &s.Name, &s.Description, &iban, &s.IBANName, &budget, &s.Hidden)
	s.IBAN = stringPtr(iban)
	s.Budget = intPtr(budget)
	return s, err
}

const getSubproject = `SELECT ` + subprojectColumns + ` FROM subprojects WHERE id = ?`

func (q *Queries) GetSubproject(ctx context.Context, id int64) (core.Subproject, error) {
	return scanSubproject(q.db.QueryRowContext(ctx, getSubproject, id))
}

const getSubprojectByIBAN = `SELECT ` + subprojectColumns + ` FROM subprojects WHERE iban = ?`

func (q *Queries) GetSubprojectByIBAN(ctx context.Context, iban string) (core.Subproject, error) {
	return scanSubproject(q.db.QueryRowContext(ctx, getSubprojectByIBAN, iban))
}

const listSubprojects = `SELECT ` + subprojectColumns + ` FROM subprojects WHERE project_id = ? ORDER BY id`

func (q *Queries) ListSubprojects(ctx context.Context, projectID int64) ([]core.Subproject, error) {
	rows, err := q.db.QueryContext(ctx, listSubprojects, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Subproject
	for rows.Next() {
		s, err := scanSubproject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const createSubproject = `INSERT INTO subprojects (project_id, name, description, iban, iban_name, budget, hidden)
VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`

func (q *Queries) CreateSubproject(ctx context.Context, s core.Subproject) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createSubproject,
		s.ProjectID, s.Name, s.Description, nullString(s.IBAN), s.IBANName, nullInt(s.Budget), s.Hidden,
	).Scan(&id)
	return id, err
}

const updateSubproject = `UPDATE subprojects
SET name = ?, description = ?, iban = ?, iban_name = ?, budget = ?, hidden = ?
WHERE id = ?`

func (q *Queries) UpdateSubproject(ctx context.Context, s core.Subproject) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateSubproject,
		s.Name, s.Description, nullString(s.IBAN), s.IBANName, nullInt(s.Budget), s.Hidden, s.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteSubproject = `DELETE FROM subprojects WHERE id = ?`

func (q *Queries) DeleteSubproject(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSubproject, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const paymentColumns = `id, bank_payment_id, project_id, subproject_id, category_id,
alias_name, alias_type, alias_value,
counterparty_alias_name, counterparty_alias_type, counterparty_alias_value,
amount_currency, amount_value, balance_after_mutation_currency, balance_after_mutation_value,
description, created, updated, monetary_account_id, sub_type, type, bank_type, route,
short_user_description, long_user_description, hidden`

func scanPayment(row scanner) (core.Payment, error) {
	var (
		p                                      core.Payment
		bankID, projectID, subID, catID, accID sql.NullInt64
		created, updated                       sql.NullTime
	)
	err := row.Scan(&p.ID, &bankID, &projectID, &subID, &catID,
		&p.Alias.Name, &p.Alias.Type, &p.Alias.Value,
		&p.Counterparty.Name, &p.Counterparty.Type, &p.Counterparty.Value,
		&p.Amount.Currency, &p.Amount.Value, &p.BalanceAfterMutation.Currency, &p.BalanceAfterMutation.Value,
		&p.Description, &created, &updated, &accID, &p.SubType, &p.Type, &p.BankType, &p.Route,
		&p.ShortUserDescription, &p.LongUserDescription, &p.Hidden)
	p.BankPaymentID = intPtr(bankID)
	p.ProjectID = intPtr(projectID)
	p.SubprojectID = intPtr(subID)
	p.CategoryID = intPtr(catID)
	p.MonetaryAccountID = intPtr(accID)
	p.Created = created.Time
	p.Updated = updated.Time
	return p, err
}

func (q *Queries) listPayments(ctx context.Context, query string, args ...any) ([]core.Payment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

const getPayment = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`

func (q *Queries) GetPayment(ctx context.Context, id int64) (core.Payment, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getPayment, id))
}

const listProjectPayments = `SELECT ` + paymentColumns + ` FROM payments WHERE project_id = ? ORDER BY created DESC, id`

func (q *Queries) ListProjectPayments(ctx context.Context, projectID int64) ([]core.Payment, error) {
	return q.listPayments(ctx, listProjectPayments, projectID)
}

const listSubprojectPayments = `SELECT ` + paymentColumns + ` FROM payments WHERE subproject_id = ? ORDER BY created DESC, id`

func (q *Queries) ListSubprojectPayments(ctx context.Context, subprojectID int64) ([]core.Payment, error) {
	return q.listPayments(ctx, listSubprojectPayments, subprojectID)
}

const bankPaymentExists = `SELECT EXISTS (SELECT 1 FROM payments WHERE bank_payment_id = ?)`

func (q *Queries) BankPaymentExists(ctx context.Context, bankPaymentID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, bankPaymentExists, bankPaymentID).Scan(&exists)
	return exists, err
}

const createPayment = `INSERT INTO payments (
bank_payment_id, project_id, subproject_id, category_id,
alias_name, alias_type, alias_value,
counterparty_alias_name, counterparty_alias_type, counterparty_alias_value,
amount_currency, amount_value, balance_after_mutation_currency, balance_after_mutation_value,
description, created, updated, monetary_account_id, sub_type, type, bank_type, route,
short_user_description, long_user_description, hidden
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`

func (q *Queries) CreatePayment(ctx context.Context, p core.Payment) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createPayment,
		nullInt(p.BankPaymentID), nullInt(p.ProjectID), nullInt(p.SubprojectID), nullInt(p.CategoryID),
		p.Alias.Name, p.Alias.Type, p.Alias.Value,
		p.Counterparty.Name, p.Counterparty.Type, p.Counterparty.Value,
		p.Amount.Currency, p.Amount.Value, p.BalanceAfterMutation.Currency, p.BalanceAfterMutation.Value,
		p.Description, nullTime(p.Created), nullTime(p.Updated), nullInt(p.MonetaryAccountID),
		p.SubType, string(p.Type), p.BankType, string(p.Route),
		p.ShortUserDescription, p.LongUserDescription, p.Hidden,
	).Scan(&id)
	return id, err
}

const updatePaymentDetails = `UPDATE payments
SET route = ?, category_id = ?, short_user_description = ?, long_user_description = ?, hidden = ?
WHERE id = ?`

func (q *Queries) UpdatePaymentDetails(ctx context.Context, p core.Payment) (int64, error) {
	res, err := q.db.ExecContext(ctx, updatePaymentDetails,
		string(p.Route), nullInt(p.CategoryID), p.ShortUserDescription, p.LongUserDescription, p.Hidden, p.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deletePayment = `DELETE FROM payments WHERE id = ?`

func (q *Queries) DeletePayment(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePayment, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const (
	clearProjectLinks      = `UPDATE payments SET project_id = NULL WHERE project_id = ?`
	linkProjectPayments    = `UPDATE payments SET project_id = ? WHERE alias_value = ?`
	clearSubprojectLinks   = `UPDATE payments SET subproject_id = NULL WHERE subproject_id = ?`
	linkSubprojectPayments = `UPDATE payments SET subproject_id = ? WHERE alias_value = ?`
)

func (q *Queries) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (q *Queries) ClearProjectLinks(ctx context.Context, projectID int64) (int64, error) {
	return q.exec(ctx, clearProjectLinks, projectID)
}

func (q *Queries) LinkProjectPayments(ctx context.Context, projectID int64, iban string) (int64, error) {
	return q.exec(ctx, linkProjectPayments, projectID, iban)
}

func (q *Queries) ClearSubprojectLinks(ctx context.Context, subprojectID int64) (int64, error) {
	return q.exec(ctx, clearSubprojectLinks, subprojectID)
}

func (q *Queries) LinkSubprojectPayments(ctx context.Context, subprojectID int64, iban string) (int64, error) {
	return q.exec(ctx, linkSubprojectPayments, subprojectID, iban)
}

const (
	deleteProjectIBANs = `DELETE FROM project_ibans WHERE project_id = ?`
	insertProjectIBAN  = `INSERT INTO project_ibans (project_id, iban, iban_name) VALUES (?, ?, ?)`
	listProjectIBANs   = `SELECT project_id, iban, iban_name FROM project_ibans WHERE project_id = ? ORDER BY iban`
)

func (q *Queries) DeleteProjectIBANs(ctx context.Context, projectID int64) error {
	_, err := q.db.ExecContext(ctx, deleteProjectIBANs, projectID)
	return err
}

func (q *Queries) InsertProjectIBAN(ctx context.Context, i core.IBAN) error {
	_, err := q.db.ExecContext(ctx, insertProjectIBAN, i.ProjectID, i.IBAN, i.IBANName)
	return err
}

func (q *Queries) ListProjectIBANs(ctx context.Context, projectID int64) ([]core.IBAN, error) {
	rows, err := q.db.QueryContext(ctx, listProjectIBANs, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.IBAN
	for rows.Next() {
		var i core.IBAN
		if err := rows.Scan(&i.ProjectID, &i.IBAN, &i.IBANName); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const categoryColumns = `id, name, project_id, subproject_id`

func scanCategory(row scanner) (core.Category, error) {
	var (
		c            core.Category
		project, sub sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Name, &project, &sub)
	c.ProjectID = intPtr(project)
	c.SubprojectID = intPtr(sub)
	return c, err
}

const getCategory = `SELECT ` + categoryColumns + ` FROM categories WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id int64) (core.Category, error) {
	return scanCategory(q.db.QueryRowContext(ctx, getCategory, id))
}

const listCategories = `SELECT ` + categoryColumns + ` FROM categories
WHERE project_id IS ? AND subproject_id IS ? ORDER BY name`

func (q *Queries) ListCategories(ctx context.Context, projectID, subprojectID *int64) ([]core.Category, error) {
	rows, err := q.db.QueryContext(ctx, listCategories, nullInt(projectID), nullInt(subprojectID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const createCategory = `INSERT INTO categories (name, project_id, subproject_id) VALUES (?, ?, ?) RETURNING id`

func (q *Queries) CreateCategory(ctx context.Context, c core.Category) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createCategory, c.Name, nullInt(c.ProjectID), nullInt(c.SubprojectID)).Scan(&id)
	return id, err
}

const (
	renameCategory = `UPDATE categories SET name = ? WHERE id = ?`
	deleteCategory = `DELETE FROM categories WHERE id = ?`
)

func (q *Queries) RenameCategory(ctx context.Context, id int64, name string) (int64, error) {
	return q.exec(ctx, renameCategory, name, id)
}

func (q *Queries) DeleteCategory(ctx context.Context, id int64) (int64, error) {
	return q.exec(ctx, deleteCategory, id)
}

const funderColumns = `id, project_id, name, url`

func scanFunder(row scanner) (core.Funder, error) {
	var f core.Funder
	err := row.Scan(&f.ID, &f.ProjectID, &f.Name, &f.URL)
	return f, err
}

const (
	getFunder    = `SELECT ` + funderColumns + ` FROM funders WHERE id = ?`
	listFunders  = `SELECT ` + funderColumns + ` FROM funders WHERE project_id = ? ORDER BY id`
	createFunder = `INSERT INTO funders (project_id, name, url) VALUES (?, ?, ?) RETURNING id`
	updateFunder = `UPDATE funders SET name = ?, url = ? WHERE id = ?`
	deleteFunder = `DELETE FROM funders WHERE id = ?`
)

func (q *Queries) GetFunder(ctx context.Context, id int64) (core.Funder, error) {
	return scanFunder(q.db.QueryRowContext(ctx, getFunder, id))
}

func (q *Queries) ListFunders(ctx context.Context, projectID int64) ([]core.Funder, error) {
	rows, err := q.db.QueryContext(ctx, listFunders, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []core.Funder
	for rows.Next() {
		f, err := scanFunder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (q *Queries) CreateFunder(ctx context.Context, f core.Funder) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createFunder, f.ProjectID, f.Name, f.URL).Scan(&id)
	return id, err
}

func (q *Queries) UpdateFunder(ctx context.Context, f core.Funder) (int64, error) {
	return q.exec(ctx, updateFunder, f.Name, f.URL, f.ID)
}

func (q *Queries) DeleteFunder(ctx context.Context, id int64) (int64, error) {
	return q.exec(ctx, deleteFunder, id)
}

const (
	getCredential = `SELECT token FROM bank_credentials WHERE project_id = ?`
	putCredential = `INSERT INTO bank_credentials (project_id, token, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (project_id) DO UPDATE SET token = excluded.token, updated_at = CURRENT_TIMESTAMP`
)

func (q *Queries) GetCredential(ctx context.Context, projectID int64) (string, error) {
	var token string
	err := q.db.QueryRowContext(ctx, getCredential, projectID).Scan(&token)
	return token, err
}

func (q *Queries) PutCredential(ctx context.Context, projectID int64, token string) error {
	_, err := q.db.ExecContext(ctx, putCredential, projectID, token)
	return err
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
