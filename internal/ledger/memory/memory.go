// Package memory is an in-process ledger used by the memory backend and
// by service tests. It enforces the same uniqueness and link-clearing rules
// as the SQLite schema.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"poen/internal/bank"
	"poen/internal/core"
	"poen/internal/ledger"
)

type state struct {
	nextID      int64
	projects    map[int64]core.Project
	subprojects map[int64]core.Subproject
	payments    map[int64]core.Payment
	categories  map[int64]core.Category
	funders     map[int64]core.Funder
	ibans       map[int64][]core.IBAN
	credentials map[int64]string
}

func (st *state) clone() *state {
	out := &state{
		nextID:      st.nextID,
		projects:    maps.Clone(st.projects),
		subprojects: maps.Clone(st.subprojects),
		payments:    maps.Clone(st.payments),
		categories:  maps.Clone(st.categories),
		funders:     maps.Clone(st.funders),
		ibans:       make(map[int64][]core.IBAN, len(st.ibans)),
		credentials: maps.Clone(st.credentials),
	}
	for k, v := range st.ibans {
		out.ibans[k] = slices.Clone(v)
	}
	return out
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

type noLock struct{}

func (noLock) Lock()   {}
func (noLock) Unlock() {}

// view carries every ledger operation. The store's own view locks the
// shared mutex; a transaction view works on a private copy.
type view struct {
	mu sync.Locker
	st *state
}

type Store struct {
	*view
	mu sync.Mutex
}

var (
	_ ledger.Store         = (*Store)(nil)
	_ bank.CredentialStore = (*Store)(nil)
)

func New() *Store {
	s := &Store{}
	s.view = &view{
		mu: &s.mu,
		st: &state{
			projects:    map[int64]core.Project{},
			subprojects: map[int64]core.Subproject{},
			payments:    map[int64]core.Payment{},
			categories:  map[int64]core.Category{},
			funders:     map[int64]core.Funder{},
			ibans:       map[int64][]core.IBAN{},
			credentials: map[int64]string{},
		},
	}
	return s
}

// InTx runs fn against a copy of the ledger and keeps the copy only when
// fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(&view{mu: noLock{}, st: draft}); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// Projects and subprojects

func (v *view) GetProject(_ context.Context, id int64) (core.Project, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.st.projects[id]
	if !ok {
		return core.Project{}, fmt.Errorf("project %d: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (v *view) ListProjects(_ context.Context) ([]core.Project, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := slices.Collect(maps.Values(v.st.projects))
	slices.SortFunc(out, func(a, b core.Project) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (v *view) GetSubproject(_ context.Context, id int64) (core.Subproject, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.st.subprojects[id]
	if !ok {
		return core.Subproject{}, fmt.Errorf("subproject %d: %w", id, core.ErrNotFound)
	}
	return s, nil
}

func (v *view) ListSubprojects(_ context.Context, projectID int64) ([]core.Subproject, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []core.Subproject
	for _, s := range v.st.subprojects {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b core.Subproject) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (v *view) FindProjectByIBAN(_ context.Context, iban string) (core.Project, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, p := range v.st.projects {
		if p.IBAN != nil && *p.IBAN == iban {
			return p, nil
		}
	}
	return core.Project{}, fmt.Errorf("project with iban %s: %w", iban, core.ErrNotFound)
}

func (v *view) FindSubprojectByIBAN(_ context.Context, iban string) (core.Subproject, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range v.st.subprojects {
		if s.IBAN != nil && *s.IBAN == iban {
			return s, nil
		}
	}
	return core.Subproject{}, fmt.Errorf("subproject with iban %s: %w", iban, core.ErrNotFound)
}

func (v *view) CreateProject(_ context.Context, p core.Project) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.st.checkProject(p); err != nil {
		return 0, err
	}
	p.ID = v.st.id()
	v.st.projects[p.ID] = p
	return p.ID, nil
}

func (v *view) UpdateProject(_ context.Context, p core.Project) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.projects[p.ID]; !ok {
		return fmt.Errorf("project %d: %w", p.ID, core.ErrNotFound)
	}
	if err := v.st.checkProject(p); err != nil {
		return err
	}
	v.st.projects[p.ID] = p
	return nil
}

func (v *view) DeleteProject(_ context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.projects[id]; !ok {
		return fmt.Errorf("project %d: %w", id, core.ErrNotFound)
	}
	for sid, s := range v.st.subprojects {
		if s.ProjectID == id {
			v.st.deleteSubproject(sid)
		}
	}
	for cid, c := range v.st.categories {
		if c.ProjectID != nil && *c.ProjectID == id {
			v.st.deleteCategory(cid)
		}
	}
	for pid, pay := range v.st.payments {
		if pay.ProjectID != nil && *pay.ProjectID == id {
			pay.ProjectID = nil
			v.st.payments[pid] = pay
		}
	}
	for fid, f := range v.st.funders {
		if f.ProjectID == id {
			delete(v.st.funders, fid)
		}
	}
	delete(v.st.ibans, id)
	delete(v.st.credentials, id)
	delete(v.st.projects, id)
	return nil
}

func (v *view) CreateSubproject(_ context.Context, s core.Subproject) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.projects[s.ProjectID]; !ok {
		return 0, fmt.Errorf("project %d: %w", s.ProjectID, core.ErrNotFound)
	}
	if err := v.st.checkSubproject(s); err != nil {
		return 0, err
	}
	s.ID = v.st.id()
	v.st.subprojects[s.ID] = s
	return s.ID, nil
}

func (v *view) UpdateSubproject(_ context.Context, s core.Subproject) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.subprojects[s.ID]; !ok {
		return fmt.Errorf("subproject %d: %w", s.ID, core.ErrNotFound)
	}
	if err := v.st.checkSubproject(s); err != nil {
		return err
	}
	v.st.subprojects[s.ID] = s
	return nil
}

func (v *view) DeleteSubproject(_ context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.subprojects[id]; !ok {
		return fmt.Errorf("subproject %d: %w", id, core.ErrNotFound)
	}
	v.st.deleteSubproject(id)
	return nil
}

func (st *state) deleteSubproject(id int64) {
	for cid, c := range st.categories {
		if c.SubprojectID != nil && *c.SubprojectID == id {
			st.deleteCategory(cid)
		}
	}
	for pid, pay := range st.payments {
		if pay.SubprojectID != nil && *pay.SubprojectID == id {
			pay.SubprojectID = nil
			st.payments[pid] = pay
		}
	}
	delete(st.subprojects, id)
}

func (st *state) checkProject(p core.Project) error {
	for _, other := range st.projects {
		if other.ID == p.ID {
			continue
		}
		if other.Name == p.Name {
			return &core.ConflictError{Entity: "project", Field: "name", Value: p.Name}
		}
		if p.IBAN != nil && core.SameIBAN(other.IBAN, p.IBAN) {
			return &core.ConflictError{Entity: "project", Field: "iban", Value: *p.IBAN}
		}
	}
	return nil
}

func (st *state) checkSubproject(s core.Subproject) error {
	for _, other := range st.subprojects {
		if other.ID == s.ID {
			continue
		}
		if other.ProjectID == s.ProjectID && other.Name == s.Name {
			return &core.ConflictError{Entity: "subproject", Field: "name", Value: s.Name}
		}
		if s.IBAN != nil && core.SameIBAN(other.IBAN, s.IBAN) {
			return &core.ConflictError{Entity: "subproject", Field: "iban", Value: *s.IBAN}
		}
	}
	return nil
}

// Payments

func (v *view) GetPayment(_ context.Context, id int64) (core.Payment, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.st.payments[id]
	if !ok {
		return core.Payment{}, fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (v *view) ListProjectPayments(_ context.Context, projectID int64) ([]core.Payment, error) {
	return v.listPayments(func(p core.Payment) bool {
		return p.ProjectID != nil && *p.ProjectID == projectID
	}), nil
}

func (v *view) ListSubprojectPayments(_ context.Context, subprojectID int64) ([]core.Payment, error) {
	return v.listPayments(func(p core.Payment) bool {
		return p.SubprojectID != nil && *p.SubprojectID == subprojectID
	}), nil
}

func (v *view) listPayments(match func(core.Payment) bool) []core.Payment {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []core.Payment
	for _, p := range v.st.payments {
		if match(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b core.Payment) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (v *view) BankPaymentExists(_ context.Context, bankPaymentID int64) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.st.hasBankPayment(bankPaymentID), nil
}

func (st *state) hasBankPayment(bankPaymentID int64) bool {
	for _, p := range st.payments {
		if p.BankPaymentID != nil && *p.BankPaymentID == bankPaymentID {
			return true
		}
	}
	return false
}

func (v *view) CreatePayment(_ context.Context, p core.Payment) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if p.Type == "" {
		p.Type = core.PaymentTypeBank
	}
	if err := p.Type.Validate(); err != nil {
		return 0, fmt.Errorf("payment type %q: %w", p.Type, err)
	}
	if p.BankPaymentID != nil && v.st.hasBankPayment(*p.BankPaymentID) {
		return 0, &core.ConflictError{Entity: "payment", Field: "bank_payment_id", Value: fmt.Sprint(*p.BankPaymentID)}
	}
	p.ID = v.st.id()
	v.st.payments[p.ID] = p
	return p.ID, nil
}

func (v *view) UpdatePaymentDetails(_ context.Context, p core.Payment) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.st.payments[p.ID]
	if !ok {
		return fmt.Errorf("payment %d: %w", p.ID, core.ErrNotFound)
	}
	cur.Route = p.Route
	cur.CategoryID = p.CategoryID
	cur.ShortUserDescription = p.ShortUserDescription
	cur.LongUserDescription = p.LongUserDescription
	cur.Hidden = p.Hidden
	v.st.payments[p.ID] = cur
	return nil
}

func (v *view) DeletePayment(_ context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.payments[id]; !ok {
		return fmt.Errorf("payment %d: %w", id, core.ErrNotFound)
	}
	delete(v.st.payments, id)
	return nil
}

// Links

func (v *view) ClearProjectLinks(_ context.Context, projectID int64) (int64, error) {
	return v.relink(func(p *core.Payment) bool {
		if p.ProjectID == nil || *p.ProjectID != projectID {
			return false
		}
		p.ProjectID = nil
		return true
	}), nil
}

func (v *view) LinkProjectPayments(_ context.Context, projectID int64, iban string) (int64, error) {
	return v.relink(func(p *core.Payment) bool {
		if p.Alias.Value != iban {
			return false
		}
		p.ProjectID = &projectID
		return true
	}), nil
}

func (v *view) ClearSubprojectLinks(_ context.Context, subprojectID int64) (int64, error) {
	return v.relink(func(p *core.Payment) bool {
		if p.SubprojectID == nil || *p.SubprojectID != subprojectID {
			return false
		}
		p.SubprojectID = nil
		return true
	}), nil
}

func (v *view) LinkSubprojectPayments(_ context.Context, subprojectID int64, iban string) (int64, error) {
	return v.relink(func(p *core.Payment) bool {
		if p.Alias.Value != iban {
			return false
		}
		p.SubprojectID = &subprojectID
		return true
	}), nil
}

func (v *view) relink(apply func(*core.Payment) bool) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	var n int64
	for id, p := range v.st.payments {
		if apply(&p) {
			v.st.payments[id] = p
			n++
		}
	}
	return n
}

// IBANs

func (v *view) ReplaceIBANs(_ context.Context, projectID int64, ibans []core.IBAN) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(ibans) == 0 {
		delete(v.st.ibans, projectID)
		return nil
	}
	out := make([]core.IBAN, 0, len(ibans))
	seen := map[string]struct{}{}
	for _, i := range ibans {
		if _, dup := seen[i.IBAN]; dup {
			return &core.ConflictError{Entity: "iban", Field: "iban", Value: i.IBAN}
		}
		seen[i.IBAN] = struct{}{}
		i.ProjectID = projectID
		out = append(out, i)
	}
	v.st.ibans[projectID] = out
	return nil
}

func (v *view) ListIBANs(_ context.Context, projectID int64) ([]core.IBAN, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.st.ibans[projectID]), nil
}

// Categories

func (v *view) GetCategory(_ context.Context, id int64) (core.Category, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.st.categories[id]
	if !ok {
		return core.Category{}, fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (v *view) ListCategories(_ context.Context, projectID, subprojectID *int64) ([]core.Category, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []core.Category
	for _, c := range v.st.categories {
		if sameScope(c, core.Category{ProjectID: projectID, SubprojectID: subprojectID}) {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b core.Category) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (v *view) CreateCategory(_ context.Context, c core.Category) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.st.checkCategory(c); err != nil {
		return 0, err
	}
	c.ID = v.st.id()
	v.st.categories[c.ID] = c
	return c.ID, nil
}

func (v *view) RenameCategory(_ context.Context, id int64, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.st.categories[id]
	if !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	c.Name = name
	if err := v.st.checkCategory(c); err != nil {
		return err
	}
	v.st.categories[id] = c
	return nil
}

func (v *view) DeleteCategory(_ context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.categories[id]; !ok {
		return fmt.Errorf("category %d: %w", id, core.ErrNotFound)
	}
	v.st.deleteCategory(id)
	return nil
}

func (st *state) deleteCategory(id int64) {
	for pid, p := range st.payments {
		if p.CategoryID != nil && *p.CategoryID == id {
			p.CategoryID = nil
			st.payments[pid] = p
		}
	}
	delete(st.categories, id)
}

func (st *state) checkCategory(c core.Category) error {
	for _, other := range st.categories {
		if other.ID != c.ID && other.Name == c.Name && sameScope(other, c) {
			return &core.ConflictError{Entity: "category", Field: "name", Value: c.Name}
		}
	}
	return nil
}

func sameScope(a, b core.Category) bool {
	eq := func(x, y *int64) bool {
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return *x == *y
	}
	return eq(a.ProjectID, b.ProjectID) && eq(a.SubprojectID, b.SubprojectID)
}

// Funders

func (v *view) GetFunder(_ context.Context, id int64) (core.Funder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f, ok := v.st.funders[id]
	if !ok {
		return core.Funder{}, fmt.Errorf("funder %d: %w", id, core.ErrNotFound)
	}
	return f, nil
}

func (v *view) ListFunders(_ context.Context, projectID int64) ([]core.Funder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []core.Funder
	for _, f := range v.st.funders {
		if f.ProjectID == projectID {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b core.Funder) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (v *view) CreateFunder(_ context.Context, f core.Funder) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.projects[f.ProjectID]; !ok {
		return 0, fmt.Errorf("project %d: %w", f.ProjectID, core.ErrNotFound)
	}
	f.ID = v.st.id()
	v.st.funders[f.ID] = f
	return f.ID, nil
}

// UpdateFunder rewrites name and url; a funder never moves to another project.
func (v *view) UpdateFunder(_ context.Context, f core.Funder) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	cur, ok := v.st.funders[f.ID]
	if !ok {
		return fmt.Errorf("funder %d: %w", f.ID, core.ErrNotFound)
	}
	cur.Name, cur.URL = f.Name, f.URL
	v.st.funders[f.ID] = cur
	return nil
}

func (v *view) DeleteFunder(_ context.Context, id int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.funders[id]; !ok {
		return fmt.Errorf("funder %d: %w", id, core.ErrNotFound)
	}
	delete(v.st.funders, id)
	return nil
}

// Credentials

func (v *view) GetCredential(_ context.Context, projectID int64) (bank.Credential, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	token, ok := v.st.credentials[projectID]
	if !ok {
		return bank.Credential{}, bank.ErrNoCredential
	}
	return bank.Credential{ProjectID: projectID, Token: token}, nil
}

func (v *view) PutCredential(_ context.Context, projectID int64, token string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.st.projects[projectID]; !ok {
		return fmt.Errorf("project %d: %w", projectID, core.ErrNotFound)
	}
	v.st.credentials[projectID] = token
	return nil
}
