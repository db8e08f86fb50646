package services

import (
	"context"
	"fmt"

	"poen/internal/core"
	"poen/internal/ledger"
	plog "poen/internal/log"
)

type EntityKind string

const (
	EntityProject    EntityKind = "project"
	EntitySubproject EntityKind = "subproject"
)

// Entity names the project or subproject whose payment links change.
type Entity struct {
	Kind EntityKind
	ID   int64
}

// Relinked counts the payments a relink touched.
type Relinked struct {
	Cleared int64
	Linked  int64
}

// RelinkOnIBANChange detaches every payment from the entity and, when
// newIBAN is set, attaches every payment whose alias equals newIBAN. Callers
// run it in the transaction that stores the new IBAN.
func RelinkOnIBANChange(ctx context.Context, linker ledger.Linker, entity Entity, oldIBAN, newIBAN *string) (Relinked, error) {
	var (
		res Relinked
		err error
	)

	switch entity.Kind {
	case EntityProject:
		if res.Cleared, err = linker.ClearProjectLinks(ctx, entity.ID); err != nil {
			return res, fmt.Errorf("clear project links: %w", err)
		}
		if newIBAN != nil {
			if res.Linked, err = linker.LinkProjectPayments(ctx, entity.ID, *newIBAN); err != nil {
				return res, fmt.Errorf("link project payments: %w", err)
			}
		}
	case EntitySubproject:
		if res.Cleared, err = linker.ClearSubprojectLinks(ctx, entity.ID); err != nil {
			return res, fmt.Errorf("clear subproject links: %w", err)
		}
		if newIBAN != nil {
			if res.Linked, err = linker.LinkSubprojectPayments(ctx, entity.ID, *newIBAN); err != nil {
				return res, fmt.Errorf("link subproject payments: %w", err)
			}
		}
	default:
		return res, fmt.Errorf("unknown entity kind %q", entity.Kind)
	}

	plog.FromContext(ctx).WithComponent(plog.ComponentLinker).DebugContext(ctx, "Relinked payments",
		"entity", entity.Kind, "entity_id", entity.ID,
		"old_iban", deref(oldIBAN), "new_iban", deref(newIBAN),
		"cleared", res.Cleared, "linked", res.Linked)
	return res, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EntityService writes projects and subprojects. Every call is a single
// ledger transaction, so a uniqueness violation also undoes the relink.
type EntityService struct {
	store ledger.Store
}

func NewEntityService(store ledger.Store) *EntityService {
	return &EntityService{store: store}
}

// CreateProject stores a project without IBAN; the IBAN is set afterwards
// with UpdateProjectIBAN.
func (s *EntityService) CreateProject(ctx context.Context, p core.Project) (int64, error) {
	p.ID = 0
	p.IBAN = nil
	if err := p.Validate(); err != nil {
		return 0, err
	}
	return s.store.CreateProject(ctx, p)
}

// UpdateProject stores every field except ContainsSubprojects, which is
// fixed at creation.
func (s *EntityService) UpdateProject(ctx context.Context, p core.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetProject(ctx, p.ID)
		if err != nil {
			return err
		}
		p.ContainsSubprojects = current.ContainsSubprojects
		if !core.SameIBAN(current.IBAN, p.IBAN) {
			if _, err := RelinkOnIBANChange(ctx, tx, Entity{EntityProject, p.ID}, current.IBAN, p.IBAN); err != nil {
				return err
			}
		}
		return tx.UpdateProject(ctx, p)
	})
}

// UpdateProjectIBAN sets or clears the project's IBAN and relinks its
// payments.
func (s *EntityService) UpdateProjectIBAN(ctx context.Context, projectID int64, iban *string, ibanName string) error {
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		old := p.IBAN
		p.IBAN, p.IBANName = iban, ibanName
		if err := p.Validate(); err != nil {
			return err
		}
		if !core.SameIBAN(old, iban) {
			if _, err := RelinkOnIBANChange(ctx, tx, Entity{EntityProject, p.ID}, old, iban); err != nil {
				return err
			}
		}
		return tx.UpdateProject(ctx, p)
	})
}

func (s *EntityService) DeleteProject(ctx context.Context, projectID int64) error {
	return s.store.DeleteProject(ctx, projectID)
}

// CreateSubproject stores a subproject and links the payments made from its
// IBAN.
func (s *EntityService) CreateSubproject(ctx context.Context, sub core.Subproject) (int64, error) {
	sub.ID = 0
	if err := sub.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := s.store.InTx(ctx, func(tx ledger.Tx) error {
		parent, err := tx.GetProject(ctx, sub.ProjectID)
		if err != nil {
			return err
		}
		if !parent.ContainsSubprojects {
			return fmt.Errorf("project %q does not hold subprojects", parent.Name)
		}
		if id, err = tx.CreateSubproject(ctx, sub); err != nil {
			return err
		}
		if sub.IBAN != nil {
			_, err = RelinkOnIBANChange(ctx, tx, Entity{EntitySubproject, id}, nil, sub.IBAN)
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *EntityService) UpdateSubproject(ctx context.Context, sub core.Subproject) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		current, err := tx.GetSubproject(ctx, sub.ID)
		if err != nil {
			return err
		}
		sub.ProjectID = current.ProjectID
		if !core.SameIBAN(current.IBAN, sub.IBAN) {
			if _, err := RelinkOnIBANChange(ctx, tx, Entity{EntitySubproject, sub.ID}, current.IBAN, sub.IBAN); err != nil {
				return err
			}
		}
		return tx.UpdateSubproject(ctx, sub)
	})
}

func (s *EntityService) UpdateSubprojectIBAN(ctx context.Context, subprojectID int64, iban *string, ibanName string) error {
	return s.store.InTx(ctx, func(tx ledger.Tx) error {
		sub, err := tx.GetSubproject(ctx, subprojectID)
		if err != nil {
			return err
		}
		old := sub.IBAN
		sub.IBAN, sub.IBANName = iban, ibanName
		if err := sub.Validate(); err != nil {
			return err
		}
		if !core.SameIBAN(old, iban) {
			if _, err := RelinkOnIBANChange(ctx, tx, Entity{EntitySubproject, sub.ID}, old, iban); err != nil {
				return err
			}
		}
		return tx.UpdateSubproject(ctx, sub)
	})
}

func (s *EntityService) DeleteSubproject(ctx context.Context, subprojectID int64) error {
	return s.store.DeleteSubproject(ctx, subprojectID)
}
