// Package ledger declares the persistence ports used by the reconciliation
// services. Implementations live in internal/storage (SQLite) and
// internal/ledger/memory.
package ledger

import (
	"context"

	"poen/internal/core"
)

type (
	ProjectReader interface {
		GetProject(ctx context.Context, id int64) (core.Project, error)
		ListProjects(ctx context.Context) ([]core.Project, error)
		GetSubproject(ctx context.Context, id int64) (core.Subproject, error)
		ListSubprojects(ctx context.Context, projectID int64) ([]core.Subproject, error)

		// FindProjectByIBAN returns core.ErrNotFound when no project uses the IBAN.
		FindProjectByIBAN(ctx context.Context, iban string) (core.Project, error)
		FindSubprojectByIBAN(ctx context.Context, iban string) (core.Subproject, error)
	}

	PaymentReader interface {
		GetPayment(ctx context.Context, id int64) (core.Payment, error)
		// ListProjectPayments returns payments linked directly to the project.
		ListProjectPayments(ctx context.Context, projectID int64) ([]core.Payment, error)
		ListSubprojectPayments(ctx context.Context, subprojectID int64) ([]core.Payment, error)
		BankPaymentExists(ctx context.Context, bankPaymentID int64) (bool, error)
	}

	PaymentWriter interface {
		// CreatePayment fails with core.ErrDuplicate when the bank payment id
		// is already stored.
		CreatePayment(ctx context.Context, p core.Payment) (int64, error)
		// UpdatePaymentDetails writes the descriptive fields only: route,
		// category, short and long description, hidden.
		UpdatePaymentDetails(ctx context.Context, p core.Payment) error
		DeletePayment(ctx context.Context, id int64) error
	}

	// IBANStore keeps the IBANs a project's bank link exposes.
	IBANStore interface {
		ReplaceIBANs(ctx context.Context, projectID int64, ibans []core.IBAN) error
		ListIBANs(ctx context.Context, projectID int64) ([]core.IBAN, error)
	}

	// Linker rewrites the project and subproject links of payments.
	Linker interface {
		ClearProjectLinks(ctx context.Context, projectID int64) (int64, error)
		LinkProjectPayments(ctx context.Context, projectID int64, iban string) (int64, error)
		ClearSubprojectLinks(ctx context.Context, subprojectID int64) (int64, error)
		LinkSubprojectPayments(ctx context.Context, subprojectID int64, iban string) (int64, error)
	}

	EntityWriter interface {
		CreateProject(ctx context.Context, p core.Project) (int64, error)
		UpdateProject(ctx context.Context, p core.Project) error
		DeleteProject(ctx context.Context, id int64) error
		CreateSubproject(ctx context.Context, s core.Subproject) (int64, error)
		UpdateSubproject(ctx context.Context, s core.Subproject) error
		DeleteSubproject(ctx context.Context, id int64) error
	}

	CategoryStore interface {
		GetCategory(ctx context.Context, id int64) (core.Category, error)
		// ListCategories lists the categories of one project or subproject;
		// exactly one of the ids is set.
		ListCategories(ctx context.Context, projectID, subprojectID *int64) ([]core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) (int64, error)
		RenameCategory(ctx context.Context, id int64, name string) error
		DeleteCategory(ctx context.Context, id int64) error
	}

	// FunderStore keeps the funders credited on a project. Funders are
	// deleted with their project.
	FunderStore interface {
		GetFunder(ctx context.Context, id int64) (core.Funder, error)
		ListFunders(ctx context.Context, projectID int64) ([]core.Funder, error)
		CreateFunder(ctx context.Context, f core.Funder) (int64, error)
		UpdateFunder(ctx context.Context, f core.Funder) error
		DeleteFunder(ctx context.Context, id int64) error
	}

	// Tx is the set of operations available inside a transaction.
	Tx interface {
		ProjectReader
		PaymentReader
		PaymentWriter
		IBANStore
		Linker
		EntityWriter
		CategoryStore
		FunderStore
	}

	// Store is a Tx that can also open transactions. Every operation on the
	// Store itself runs in its own implicit transaction.
	Store interface {
		Tx
		InTx(ctx context.Context, fn func(tx Tx) error) error
	}
)
