package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"poen/internal/core"
	"poen/internal/ledger"
)

// AmountsReader is the read side of the ledger the calculator needs.
type AmountsReader interface {
	ledger.ProjectReader
	ledger.PaymentReader
}

// Calculator derives awarded, spent and left figures. Every call recomputes
// from the ledger; nothing is cached.
type Calculator struct {
	ledger AmountsReader
	policy AmountPolicy
}

func NewCalculator(r AmountsReader, policy AmountPolicy) *Calculator {
	if policy == nil {
		policy = SummationPolicy{}
	}
	return &Calculator{ledger: r, policy: policy}
}

func (c *Calculator) SubprojectAmounts(ctx context.Context, subprojectID int64) (core.Amounts, error) {
	sub, err := c.ledger.GetSubproject(ctx, subprojectID)
	if err != nil {
		return core.Amounts{}, err
	}
	project, err := c.ledger.GetProject(ctx, sub.ProjectID)
	if err != nil {
		return core.Amounts{}, err
	}
	payments, err := c.ledger.ListSubprojectPayments(ctx, sub.ID)
	if err != nil {
		return core.Amounts{}, err
	}

	f := c.policy.Subproject(project.IBAN, payments)
	return core.NewAmounts(sub.ID, f.Awarded, f.Spent, sub.Budget), nil
}

func (c *Calculator) ProjectAmounts(ctx context.Context, projectID int64) (core.Amounts, error) {
	project, err := c.ledger.GetProject(ctx, projectID)
	if err != nil {
		return core.Amounts{}, err
	}
	f, err := c.projectFigures(ctx, project)
	if err != nil {
		return core.Amounts{}, err
	}
	return core.NewAmounts(project.ID, f.Awarded, f.Spent, project.Budget), nil
}

// Totals sums awarded and spent over every project, hidden ones included.
func (c *Calculator) Totals(ctx context.Context) (core.Totals, error) {
	projects, err := c.ledger.ListProjects(ctx)
	if err != nil {
		return core.Totals{}, err
	}
	awarded, spent := decimal.Zero, decimal.Zero
	for _, p := range projects {
		f, err := c.projectFigures(ctx, p)
		if err != nil {
			return core.Totals{}, fmt.Errorf("amounts of project %d: %w", p.ID, err)
		}
		awarded = awarded.Add(f.Awarded)
		spent = spent.Add(f.Spent)
	}
	return core.NewTotals(awarded, spent), nil
}

func (c *Calculator) projectFigures(ctx context.Context, project core.Project) (Figures, error) {
	direct, err := c.ledger.ListProjectPayments(ctx, project.ID)
	if err != nil {
		return Figures{}, err
	}

	var perSubproject [][]core.Payment
	if project.ContainsSubprojects {
		subs, err := c.ledger.ListSubprojects(ctx, project.ID)
		if err != nil {
			return Figures{}, err
		}
		for _, s := range subs {
			payments, err := c.ledger.ListSubprojectPayments(ctx, s.ID)
			if err != nil {
				return Figures{}, err
			}
			perSubproject = append(perSubproject, payments)
		}
	}
	return c.policy.Project(project, direct, perSubproject), nil
}
