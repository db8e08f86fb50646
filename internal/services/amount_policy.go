// Package services provides business logic and orchestration services.
//
// This file holds the amount policies. A policy decides which payments count
// as awarded and which as spent; the calculator applies the selected policy
// to the payments it loads from the ledger.

package services

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"poen/internal/core"
)

type PolicyVersion string

const (
	// Earlier policies anchored totals on the bank's balance after mutation.
	// They double counted transfers between a project and its subprojects.
	PolicyBalanceAnchoredV1 PolicyVersion = "balance-anchored-v1"
	PolicyBalanceAnchoredV2 PolicyVersion = "balance-anchored-v2"

	// PolicySummationV3 sums signed payment amounts.
	PolicySummationV3 PolicyVersion = "summation-v3"

	DefaultPolicy = PolicySummationV3
)

var (
	ErrPolicySuperseded = errors.New("amount policy superseded")
	ErrUnknownPolicy    = errors.New("unknown amount policy")
)

// Figures are unrounded awarded and spent sums.
type Figures struct {
	Awarded decimal.Decimal
	Spent   decimal.Decimal
}

// AmountPolicy is the strategy interface for classifying payments.
type AmountPolicy interface {
	// Subproject classifies the payments linked to a subproject. Transfers
	// back to the parent project (counterparty projectIBAN) are not spent.
	Subproject(projectIBAN *string, payments []core.Payment) Figures

	// Project classifies a project's direct payments plus, for projects with
	// subprojects, the payments of each subproject.
	Project(p core.Project, direct []core.Payment, subprojects [][]core.Payment) Figures
}

// SummationPolicy implements PolicySummationV3.
type SummationPolicy struct{}

func (SummationPolicy) Subproject(projectIBAN *string, payments []core.Payment) Figures {
	f := Figures{Awarded: decimal.Zero, Spent: decimal.Zero}
	for _, p := range payments {
		v := p.Amount.Decimal()
		switch {
		case v.IsPositive():
			f.Awarded = f.Awarded.Add(v)
		case v.IsNegative():
			if isTransferWith(p, projectIBAN) {
				continue
			}
			f.Spent = f.Spent.Add(v.Abs())
		}
	}
	return f
}

func (s SummationPolicy) Project(project core.Project, direct []core.Payment, subprojects [][]core.Payment) Figures {
	f := Figures{Awarded: decimal.Zero, Spent: decimal.Zero}
	seen := make(map[int64]struct{}, len(direct))
	for _, p := range direct {
		seen[p.ID] = struct{}{}
		v := p.Amount.Decimal()
		switch {
		case v.IsPositive():
			f.Awarded = f.Awarded.Add(v)
		case v.IsNegative() && !project.ContainsSubprojects:
			f.Spent = f.Spent.Add(v.Abs())
		}
	}
	if !project.ContainsSubprojects {
		return f
	}

	for _, payments := range subprojects {
		for _, p := range payments {
			// A payment linked to the project and a subproject counts once.
			if _, dup := seen[p.ID]; dup {
				continue
			}
			if v := p.Amount.Decimal(); v.IsPositive() && !isTransferWith(p, project.IBAN) {
				f.Awarded = f.Awarded.Add(v)
			}
		}
		f.Spent = f.Spent.Add(s.Subproject(project.IBAN, payments).Spent)
	}
	return f
}

func isTransferWith(p core.Payment, iban *string) bool {
	return iban != nil && p.Counterparty.Value == *iban
}

// amountPolicies maps versions to implementations.
var amountPolicies = map[PolicyVersion]AmountPolicy{
	PolicySummationV3: SummationPolicy{},
}

var supersededPolicies = map[PolicyVersion]struct{}{
	PolicyBalanceAnchoredV1: {},
	PolicyBalanceAnchoredV2: {},
}

// GetAmountPolicy returns the policy for a version. Superseded versions are
// rejected with ErrPolicySuperseded.
func GetAmountPolicy(version PolicyVersion) (AmountPolicy, error) {
	if _, ok := supersededPolicies[version]; ok {
		return nil, fmt.Errorf("%s: %w", version, ErrPolicySuperseded)
	}
	policy, ok := amountPolicies[version]
	if !ok {
		return nil, fmt.Errorf("%s: %w", version, ErrUnknownPolicy)
	}
	return policy, nil
}

// RegisterAmountPolicy adds or replaces the policy for a version.
func RegisterAmountPolicy(version PolicyVersion, policy AmountPolicy) {
	delete(supersededPolicies, version)
	amountPolicies[version] = policy
}
