package core

import "github.com/shopspring/decimal"

// Amounts is the money summary of one project or subproject.
type Amounts struct {
	ID              int64
	Awarded         decimal.Decimal
	Spent           decimal.Decimal
	Left            decimal.Decimal // round(denominator) - round(spent)
	PercentageSpent decimal.Decimal // ratio, 0.3 == 30%

	AwardedStr         string
	SpentStr           string
	LeftStr            string
	PercentageSpentStr string
}

// Totals are the system wide awarded and spent figures.
type Totals struct {
	Awarded    decimal.Decimal
	Spent      decimal.Decimal
	AwardedStr string
	SpentStr   string
}

// NewAmounts derives left and percentage spent from awarded and spent.
// A set budget replaces awarded as the denominator.
func NewAmounts(id int64, awarded, spent decimal.Decimal, budget *int64) Amounts {
	denominator := awarded
	if budget != nil {
		denominator = decimal.NewFromInt(*budget)
	}

	percentage := decimal.Zero
	if !denominator.IsZero() {
		percentage = spent.Div(denominator)
	}
	left := RoundUnits(denominator).Sub(RoundUnits(spent))

	return Amounts{
		ID:                 id,
		Awarded:            awarded,
		Spent:              spent,
		Left:               left,
		PercentageSpent:    percentage,
		AwardedStr:         FormatCurrency(awarded),
		SpentStr:           FormatCurrency(spent),
		LeftStr:            FormatCurrency(left),
		PercentageSpentStr: FormatPercent(percentage),
	}
}

func NewTotals(awarded, spent decimal.Decimal) Totals {
	return Totals{
		Awarded:    awarded,
		Spent:      spent,
		AwardedStr: FormatCurrency(awarded),
		SpentStr:   FormatCurrency(spent),
	}
}
