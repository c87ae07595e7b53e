/*
pnl.go - Period income statement

PURPOSE:
  Builds one period's income statement from revenue, opex, depreciation,
  facility interest and fd income. This is the single place fd income is
  consumed. It arrives precomputed as the sum of the period's reserve
  interest accruals - it is never re-derived from a cash balance or a
  hard-coded rate, so every unit of it is traceable to a specific reserve's
  InterestEarned in the same period.
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// P&L - Pure computation, no state
// =============================================================================

type PnLInputs struct {
	PeriodIndex  int
	Revenue      Money
	Opex         Money
	Depreciation Money

	// InterestExpense is cash facility interest due this period plus any
	// intercompany liability interest. IDC is capitalized, not expensed.
	InterestExpense Money

	// FDIncome is the precomputed sum of reserve interest accruals.
	FDIncome Money

	TaxRate decimal.Decimal
}

type PnL struct {
	PeriodIndex     int
	Revenue         Money
	Opex            Money
	EBITDA          Money
	Depreciation    Money
	EBIT            Money
	InterestExpense Money
	FDIncome        Money
	PreTaxProfit    Money
	Tax             Money
	AfterTaxProfit  Money
}

// BuildPnL computes the income statement. pbt = ebit - interest + fd_income.
// Tax applies to positive pre-tax profit only; losses carry no credit here.
func BuildPnL(in PnLInputs) PnL {
	ebitda := in.Revenue.Sub(in.Opex)
	ebit := ebitda.Sub(in.Depreciation)
	pbt := ebit.Sub(in.InterestExpense).Add(in.FDIncome)

	tax := pbt.Zero()
	if pbt.IsPositive() {
		tax = pbt.Mul(in.TaxRate)
	}

	return PnL{
		PeriodIndex:     in.PeriodIndex,
		Revenue:         in.Revenue,
		Opex:            in.Opex,
		EBITDA:          ebitda,
		Depreciation:    in.Depreciation,
		EBIT:            ebit,
		InterestExpense: in.InterestExpense,
		FDIncome:        in.FDIncome,
		PreTaxProfit:    pbt,
		Tax:             tax,
		AfterTaxProfit:  pbt.Sub(tax),
	}
}
