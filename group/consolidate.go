/*
consolidate.go - Holding-level aggregation with intercompany elimination

PURPOSE:
  Folds the per-entity results into the holding view:
    - a consolidated income statement per period, with the intercompany
      interest eliminated (the lender's income line and the borrower's
      expense line are the same money and cancel exactly)
    - a consolidated balance sheet per period, with the overdraft asset
      netted against the overdraft liability
    - portfolio debt metrics: the worst single-entity DSCR and the
      debt-service-weighted group DSCR
    - every facility's full schedule, tagged with its owning entity

  Consolidation is pure aggregation. Tax stays the sum of the entity tax
  charges; no group relief or recomputation on the consolidated pre-tax
  line. Because the eliminated income and expense are equal, the group
  after-tax profit is simply the sum of the entities'.
*/
package group

import (
	"github.com/shopspring/decimal"

	"github.com/meridian/waterfall-engine/engine"
)

// =============================================================================
// CONSOLIDATED VIEW
// =============================================================================

type ConsolidatedPeriod struct {
	Index int

	// Income statement, post-elimination.
	Revenue         engine.Money
	Opex            engine.Money
	EBITDA          engine.Money
	Depreciation    engine.Money
	EBIT            engine.Money
	InterestExpense engine.Money
	FDIncome        engine.Money
	PreTaxProfit    engine.Money
	Tax             engine.Money
	AfterTaxProfit  engine.Money

	// EliminatedInterest is the intercompany interest removed from both
	// the income and the expense side this period.
	EliminatedInterest engine.Money

	// Balance sheet, post-elimination.
	TotalAssets         engine.Money
	Debt                engine.Money
	Arrears             engine.Money
	Equity              engine.Money
	RetainedEarnings    engine.Money
	CumulativeGrants    engine.Money
	CumulativeDividends engine.Money

	// EliminatedBalance is the overdraft position netted out of assets and
	// liabilities; the asset and liability legs cancel to zero.
	EliminatedBalance engine.Money

	// Portfolio debt metrics across entities with debt service due.
	DebtServiceDue  engine.Money
	MinDSCR         decimal.Decimal
	MinDSCREntity   engine.EntityID
	WeightedDSCR    decimal.Decimal
	HasDSCRCoverage bool
}

// TaggedSchedule is one facility's full amortization history with its
// owning entity attached, for the holding-level debt register.
type TaggedSchedule struct {
	EntityID   engine.EntityID
	FacilityID engine.FacilityID
	Seniority  engine.FacilitySeniority
	Rows       []engine.FacilityPeriod
}

type Consolidated struct {
	Currency  engine.Currency
	Periods   []ConsolidatedPeriod
	Schedules []TaggedSchedule
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

// Consolidate builds the holding view from the group result. The caller
// has already verified intercompany symmetry, so the elimination here nets
// to exactly zero; a residual would have surfaced as an AsymmetryError
// upstream.
func Consolidate(cfg GroupConfig, res *Result) (*Consolidated, error) {
	currency := cfg.Entities[0].Currency
	periods := cfg.Entities[0].Periods
	zero := engine.ZeroMoney(currency)

	out := &Consolidated{Currency: currency}

	for p := 0; p < periods; p++ {
		cp := ConsolidatedPeriod{
			Index:               p,
			Revenue:             zero,
			Opex:                zero,
			EBITDA:              zero,
			Depreciation:        zero,
			EBIT:                zero,
			InterestExpense:     zero,
			FDIncome:            zero,
			PreTaxProfit:        zero,
			Tax:                 zero,
			AfterTaxProfit:      zero,
			EliminatedInterest:  zero,
			TotalAssets:         zero,
			Debt:                zero,
			Arrears:             zero,
			Equity:              zero,
			RetainedEarnings:    zero,
			CumulativeGrants:    zero,
			CumulativeDividends: zero,
			EliminatedBalance:   zero,
			DebtServiceDue:      zero,
		}

		weightedNumerator := decimal.Zero
		weightedDenominator := decimal.Zero
		minSet := false

		for _, id := range res.Order {
			er, ok := res.Entities[id]
			if !ok || p >= len(er.Periods) {
				continue
			}
			rec := er.Periods[p]

			cp.Revenue = cp.Revenue.Add(rec.PnL.Revenue)
			cp.Opex = cp.Opex.Add(rec.PnL.Opex)
			cp.EBITDA = cp.EBITDA.Add(rec.PnL.EBITDA)
			cp.Depreciation = cp.Depreciation.Add(rec.PnL.Depreciation)
			cp.EBIT = cp.EBIT.Add(rec.PnL.EBIT)
			cp.InterestExpense = cp.InterestExpense.Add(rec.PnL.InterestExpense)
			cp.FDIncome = cp.FDIncome.Add(rec.PnL.FDIncome)
			cp.PreTaxProfit = cp.PreTaxProfit.Add(rec.PnL.PreTaxProfit)
			cp.Tax = cp.Tax.Add(rec.PnL.Tax)
			cp.AfterTaxProfit = cp.AfterTaxProfit.Add(rec.PnL.AfterTaxProfit)

			cp.TotalAssets = cp.TotalAssets.Add(rec.Balance.TotalAssets)
			cp.Debt = cp.Debt.Add(rec.Balance.Debt).Add(rec.Balance.IntercompanyLiability)
			cp.Arrears = cp.Arrears.Add(rec.Balance.Arrears)
			cp.Equity = cp.Equity.Add(rec.Balance.Equity)
			cp.RetainedEarnings = cp.RetainedEarnings.Add(rec.Balance.RetainedEarnings)
			cp.CumulativeGrants = cp.CumulativeGrants.Add(rec.Balance.CumulativeGrants)
			cp.CumulativeDividends = cp.CumulativeDividends.Add(rec.Balance.CumulativeDividends)

			cp.DebtServiceDue = cp.DebtServiceDue.Add(rec.DebtServiceDue)
			if rec.HasDSCR {
				weightedNumerator = weightedNumerator.Add(rec.DSCR.Mul(rec.DebtServiceDue.Value))
				weightedDenominator = weightedDenominator.Add(rec.DebtServiceDue.Value)
				if !minSet || rec.DSCR.LessThan(cp.MinDSCR) {
					cp.MinDSCR = rec.DSCR
					cp.MinDSCREntity = id
					minSet = true
				}
			}
		}

		// Eliminate the overdraft. The interest leg appears once in the
		// lender's fd income and once in the borrower's interest expense;
		// the balance leg once as an asset and once as a liability.
		if link := cfg.Intercompany; link != nil {
			lender := res.Entities[link.LenderID]
			borrower := res.Entities[link.BorrowerID]
			if lender != nil && borrower != nil && p < len(lender.Periods) {
				icInterest := lender.Periods[p].IntercompanyInterest
				cp.EliminatedInterest = icInterest
				cp.FDIncome = cp.FDIncome.Sub(icInterest)
				cp.InterestExpense = cp.InterestExpense.Sub(icInterest)

				asset := lender.Periods[p].Balance.IntercompanyAsset
				liability := borrower.Periods[p].Balance.IntercompanyLiability
				cp.EliminatedBalance = asset.Sub(liability)
				cp.TotalAssets = cp.TotalAssets.Sub(asset)
				cp.Debt = cp.Debt.Sub(liability)
			}
		}

		if weightedDenominator.IsPositive() {
			cp.WeightedDSCR = weightedNumerator.Div(weightedDenominator)
			cp.HasDSCRCoverage = minSet
		}

		out.Periods = append(out.Periods, cp)
	}

	// Holding-level debt register: every facility schedule, entity-tagged,
	// in configuration order.
	for _, ec := range cfg.Entities {
		er, ok := res.Entities[ec.ID]
		if !ok {
			continue
		}
		for _, fc := range ec.Facilities {
			sched := TaggedSchedule{EntityID: ec.ID, FacilityID: fc.ID, Seniority: fc.Seniority}
			for _, rec := range er.Periods {
				for _, fp := range rec.Facilities {
					if fp.FacilityID == fc.ID {
						sched.Rows = append(sched.Rows, fp)
					}
				}
			}
			out.Schedules = append(out.Schedules, sched)
		}
	}

	return out, nil
}
