/*
loop.go - Per-entity period loop

PURPOSE:
  Sequences one entity's simulation across all periods. Within a period the
  pipeline order is fixed and load-bearing:

    1. facilities compute their scheduled rows
    2. reserves accrue (reading the staged facility state)
    3. reserve interest is summed into fd income
    4. the P&L is built
    5. the waterfall allocates
    6. facilities are finalized with the waterfall's accelerations
    7. next period's reserve targets read the now-finalized state

  At the end of a run the balance-sheet identity

    assets - debt == equity + cum. profit + cum. grants - cum. dividends

  must hold to zero within tolerance for EVERY period. This is the primary
  correctness oracle for the whole engine: a violation is a wiring defect
  and aborts the run with a structured diagnostic.

STATE OWNERSHIP:
  All facility and reserve objects are created fresh inside RunEntity and go
  out of scope when it returns. Re-running with identical inputs produces
  identical results; the multi-entity orchestrator relies on this when it
  discards and recreates state between passes.
*/
package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENTITY CONFIGURATION
// =============================================================================

type GrantConfig struct {
	Name string

	// Amounts is per-period, len == Periods.
	Amounts []Money

	EarmarkedForDebt bool
	BypassesDSRAGate bool
}

type ReserveParams struct {
	OperatingCoveragePct  decimal.Decimal
	DSRAAccruesInterest   bool
	DSRADepositRate       decimal.Decimal
	MezzanineDividendRate decimal.Decimal
}

type EntityConfig struct {
	ID       EntityID
	Name     string
	Currency Currency
	Periods  int

	TaxRate     decimal.Decimal
	DepositRate decimal.Decimal // annual local-currency deposit rate

	InitialEquity Money

	Revenue      []Money
	Opex         []Money
	Depreciation []Money

	Grants     []GrantConfig
	Facilities []FacilityConfig
	Reserves   ReserveParams

	// SweepPct caps voluntary acceleration at this fraction of available
	// surplus per period.
	SweepPct decimal.Decimal
}

// Validate fails fast on malformed parameters. Rates and targets are never
// silently defaulted to zero.
func (c EntityConfig) Validate() error {
	if c.ID == "" {
		return &ConfigError{Field: "id", Detail: "entity id is required"}
	}
	if c.Periods <= 0 {
		return &ConfigError{EntityID: c.ID, Field: "periods", Detail: "must be positive"}
	}
	if c.Currency == "" {
		return &ConfigError{EntityID: c.ID, Field: "currency", Detail: "currency is required"}
	}
	for name, vec := range map[string][]Money{"revenue": c.Revenue, "opex": c.Opex, "depreciation": c.Depreciation} {
		if len(vec) != c.Periods {
			return &ConfigError{EntityID: c.ID, Field: name,
				Detail: fmt.Sprintf("expected %d periods, got %d", c.Periods, len(vec))}
		}
	}
	if c.TaxRate.IsNegative() || c.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return &ConfigError{EntityID: c.ID, Field: "tax_rate", Detail: "must be in [0, 1)"}
	}
	if c.DepositRate.IsNegative() {
		return &ConfigError{EntityID: c.ID, Field: "deposit_rate", Detail: "must not be negative"}
	}
	if !c.SweepPct.IsPositive() || c.SweepPct.GreaterThan(decimal.NewFromInt(1)) {
		return &ConfigError{EntityID: c.ID, Field: "sweep_pct", Detail: "must be in (0, 1]"}
	}
	for _, g := range c.Grants {
		if len(g.Amounts) != c.Periods {
			return &ConfigError{EntityID: c.ID, Field: "grants." + g.Name,
				Detail: fmt.Sprintf("expected %d periods, got %d", c.Periods, len(g.Amounts))}
		}
	}
	for _, f := range c.Facilities {
		if f.ID == "" {
			return &ConfigError{EntityID: c.ID, Field: "facilities", Detail: "facility id is required"}
		}
		if f.TermPeriods <= 0 || f.TermPeriods > c.Periods {
			return &ConfigError{EntityID: c.ID, Field: string(f.ID) + ".term_periods",
				Detail: fmt.Sprintf("must be in [1, %d]", c.Periods)}
		}
		if f.GracePeriods < 0 || f.GracePeriods >= f.TermPeriods {
			return &ConfigError{EntityID: c.ID, Field: string(f.ID) + ".grace_periods",
				Detail: "must be non-negative and below the term"}
		}
		if f.AnnualRate.IsNegative() {
			return &ConfigError{EntityID: c.ID, Field: string(f.ID) + ".annual_rate", Detail: "must not be negative"}
		}
		if f.Principal.IsNegative() {
			return &ConfigError{EntityID: c.ID, Field: string(f.ID) + ".principal", Detail: "must not be negative"}
		}
	}
	return nil
}

// =============================================================================
// INTERCOMPANY INPUTS - Vectors injected between orchestration passes
// =============================================================================

// IntercompanyInputs carries the per-period vectors one orchestration pass
// hands to the next. Exactly one of the two roles is active:
//   - lender:   Demand set (and, on the settlement re-run, PinnedAdvances
//     plus Recovered)
//   - borrower: Received set
type IntercompanyInputs struct {
	Key        string
	AnnualRate decimal.Decimal

	// Lender side.
	Demand         []Money
	PinnedAdvances []Money
	Recovered      []Money

	// Borrower side.
	Received []Money
}

func (ic *IntercompanyInputs) isBorrower() bool { return ic != nil && ic.Received != nil }
func (ic *IntercompanyInputs) isLender() bool { return ic != nil && ic.Received == nil }

// =============================================================================
// RESULTS
// =============================================================================

type BalanceSheet struct {
	PeriodIndex int

	FixedAssets       Money // initial capex + cumulative IDC - cumulative depreciation
	ReserveBalances   Money
	CashCarried       Money
	IntercompanyAsset Money
	TotalAssets       Money

	Debt                  Money
	IntercompanyLiability Money

	// Arrears is the cumulative unmet-need record: scheduled debt service
	// the waterfall could not pay, plus operating outflows clamped when the
	// cash pool would have gone negative. Carried as an explicit liability
	// so the identity still reconciles in cash-constrained periods.
	Arrears Money

	Equity              Money
	RetainedEarnings    Money
	CumulativeGrants    Money
	CumulativeDividends Money
}

type PeriodRecord struct {
	Index int

	Facilities []FacilityPeriod
	Accruals   ReserveAccrualSet
	PnL        PnL
	Waterfall  WaterfallRow
	Balance    BalanceSheet

	// DebtServiceDue is the period's scheduled cash interest + principal.
	DebtServiceDue Money
	DSCR           decimal.Decimal
	HasDSCR        bool

	// Deficit is the unmet cash need discovered this period: unpaid
	// scheduled debt service plus any unfunded DSRA gap. Pass 1 of the
	// orchestrator reads this as the borrower's loan demand.
	Deficit Money

	IntercompanyBalance  Money
	IntercompanyInterest Money
}

type EntityResult struct {
	EntityID EntityID
	Name     string
	Currency Currency
	Periods  []PeriodRecord
}

// DeficitVector returns the per-period unmet cash need.
func (r *EntityResult) DeficitVector() []Money {
	out := make([]Money, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Deficit
	}
	return out
}

// LentVector returns the per-period intercompany advances made (lender).
func (r *EntityResult) LentVector() []Money {
	out := make([]Money, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Waterfall.IntercompanyLent
	}
	return out
}

// RepaidVector returns the per-period overdraft repayments (borrower).
func (r *EntityResult) RepaidVector() []Money {
	out := make([]Money, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.Waterfall.OverdraftRepaid
	}
	return out
}

// IntercompanyBalances returns the per-period closing overdraft balance.
func (r *EntityResult) IntercompanyBalances() []Money {
	out := make([]Money, len(r.Periods))
	for i, p := range r.Periods {
		out[i] = p.IntercompanyBalance
	}
	return out
}

// TotalFDIncome sums fd income across all periods.
func (r *EntityResult) TotalFDIncome() Money {
	total := ZeroMoney(r.Currency)
	for _, p := range r.Periods {
		total = total.Add(p.PnL.FDIncome)
	}
	return total
}

// =============================================================================
// THE LOOP
// =============================================================================

// RunEntity simulates one entity across all configured periods. All state
// is created fresh here; identical inputs produce identical results.
func RunEntity(cfg EntityConfig, ic *IntercompanyInputs) (*EntityResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	zero := ZeroMoney(cfg.Currency)

	facilities := make([]*Facility, 0, len(cfg.Facilities))
	for _, fc := range cfg.Facilities {
		facilities = append(facilities, NewFacility(fc))
	}

	operating := NewOperatingReserve("operating", cfg.Currency, cfg.DepositRate, cfg.Reserves.OperatingCoveragePct)
	dsra := NewDebtServiceReserve("dsra", cfg.Currency, cfg.Reserves.DSRAAccruesInterest, cfg.Reserves.DSRADepositRate)
	mezzReserve := NewMezzanineDividendReserve("mezzanine-dividend", cfg.Currency, cfg.DepositRate, cfg.Reserves.MezzanineDividendRate)
	surplus := NewSurplusReserve("surplus", cfg.Currency, cfg.DepositRate)

	var overdraft *IntercompanyAccount
	if ic != nil {
		overdraft = NewIntercompanyAccount(ic.Key, cfg.Currency, ic.AnnualRate)
	}

	// Period-0 capital structure: fixed assets are funded by the facility
	// drawdowns plus contributed equity, so the identity holds at t=0 by
	// construction and every later violation is a genuine wiring defect.
	initialCapex := cfg.InitialEquity
	for _, f := range facilities {
		initialCapex = initialCapex.Add(f.Config.Principal)
	}

	cashCarry := zero
	cumIDC, cumDep, cumPAT, cumGrants, cumDividends := zero, zero, zero, zero, zero
	cumArrears := zero

	result := &EntityResult{EntityID: cfg.ID, Name: cfg.Name, Currency: cfg.Currency}

	for p := 0; p < cfg.Periods; p++ {
		// 1. Facilities stage their scheduled rows.
		staged := make([]FacilityPeriod, len(facilities))
		for i, f := range facilities {
			staged[i] = f.ComputePeriod(p)
		}

		nextSeniorDS, seniorOutstanding, mezzOpening := zero, zero, zero
		for i, f := range facilities {
			if f.Config.Seniority == SenioritySenior {
				nextSeniorDS = nextSeniorDS.Add(f.EstimateNextDebtService(p))
				seniorOutstanding = seniorOutstanding.Add(staged[i].PreAccelClosing)
			} else {
				mezzOpening = mezzOpening.Add(staged[i].OpeningBalance)
			}
		}

		// 2. Reserves accrue, before the P&L - fd income depends on it.
		ctx := PeriodContext{
			PeriodIndex:           p,
			CurrentOpex:           cfg.Opex[p],
			OpexOutlook:           cfg.Opex[p+1:],
			NextSeniorDebtService: nextSeniorDS,
			SeniorOutstanding:     seniorOutstanding,
			MezzanineOpening:      mezzOpening,
		}
		accruals := ReserveAccrualSet{
			Operating:         operating.Accrue(ctx),
			DebtService:       dsra.Accrue(ctx),
			MezzanineDividend: mezzReserve.Accrue(ctx),
			Surplus:           surplus.Accrue(ctx),
		}

		icInterest := zero
		if overdraft != nil {
			icInterest = overdraft.AccrueInterest()
		}

		// 3. fd income: every unit traceable to an accrual this period.
		fdIncome := accruals.Interest()
		if ic.isLender() {
			fdIncome = fdIncome.Add(icInterest)
		}

		// 4. P&L.
		cashInterestDue := zero
		for _, row := range staged {
			cashInterestDue = cashInterestDue.Add(row.CashInterest())
		}
		interestExpense := cashInterestDue
		if ic.isBorrower() {
			interestExpense = interestExpense.Add(icInterest)
		}
		pnl := BuildPnL(PnLInputs{
			PeriodIndex:     p,
			Revenue:         cfg.Revenue[p],
			Opex:            cfg.Opex[p],
			Depreciation:    cfg.Depreciation[p],
			InterestExpense: interestExpense,
			FDIncome:        fdIncome,
			TaxRate:         cfg.TaxRate,
		})

		// 5. Waterfall.
		var inflows []CashInflow
		grantsThisPeriod := zero
		for _, g := range cfg.Grants {
			if g.Amounts[p].IsPositive() {
				inflows = append(inflows, CashInflow{
					Source:           g.Name,
					Amount:           g.Amounts[p],
					EarmarkedForDebt: g.EarmarkedForDebt,
					BypassesDSRAGate: g.BypassesDSRAGate,
				})
				grantsThisPeriod = grantsThisPeriod.Add(g.Amounts[p])
			}
		}

		dues := make([]FacilityDue, len(facilities))
		debtServiceDue := zero
		for i, f := range facilities {
			dues[i] = FacilityDue{
				ID:              f.Config.ID,
				Seniority:       f.Config.Seniority,
				Rate:            f.Config.AnnualRate,
				CashInterestDue: staged[i].CashInterest(),
				PrincipalDue:    staged[i].PrincipalPaid,
				PreAccelClosing: staged[i].PreAccelClosing,
			}
			debtServiceDue = debtServiceDue.Add(staged[i].CashInterest()).Add(staged[i].PrincipalPaid)
		}

		in := WaterfallInputs{
			PeriodIndex:   p,
			Currency:      cfg.Currency,
			OperatingCash: pnl.EBITDA.Sub(pnl.Tax),
			CashCarriedIn: cashCarry,
			Inflows:       inflows,
			Facilities:    dues,
			Reserves:      accruals,
			SweepPct:      cfg.SweepPct,
		}
		if ic.isBorrower() {
			in.IntercompanyReceived = ic.Received[p]
			in.OverdraftOutstanding = overdraft.Balance()
			in.OverdraftKey = overdraft.Key
			in.OverdraftRate = overdraft.AnnualRate
		} else if ic.isLender() {
			if ic.PinnedAdvances != nil {
				in.PinnedAdvance = &ic.PinnedAdvances[p]
			} else {
				in.LoanDemand = ic.Demand[p]
			}
			if ic.Recovered != nil {
				in.IntercompanyReceived = ic.Recovered[p]
			}
		}
		row := Allocate(in)

		// 6. Apply the row to the stateful objects.
		operating.Deposit(row.OperatingReserveFunding)
		dsra.Deposit(row.DSRAFunding)
		dsra.Withdraw(row.DSRARelease)
		mezzReserve.Deposit(row.MezzanineReserveFunding)
		surplus.Deposit(row.SurplusReserveFunding)

		mezzPaid := mezzReserve.PayDividend(row.MezzanineDividends)
		ordinaryPaid := surplus.Withdraw(row.OrdinaryDividends)
		cumDividends = cumDividends.Add(mezzPaid).Add(ordinaryPaid)

		excessPool := zero
		finalized := make([]FacilityPeriod, len(facilities))
		for i, f := range facilities {
			accel := zero
			if sa, ok := row.SpecialAcceleration[f.Config.ID]; ok {
				accel = accel.Add(sa)
			}
			if va, ok := row.SurplusAcceleration[string(f.Config.ID)]; ok {
				accel = accel.Add(va)
			}
			_, excess := f.FinalizePeriod(p, accel)
			excessPool = excessPool.Add(excess)
			finalized[i] = f.History()[len(f.History())-1]
		}

		icBalance := zero
		if overdraft != nil {
			if ic.isBorrower() {
				overdraft.Advance(ic.Received[p])
				_, excess := overdraft.Repay(row.OverdraftRepaid)
				excessPool = excessPool.Add(excess)
			} else {
				overdraft.Advance(row.IntercompanyLent)
				if ic.Recovered != nil {
					_, excess := overdraft.Repay(ic.Recovered[p])
					excessPool = excessPool.Add(excess)
				}
			}
			icBalance = overdraft.Balance()
		}

		// Clamped over-allocations (rounding only) are not discarded: they
		// re-enter as carried cash, visible on the row.
		cashCarry = row.CashCarriedForward.Add(excessPool)

		// 7. Cumulative trackers and the balance sheet.
		for _, fp := range finalized {
			cumIDC = cumIDC.Add(fp.IDC)
		}
		cumDep = cumDep.Add(cfg.Depreciation[p])
		cumPAT = cumPAT.Add(pnl.AfterTaxProfit)
		cumGrants = cumGrants.Add(grantsThisPeriod)

		// Unpaid scheduled debt service and clamped operating outflows stay
		// on the books as a liability until (and unless) a later pass covers
		// them at source. The facility schedule is not rewritten: the unmet
		// need is carried explicitly instead.
		cumArrears = cumArrears.Add(row.DebtServiceShortfall).Add(row.ReconciliationResidual)

		debt := zero
		for _, f := range facilities {
			debt = debt.Add(f.Balance())
		}

		bs := BalanceSheet{
			PeriodIndex:         p,
			FixedAssets:         initialCapex.Add(cumIDC).Sub(cumDep),
			ReserveBalances:     operating.Balance().Add(dsra.Balance()).Add(mezzReserve.Balance()).Add(surplus.Balance()),
			CashCarried:         cashCarry,
			Debt:                debt,
			Arrears:             cumArrears,
			Equity:              cfg.InitialEquity,
			RetainedEarnings:    cumPAT,
			CumulativeGrants:    cumGrants,
			CumulativeDividends: cumDividends,
		}
		if ic.isLender() {
			bs.IntercompanyAsset = icBalance
		} else if ic.isBorrower() {
			bs.IntercompanyLiability = icBalance
		}
		bs.TotalAssets = bs.FixedAssets.Add(bs.ReserveBalances).Add(bs.CashCarried).Add(bs.IntercompanyAsset)

		claims := bs.Debt.Add(bs.IntercompanyLiability).Add(bs.Arrears).
			Add(bs.Equity).Add(bs.RetainedEarnings).Add(bs.CumulativeGrants).Sub(bs.CumulativeDividends)
		if !bs.TotalAssets.WithinTolerance(claims) {
			return nil, &IdentityError{
				EntityID: cfg.ID,
				Period:   p,
				Assets:   bs.TotalAssets,
				Claims:   claims,
				Mismatch: bs.TotalAssets.Sub(claims),
			}
		}

		record := PeriodRecord{
			Index:                p,
			Facilities:           finalized,
			Accruals:             accruals,
			PnL:                  pnl,
			Waterfall:            row,
			Balance:              bs,
			DebtServiceDue:       debtServiceDue,
			Deficit: row.DebtServiceShortfall.
				Add(row.ReconciliationResidual).
				Add(accruals.DebtService.FundingGap.Sub(row.DSRAFunding).ClampNonNegative()),
			IntercompanyBalance:  icBalance,
			IntercompanyInterest: icInterest,
		}
		if debtServiceDue.GreaterThan(Money{Value: Tolerance, Currency: cfg.Currency}) {
			record.DSCR = pnl.EBITDA.Sub(pnl.Tax).Value.Div(debtServiceDue.Value)
			record.HasDSCR = true
		}
		result.Periods = append(result.Periods, record)
	}

	return result, nil
}
