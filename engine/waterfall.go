/*
waterfall.go - Ordered cash allocation for one period

PURPOSE:
  Allocates one period's available cash across the fixed priority cascade.
  The allocator is PURE: it reads EBITDA-derived cash, inflows, facility
  dues and reserve accruals, and produces a WaterfallRow of allocation
  amounts. The entity loop applies the row to the stateful objects.

ALLOCATION ORDER (strictly sequential; steps produce zero, never skip):
   1. Split inflows into a "special" pool (cash contractually earmarked for
      debt reduction) and the normal operating pool.
   2. Special pool -> senior scheduled interest+principal, then senior
      ACCELERATION. This acceleration is NOT gated on reserve funding: it
      is a contractual pass-through, not discretionary surplus.
   3. Normal pool -> remaining scheduled debt service, senior first.
   4. Fund the operating reserve's gap.
   5. Fund the DSRA's gap / release its excess.
   6. Intercompany advance to the counterparty's deficit (lender side).
   7. Fund the mezzanine dividend reserve toward its accrued liability.
   8. GATE: unless the DSRA is funded (balance >= target - tolerance, or
      the target is effectively zero), stop - remaining cash carries
      forward undeployed.
   9. Surplus acceleration across all accelerable instruments ranked by
      interest rate DESCENDING - the intercompany overdraft sits in this
      same queue, not in a fixed late step - each capped by its outstanding
      balance, the whole step capped by the sweep percentage.
  10. Fund the entity surplus reserve, only once ALL interest-bearing debt
      is zero.
  11. Dividends from the surplus and mezzanine reserves, only if all debt
      is repaid and the mezzanine liability is fully funded.

WHY THE GATE:
  Senior lenders require the DSRA topped up before any voluntary
  prepayment. Folding reserve funding and acceleration into one pool would
  let debt prepay while the contractual reserve sits short - a covenant
  violation. Earmarked special-pool cash bypasses the gate because it is
  not discretionary; the bypass is a per-source configuration flag.
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// INPUTS
// =============================================================================

// FacilityDue is the read-only scheduled view of one facility for the
// period, taken from its staged (pre-acceleration) row.
type FacilityDue struct {
	ID              FacilityID
	Seniority       FacilitySeniority
	Rate            decimal.Decimal
	CashInterestDue Money
	PrincipalDue    Money
	PreAccelClosing Money
}

// CashInflow is a non-operating cash receipt (grant, subsidy, settlement).
// EarmarkedForDebt routes it to the special pool; BypassesDSRAGate is the
// per-source policy flag for whether its debt paydown ignores the gate.
type CashInflow struct {
	Source           string
	Amount           Money
	EarmarkedForDebt bool
	BypassesDSRAGate bool
}

// ReserveAccrualSet carries the period's four reserve accruals, already
// computed, read-only.
type ReserveAccrualSet struct {
	Operating         ReserveAccrual
	DebtService       ReserveAccrual
	MezzanineDividend ReserveAccrual
	Surplus           ReserveAccrual
}

// Interest sums the set's interest lines. The loop cross-checks this
// against the P&L's fd income.
func (s ReserveAccrualSet) Interest() Money {
	return s.Operating.InterestEarned.
		Add(s.DebtService.InterestEarned).
		Add(s.MezzanineDividend.InterestEarned).
		Add(s.Surplus.InterestEarned)
}

type WaterfallInputs struct {
	PeriodIndex int
	Currency    Currency

	// OperatingCash is EBITDA minus tax for the period.
	OperatingCash Money

	// CashCarriedIn is undeployed cash from the prior period.
	CashCarriedIn Money

	Inflows []CashInflow

	// IntercompanyReceived is an advance injected by the orchestrator
	// (borrower side).
	IntercompanyReceived Money

	// LoanDemand is the counterparty's deficit this period (lender side).
	LoanDemand Money

	// PinnedAdvance, when set, fixes the amount lent this period instead
	// of recomputing it from demand - used by the settlement re-run so the
	// advance vector cannot drift from the pass that the borrower saw.
	PinnedAdvance *Money

	Facilities []FacilityDue
	Reserves   ReserveAccrualSet

	// Borrower-side overdraft state after this period's interest accrual.
	OverdraftOutstanding Money
	OverdraftKey         string
	OverdraftRate        decimal.Decimal

	// SweepPct caps step 9 at a fraction of the cash available to it.
	SweepPct decimal.Decimal
}

// =============================================================================
// OUTPUT ROW
// =============================================================================

type WaterfallRow struct {
	PeriodIndex int

	SpecialPool Money
	NormalPool  Money

	DebtServicePaid      map[FacilityID]Money
	DebtServiceShortfall Money

	SpecialAcceleration map[FacilityID]Money

	OperatingReserveFunding Money
	DSRAFunding             Money
	DSRARelease             Money

	IntercompanyLent Money

	MezzanineReserveFunding Money

	GateOpen bool

	// SurplusAcceleration is keyed by facility ID, or by the overdraft key
	// for the intercompany instrument in the same queue.
	SurplusAcceleration map[string]Money
	OverdraftRepaid     Money

	SurplusReserveFunding Money

	MezzanineDividends Money
	OrdinaryDividends  Money
	DividendsPaid      Money

	CashCarriedForward     Money
	ReconciliationResidual Money

	// ReserveInterest mirrors the accrual set's interest sum so the fd
	// income three-way trace can be run from the row alone.
	ReserveInterest Money
}

// =============================================================================
// ALLOCATOR
// =============================================================================

// Allocate runs the cascade for one period. It never allocates more than
// the cash entering the period and never lets a step exceed its stated
// need; rounding that would drive a pool negative is clamped and recorded
// as a reconciliation residual rather than silently absorbed.
func Allocate(in WaterfallInputs) WaterfallRow {
	zero := ZeroMoney(in.Currency)
	row := WaterfallRow{
		PeriodIndex:         in.PeriodIndex,
		DebtServicePaid:     make(map[FacilityID]Money),
		SpecialAcceleration: make(map[FacilityID]Money),
		SurplusAcceleration: make(map[string]Money),
		ReserveInterest:     in.Reserves.Interest(),

		DebtServiceShortfall:    zero,
		OperatingReserveFunding: zero,
		DSRAFunding:             zero,
		DSRARelease:             zero,
		IntercompanyLent:        zero,
		MezzanineReserveFunding: zero,
		OverdraftRepaid:         zero,
		SurplusReserveFunding:   zero,
		MezzanineDividends:      zero,
		OrdinaryDividends:       zero,
		DividendsPaid:           zero,
		ReconciliationResidual:  zero,
	}

	// --- Step 1: pool split -------------------------------------------------
	special := zero
	normal := in.OperatingCash.Add(in.CashCarriedIn).Add(in.IntercompanyReceived)
	for _, inflow := range in.Inflows {
		// Earmarked cash only enters the ungated special pool when its
		// source is flagged to bypass the gate; otherwise it flows through
		// the normal pool and its debt use waits on the DSRA like any
		// other discretionary cash.
		if inflow.EarmarkedForDebt && inflow.BypassesDSRAGate {
			special = special.Add(inflow.Amount.ClampNonNegative())
		} else {
			normal = normal.Add(inflow.Amount.ClampNonNegative())
		}
	}
	if normal.IsNegative() {
		// An operating loss deeper than carried cash: nothing to allocate,
		// and the shortfall surfaces as unpaid debt service below.
		row.ReconciliationResidual = normal.Neg()
		normal = zero
	}
	row.SpecialPool = special
	row.NormalPool = normal

	// Scheduled dues, senior first so the special pool and any scarce
	// normal cash serve seniors before mezzanine.
	ordered := orderBySeniority(in.Facilities)

	// --- Step 2: special pool -> senior scheduled service, then senior
	// acceleration (ungated pass-through) ------------------------------------
	for _, f := range ordered {
		if f.Seniority != SenioritySenior {
			continue
		}
		due := f.CashInterestDue.Add(f.PrincipalDue)
		paid := due.Min(special)
		if paid.IsPositive() {
			row.DebtServicePaid[f.ID] = paid
			special = special.Sub(paid)
		}
	}
	for _, f := range ordered {
		if f.Seniority != SenioritySenior || !special.IsPositive() {
			continue
		}
		headroom := f.PreAccelClosing
		accel := headroom.Min(special)
		if accel.IsPositive() {
			row.SpecialAcceleration[f.ID] = accel
			special = special.Sub(accel)
		}
	}
	// Senior debt exhausted before the special pool: the residual has no
	// earmarked use left and falls into the normal pool.
	if special.IsPositive() {
		normal = normal.Add(special)
		special = zero
	}

	// --- Step 3: normal pool -> remaining scheduled debt service ------------
	for _, f := range ordered {
		due := f.CashInterestDue.Add(f.PrincipalDue)
		if already, ok := row.DebtServicePaid[f.ID]; ok {
			due = due.Sub(already)
		}
		due = due.ClampNonNegative()
		paid := due.Min(normal)
		normal = normal.Sub(paid)
		if paid.IsPositive() {
			total := paid
			if already, ok := row.DebtServicePaid[f.ID]; ok {
				total = already.Add(paid)
			}
			row.DebtServicePaid[f.ID] = total
		}
		row.DebtServiceShortfall = row.DebtServiceShortfall.Add(due.Sub(paid))
	}

	// --- Step 4: operating reserve gap --------------------------------------
	opFunding := in.Reserves.Operating.FundingGap.Min(normal)
	row.OperatingReserveFunding = opFunding
	normal = normal.Sub(opFunding)

	// --- Step 5: DSRA gap / release -----------------------------------------
	dsraFunding := in.Reserves.DebtService.FundingGap.Min(normal)
	row.DSRAFunding = dsraFunding
	normal = normal.Sub(dsraFunding)

	row.DSRARelease = in.Reserves.DebtService.ReleasableExcess
	normal = normal.Add(row.DSRARelease)

	// --- Step 6: intercompany advance (lender side) -------------------------
	if in.PinnedAdvance != nil {
		row.IntercompanyLent = in.PinnedAdvance.ClampNonNegative().Min(normal)
		normal = normal.Sub(row.IntercompanyLent)
	} else if in.LoanDemand.IsPositive() {
		row.IntercompanyLent = in.LoanDemand.Min(normal)
		normal = normal.Sub(row.IntercompanyLent)
	}

	// --- Step 7: mezzanine dividend reserve ---------------------------------
	mezzFunding := in.Reserves.MezzanineDividend.FundingGap.Min(normal)
	row.MezzanineReserveFunding = mezzFunding
	normal = normal.Sub(mezzFunding)

	// --- Step 8: the gate ----------------------------------------------------
	dsraAfter := in.Reserves.DebtService.BalanceAfterInterest.
		Add(row.DSRAFunding).Sub(row.DSRARelease)
	target := in.Reserves.DebtService.TargetBalance
	row.GateOpen = target.IsNegligible() ||
		dsraAfter.GreaterOrEqual(target.Sub(Money{Value: Tolerance, Currency: in.Currency}))

	if !row.GateOpen {
		row.CashCarriedForward = normal
		return row
	}

	// --- Step 9: rate-ranked surplus acceleration ---------------------------
	normal = allocateSurplusAcceleration(in, &row, normal)

	// --- Step 10: surplus reserve, only with all debt at zero ---------------
	if allDebtRetired(in, row) {
		row.SurplusReserveFunding = normal
		normal = normal.Sub(row.SurplusReserveFunding)

		// --- Step 11: dividends ---------------------------------------------
		mezzAfter := in.Reserves.MezzanineDividend.BalanceAfterInterest.Add(row.MezzanineReserveFunding)
		liability := in.Reserves.MezzanineDividend.TargetBalance
		liabilityFunded := mezzAfter.GreaterOrEqual(liability.Sub(Money{Value: Tolerance, Currency: in.Currency}))

		if liabilityFunded {
			row.MezzanineDividends = liability.Min(mezzAfter).ClampNonNegative()
			row.OrdinaryDividends = in.Reserves.Surplus.BalanceAfterInterest.Add(row.SurplusReserveFunding)
			row.DividendsPaid = row.MezzanineDividends.Add(row.OrdinaryDividends)
		}
	}

	row.CashCarriedForward = normal
	return row
}

// =============================================================================
// STEP 9 - RATE-PRIORITY QUEUE
// =============================================================================

// accelTarget is anything with an outstanding balance, an interest rate,
// and room to accept an acceleration payment. Facilities and the
// intercompany overdraft are slotted into one queue, sorted by rate
// descending: pay down the most expensive money first.
type accelTarget struct {
	key         string
	rate        decimal.Decimal
	headroom    Money
	isOverdraft bool
	facilityID  FacilityID
}

func allocateSurplusAcceleration(in WaterfallInputs, row *WaterfallRow, available Money) Money {
	budget := available.Mul(in.SweepPct)

	var targets []accelTarget
	for _, f := range in.Facilities {
		headroom := f.PreAccelClosing
		if sa, ok := row.SpecialAcceleration[f.ID]; ok {
			headroom = headroom.Sub(sa)
		}
		if headroom.IsPositive() {
			targets = append(targets, accelTarget{
				key:        string(f.ID),
				rate:       f.Rate,
				headroom:   headroom,
				facilityID: f.ID,
			})
		}
	}
	if in.OverdraftOutstanding.IsPositive() {
		targets = append(targets, accelTarget{
			key:         in.OverdraftKey,
			rate:        in.OverdraftRate,
			headroom:    in.OverdraftOutstanding,
			isOverdraft: true,
		})
	}

	sort.SliceStable(targets, func(a, b int) bool {
		return targets[a].rate.GreaterThan(targets[b].rate)
	})

	for _, t := range targets {
		if !budget.IsPositive() {
			break
		}
		amount := t.headroom.Min(budget).Min(available)
		if !amount.IsPositive() {
			continue
		}
		row.SurplusAcceleration[t.key] = amount
		if t.isOverdraft {
			row.OverdraftRepaid = row.OverdraftRepaid.Add(amount)
		}
		budget = budget.Sub(amount)
		available = available.Sub(amount)
	}
	return available
}

// allDebtRetired reports whether every interest-bearing balance reaches
// zero after this period's scheduled principal and accelerations.
func allDebtRetired(in WaterfallInputs, row WaterfallRow) bool {
	for _, f := range in.Facilities {
		remaining := f.PreAccelClosing
		if sa, ok := row.SpecialAcceleration[f.ID]; ok {
			remaining = remaining.Sub(sa)
		}
		if va, ok := row.SurplusAcceleration[string(f.ID)]; ok {
			remaining = remaining.Sub(va)
		}
		if !remaining.IsNegligible() {
			return false
		}
	}
	if in.OverdraftOutstanding.Sub(row.OverdraftRepaid).IsPositive() &&
		!in.OverdraftOutstanding.Sub(row.OverdraftRepaid).IsNegligible() {
		return false
	}
	return true
}

func orderBySeniority(facilities []FacilityDue) []FacilityDue {
	ordered := make([]FacilityDue, len(facilities))
	copy(ordered, facilities)
	sort.SliceStable(ordered, func(a, b int) bool {
		return ordered[a].Seniority == SenioritySenior && ordered[b].Seniority != SenioritySenior
	})
	return ordered
}
