/*
facility.go - Debt tranche amortization state

PURPOSE:
  Tracks one debt facility (senior or mezzanine) across periods: interest
  accrual, scheduled principal on a constant-payment (annuity) schedule,
  interest-during-construction capitalization during the grace window, and
  acceleration with re-amortization.

SCHEDULE SHAPE:
  Periods [0, GracePeriods) are construction periods: no cash debt service,
  interest capitalizes into the balance (IDC). From the first amortizing
  period, a constant payment is derived so the facility retires exactly at
  TermPeriods. After any acceleration the payment is re-derived over the
  REMAINING periods - the term never extends, the payment shrinks.

TWO-PHASE PERIOD PROTOCOL:
  ComputePeriod(i) stages the scheduled row (read by the P&L and the
  waterfall); FinalizePeriod(i, accel) applies the waterfall's acceleration
  decision and commits the row. The loop enforces this ordering.

FAILURE SEMANTICS:
  Acceleration beyond the pre-acceleration closing balance is clamped; the
  excess is returned to the caller, which must route it to the next
  instrument in the rate-priority queue rather than discard it.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// FACILITY CONFIGURATION
// =============================================================================

type FacilitySeniority string

const (
	SenioritySenior    FacilitySeniority = "senior"
	SeniorityMezzanine FacilitySeniority = "mezzanine"
)

type FacilityConfig struct {
	ID         FacilityID
	Name       string
	Seniority  FacilitySeniority
	Principal  Money
	AnnualRate decimal.Decimal

	// TermPeriods is the total contractual life in semi-annual periods,
	// including the grace window. The balance must be zero at period
	// TermPeriods-1's close.
	TermPeriods  int
	GracePeriods int
}

// =============================================================================
// FACILITY PERIOD - One schedule row
// =============================================================================

type FacilityPeriod struct {
	FacilityID     FacilityID
	PeriodIndex    int
	OpeningBalance Money

	// InterestAccrued is the full interest for the period. During grace it
	// equals IDC and is capitalized; afterwards it is due in cash.
	InterestAccrued Money

	// IDC is interest capitalized into the balance (grace periods only).
	IDC Money

	PrincipalPaid    Money
	TotalDebtService Money // cash interest + scheduled principal

	PreAccelClosing Money
	Acceleration    Money
	ClosingBalance  Money
}

// CashInterest is the interest portion payable from cash this period
// (zero during grace, when interest capitalizes instead).
func (fp FacilityPeriod) CashInterest() Money {
	return fp.InterestAccrued.Sub(fp.IDC)
}

// =============================================================================
// FACILITY - Stateful amortization
// =============================================================================

type Facility struct {
	Config FacilityConfig

	balance Money
	payment Money // constant payment; re-derived after acceleration
	history []FacilityPeriod
	staged  *FacilityPeriod
}

func NewFacility(cfg FacilityConfig) *Facility {
	return &Facility{
		Config:  cfg,
		balance: cfg.Principal,
		payment: cfg.Principal.Zero(),
	}
}

func (f *Facility) Balance() Money { return f.balance }
func (f *Facility) History() []FacilityPeriod { return f.history }

func (f *Facility) periodRate() decimal.Decimal {
	return semiAnnual(f.Config.AnnualRate)
}

// ComputePeriod stages the scheduled row for period i from the prior
// period's closing balance. It does not commit state; FinalizePeriod does.
func (f *Facility) ComputePeriod(i int) FacilityPeriod {
	opening := f.balance
	interest := opening.Mul(f.periodRate())

	fp := FacilityPeriod{
		FacilityID:      f.Config.ID,
		PeriodIndex:     i,
		OpeningBalance:  opening,
		InterestAccrued: interest,
	}

	switch {
	case i >= f.Config.TermPeriods || opening.IsZero():
		// Beyond maturity, or fully repaid: nothing accrues or amortizes.
		fp.InterestAccrued = opening.Zero()
		fp.PreAccelClosing = opening

	case i < f.Config.GracePeriods:
		// Construction window: interest capitalizes, no cash service.
		fp.IDC = interest
		fp.PreAccelClosing = opening.Add(interest)

	default:
		if f.payment.IsZero() {
			f.payment = annuityPayment(opening, f.periodRate(), f.Config.TermPeriods-i)
		}
		principal := f.payment.Sub(interest).ClampNonNegative()
		// The final contractual period retires whatever remains; rounding
		// drift from the annuity derivation lands here, inside tolerance.
		if i == f.Config.TermPeriods-1 || principal.GreaterThan(opening) {
			principal = opening
		}
		fp.PrincipalPaid = principal
		fp.TotalDebtService = interest.Add(principal)
		fp.PreAccelClosing = opening.Sub(principal)
	}

	fp.ClosingBalance = fp.PreAccelClosing
	f.staged = &fp
	return fp
}

// FinalizePeriod applies the waterfall's acceleration decision for period i
// and commits the row. Acceleration beyond the pre-acceleration closing
// balance is clamped; the excess is returned for the caller to reroute.
// After any acceleration the constant payment is re-derived over the
// remaining periods so the facility still retires at its contractual
// maturity.
func (f *Facility) FinalizePeriod(i int, acceleration Money) (applied Money, excess Money) {
	fp := f.staged
	if fp == nil || fp.PeriodIndex != i {
		fp = &FacilityPeriod{FacilityID: f.Config.ID, PeriodIndex: i, OpeningBalance: f.balance, PreAccelClosing: f.balance}
	}

	applied = acceleration.ClampNonNegative().Min(fp.PreAccelClosing)
	excess = acceleration.ClampNonNegative().Sub(applied)

	fp.Acceleration = applied
	fp.ClosingBalance = fp.PreAccelClosing.Sub(applied)
	f.balance = fp.ClosingBalance

	if applied.IsPositive() {
		remaining := f.Config.TermPeriods - (i + 1)
		if remaining > 0 && f.balance.IsPositive() {
			f.payment = annuityPayment(f.balance, f.periodRate(), remaining)
		} else {
			f.payment = f.balance.Zero()
		}
	}
	if f.balance.IsZero() {
		f.payment = f.balance.Zero()
	}

	f.history = append(f.history, *fp)
	f.staged = nil
	return applied, excess
}

// EstimateNextDebtService projects period i+1's scheduled interest plus
// principal from the currently staged state. The DSRA reads this before the
// waterfall runs; the estimate is refined next period once acceleration has
// been applied and targets are reset from finalized state.
func (f *Facility) EstimateNextDebtService(i int) Money {
	next := i + 1
	if next >= f.Config.TermPeriods {
		return f.balance.Zero()
	}
	balance := f.balance
	if f.staged != nil && f.staged.PeriodIndex == i {
		balance = f.staged.PreAccelClosing
	}
	if balance.IsZero() || next < f.Config.GracePeriods {
		return balance.Zero()
	}
	payment := f.payment
	if payment.IsZero() {
		payment = annuityPayment(balance, f.periodRate(), f.Config.TermPeriods-next)
	}
	// Final-period service is the remaining balance plus its interest.
	interest := balance.Mul(f.periodRate())
	return payment.Min(balance.Add(interest))
}

// =============================================================================
// ANNUITY MATH
// =============================================================================

// annuityPayment derives the constant per-period payment that amortizes
// principal to zero over n periods at the given periodic rate.
func annuityPayment(principal Money, rate decimal.Decimal, n int) Money {
	if n <= 0 {
		return principal
	}
	if rate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(n)))
	}
	// P * r * (1+r)^n / ((1+r)^n - 1)
	one := decimal.NewFromInt(1)
	factor := one.Add(rate).Pow(decimal.NewFromInt(int64(n)))
	numerator := principal.Value.Mul(rate).Mul(factor)
	denominator := factor.Sub(one)
	return Money{Value: numerator.Div(denominator), Currency: principal.Currency}
}
