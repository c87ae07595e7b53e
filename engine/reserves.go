/*
reserves.go - The reserve account variants

VARIANTS:
  OperatingReserve:         accrues deposit interest; target is forward
                            opex coverage with a ramp-up look-ahead
  DebtServiceReserve:       target min(next senior P+I, senior balance);
                            interest accrual is a configuration choice
  MezzanineDividendReserve: accrues interest AND tracks a parallel accrued
                            dividend liability; its target IS that liability
  SurplusReserve:           accrues interest; no target (pure sink)

  IntercompanyAccount (not a Reserve, but reserve-like): the overdraft
  between two affiliated entities - an interest-bearing financial asset on
  the lender, a liability of identical balance on the borrower, and an
  accelerable instrument in the borrower's rate-priority queue.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// OPERATING RESERVE
// =============================================================================

// OperatingReserve covers a percentage of upcoming operating expenditure.
// Interest accrues at the local-currency deposit rate, semi-annually.
type OperatingReserve struct {
	ReserveID   ReserveID
	DepositRate decimal.Decimal // annual
	CoveragePct decimal.Decimal

	balance Money
}

func NewOperatingReserve(id ReserveID, currency Currency, depositRate, coveragePct decimal.Decimal) *OperatingReserve {
	return &OperatingReserve{ReserveID: id, DepositRate: depositRate, CoveragePct: coveragePct, balance: ZeroMoney(currency)}
}

func (r *OperatingReserve) ID() ReserveID { return r.ReserveID }
func (r *OperatingReserve) Kind() ReserveKind { return ReserveOperating }
func (r *OperatingReserve) Balance() Money { return r.balance }
func (r *OperatingReserve) AccruesInterest() bool { return true }

func (r *OperatingReserve) Accrue(ctx PeriodContext) ReserveAccrual {
	opening := r.balance
	interest := opening.Mul(semiAnnual(r.DepositRate))
	r.balance = opening.Add(interest)

	target := r.targetBasis(ctx).Mul(r.CoveragePct)
	return newAccrual(r.ReserveID, ReserveOperating, opening, interest, target)
}

// targetBasis implements the look-ahead rule: the target is normally based
// on next period's opex, but while current opex is still near zero (the
// pre-revenue ramp) the basis is the first non-zero opex on the horizon.
// Without this the reserve would target near-zero in the period immediately
// before ramp-up and then be short at the worst possible time.
func (r *OperatingReserve) targetBasis(ctx PeriodContext) Money {
	if len(ctx.OpexOutlook) == 0 {
		return ctx.CurrentOpex.Zero()
	}
	basis := ctx.OpexOutlook[0]
	if ctx.CurrentOpex.IsNegligible() {
		for _, opex := range ctx.OpexOutlook {
			if !opex.IsNegligible() {
				return opex
			}
		}
	}
	return basis
}

func (r *OperatingReserve) Deposit(amount Money) { r.balance = r.balance.Add(amount.ClampNonNegative()) }

func (r *OperatingReserve) Withdraw(amount Money) Money {
	taken := amount.ClampNonNegative().Min(r.balance)
	r.balance = r.balance.Sub(taken)
	return taken
}

// =============================================================================
// DEBT SERVICE RESERVE (DSRA)
// =============================================================================

// DebtServiceReserve is the contractually mandated cash account sized to
// cover the next senior debt-service payment. Whether it accrues deposit
// interest is a configuration choice, not a hard-coded assumption: the
// account may be a segregated non-interest-bearing contractual account or a
// deposit instrument in a different currency with its own rate.
type DebtServiceReserve struct {
	ReserveID       ReserveID
	AccrueInterest  bool
	DepositRate     decimal.Decimal // annual; ignored unless AccrueInterest

	balance Money
}

func NewDebtServiceReserve(id ReserveID, currency Currency, accrueInterest bool, depositRate decimal.Decimal) *DebtServiceReserve {
	return &DebtServiceReserve{ReserveID: id, AccrueInterest: accrueInterest, DepositRate: depositRate, balance: ZeroMoney(currency)}
}

func (r *DebtServiceReserve) ID() ReserveID { return r.ReserveID }
func (r *DebtServiceReserve) Kind() ReserveKind { return ReserveDebtService }
func (r *DebtServiceReserve) Balance() Money { return r.balance }
func (r *DebtServiceReserve) AccruesInterest() bool { return r.AccrueInterest }

func (r *DebtServiceReserve) Accrue(ctx PeriodContext) ReserveAccrual {
	opening := r.balance
	interest := opening.Zero()
	if r.AccrueInterest {
		interest = opening.Mul(semiAnnual(r.DepositRate))
		r.balance = opening.Add(interest)
	}

	// Collapses to zero once senior debt is fully repaid.
	target := ctx.NextSeniorDebtService.Min(ctx.SeniorOutstanding).ClampNonNegative()
	return newAccrual(r.ReserveID, ReserveDebtService, opening, interest, target)
}

func (r *DebtServiceReserve) Deposit(amount Money) { r.balance = r.balance.Add(amount.ClampNonNegative()) }

func (r *DebtServiceReserve) Withdraw(amount Money) Money {
	taken := amount.ClampNonNegative().Min(r.balance)
	r.balance = r.balance.Sub(taken)
	return taken
}

// =============================================================================
// MEZZANINE DIVIDEND RESERVE
// =============================================================================

// MezzanineDividendReserve plays two roles at once: an interest-bearing
// cash asset, and the tracker of an accruing dividend obligation that grows
// with the mezzanine facility's opening balance. The waterfall only ever
// reads the GAP between the two - never the raw balance or raw liability -
// to decide how much cash to push in.
type MezzanineDividendReserve struct {
	ReserveID    ReserveID
	DepositRate  decimal.Decimal // annual
	DividendRate decimal.Decimal // annual, applied to the mezz opening balance

	balance   Money
	liability Money
}

func NewMezzanineDividendReserve(id ReserveID, currency Currency, depositRate, dividendRate decimal.Decimal) *MezzanineDividendReserve {
	return &MezzanineDividendReserve{
		ReserveID:    id,
		DepositRate:  depositRate,
		DividendRate: dividendRate,
		balance:      ZeroMoney(currency),
		liability:    ZeroMoney(currency),
	}
}

func (r *MezzanineDividendReserve) ID() ReserveID { return r.ReserveID }
func (r *MezzanineDividendReserve) Kind() ReserveKind { return ReserveMezzanineDividend }
func (r *MezzanineDividendReserve) Balance() Money { return r.balance }
func (r *MezzanineDividendReserve) Liability() Money { return r.liability }
func (r *MezzanineDividendReserve) AccruesInterest() bool { return true }

func (r *MezzanineDividendReserve) Accrue(ctx PeriodContext) ReserveAccrual {
	opening := r.balance
	interest := opening.Mul(semiAnnual(r.DepositRate))
	r.balance = opening.Add(interest)

	// The obligation accrues independently of the cash balance.
	r.liability = r.liability.Add(ctx.MezzanineOpening.Mul(semiAnnual(r.DividendRate)))

	return newAccrual(r.ReserveID, ReserveMezzanineDividend, opening, interest, r.liability)
}

func (r *MezzanineDividendReserve) Deposit(amount Money) {
	r.balance = r.balance.Add(amount.ClampNonNegative())
}

func (r *MezzanineDividendReserve) Withdraw(amount Money) Money {
	taken := amount.ClampNonNegative().Min(r.balance)
	r.balance = r.balance.Sub(taken)
	return taken
}

// PayDividend settles up to amount of the accrued obligation from the
// reserve's cash, reducing balance and liability together. Returns the
// amount actually paid.
func (r *MezzanineDividendReserve) PayDividend(amount Money) Money {
	payable := amount.ClampNonNegative().Min(r.balance).Min(r.liability)
	r.balance = r.balance.Sub(payable)
	r.liability = r.liability.Sub(payable)
	return payable
}

// =============================================================================
// ENTITY SURPLUS RESERVE
// =============================================================================

// SurplusReserve is the terminal sink: it has no target and fills with all
// remaining cash once every interest-bearing debt balance is zero.
type SurplusReserve struct {
	ReserveID   ReserveID
	DepositRate decimal.Decimal // annual

	balance Money
}

func NewSurplusReserve(id ReserveID, currency Currency, depositRate decimal.Decimal) *SurplusReserve {
	return &SurplusReserve{ReserveID: id, DepositRate: depositRate, balance: ZeroMoney(currency)}
}

func (r *SurplusReserve) ID() ReserveID { return r.ReserveID }
func (r *SurplusReserve) Kind() ReserveKind { return ReserveSurplus }
func (r *SurplusReserve) Balance() Money { return r.balance }
func (r *SurplusReserve) AccruesInterest() bool { return true }

func (r *SurplusReserve) Accrue(ctx PeriodContext) ReserveAccrual {
	opening := r.balance
	interest := opening.Mul(semiAnnual(r.DepositRate))
	r.balance = opening.Add(interest)
	return newAccrual(r.ReserveID, ReserveSurplus, opening, interest, opening.Zero())
}

func (r *SurplusReserve) Deposit(amount Money) { r.balance = r.balance.Add(amount.ClampNonNegative()) }

func (r *SurplusReserve) Withdraw(amount Money) Money {
	taken := amount.ClampNonNegative().Min(r.balance)
	r.balance = r.balance.Sub(taken)
	return taken
}

// =============================================================================
// INTERCOMPANY OVERDRAFT ACCOUNT
// =============================================================================

// IntercompanyAccount is one side of the overdraft facility between two
// affiliated entities. The lender holds it as a financial asset earning the
// intercompany rate; the borrower holds a liability of identical balance.
// Interest capitalizes into the balance each period; cash only moves on
// Advance (lender -> borrower) and Repay (borrower -> lender). Both sides
// follow the same recurrence, which is what makes elimination exact.
type IntercompanyAccount struct {
	Key        string
	AnnualRate decimal.Decimal

	balance Money
}

func NewIntercompanyAccount(key string, currency Currency, annualRate decimal.Decimal) *IntercompanyAccount {
	return &IntercompanyAccount{Key: key, AnnualRate: annualRate, balance: ZeroMoney(currency)}
}

func (a *IntercompanyAccount) Balance() Money { return a.balance }

// AccrueInterest rolls the balance one period and returns the interest.
// On the lender this is fd-style income; on the borrower, interest expense.
func (a *IntercompanyAccount) AccrueInterest() Money {
	interest := a.balance.Mul(semiAnnual(a.AnnualRate))
	a.balance = a.balance.Add(interest)
	return interest
}

// Advance increases the outstanding balance (a new drawdown).
func (a *IntercompanyAccount) Advance(amount Money) {
	a.balance = a.balance.Add(amount.ClampNonNegative())
}

// Repay reduces the outstanding balance, clamped at zero; the excess is
// returned for the caller to route to the next instrument in the queue.
func (a *IntercompanyAccount) Repay(amount Money) (applied Money, excess Money) {
	applied = amount.ClampNonNegative().Min(a.balance)
	excess = amount.ClampNonNegative().Sub(applied)
	a.balance = a.balance.Sub(applied)
	return applied, excess
}
