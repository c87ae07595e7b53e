/*
reserve.go - Reserve accrual contract

PURPOSE:
  Defines the uniform contract every reserve account variant implements:
  Accrue(PeriodContext) -> ReserveAccrual. The accrual is a value object the
  P&L and waterfall both read; the reserve's balance is only mutated through
  Deposit/Withdraw, which the loop drives from the waterfall row.

ORDERING IS LOAD-BEARING:
  Accrue must run BEFORE the period's P&L is built - the P&L's fd income is
  the sum of these accruals' InterestEarned, never an approximation from a
  cash balance or a hard-coded rate.

KEY INVARIANT:
  For every accrual produced, min(FundingGap, ReleasableExcess) == 0.
*/
package engine

// =============================================================================
// RESERVE ACCRUAL - Value object returned by Accrue
// =============================================================================

type ReserveKind string

const (
	ReserveOperating         ReserveKind = "operating"
	ReserveDebtService       ReserveKind = "dsra"
	ReserveMezzanineDividend ReserveKind = "mezzanine_dividend"
	ReserveSurplus           ReserveKind = "surplus"
)

type ReserveAccrual struct {
	ReserveID ReserveID
	Kind      ReserveKind

	OpeningBalance       Money
	InterestEarned       Money
	BalanceAfterInterest Money

	TargetBalance    Money
	FundingGap       Money
	ReleasableExcess Money
}

// newAccrual centralizes the gap/excess derivation so the mutual-exclusion
// invariant holds by construction.
func newAccrual(id ReserveID, kind ReserveKind, opening, interest, target Money) ReserveAccrual {
	after := opening.Add(interest)
	return ReserveAccrual{
		ReserveID:            id,
		Kind:                 kind,
		OpeningBalance:       opening,
		InterestEarned:       interest,
		BalanceAfterInterest: after,
		TargetBalance:        target,
		FundingGap:           target.Sub(after).ClampNonNegative(),
		ReleasableExcess:     after.Sub(target).ClampNonNegative(),
	}
}

// =============================================================================
// PERIOD CONTEXT - What a reserve may read when accruing
// =============================================================================

// PeriodContext supplies whatever each variant needs. Fields a variant does
// not use are simply ignored; none of the variants fail - they produce
// degenerate-but-valid accruals (e.g. target zero) as debt retires.
type PeriodContext struct {
	PeriodIndex int

	// Operating reserve inputs.
	CurrentOpex Money
	OpexOutlook []Money // next period onward, for the look-ahead rule

	// DSRA inputs, from the staged (pre-acceleration) facility state.
	NextSeniorDebtService Money
	SeniorOutstanding     Money

	// Mezzanine dividend reserve input.
	MezzanineOpening Money
}

// =============================================================================
// RESERVE - Stateful account
// =============================================================================

type Reserve interface {
	ID() ReserveID
	Kind() ReserveKind
	Balance() Money

	// AccruesInterest reports whether this account contributes fd income.
	AccruesInterest() bool

	// Accrue rolls the balance forward one period and returns the accrual.
	// Must be called exactly once per period, before the P&L is built.
	Accrue(ctx PeriodContext) ReserveAccrual

	// Deposit adds waterfall-allocated cash to the balance.
	Deposit(amount Money)

	// Withdraw removes up to amount from the balance, clamped at zero, and
	// returns what was actually withdrawn.
	Withdraw(amount Money) Money
}
