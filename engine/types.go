/*
Package engine provides the core project-finance simulation engine.

PURPOSE:
  This package contains the per-period cash-waterfall machinery for a single
  legal entity: debt-facility amortization, self-accruing reserve accounts,
  income-statement construction, the ordered cash-allocation waterfall, and
  the period loop that wires them together.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: A currency-tagged decimal quantity (see money.go for arithmetic)
  - Entity/Facility/Reserve IDs: Type-safe identifiers
  - Tolerance: The reconciliation tolerance used across the engine

DESIGN PRINCIPLES:
  1. Determinism: Same configuration always produces byte-identical results
  2. Precision: Uses decimal.Decimal to avoid floating-point drift across
     many compounding periods
  3. Strict ordering: Within a period, reserves accrue before the P&L is
     built, the P&L is built before the waterfall runs, and facilities are
     finalized last
  4. Read-only allocation: The waterfall never mutates state; it produces a
     row of allocation amounts that the loop applies

SEE ALSO:
  - facility.go:  Debt tranche amortization
  - reserves.go:  The reserve account variants
  - waterfall.go: The allocation cascade
  - loop.go:      The per-entity period loop
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EntityID string
type FacilityID string
type ReserveID string

// =============================================================================
// TOLERANCE
// =============================================================================

// Tolerance is the absolute reconciliation tolerance: one hundredth of the
// reporting currency's smallest displayed unit. The DSRA funded-check, the
// balance-sheet identity, and the DSCR denominators all use it to avoid
// false negatives from accumulated rounding across compounding periods.
var Tolerance = decimal.NewFromFloat(0.01)

// Two returns the decimal constant 2, used for semi-annual rate halving.
func two() decimal.Decimal { return decimal.NewFromInt(2) }

// semiAnnual halves an annual rate. All facilities and deposit instruments
// in this engine compound semi-annually.
func semiAnnual(annualRate decimal.Decimal) decimal.Decimal {
	return annualRate.Div(two())
}
