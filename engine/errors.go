/*
errors.go - Centralized error types for the simulation engine

PURPOSE:
  All engine error types in one place. The error taxonomy separates fatal
  wiring defects from recoverable cash-constrained conditions:

  1. Configuration errors - malformed inputs, fail fast before any period
     is simulated
  2. Identity violations - the balance sheet fails to reconcile; always a
     wiring defect, never tolerated or averaged away
  3. Intercompany asymmetry - lender asset and borrower liability diverge;
     same severity as an identity violation

  Allocation overflow and negative-balance attempts are NOT errors: they are
  expected edge cases of cash-constrained periods, recovered locally by
  clamping and recorded as explicit reconciliation entries on the waterfall
  row.

USAGE:
  Callers can classify with errors.Is:

    if errors.Is(err, engine.ErrIdentityViolation) {
        // surface the structured diagnostic
    }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidConfig is returned when facility or reserve parameters are
	// missing or malformed. No period is simulated; rates and targets are
	// never silently defaulted to zero.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrIdentityViolation is returned when the balance-sheet identity
	// fails beyond tolerance for some entity-period. This is the fatal
	// class for this system: it indicates a wiring defect, such as fd
	// income not matching the actual reserve accruals.
	ErrIdentityViolation = errors.New("balance sheet identity violation")

	// ErrIntercompanyAsymmetry is returned when the lender's intercompany
	// asset and the borrower's liability diverge beyond tolerance.
	ErrIntercompanyAsymmetry = errors.New("intercompany balance asymmetry")

	// ErrEntityNotFound is returned when a referenced entity does not exist
	// in the group configuration.
	ErrEntityNotFound = errors.New("entity not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the three-way trace
// =============================================================================

// ConfigError names the offending entity and field.
type ConfigError struct {
	EntityID EntityID
	Field    string
	Detail   string
}

func (e *ConfigError) Error() string {
	if e.EntityID == "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Detail)
	}
	return fmt.Sprintf("invalid configuration for %s: %s: %s", e.EntityID, e.Field, e.Detail)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// IdentityError reports a balance-sheet reconciliation failure with the
// specific quantities that failed to reconcile, e.g.
// "nwl period 7: assets 120,4 vs debt+equity+retained 120,9 - mismatch 0,5".
type IdentityError struct {
	EntityID EntityID
	Period   int
	Assets   Money
	Claims   Money // debt + equity + retained earnings side
	Mismatch Money
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s period %d: assets %s %v vs claims %s %v - mismatch %s %v",
		e.EntityID, e.Period,
		e.Assets.Currency, e.Assets.Value.Round(2),
		e.Claims.Currency, e.Claims.Value.Round(2),
		e.Mismatch.Currency, e.Mismatch.Value.Round(2))
}

func (e *IdentityError) Unwrap() error { return ErrIdentityViolation }

// AsymmetryError reports a lender/borrower intercompany balance mismatch.
type AsymmetryError struct {
	LenderID   EntityID
	BorrowerID EntityID
	Period     int
	Asset      Money
	Liability  Money
}

func (e *AsymmetryError) Error() string {
	return fmt.Sprintf("period %d: %s intercompany asset %v != %s intercompany liability %v",
		e.Period, e.LenderID, e.Asset.Value.Round(2), e.BorrowerID, e.Liability.Value.Round(2))
}

func (e *AsymmetryError) Unwrap() error { return ErrIntercompanyAsymmetry }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true for errors that must abort the affected entity's run.
func IsFatal(err error) bool {
	return errors.Is(err, ErrIdentityViolation) ||
		errors.Is(err, ErrIntercompanyAsymmetry) ||
		errors.Is(err, ErrInvalidConfig)
}
