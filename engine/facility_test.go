package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/meridian/waterfall-engine/engine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func zar(v float64) engine.Money {
	return engine.NewMoney(v, engine.CurrencyZAR)
}

func rate(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// runToMaturity computes and finalizes every period with no acceleration.
func runToMaturity(f *engine.Facility, periods int) []engine.FacilityPeriod {
	for i := 0; i < periods; i++ {
		f.ComputePeriod(i)
		f.FinalizePeriod(i, zar(0))
	}
	return f.History()
}

func seniorFacility(principal float64, annualRate float64, term, grace int) *engine.Facility {
	return engine.NewFacility(engine.FacilityConfig{
		ID:           "fac-1",
		Seniority:    engine.SenioritySenior,
		Principal:    zar(principal),
		AnnualRate:   rate(annualRate),
		TermPeriods:  term,
		GracePeriods: grace,
	})
}

// =============================================================================
// GRACE WINDOW / IDC
// =============================================================================

func TestFacility_GracePeriod_CapitalizesInterest(t *testing.T) {
	// GIVEN: 1,000,000 at 10% annual (5% semi-annual), 2 grace periods
	// WHEN: Computing period 0
	// THEN: 50,000 of IDC capitalizes into the balance, no cash service

	f := seniorFacility(1_000_000, 0.10, 10, 2)

	fp := f.ComputePeriod(0)

	if !fp.IDC.Value.Equal(decimal.NewFromInt(50_000)) {
		t.Errorf("expected IDC 50000, got %v", fp.IDC.Value)
	}
	if !fp.CashInterest().IsZero() {
		t.Errorf("expected no cash interest during grace, got %v", fp.CashInterest().Value)
	}
	if !fp.TotalDebtService.IsZero() {
		t.Errorf("expected no debt service during grace, got %v", fp.TotalDebtService.Value)
	}
	if !fp.PreAccelClosing.Value.Equal(decimal.NewFromInt(1_050_000)) {
		t.Errorf("expected closing 1050000, got %v", fp.PreAccelClosing.Value)
	}
}

func TestFacility_IDC_CompoundsAcrossGraceWindow(t *testing.T) {
	// GIVEN: 1,000,000 at 10% annual, 2 grace periods
	// WHEN: Finalizing both grace periods
	// THEN: Period 1 IDC accrues on the already-capitalized balance

	f := seniorFacility(1_000_000, 0.10, 10, 2)

	f.ComputePeriod(0)
	f.FinalizePeriod(0, zar(0))
	fp := f.ComputePeriod(1)

	if !fp.IDC.Value.Equal(decimal.NewFromInt(52_500)) {
		t.Errorf("expected compounded IDC 52500, got %v", fp.IDC.Value)
	}
}

// =============================================================================
// AMORTIZATION
// =============================================================================

func TestFacility_Amortization_RetiresExactlyAtMaturity(t *testing.T) {
	// GIVEN: A facility with a grace window and an annuity schedule
	// WHEN: Running every period with no acceleration
	// THEN: The balance is exactly zero at the final contractual period

	f := seniorFacility(10_000_000, 0.09, 12, 3)

	history := runToMaturity(f, 12)

	if !f.Balance().IsZero() {
		t.Fatalf("expected zero balance at maturity, got %v", f.Balance().Value)
	}
	last := history[11]
	if !last.ClosingBalance.IsZero() {
		t.Errorf("expected zero closing in final period, got %v", last.ClosingBalance.Value)
	}
}

func TestFacility_Amortization_PrincipalGrowsAsInterestShrinks(t *testing.T) {
	// GIVEN: A plain annuity schedule, no grace
	// WHEN: Comparing consecutive amortizing periods
	// THEN: Each period pays more principal and less interest than the last

	f := seniorFacility(5_000_000, 0.08, 10, 0)

	history := runToMaturity(f, 10)

	for i := 1; i < len(history); i++ {
		if !history[i].PrincipalPaid.GreaterThan(history[i-1].PrincipalPaid) {
			t.Errorf("period %d: expected principal to grow, got %v then %v",
				i, history[i-1].PrincipalPaid.Value, history[i].PrincipalPaid.Value)
		}
		if !history[i].InterestAccrued.LessThan(history[i-1].InterestAccrued) {
			t.Errorf("period %d: expected interest to shrink", i)
		}
	}
}

func TestFacility_ZeroRate_AmortizesLinearly(t *testing.T) {
	// GIVEN: A zero-rate facility over 4 periods
	// WHEN: Running to maturity
	// THEN: Principal splits evenly, no interest accrues

	f := seniorFacility(1_000_000, 0, 4, 0)

	history := runToMaturity(f, 4)

	for i, fp := range history {
		if !fp.InterestAccrued.IsZero() {
			t.Errorf("period %d: expected zero interest, got %v", i, fp.InterestAccrued.Value)
		}
		if !fp.PrincipalPaid.Value.Equal(decimal.NewFromInt(250_000)) {
			t.Errorf("period %d: expected principal 250000, got %v", i, fp.PrincipalPaid.Value)
		}
	}
}

// =============================================================================
// ACCELERATION
// =============================================================================

func TestFacility_Acceleration_ShrinksPaymentNotTerm(t *testing.T) {
	// GIVEN: An amortizing facility
	// WHEN: Accelerating 2,000,000 in period 2
	// THEN: The next period's scheduled service is smaller, and the balance
	//       still reaches exactly zero at the contractual final period

	f := seniorFacility(10_000_000, 0.10, 8, 0)

	f.ComputePeriod(0)
	f.FinalizePeriod(0, zar(0))
	f.ComputePeriod(1)
	f.FinalizePeriod(1, zar(0))
	serviceBefore := f.EstimateNextDebtService(1)

	f.ComputePeriod(2)
	f.FinalizePeriod(2, zar(2_000_000))
	serviceAfter := f.EstimateNextDebtService(2)

	if !serviceAfter.LessThan(serviceBefore) {
		t.Errorf("expected re-amortized service below %v, got %v",
			serviceBefore.Value, serviceAfter.Value)
	}

	for i := 3; i < 8; i++ {
		f.ComputePeriod(i)
		f.FinalizePeriod(i, zar(0))
	}
	if !f.Balance().IsZero() {
		t.Errorf("expected zero balance at maturity after acceleration, got %v", f.Balance().Value)
	}
}

func TestFacility_Acceleration_ClampsAtBalanceAndReturnsExcess(t *testing.T) {
	// GIVEN: A facility whose pre-acceleration closing is 1,000,000
	// WHEN: Finalizing with an acceleration of 1,500,000
	// THEN: Only the balance is applied; the 500,000 excess comes back for
	//       the caller to route to the next instrument in the queue

	f := seniorFacility(1_000_000, 0.10, 6, 6-1) // long grace, balance barely moves
	fp := f.ComputePeriod(0)

	applied, excess := f.FinalizePeriod(0, fp.PreAccelClosing.Add(zar(500_000)))

	if !applied.Value.Equal(fp.PreAccelClosing.Value) {
		t.Errorf("expected applied %v, got %v", fp.PreAccelClosing.Value, applied.Value)
	}
	if !excess.Value.Equal(decimal.NewFromInt(500_000)) {
		t.Errorf("expected excess 500000, got %v", excess.Value)
	}
	if !f.Balance().IsZero() {
		t.Errorf("expected zero balance after full acceleration, got %v", f.Balance().Value)
	}
}

func TestFacility_Acceleration_FullRepaymentEndsSchedule(t *testing.T) {
	// GIVEN: An amortizing facility fully accelerated in period 1
	// WHEN: Computing the remaining periods
	// THEN: Nothing accrues or amortizes on the retired facility

	f := seniorFacility(3_000_000, 0.12, 6, 0)

	f.ComputePeriod(0)
	f.FinalizePeriod(0, zar(0))
	fp := f.ComputePeriod(1)
	f.FinalizePeriod(1, fp.PreAccelClosing)

	later := f.ComputePeriod(2)
	if !later.InterestAccrued.IsZero() || !later.TotalDebtService.IsZero() {
		t.Errorf("expected retired facility to stay silent, got interest %v service %v",
			later.InterestAccrued.Value, later.TotalDebtService.Value)
	}
}
