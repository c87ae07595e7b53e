package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/meridian/waterfall-engine/engine"
)

func TestBuildPnL_OrderOfLines(t *testing.T) {
	// GIVEN: Revenue 5,000,000, opex 1,500,000, depreciation 2,000,000,
	//        interest 800,000, fd income 100,000, tax 27%
	// WHEN: Building the income statement
	// THEN: Each line follows from the one above; tax applies to the
	//       pre-tax profit

	pnl := engine.BuildPnL(engine.PnLInputs{
		Revenue:         zar(5_000_000),
		Opex:            zar(1_500_000),
		Depreciation:    zar(2_000_000),
		InterestExpense: zar(800_000),
		FDIncome:        zar(100_000),
		TaxRate:         rate(0.27),
	})

	assertAmount(t, "ebitda", pnl.EBITDA, 3_500_000)
	assertAmount(t, "ebit", pnl.EBIT, 1_500_000)
	assertAmount(t, "pbt", pnl.PreTaxProfit, 800_000)
	assertAmount(t, "tax", pnl.Tax, 216_000)
	assertAmount(t, "pat", pnl.AfterTaxProfit, 584_000)
}

func TestBuildPnL_NoTaxOnLosses(t *testing.T) {
	// GIVEN: A loss-making period
	// WHEN: Building the income statement
	// THEN: No tax accrues and the loss passes through untouched

	pnl := engine.BuildPnL(engine.PnLInputs{
		Revenue:         zar(1_000_000),
		Opex:            zar(900_000),
		Depreciation:    zar(500_000),
		InterestExpense: zar(300_000),
		FDIncome:        zar(0),
		TaxRate:         rate(0.27),
	})

	if !pnl.Tax.IsZero() {
		t.Errorf("expected zero tax on a loss, got %v", pnl.Tax.Value)
	}
	if !pnl.AfterTaxProfit.Value.Equal(decimal.NewFromInt(-700_000)) {
		t.Errorf("expected after-tax loss -700000, got %v", pnl.AfterTaxProfit.Value)
	}
}
