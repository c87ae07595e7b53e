package group_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/meridian/waterfall-engine/engine"
	"github.com/meridian/waterfall-engine/group"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

const horizon = 8

func zar(v float64) engine.Money {
	return engine.NewMoney(v, engine.CurrencyZAR)
}

func rate(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func series(from int, amount float64) []engine.Money {
	out := make([]engine.Money, horizon)
	for i := range out {
		if i >= from {
			out[i] = zar(amount)
		} else {
			out[i] = zar(0)
		}
	}
	return out
}

// borrowerEntity cannot cover its scheduled service and needs the overdraft.
func borrowerEntity() engine.EntityConfig {
	return engine.EntityConfig{
		ID:            "nwl",
		Name:          "Water Utility",
		Currency:      engine.CurrencyZAR,
		Periods:       horizon,
		TaxRate:       rate(0.27),
		DepositRate:   rate(0.05),
		SweepPct:      rate(0.5),
		InitialEquity: zar(10_000_000),
		Revenue:       series(2, 4_000_000),
		Opex:          series(2, 1_200_000),
		Depreciation:  series(2, 3_000_000),
		Facilities: []engine.FacilityConfig{{
			ID:           "nwl-senior",
			Seniority:    engine.SenioritySenior,
			Principal:    zar(20_000_000),
			AnnualRate:   rate(0.10),
			TermPeriods:  8,
			GracePeriods: 2,
		}},
		Reserves: engine.ReserveParams{OperatingCoveragePct: rate(0.5)},
	}
}

// lenderEntity throws off enough surplus to fund the borrower's deficits.
func lenderEntity() engine.EntityConfig {
	return engine.EntityConfig{
		ID:            "gre",
		Name:          "Energy Company",
		Currency:      engine.CurrencyZAR,
		Periods:       horizon,
		TaxRate:       rate(0.27),
		DepositRate:   rate(0.05),
		SweepPct:      rate(0.5),
		InitialEquity: zar(15_000_000),
		Revenue:       series(1, 8_000_000),
		Opex:          series(1, 1_500_000),
		Depreciation:  series(1, 2_500_000),
		Facilities: []engine.FacilityConfig{{
			ID:           "gre-senior",
			Seniority:    engine.SenioritySenior,
			Principal:    zar(10_000_000),
			AnnualRate:   rate(0.09),
			TermPeriods:  8,
			GracePeriods: 1,
		}},
		Reserves: engine.ReserveParams{OperatingCoveragePct: rate(0.5)},
	}
}

func linkedGroup() group.GroupConfig {
	return group.GroupConfig{
		Name:     "test-group",
		Entities: []engine.EntityConfig{lenderEntity(), borrowerEntity()},
		Intercompany: &group.Link{
			LenderID:   "gre",
			BorrowerID: "nwl",
			AnnualRate: rate(0.08),
			Key:        "gre-nwl-odr",
		},
	}
}

// =============================================================================
// INTERCOMPANY RESOLUTION
// =============================================================================

func TestRun_OverdraftPositionsMirrorEveryPeriod(t *testing.T) {
	// GIVEN: A lender/borrower pair where the borrower runs deficits
	// WHEN: Running the group
	// THEN: Advances actually happen, and the lender's overdraft asset
	//       equals the borrower's liability in every period

	res, err := group.Run(linkedGroup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lender := res.Entities["gre"]
	borrower := res.Entities["nwl"]
	assets := lender.IntercompanyBalances()
	liabilities := borrower.IntercompanyBalances()

	sawAdvance := false
	for p := 0; p < horizon; p++ {
		if assets[p].IsPositive() {
			sawAdvance = true
		}
		if !assets[p].WithinTolerance(liabilities[p]) {
			t.Errorf("period %d: lender asset %v != borrower liability %v",
				p, assets[p].Value, liabilities[p].Value)
		}
	}
	if !sawAdvance {
		t.Error("expected the lender to advance at least once")
	}
}

func TestRun_AdvancesReduceBorrowerArrears(t *testing.T) {
	// GIVEN: The borrower's standalone run as a baseline
	// WHEN: Running the same borrower inside the linked group
	// THEN: The overdraft advances cover scheduled service the standalone
	//       run missed, so terminal arrears are strictly lower

	standalone, err := engine.RunEntity(borrowerEntity(), nil)
	if err != nil {
		t.Fatalf("standalone run: %v", err)
	}
	res, err := group.Run(linkedGroup())
	if err != nil {
		t.Fatalf("group run: %v", err)
	}

	last := horizon - 1
	standaloneArrears := standalone.Periods[last].Balance.Arrears
	linkedArrears := res.Entities["nwl"].Periods[last].Balance.Arrears

	if !standaloneArrears.IsPositive() {
		t.Fatal("fixture defect: standalone borrower should accumulate arrears")
	}
	if !linkedArrears.LessThan(standaloneArrears) {
		t.Errorf("expected linked arrears below %v, got %v",
			standaloneArrears.Value, linkedArrears.Value)
	}
}

func TestRun_LenderBooksOverdraftInterestAsFDIncome(t *testing.T) {
	// GIVEN: The linked group with a positive overdraft balance
	// WHEN: Inspecting a period after the first advance
	// THEN: The lender's intercompany interest is positive and appears in
	//       its fd income above the reserve accrual alone

	res, err := group.Run(linkedGroup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lender := res.Entities["gre"]
	sawInterest := false
	for _, p := range lender.Periods {
		if !p.IntercompanyInterest.IsPositive() {
			continue
		}
		sawInterest = true
		expected := p.Accruals.Interest().Add(p.IntercompanyInterest)
		if !p.PnL.FDIncome.Value.Equal(expected.Value) {
			t.Errorf("period %d: fd income %v != reserve interest + overdraft interest %v",
				p.Index, p.PnL.FDIncome.Value, expected.Value)
		}
	}
	if !sawInterest {
		t.Error("expected overdraft interest to accrue at least once")
	}
}

func TestRun_StandaloneEntityMatchesDirectRun(t *testing.T) {
	// GIVEN: A third entity outside the intercompany link
	// WHEN: Running it inside the group and directly
	// THEN: The two results are deeply equal

	third := borrowerEntity()
	third.ID = "tmb"
	third.Name = "Timber Estate"
	third.Facilities[0].ID = "tmb-senior"

	cfg := linkedGroup()
	cfg.Entities = append(cfg.Entities, third)

	res, err := group.Run(cfg)
	if err != nil {
		t.Fatalf("group run: %v", err)
	}
	direct, err := engine.RunEntity(third, nil)
	if err != nil {
		t.Fatalf("direct run: %v", err)
	}

	if !reflect.DeepEqual(res.Entities["tmb"], direct) {
		t.Error("expected the unlinked entity's group result to match its direct run")
	}
}

// =============================================================================
// CONSOLIDATION
// =============================================================================

func TestConsolidate_OverdraftEliminatesToZero(t *testing.T) {
	// GIVEN: The linked group result
	// WHEN: Inspecting the consolidated view
	// THEN: The eliminated balance nets to zero each period, and the
	//       eliminated interest leaves group after-tax profit equal to the
	//       plain sum of the entity profits

	res, err := group.Run(linkedGroup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, cp := range res.Consolidated.Periods {
		if !cp.EliminatedBalance.WithinTolerance(zar(0)) {
			t.Errorf("period %d: eliminated balance %v should net to zero",
				cp.Index, cp.EliminatedBalance.Value)
		}

		entitySum := zar(0)
		icInterest := zar(0)
		for _, id := range res.Order {
			rec := res.Entities[id].Periods[cp.Index]
			entitySum = entitySum.Add(rec.PnL.AfterTaxProfit)
			if id == "gre" {
				icInterest = rec.IntercompanyInterest
			}
		}
		if !cp.AfterTaxProfit.Value.Equal(entitySum.Value) {
			t.Errorf("period %d: consolidated pat %v != entity sum %v",
				cp.Index, cp.AfterTaxProfit.Value, entitySum.Value)
		}
		if !cp.EliminatedInterest.Value.Equal(icInterest.Value) {
			t.Errorf("period %d: eliminated interest %v != lender overdraft interest %v",
				cp.Index, cp.EliminatedInterest.Value, icInterest.Value)
		}
	}
}

func TestConsolidate_DSCRMetrics(t *testing.T) {
	// GIVEN: The linked group result
	// WHEN: Inspecting periods with debt service due
	// THEN: The minimum DSCR names an entity and never exceeds the
	//       debt-service-weighted group DSCR

	res, err := group.Run(linkedGroup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	covered := 0
	for _, cp := range res.Consolidated.Periods {
		if !cp.HasDSCRCoverage {
			continue
		}
		covered++
		if cp.MinDSCREntity == "" {
			t.Errorf("period %d: minimum DSCR has no owning entity", cp.Index)
		}
		if cp.MinDSCR.GreaterThan(cp.WeightedDSCR) {
			t.Errorf("period %d: min DSCR %v exceeds weighted DSCR %v",
				cp.Index, cp.MinDSCR, cp.WeightedDSCR)
		}
	}
	if covered == 0 {
		t.Error("expected at least one period with DSCR coverage")
	}
}

func TestConsolidate_SchedulesTaggedPerEntity(t *testing.T) {
	// GIVEN: The linked group result
	// WHEN: Reading the holding-level debt register
	// THEN: Every configured facility appears once, entity-tagged, with a
	//       row per period

	res, err := group.Run(linkedGroup())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Consolidated.Schedules) != 2 {
		t.Fatalf("expected 2 tagged schedules, got %d", len(res.Consolidated.Schedules))
	}
	for _, s := range res.Consolidated.Schedules {
		if len(s.Rows) != horizon {
			t.Errorf("facility %s: expected %d rows, got %d", s.FacilityID, horizon, len(s.Rows))
		}
		if s.EntityID != "gre" && s.EntityID != "nwl" {
			t.Errorf("facility %s: unexpected owning entity %s", s.FacilityID, s.EntityID)
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestGroupConfig_ValidateRejectsBadWiring(t *testing.T) {
	duplicate := linkedGroup()
	duplicate.Entities = append(duplicate.Entities, lenderEntity())

	unknownLender := linkedGroup()
	unknownLender.Intercompany.LenderID = "ghost"

	selfLink := linkedGroup()
	selfLink.Intercompany.BorrowerID = selfLink.Intercompany.LenderID

	missingKey := linkedGroup()
	missingKey.Intercompany.Key = ""

	shortHorizon := linkedGroup()
	shortEntity := borrowerEntity()
	shortEntity.ID = "short"
	shortEntity.Periods = 4
	shortEntity.Revenue = shortEntity.Revenue[:4]
	shortEntity.Opex = shortEntity.Opex[:4]
	shortEntity.Depreciation = shortEntity.Depreciation[:4]
	shortEntity.Facilities[0].TermPeriods = 4
	shortEntity.Facilities[0].GracePeriods = 1
	shortHorizon.Entities = append(shortHorizon.Entities, shortEntity)

	for name, cfg := range map[string]group.GroupConfig{
		"duplicate entity id": duplicate,
		"unknown lender":      unknownLender,
		"self link":           selfLink,
		"missing key":         missingKey,
		"mismatched horizon":  shortHorizon,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := group.Run(cfg)
			if !errors.Is(err, engine.ErrInvalidConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}
