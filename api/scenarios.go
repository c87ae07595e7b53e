/*
scenarios.go - Built-in demo scenarios

PURPOSE:

	Provides pre-built scenario definitions for demos and smoke testing.
	Each scenario is a complete group configuration: entities, facilities,
	reserves, grants, and (optionally) the intercompany overdraft link.

AVAILABLE SCENARIOS:

	smart-city-lanseria: Three-entity infrastructure group. The water
	                     utility carries senior + mezzanine debt and runs a
	                     cash deficit through its revenue ramp; the
	                     renewable-energy entity finances it through the
	                     intercompany overdraft; the timber estate runs
	                     standalone. Includes an earmarked infrastructure
	                     grant that bypasses the DSRA gate.
	standalone-water:    The water utility alone, no intercompany link.
	                     Useful for tracing a single entity's waterfall.

HOW SCENARIOS WORK:
 1. GET  /api/scenarios returns the catalog
 2. POST /api/scenarios/{id}/run builds the config, runs the group, and
    persists the result as a new run

ADDING NEW SCENARIOS:
 1. Write a builder returning config.ScenarioFile
 2. Register it in builtins with an ID and description

SEE ALSO:
  - handlers.go: RunScenario handler
  - config/config.go: The scenario file shape
*/
package api

import (
	"github.com/meridian/waterfall-engine/config"
)

// =============================================================================
// CATALOG
// =============================================================================

type ScenarioInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type builtinScenario struct {
	info  ScenarioInfo
	build func() config.ScenarioFile
}

var builtins = []builtinScenario{
	{
		info: ScenarioInfo{
			ID:          "smart-city-lanseria",
			Name:        "Smart City Lanseria",
			Description: "Three-entity infrastructure group with an intercompany overdraft: water utility (borrower), renewable energy (lender), timber estate (standalone).",
		},
		build: lanseriaScenario,
	},
	{
		info: ScenarioInfo{
			ID:          "standalone-water",
			Name:        "Standalone Water Utility",
			Description: "The water utility alone, without intercompany support. Deficits surface as unpaid debt service.",
		},
		build: standaloneWaterScenario,
	},
}

// ListBuiltinScenarios returns the scenario catalog.
func ListBuiltinScenarios() []ScenarioInfo {
	out := make([]ScenarioInfo, len(builtins))
	for i, b := range builtins {
		out[i] = b.info
	}
	return out
}

// BuiltinScenario returns the full definition for one catalog entry.
func BuiltinScenario(id string) (config.ScenarioFile, bool) {
	for _, b := range builtins {
		if b.info.ID == id {
			return b.build(), true
		}
	}
	return config.ScenarioFile{}, false
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const lanseriaPeriods = 20 // ten years, semi-annual

// waterUtility is the borrower: heavy senior + mezzanine debt against a
// slow revenue ramp, so the early amortizing periods run short of cash.
func waterUtility() config.EntityFile {
	return config.EntityFile{
		ID:            "nwl",
		Name:          "Northern Water Lanseria",
		Currency:      "ZAR",
		Periods:       lanseriaPeriods,
		TaxRate:       0.27,
		DepositRate:   0.055,
		SweepPct:      1.0,
		InitialEquity: 40_000_000,
		Revenue:       ramp(3, lanseriaPeriods, 14_000_000, 700_000),
		Opex:          ramp(3, lanseriaPeriods, 6_500_000, 130_000),
		Depreciation:  after(3, lanseriaPeriods, 7_800_000),
		Grants: []config.GrantFile{
			{
				Name:             "infrastructure-grant",
				EarmarkedForDebt: true,
				BypassesDSRAGate: true,
				Payments: []config.GrantPaymentFile{
					{Period: 6, Amount: 15_000_000},
				},
			},
		},
		Facilities: []config.FacilityFile{
			{
				ID:           "nwl-senior",
				Name:         "NWL Senior Term Loan",
				Seniority:    "senior",
				Principal:    180_000_000,
				AnnualRate:   0.0925,
				TermPeriods:  18,
				GracePeriods: 3,
			},
			{
				ID:           "nwl-mezz",
				Name:         "NWL Mezzanine Facility",
				Seniority:    "mezzanine",
				Principal:    45_000_000,
				AnnualRate:   0.135,
				TermPeriods:  18,
				GracePeriods: 3,
			},
		},
		Reserves: config.ReservesFile{
			OperatingCoveragePct:  0.5,
			DSRAAccruesInterest:   false,
			MezzanineDividendRate: 0.12,
		},
	}
}

// renewableEnergy is the lender: strong early cash generation and a
// lighter debt load, so its waterfall has surplus to advance.
func renewableEnergy() config.EntityFile {
	return config.EntityFile{
		ID:            "gre",
		Name:          "Gauteng Renewable Energy",
		Currency:      "ZAR",
		Periods:       lanseriaPeriods,
		TaxRate:       0.27,
		DepositRate:   0.055,
		SweepPct:      0.5,
		InitialEquity: 60_000_000,
		Revenue:       after(2, lanseriaPeriods, 22_000_000),
		Opex:          after(2, lanseriaPeriods, 4_800_000),
		Depreciation:  after(2, lanseriaPeriods, 10_000_000),
		Facilities: []config.FacilityFile{
			{
				ID:           "gre-senior",
				Name:         "GRE Senior Term Loan",
				Seniority:    "senior",
				Principal:    120_000_000,
				AnnualRate:   0.088,
				TermPeriods:  16,
				GracePeriods: 2,
			},
		},
		Reserves: config.ReservesFile{
			OperatingCoveragePct: 0.5,
			DSRAAccruesInterest:  true,
			DSRADepositRate:      0.045,
		},
	}
}

// timberEstate runs standalone: no intercompany involvement either way.
func timberEstate() config.EntityFile {
	return config.EntityFile{
		ID:            "tmb",
		Name:          "Thaba Timber Estate",
		Currency:      "ZAR",
		Periods:       lanseriaPeriods,
		TaxRate:       0.27,
		DepositRate:   0.055,
		SweepPct:      0.75,
		InitialEquity: 15_000_000,
		Revenue:       after(2, lanseriaPeriods, 7_500_000),
		Opex:          after(2, lanseriaPeriods, 2_600_000),
		Depreciation:  after(2, lanseriaPeriods, 2_750_000),
		Facilities: []config.FacilityFile{
			{
				ID:           "tmb-senior",
				Name:         "TMB Senior Term Loan",
				Seniority:    "senior",
				Principal:    35_000_000,
				AnnualRate:   0.0975,
				TermPeriods:  14,
				GracePeriods: 2,
			},
		},
		Reserves: config.ReservesFile{
			OperatingCoveragePct: 0.5,
			DSRAAccruesInterest:  false,
		},
	}
}

func lanseriaScenario() config.ScenarioFile {
	return config.ScenarioFile{
		Name:     "smart-city-lanseria",
		Entities: []config.EntityFile{waterUtility(), renewableEnergy(), timberEstate()},
		Intercompany: &config.IntercompanyFile{
			Lender:     "gre",
			Borrower:   "nwl",
			AnnualRate: 0.08,
			Key:        "gre-nwl-overdraft",
		},
	}
}

func standaloneWaterScenario() config.ScenarioFile {
	return config.ScenarioFile{
		Name:     "standalone-water",
		Entities: []config.EntityFile{waterUtility()},
	}
}

// =============================================================================
// VECTOR HELPERS
// =============================================================================

// after returns a vector that is zero for the first `zeros` periods and a
// constant value afterwards.
func after(zeros, periods int, value float64) []float64 {
	out := make([]float64, periods)
	for i := zeros; i < periods; i++ {
		out[i] = value
	}
	return out
}

// ramp returns a vector that is zero for the first `zeros` periods, then
// starts at `base` and grows by `step` each period.
func ramp(zeros, periods int, base, step float64) []float64 {
	out := make([]float64, periods)
	for i := zeros; i < periods; i++ {
		out[i] = base + float64(i-zeros)*step
	}
	return out
}
