package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/meridian/waterfall-engine/config"
	"github.com/meridian/waterfall-engine/engine"
)

// =============================================================================
// FIXTURES
// =============================================================================

const scenarioYAML = `
name: two-entity-test
entities:
  - id: nwl
    name: Water Utility
    currency: ZAR
    periods: 4
    tax_rate: 0.27
    deposit_rate: 0.05
    sweep_pct: 0.5
    initial_equity: 5000000
    revenue: [0, 2000000, 2000000, 2000000]
    opex: [0, 500000, 500000, 500000]
    depreciation: [0, 800000, 800000, 800000]
    grants:
      - name: infra-grant
        earmarked_for_debt: true
        bypasses_dsra_gate: true
        payments:
          - {period: 2, amount: 1500000}
    facilities:
      - id: nwl-senior
        seniority: senior
        principal: 8000000
        annual_rate: 0.0925
        term_periods: 4
        grace_periods: 1
      - id: nwl-mezz
        seniority: mezzanine
        principal: 2000000
        annual_rate: 0.135
        term_periods: 4
        grace_periods: 1
    reserves:
      operating_coverage_pct: 0.5
      mezzanine_dividend_rate: 0.12
  - id: gre
    name: Energy Company
    currency: ZAR
    periods: 4
    tax_rate: 0.27
    deposit_rate: 0.05
    sweep_pct: 1.0
    initial_equity: 6000000
    revenue: [0, 3000000, 3000000, 3000000]
    opex: [0, 600000, 600000, 600000]
    depreciation: [0, 900000, 900000, 900000]
    facilities:
      - id: gre-senior
        seniority: senior
        principal: 7000000
        annual_rate: 0.088
        term_periods: 4
        grace_periods: 1
    reserves:
      operating_coverage_pct: 0.5
      dsra_accrues_interest: true
      dsra_deposit_rate: 0.045
intercompany:
  lender: gre
  borrower: nwl
  annual_rate: 0.08
  key: gre-nwl-overdraft
`

const scenarioJSON = `{
  "name": "json-test",
  "entities": [
    {
      "id": "solo",
      "name": "Solo Entity",
      "currency": "ZAR",
      "periods": 3,
      "tax_rate": 0.27,
      "deposit_rate": 0.05,
      "sweep_pct": 1.0,
      "initial_equity": 1000000,
      "revenue": [0, 500000, 500000],
      "opex": [0, 100000, 100000],
      "depreciation": [0, 200000, 200000],
      "facilities": [
        {
          "id": "solo-senior",
          "seniority": "senior",
          "principal": 900000,
          "annual_rate": 0.09,
          "term_periods": 3,
          "grace_periods": 1
        }
      ],
      "reserves": {"operating_coverage_pct": 0.5}
    }
  ]
}`

// =============================================================================
// PARSING
// =============================================================================

func TestParseYAML_BuildsFullGroupConfig(t *testing.T) {
	// GIVEN: A two-entity scenario with grants, a mezzanine tranche and an
	//        intercompany link
	// WHEN: Parsing
	// THEN: Every field lands in the typed config with exact decimals

	cfg, err := config.ParseYAML([]byte(scenarioYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "two-entity-test" {
		t.Errorf("expected name two-entity-test, got %q", cfg.Name)
	}
	if len(cfg.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(cfg.Entities))
	}

	nwl := cfg.Entities[0]
	if nwl.ID != "nwl" || nwl.Currency != engine.CurrencyZAR || nwl.Periods != 4 {
		t.Errorf("unexpected entity header: %+v", nwl)
	}
	if !nwl.TaxRate.Equal(decimal.NewFromFloat(0.27)) {
		t.Errorf("expected tax rate 0.27, got %v", nwl.TaxRate)
	}
	if !nwl.InitialEquity.Value.Equal(decimal.NewFromInt(5_000_000)) {
		t.Errorf("expected equity 5000000, got %v", nwl.InitialEquity.Value)
	}
	if len(nwl.Revenue) != 4 || !nwl.Revenue[1].Value.Equal(decimal.NewFromInt(2_000_000)) {
		t.Errorf("unexpected revenue vector: %v", nwl.Revenue)
	}

	if len(nwl.Facilities) != 2 {
		t.Fatalf("expected 2 facilities, got %d", len(nwl.Facilities))
	}
	if nwl.Facilities[0].Seniority != engine.SenioritySenior {
		t.Errorf("expected senior tranche first, got %v", nwl.Facilities[0].Seniority)
	}
	if nwl.Facilities[1].Seniority != engine.SeniorityMezzanine {
		t.Errorf("expected mezzanine tranche second, got %v", nwl.Facilities[1].Seniority)
	}

	if cfg.Intercompany == nil {
		t.Fatal("expected an intercompany link")
	}
	if cfg.Intercompany.LenderID != "gre" || cfg.Intercompany.BorrowerID != "nwl" {
		t.Errorf("unexpected link: %+v", cfg.Intercompany)
	}
	if cfg.Intercompany.Key != "gre-nwl-overdraft" {
		t.Errorf("unexpected overdraft key %q", cfg.Intercompany.Key)
	}
}

func TestParseYAML_ExpandsSparseGrantPayments(t *testing.T) {
	// GIVEN: A grant declared with a single sparse payment in period 2
	// WHEN: Parsing
	// THEN: The dense vector is zero everywhere except that period, and the
	//       routing flags survive

	cfg, err := config.ParseYAML([]byte(scenarioYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	grants := cfg.Entities[0].Grants
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
	g := grants[0]
	if !g.EarmarkedForDebt || !g.BypassesDSRAGate {
		t.Errorf("expected routing flags set, got %+v", g)
	}
	for i, amt := range g.Amounts {
		want := decimal.Zero
		if i == 2 {
			want = decimal.NewFromInt(1_500_000)
		}
		if !amt.Value.Equal(want) {
			t.Errorf("period %d: expected %v, got %v", i, want, amt.Value)
		}
	}
}

func TestParseJSON_SameShapeAsYAML(t *testing.T) {
	// GIVEN: A single-entity scenario in JSON
	// WHEN: Parsing
	// THEN: The same builder runs and produces a validated config

	cfg, err := config.ParseJSON([]byte(scenarioJSON))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "json-test" || len(cfg.Entities) != 1 {
		t.Errorf("unexpected config: name %q, %d entities", cfg.Name, len(cfg.Entities))
	}
	if !cfg.Entities[0].Facilities[0].AnnualRate.Equal(decimal.NewFromFloat(0.09)) {
		t.Errorf("expected rate 0.09, got %v", cfg.Entities[0].Facilities[0].AnnualRate)
	}
}

func TestLoad_ChoosesParserByExtension(t *testing.T) {
	// GIVEN: The same scenario written as .yaml and .json files
	// WHEN: Loading each path
	// THEN: Both parse into valid configs

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "scenario.yaml")
	jsonPath := filepath.Join(dir, "scenario.json")
	if err := os.WriteFile(yamlPath, []byte(scenarioYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(jsonPath, []byte(scenarioJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := config.Load(yamlPath); err != nil {
		t.Errorf("yaml load: %v", err)
	}
	if _, err := config.Load(jsonPath); err != nil {
		t.Errorf("json load: %v", err)
	}
	if _, err := config.Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

// =============================================================================
// REJECTIONS
// =============================================================================

func TestBuild_RejectsMalformedScenarios(t *testing.T) {
	base := func() config.ScenarioFile {
		return config.ScenarioFile{
			Name: "broken",
			Entities: []config.EntityFile{{
				ID:            "e1",
				Currency:      "ZAR",
				Periods:       3,
				TaxRate:       0.27,
				DepositRate:   0.05,
				SweepPct:      1.0,
				InitialEquity: 1_000_000,
				Revenue:       []float64{0, 100, 100},
				Opex:          []float64{0, 10, 10},
				Depreciation:  []float64{0, 20, 20},
				Facilities: []config.FacilityFile{{
					ID: "f1", Seniority: "senior", Principal: 500,
					AnnualRate: 0.09, TermPeriods: 3, GracePeriods: 1,
				}},
				Reserves: config.ReservesFile{OperatingCoveragePct: 0.5},
			}},
		}
	}

	unknownSeniority := base()
	unknownSeniority.Entities[0].Facilities[0].Seniority = "subordinated"

	grantOutOfRange := base()
	grantOutOfRange.Entities[0].Grants = []config.GrantFile{{
		Name:     "late",
		Payments: []config.GrantPaymentFile{{Period: 9, Amount: 100}},
	}}

	negativeGrant := base()
	negativeGrant.Entities[0].Grants = []config.GrantFile{{
		Name:     "clawback",
		Payments: []config.GrantPaymentFile{{Period: 1, Amount: -50}},
	}}

	namelessGrant := base()
	namelessGrant.Entities[0].Grants = []config.GrantFile{{
		Payments: []config.GrantPaymentFile{{Period: 1, Amount: 50}},
	}}

	shortVector := base()
	shortVector.Entities[0].Revenue = []float64{0, 100}

	for name, file := range map[string]config.ScenarioFile{
		"unknown seniority":    unknownSeniority,
		"grant out of range":   grantOutOfRange,
		"negative grant":       negativeGrant,
		"nameless grant":       namelessGrant,
		"short revenue vector": shortVector,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := config.Build(file)
			if !errors.Is(err, engine.ErrInvalidConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}

func TestParseYAML_MalformedDocument(t *testing.T) {
	// GIVEN: Bytes that are not YAML
	// WHEN: Parsing
	// THEN: A config error, not a panic or a zero-value config

	_, err := config.ParseYAML([]byte("entities: [unclosed"))
	if !errors.Is(err, engine.ErrInvalidConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}
