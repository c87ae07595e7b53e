/*
Package config loads scenario files into runnable group configurations.

PURPOSE:
  Translates the on-disk scenario format (YAML or JSON, same shape) into
  the engine's strongly typed configuration. All monetary amounts cross
  from float64 into decimal exactly once, here; nothing downstream ever
  touches a float.

FAIL-FAST:
  Loading validates everything it can see and returns a structured
  ConfigError on the first problem. Rates, targets and vectors are never
  silently defaulted: a missing revenue vector is an error, not a zero.

FILE SHAPE:
  name: smart-city-lanseria
  entities:
    - id: nwl
      currency: ZAR
      periods: 40
      tax_rate: 0.27
      deposit_rate: 0.055
      sweep_pct: 1.0
      initial_equity: 25000000
      revenue: [0, 0, 1200000, ...]        # one value per period
      opex: [...]
      depreciation: [...]
      grants:
        - name: infrastructure-grant
          earmarked_for_debt: true
          bypasses_dsra_gate: true
          payments:
            - {period: 4, amount: 10000000} # sparse; omitted periods are zero
      facilities:
        - id: nwl-senior
          seniority: senior
          principal: 180000000
          annual_rate: 0.0925
          term_periods: 36
          grace_periods: 4
      reserves:
        operating_coverage_pct: 0.5
        dsra_accrues_interest: false
        dsra_deposit_rate: 0
        mezzanine_dividend_rate: 0.12
  intercompany:
    lender: gre
    borrower: nwl
    annual_rate: 0.08
    key: gre-nwl-overdraft
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/meridian/waterfall-engine/engine"
	"github.com/meridian/waterfall-engine/group"
)

// =============================================================================
// FILE TYPES - The on-disk shape, floats and strings only
// =============================================================================

type ScenarioFile struct {
	Name         string            `yaml:"name" json:"name"`
	Entities     []EntityFile      `yaml:"entities" json:"entities"`
	Intercompany *IntercompanyFile `yaml:"intercompany,omitempty" json:"intercompany,omitempty"`
}

type EntityFile struct {
	ID       string `yaml:"id" json:"id"`
	Name     string `yaml:"name" json:"name"`
	Currency string `yaml:"currency" json:"currency"`
	Periods  int    `yaml:"periods" json:"periods"`

	TaxRate       float64 `yaml:"tax_rate" json:"tax_rate"`
	DepositRate   float64 `yaml:"deposit_rate" json:"deposit_rate"`
	SweepPct      float64 `yaml:"sweep_pct" json:"sweep_pct"`
	InitialEquity float64 `yaml:"initial_equity" json:"initial_equity"`

	Revenue      []float64 `yaml:"revenue" json:"revenue"`
	Opex         []float64 `yaml:"opex" json:"opex"`
	Depreciation []float64 `yaml:"depreciation" json:"depreciation"`

	Grants     []GrantFile    `yaml:"grants,omitempty" json:"grants,omitempty"`
	Facilities []FacilityFile `yaml:"facilities" json:"facilities"`
	Reserves   ReservesFile   `yaml:"reserves" json:"reserves"`
}

type GrantFile struct {
	Name             string             `yaml:"name" json:"name"`
	EarmarkedForDebt bool               `yaml:"earmarked_for_debt" json:"earmarked_for_debt"`
	BypassesDSRAGate bool               `yaml:"bypasses_dsra_gate" json:"bypasses_dsra_gate"`
	Payments         []GrantPaymentFile `yaml:"payments" json:"payments"`
}

type GrantPaymentFile struct {
	Period int     `yaml:"period" json:"period"`
	Amount float64 `yaml:"amount" json:"amount"`
}

type FacilityFile struct {
	ID           string  `yaml:"id" json:"id"`
	Name         string  `yaml:"name" json:"name"`
	Seniority    string  `yaml:"seniority" json:"seniority"`
	Principal    float64 `yaml:"principal" json:"principal"`
	AnnualRate   float64 `yaml:"annual_rate" json:"annual_rate"`
	TermPeriods  int     `yaml:"term_periods" json:"term_periods"`
	GracePeriods int     `yaml:"grace_periods" json:"grace_periods"`
}

type ReservesFile struct {
	OperatingCoveragePct  float64 `yaml:"operating_coverage_pct" json:"operating_coverage_pct"`
	DSRAAccruesInterest   bool    `yaml:"dsra_accrues_interest" json:"dsra_accrues_interest"`
	DSRADepositRate       float64 `yaml:"dsra_deposit_rate" json:"dsra_deposit_rate"`
	MezzanineDividendRate float64 `yaml:"mezzanine_dividend_rate" json:"mezzanine_dividend_rate"`
}

type IntercompanyFile struct {
	Lender     string  `yaml:"lender" json:"lender"`
	Borrower   string  `yaml:"borrower" json:"borrower"`
	AnnualRate float64 `yaml:"annual_rate" json:"annual_rate"`
	Key        string  `yaml:"key" json:"key"`
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and builds a scenario from a YAML or JSON file, chosen by
// extension (.json is JSON, everything else is parsed as YAML).
func Load(path string) (group.GroupConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return group.GroupConfig{}, fmt.Errorf("read scenario: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return ParseJSON(data)
	}
	return ParseYAML(data)
}

// ParseYAML unmarshals and builds a scenario from YAML bytes.
func ParseYAML(data []byte) (group.GroupConfig, error) {
	var file ScenarioFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return group.GroupConfig{}, &engine.ConfigError{Field: "scenario", Detail: "yaml: " + err.Error()}
	}
	return Build(file)
}

// ParseJSON unmarshals and builds a scenario from JSON bytes.
func ParseJSON(data []byte) (group.GroupConfig, error) {
	var file ScenarioFile
	if err := json.Unmarshal(data, &file); err != nil {
		return group.GroupConfig{}, &engine.ConfigError{Field: "scenario", Detail: "json: " + err.Error()}
	}
	return Build(file)
}

// Build converts the file shape into the engine's configuration and runs
// the full validation chain. The returned config is ready for group.Run.
func Build(file ScenarioFile) (group.GroupConfig, error) {
	cfg := group.GroupConfig{Name: file.Name}

	for _, ef := range file.Entities {
		entity, err := buildEntity(ef)
		if err != nil {
			return group.GroupConfig{}, err
		}
		cfg.Entities = append(cfg.Entities, entity)
	}

	if ic := file.Intercompany; ic != nil {
		cfg.Intercompany = &group.Link{
			LenderID:   engine.EntityID(ic.Lender),
			BorrowerID: engine.EntityID(ic.Borrower),
			AnnualRate: decimal.NewFromFloat(ic.AnnualRate),
			Key:        ic.Key,
		}
	}

	if err := cfg.Validate(); err != nil {
		return group.GroupConfig{}, err
	}
	return cfg, nil
}

func buildEntity(ef EntityFile) (engine.EntityConfig, error) {
	id := engine.EntityID(ef.ID)
	currency := engine.Currency(ef.Currency)

	cfg := engine.EntityConfig{
		ID:            id,
		Name:          ef.Name,
		Currency:      currency,
		Periods:       ef.Periods,
		TaxRate:       decimal.NewFromFloat(ef.TaxRate),
		DepositRate:   decimal.NewFromFloat(ef.DepositRate),
		SweepPct:      decimal.NewFromFloat(ef.SweepPct),
		InitialEquity: engine.NewMoney(ef.InitialEquity, currency),
		Revenue:       moneyVector(ef.Revenue, currency),
		Opex:          moneyVector(ef.Opex, currency),
		Depreciation:  moneyVector(ef.Depreciation, currency),
		Reserves: engine.ReserveParams{
			OperatingCoveragePct:  decimal.NewFromFloat(ef.Reserves.OperatingCoveragePct),
			DSRAAccruesInterest:   ef.Reserves.DSRAAccruesInterest,
			DSRADepositRate:       decimal.NewFromFloat(ef.Reserves.DSRADepositRate),
			MezzanineDividendRate: decimal.NewFromFloat(ef.Reserves.MezzanineDividendRate),
		},
	}

	for _, gf := range ef.Grants {
		grant, err := buildGrant(id, gf, ef.Periods, currency)
		if err != nil {
			return engine.EntityConfig{}, err
		}
		cfg.Grants = append(cfg.Grants, grant)
	}

	for _, ff := range ef.Facilities {
		seniority, err := parseSeniority(id, ff)
		if err != nil {
			return engine.EntityConfig{}, err
		}
		cfg.Facilities = append(cfg.Facilities, engine.FacilityConfig{
			ID:           engine.FacilityID(ff.ID),
			Name:         ff.Name,
			Seniority:    seniority,
			Principal:    engine.NewMoney(ff.Principal, currency),
			AnnualRate:   decimal.NewFromFloat(ff.AnnualRate),
			TermPeriods:  ff.TermPeriods,
			GracePeriods: ff.GracePeriods,
		})
	}

	return cfg, nil
}

// buildGrant expands the sparse payment list into a dense per-period
// vector; out-of-range period indexes are errors, not dropped payments.
func buildGrant(entity engine.EntityID, gf GrantFile, periods int, currency engine.Currency) (engine.GrantConfig, error) {
	if gf.Name == "" {
		return engine.GrantConfig{}, &engine.ConfigError{EntityID: entity, Field: "grants", Detail: "grant name is required"}
	}
	amounts := make([]engine.Money, periods)
	for i := range amounts {
		amounts[i] = engine.ZeroMoney(currency)
	}
	for _, p := range gf.Payments {
		if p.Period < 0 || p.Period >= periods {
			return engine.GrantConfig{}, &engine.ConfigError{
				EntityID: entity,
				Field:    "grants." + gf.Name,
				Detail:   fmt.Sprintf("payment period %d outside horizon [0, %d)", p.Period, periods),
			}
		}
		if p.Amount < 0 {
			return engine.GrantConfig{}, &engine.ConfigError{
				EntityID: entity,
				Field:    "grants." + gf.Name,
				Detail:   fmt.Sprintf("payment in period %d must not be negative", p.Period),
			}
		}
		amounts[p.Period] = amounts[p.Period].Add(engine.NewMoney(p.Amount, currency))
	}
	return engine.GrantConfig{
		Name:             gf.Name,
		Amounts:          amounts,
		EarmarkedForDebt: gf.EarmarkedForDebt,
		BypassesDSRAGate: gf.BypassesDSRAGate,
	}, nil
}

func parseSeniority(entity engine.EntityID, ff FacilityFile) (engine.FacilitySeniority, error) {
	switch strings.ToLower(ff.Seniority) {
	case "senior":
		return engine.SenioritySenior, nil
	case "mezzanine", "mezz":
		return engine.SeniorityMezzanine, nil
	default:
		return "", &engine.ConfigError{
			EntityID: entity,
			Field:    ff.ID + ".seniority",
			Detail:   fmt.Sprintf("unknown seniority %q (want senior or mezzanine)", ff.Seniority),
		}
	}
}

func moneyVector(values []float64, currency engine.Currency) []engine.Money {
	out := make([]engine.Money, len(values))
	for i, v := range values {
		out[i] = engine.NewMoney(v, currency)
	}
	return out
}
