/*
dto.go - JSON shapes for the HTTP API

PURPOSE:
  Converts engine results into display-friendly JSON. Amounts cross from
  decimal to float64 HERE and only here, at the serialization boundary;
  the stored documents keep full decimal precision and the engine never
  computes on floats.
*/
package api

import (
	"github.com/meridian/waterfall-engine/engine"
	"github.com/meridian/waterfall-engine/group"
	"github.com/meridian/waterfall-engine/store/sqlite"
)

// =============================================================================
// RUN SUMMARIES
// =============================================================================

type RunSummaryDTO struct {
	ID           string   `json:"id"`
	ScenarioName string   `json:"scenario_name"`
	Periods      int      `json:"periods"`
	EntityIDs    []string `json:"entity_ids"`
	CreatedAt    string   `json:"created_at"`
}

func toRunSummary(rec sqlite.RunRecord) RunSummaryDTO {
	return RunSummaryDTO{
		ID:           rec.ID,
		ScenarioName: rec.ScenarioName,
		Periods:      rec.Periods,
		EntityIDs:    rec.EntityIDs,
		CreatedAt:    rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// =============================================================================
// ENTITY RESULT
// =============================================================================

type EntityResultDTO struct {
	EntityID string          `json:"entity_id"`
	Name     string          `json:"name"`
	Currency string          `json:"currency"`
	Periods  []PeriodDTO     `json:"periods"`
	Totals   EntityTotalsDTO `json:"totals"`
}

type EntityTotalsDTO struct {
	FDIncome      float64 `json:"fd_income"`
	DividendsPaid float64 `json:"dividends_paid"`
}

type PeriodDTO struct {
	Index int `json:"index"`

	PnL          PnLDTO           `json:"pnl"`
	Waterfall    WaterfallDTO     `json:"waterfall"`
	BalanceSheet BalanceSheetDTO  `json:"balance_sheet"`
	Facilities   []FacilityRowDTO `json:"facilities"`
	Reserves     ReserveSetDTO    `json:"reserves"`

	DebtServiceDue float64  `json:"debt_service_due"`
	DSCR           *float64 `json:"dscr,omitempty"`
	Deficit        float64  `json:"deficit"`

	IntercompanyBalance  float64 `json:"intercompany_balance"`
	IntercompanyInterest float64 `json:"intercompany_interest"`
}

type PnLDTO struct {
	Revenue         float64 `json:"revenue"`
	Opex            float64 `json:"opex"`
	EBITDA          float64 `json:"ebitda"`
	Depreciation    float64 `json:"depreciation"`
	EBIT            float64 `json:"ebit"`
	InterestExpense float64 `json:"interest_expense"`
	FDIncome        float64 `json:"fd_income"`
	PreTaxProfit    float64 `json:"pre_tax_profit"`
	Tax             float64 `json:"tax"`
	AfterTaxProfit  float64 `json:"after_tax_profit"`
}

type WaterfallDTO struct {
	SpecialPool          float64            `json:"special_pool"`
	NormalPool           float64            `json:"normal_pool"`
	DebtServicePaid      map[string]float64 `json:"debt_service_paid"`
	DebtServiceShortfall float64            `json:"debt_service_shortfall"`
	SpecialAcceleration  map[string]float64 `json:"special_acceleration"`
	OperatingFunding     float64            `json:"operating_reserve_funding"`
	DSRAFunding          float64            `json:"dsra_funding"`
	DSRARelease          float64            `json:"dsra_release"`
	IntercompanyLent     float64            `json:"intercompany_lent"`
	MezzanineFunding     float64            `json:"mezzanine_reserve_funding"`
	GateOpen             bool               `json:"gate_open"`
	SurplusAcceleration  map[string]float64 `json:"surplus_acceleration"`
	OverdraftRepaid      float64            `json:"overdraft_repaid"`
	SurplusFunding       float64            `json:"surplus_reserve_funding"`
	MezzanineDividends   float64            `json:"mezzanine_dividends"`
	OrdinaryDividends    float64            `json:"ordinary_dividends"`
	CashCarriedForward   float64            `json:"cash_carried_forward"`
}

type BalanceSheetDTO struct {
	FixedAssets           float64 `json:"fixed_assets"`
	ReserveBalances       float64 `json:"reserve_balances"`
	CashCarried           float64 `json:"cash_carried"`
	IntercompanyAsset     float64 `json:"intercompany_asset"`
	TotalAssets           float64 `json:"total_assets"`
	Debt                  float64 `json:"debt"`
	IntercompanyLiability float64 `json:"intercompany_liability"`
	Arrears               float64 `json:"arrears"`
	Equity                float64 `json:"equity"`
	RetainedEarnings      float64 `json:"retained_earnings"`
	CumulativeGrants      float64 `json:"cumulative_grants"`
	CumulativeDividends   float64 `json:"cumulative_dividends"`
}

type FacilityRowDTO struct {
	FacilityID     string  `json:"facility_id"`
	OpeningBalance float64 `json:"opening_balance"`
	Interest       float64 `json:"interest"`
	IDC            float64 `json:"idc"`
	PrincipalPaid  float64 `json:"principal_paid"`
	Acceleration   float64 `json:"acceleration"`
	ClosingBalance float64 `json:"closing_balance"`
}

type ReserveSetDTO struct {
	Operating         ReserveRowDTO `json:"operating"`
	DebtService       ReserveRowDTO `json:"dsra"`
	MezzanineDividend ReserveRowDTO `json:"mezzanine_dividend"`
	Surplus           ReserveRowDTO `json:"surplus"`
}

type ReserveRowDTO struct {
	OpeningBalance   float64 `json:"opening_balance"`
	InterestEarned   float64 `json:"interest_earned"`
	TargetBalance    float64 `json:"target_balance"`
	FundingGap       float64 `json:"funding_gap"`
	ReleasableExcess float64 `json:"releasable_excess"`
}

func toEntityResult(res *engine.EntityResult) EntityResultDTO {
	dto := EntityResultDTO{
		EntityID: string(res.EntityID),
		Name:     res.Name,
		Currency: string(res.Currency),
	}
	dividends := 0.0
	for _, rec := range res.Periods {
		dto.Periods = append(dto.Periods, toPeriod(rec))
		dividends += rec.Waterfall.DividendsPaid.Float64()
	}
	dto.Totals = EntityTotalsDTO{
		FDIncome:      res.TotalFDIncome().Float64(),
		DividendsPaid: dividends,
	}
	return dto
}

func toPeriod(rec engine.PeriodRecord) PeriodDTO {
	dto := PeriodDTO{
		Index:                rec.Index,
		PnL:                  toPnL(rec.PnL),
		Waterfall:            toWaterfall(rec.Waterfall),
		BalanceSheet:         toBalanceSheet(rec.Balance),
		Reserves:             toReserveSet(rec.Accruals),
		DebtServiceDue:       rec.DebtServiceDue.Float64(),
		Deficit:              rec.Deficit.Float64(),
		IntercompanyBalance:  rec.IntercompanyBalance.Float64(),
		IntercompanyInterest: rec.IntercompanyInterest.Float64(),
	}
	if rec.HasDSCR {
		dscr, _ := rec.DSCR.Float64()
		dto.DSCR = &dscr
	}
	for _, fp := range rec.Facilities {
		dto.Facilities = append(dto.Facilities, FacilityRowDTO{
			FacilityID:     string(fp.FacilityID),
			OpeningBalance: fp.OpeningBalance.Float64(),
			Interest:       fp.InterestAccrued.Float64(),
			IDC:            fp.IDC.Float64(),
			PrincipalPaid:  fp.PrincipalPaid.Float64(),
			Acceleration:   fp.Acceleration.Float64(),
			ClosingBalance: fp.ClosingBalance.Float64(),
		})
	}
	return dto
}

func toPnL(p engine.PnL) PnLDTO {
	return PnLDTO{
		Revenue:         p.Revenue.Float64(),
		Opex:            p.Opex.Float64(),
		EBITDA:          p.EBITDA.Float64(),
		Depreciation:    p.Depreciation.Float64(),
		EBIT:            p.EBIT.Float64(),
		InterestExpense: p.InterestExpense.Float64(),
		FDIncome:        p.FDIncome.Float64(),
		PreTaxProfit:    p.PreTaxProfit.Float64(),
		Tax:             p.Tax.Float64(),
		AfterTaxProfit:  p.AfterTaxProfit.Float64(),
	}
}

func toWaterfall(row engine.WaterfallRow) WaterfallDTO {
	paid := make(map[string]float64, len(row.DebtServicePaid))
	for id, m := range row.DebtServicePaid {
		paid[string(id)] = m.Float64()
	}
	special := make(map[string]float64, len(row.SpecialAcceleration))
	for id, m := range row.SpecialAcceleration {
		special[string(id)] = m.Float64()
	}
	surplus := make(map[string]float64, len(row.SurplusAcceleration))
	for key, m := range row.SurplusAcceleration {
		surplus[key] = m.Float64()
	}
	return WaterfallDTO{
		SpecialPool:          row.SpecialPool.Float64(),
		NormalPool:           row.NormalPool.Float64(),
		DebtServicePaid:      paid,
		DebtServiceShortfall: row.DebtServiceShortfall.Float64(),
		SpecialAcceleration:  special,
		OperatingFunding:     row.OperatingReserveFunding.Float64(),
		DSRAFunding:          row.DSRAFunding.Float64(),
		DSRARelease:          row.DSRARelease.Float64(),
		IntercompanyLent:     row.IntercompanyLent.Float64(),
		MezzanineFunding:     row.MezzanineReserveFunding.Float64(),
		GateOpen:             row.GateOpen,
		SurplusAcceleration:  surplus,
		OverdraftRepaid:      row.OverdraftRepaid.Float64(),
		SurplusFunding:       row.SurplusReserveFunding.Float64(),
		MezzanineDividends:   row.MezzanineDividends.Float64(),
		OrdinaryDividends:    row.OrdinaryDividends.Float64(),
		CashCarriedForward:   row.CashCarriedForward.Float64(),
	}
}

func toBalanceSheet(bs engine.BalanceSheet) BalanceSheetDTO {
	return BalanceSheetDTO{
		FixedAssets:           bs.FixedAssets.Float64(),
		ReserveBalances:       bs.ReserveBalances.Float64(),
		CashCarried:           bs.CashCarried.Float64(),
		IntercompanyAsset:     bs.IntercompanyAsset.Float64(),
		TotalAssets:           bs.TotalAssets.Float64(),
		Debt:                  bs.Debt.Float64(),
		IntercompanyLiability: bs.IntercompanyLiability.Float64(),
		Arrears:               bs.Arrears.Float64(),
		Equity:                bs.Equity.Float64(),
		RetainedEarnings:      bs.RetainedEarnings.Float64(),
		CumulativeGrants:      bs.CumulativeGrants.Float64(),
		CumulativeDividends:   bs.CumulativeDividends.Float64(),
	}
}

func toReserveSet(set engine.ReserveAccrualSet) ReserveSetDTO {
	return ReserveSetDTO{
		Operating:         toReserveRow(set.Operating),
		DebtService:       toReserveRow(set.DebtService),
		MezzanineDividend: toReserveRow(set.MezzanineDividend),
		Surplus:           toReserveRow(set.Surplus),
	}
}

func toReserveRow(a engine.ReserveAccrual) ReserveRowDTO {
	return ReserveRowDTO{
		OpeningBalance:   a.OpeningBalance.Float64(),
		InterestEarned:   a.InterestEarned.Float64(),
		TargetBalance:    a.TargetBalance.Float64(),
		FundingGap:       a.FundingGap.Float64(),
		ReleasableExcess: a.ReleasableExcess.Float64(),
	}
}

// =============================================================================
// CONSOLIDATED RESULT
// =============================================================================

type ConsolidatedDTO struct {
	Currency  string                  `json:"currency"`
	Periods   []ConsolidatedPeriodDTO `json:"periods"`
	Schedules []ScheduleDTO           `json:"schedules"`
}

// ScheduleDTO is one facility's full amortization history in the
// holding-level debt register, tagged with its owning entity.
type ScheduleDTO struct {
	EntityID   string           `json:"entity_id"`
	FacilityID string           `json:"facility_id"`
	Seniority  string           `json:"seniority"`
	Rows       []FacilityRowDTO `json:"rows"`
}

type ConsolidatedPeriodDTO struct {
	Index int `json:"index"`

	PnL                PnLDTO  `json:"pnl"`
	EliminatedInterest float64 `json:"eliminated_interest"`

	TotalAssets         float64 `json:"total_assets"`
	Debt                float64 `json:"debt"`
	Arrears             float64 `json:"arrears"`
	Equity              float64 `json:"equity"`
	RetainedEarnings    float64 `json:"retained_earnings"`
	CumulativeGrants    float64 `json:"cumulative_grants"`
	CumulativeDividends float64 `json:"cumulative_dividends"`
	EliminatedBalance   float64 `json:"eliminated_balance"`

	DebtServiceDue float64  `json:"debt_service_due"`
	MinDSCR        *float64 `json:"min_dscr,omitempty"`
	MinDSCREntity  string   `json:"min_dscr_entity,omitempty"`
	WeightedDSCR   *float64 `json:"weighted_dscr,omitempty"`
}

func toConsolidated(c *group.Consolidated) ConsolidatedDTO {
	dto := ConsolidatedDTO{Currency: string(c.Currency)}
	for _, cp := range c.Periods {
		row := ConsolidatedPeriodDTO{
			Index: cp.Index,
			PnL: PnLDTO{
				Revenue:         cp.Revenue.Float64(),
				Opex:            cp.Opex.Float64(),
				EBITDA:          cp.EBITDA.Float64(),
				Depreciation:    cp.Depreciation.Float64(),
				EBIT:            cp.EBIT.Float64(),
				InterestExpense: cp.InterestExpense.Float64(),
				FDIncome:        cp.FDIncome.Float64(),
				PreTaxProfit:    cp.PreTaxProfit.Float64(),
				Tax:             cp.Tax.Float64(),
				AfterTaxProfit:  cp.AfterTaxProfit.Float64(),
			},
			EliminatedInterest:  cp.EliminatedInterest.Float64(),
			TotalAssets:         cp.TotalAssets.Float64(),
			Debt:                cp.Debt.Float64(),
			Arrears:             cp.Arrears.Float64(),
			Equity:              cp.Equity.Float64(),
			RetainedEarnings:    cp.RetainedEarnings.Float64(),
			CumulativeGrants:    cp.CumulativeGrants.Float64(),
			CumulativeDividends: cp.CumulativeDividends.Float64(),
			EliminatedBalance:   cp.EliminatedBalance.Float64(),
			DebtServiceDue:      cp.DebtServiceDue.Float64(),
		}
		if cp.HasDSCRCoverage {
			minDSCR, _ := cp.MinDSCR.Float64()
			weighted, _ := cp.WeightedDSCR.Float64()
			row.MinDSCR = &minDSCR
			row.MinDSCREntity = string(cp.MinDSCREntity)
			row.WeightedDSCR = &weighted
		}
		dto.Periods = append(dto.Periods, row)
	}
	for _, sched := range c.Schedules {
		s := ScheduleDTO{
			EntityID:   string(sched.EntityID),
			FacilityID: string(sched.FacilityID),
			Seniority:  string(sched.Seniority),
		}
		for _, fp := range sched.Rows {
			s.Rows = append(s.Rows, FacilityRowDTO{
				FacilityID:     string(fp.FacilityID),
				OpeningBalance: fp.OpeningBalance.Float64(),
				Interest:       fp.InterestAccrued.Float64(),
				IDC:            fp.IDC.Float64(),
				PrincipalPaid:  fp.PrincipalPaid.Float64(),
				Acceleration:   fp.Acceleration.Float64(),
				ClosingBalance: fp.ClosingBalance.Float64(),
			})
		}
		dto.Schedules = append(dto.Schedules, s)
	}
	return dto
}
