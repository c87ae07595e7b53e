/*
orchestrator.go - Multi-entity run sequencing

PURPOSE:
  Runs every entity in the group and resolves the intercompany overdraft
  between the configured lender and borrower. The dependency is circular
  (the lender's advances depend on the borrower's deficits, which depend on
  the advances), so the orchestrator breaks it with a fixed pass order
  instead of open-ended iteration:

    pass 1  borrower runs standalone; its per-period deficits become the
            loan demand vector
    pass 2  lender runs against that demand; what it can actually afford
            becomes the advance vector
    pass 3  borrower re-runs with the advances injected; its overdraft
            repayments become the recovery vector
    settle  lender re-runs once more with the advance vector PINNED and the
            recoveries injected, replacing the pass-2 result

  Pinning matters: in the settlement run the lender has more cash (the
  recoveries), and recomputing advances from demand would let the vector
  drift from what the borrower already booked. With the vector pinned both
  sides apply the identical recurrence

    balance' = balance + interest + advance - repayment

  so the lender's asset equals the borrower's liability to the cent in
  every period. That symmetry is verified, not assumed; a mismatch aborts
  the run.

  Entity state never survives a pass. Each pass calls engine.RunEntity,
  which builds everything fresh, so a re-run with different injected
  vectors cannot observe residue from the previous pass.
*/
package group

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian/waterfall-engine/engine"
)

// =============================================================================
// GROUP CONFIGURATION
// =============================================================================

// Link declares the single intercompany overdraft facility: who lends, who
// borrows, and at what annual rate. Both sides accrue at the same rate on
// the same balance, which is what makes elimination exact.
type Link struct {
	LenderID   engine.EntityID
	BorrowerID engine.EntityID
	AnnualRate decimal.Decimal
	Key        string
}

type GroupConfig struct {
	Name     string
	Entities []engine.EntityConfig

	// Intercompany is optional; without it every entity runs standalone.
	Intercompany *Link
}

func (c GroupConfig) Validate() error {
	if len(c.Entities) == 0 {
		return &engine.ConfigError{Field: "entities", Detail: "at least one entity is required"}
	}
	seen := map[engine.EntityID]bool{}
	periods := c.Entities[0].Periods
	currency := c.Entities[0].Currency
	for _, e := range c.Entities {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[e.ID] {
			return &engine.ConfigError{EntityID: e.ID, Field: "id", Detail: "duplicate entity id"}
		}
		seen[e.ID] = true
		if e.Periods != periods {
			return &engine.ConfigError{EntityID: e.ID, Field: "periods",
				Detail: fmt.Sprintf("all entities must share a horizon, got %d vs %d", e.Periods, periods)}
		}
		if e.Currency != currency {
			return &engine.ConfigError{EntityID: e.ID, Field: "currency",
				Detail: "all entities must share a reporting currency"}
		}
	}
	if link := c.Intercompany; link != nil {
		if !seen[link.LenderID] {
			return &engine.ConfigError{EntityID: link.LenderID, Field: "intercompany.lender", Detail: "unknown entity"}
		}
		if !seen[link.BorrowerID] {
			return &engine.ConfigError{EntityID: link.BorrowerID, Field: "intercompany.borrower", Detail: "unknown entity"}
		}
		if link.LenderID == link.BorrowerID {
			return &engine.ConfigError{EntityID: link.LenderID, Field: "intercompany", Detail: "lender and borrower must differ"}
		}
		if link.AnnualRate.IsNegative() {
			return &engine.ConfigError{Field: "intercompany.annual_rate", Detail: "must not be negative"}
		}
		if link.Key == "" {
			return &engine.ConfigError{Field: "intercompany.key", Detail: "overdraft key is required"}
		}
	}
	return nil
}

func (c GroupConfig) entity(id engine.EntityID) (engine.EntityConfig, error) {
	for _, e := range c.Entities {
		if e.ID == id {
			return e, nil
		}
	}
	return engine.EntityConfig{}, fmt.Errorf("%w: %s", engine.ErrEntityNotFound, id)
}

// =============================================================================
// RESULT
// =============================================================================

type Result struct {
	Name string

	// Order preserves the configured entity order for stable reporting.
	Order    []engine.EntityID
	Entities map[engine.EntityID]*engine.EntityResult

	Consolidated *Consolidated
}

// =============================================================================
// RUN
// =============================================================================

// Run executes the full group: intercompany passes first, then the
// standalone entities, then consolidation.
func Run(cfg GroupConfig) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	result := &Result{
		Name:     cfg.Name,
		Entities: make(map[engine.EntityID]*engine.EntityResult),
	}
	for _, e := range cfg.Entities {
		result.Order = append(result.Order, e.ID)
	}

	linked := map[engine.EntityID]bool{}
	if cfg.Intercompany != nil {
		lender, borrower, err := runIntercompany(cfg, cfg.Intercompany)
		if err != nil {
			return nil, err
		}
		result.Entities[cfg.Intercompany.LenderID] = lender
		result.Entities[cfg.Intercompany.BorrowerID] = borrower
		linked[cfg.Intercompany.LenderID] = true
		linked[cfg.Intercompany.BorrowerID] = true
	}

	for _, e := range cfg.Entities {
		if linked[e.ID] {
			continue
		}
		res, err := engine.RunEntity(e, nil)
		if err != nil {
			return nil, err
		}
		result.Entities[e.ID] = res
	}

	consolidated, err := Consolidate(cfg, result)
	if err != nil {
		return nil, err
	}
	result.Consolidated = consolidated
	return result, nil
}

func runIntercompany(cfg GroupConfig, link *Link) (lender, borrower *engine.EntityResult, err error) {
	lenderCfg, err := cfg.entity(link.LenderID)
	if err != nil {
		return nil, nil, err
	}
	borrowerCfg, err := cfg.entity(link.BorrowerID)
	if err != nil {
		return nil, nil, err
	}

	// Pass 1: borrower standalone, to discover its deficits.
	pass1, err := engine.RunEntity(borrowerCfg, nil)
	if err != nil {
		return nil, nil, err
	}
	demand := pass1.DeficitVector()

	// Pass 2: lender against that demand.
	pass2, err := engine.RunEntity(lenderCfg, &engine.IntercompanyInputs{
		Key:        link.Key,
		AnnualRate: link.AnnualRate,
		Demand:     demand,
	})
	if err != nil {
		return nil, nil, err
	}
	lent := pass2.LentVector()

	// Pass 3: borrower with the advances it actually gets.
	borrower, err = engine.RunEntity(borrowerCfg, &engine.IntercompanyInputs{
		Key:        link.Key,
		AnnualRate: link.AnnualRate,
		Received:   lent,
	})
	if err != nil {
		return nil, nil, err
	}
	repaid := borrower.RepaidVector()

	// Settlement: lender once more, advances pinned, recoveries injected.
	lender, err = engine.RunEntity(lenderCfg, &engine.IntercompanyInputs{
		Key:            link.Key,
		AnnualRate:     link.AnnualRate,
		Demand:         demand,
		PinnedAdvances: lent,
		Recovered:      repaid,
	})
	if err != nil {
		return nil, nil, err
	}

	// Symmetry check: the lender's asset and the borrower's liability must
	// match in every period, to the cent.
	assets := lender.IntercompanyBalances()
	liabilities := borrower.IntercompanyBalances()
	for p := range assets {
		if !assets[p].WithinTolerance(liabilities[p]) {
			return nil, nil, &engine.AsymmetryError{
				LenderID:   link.LenderID,
				BorrowerID: link.BorrowerID,
				Period:     p,
				Asset:      assets[p],
				Liability:  liabilities[p],
			}
		}
	}
	return lender, borrower, nil
}
