/*
Package sqlite persists simulation runs and their results.

PURPOSE:
  A run is immutable once written: the engine is deterministic, so a
  stored result is a complete, reproducible record of what a scenario
  produced at a point in time. The store keeps run metadata in columns
  for listing, and the full per-entity and consolidated results as JSON
  documents (decimal amounts marshal as strings, so nothing is lost to
  float round-tripping).

KEY TABLES:
  runs:                 Run metadata (scenario name, horizon, timestamps)
  entity_results:       One JSON document per (run, entity)
  consolidated_results: One JSON document per run

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; reads take the shared lock.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

USAGE:
  store, err := sqlite.New("./data/waterfall.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridian/waterfall-engine/engine"
	"github.com/meridian/waterfall-engine/group"
)

// Store persists runs in SQLite. Use ":memory:" for tests.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// RunRecord is the listing-level view of a stored run.
type RunRecord struct {
	ID           string    `json:"id"`
	ScenarioName string    `json:"scenario_name"`
	Periods      int       `json:"periods"`
	EntityIDs    []string  `json:"entity_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// New opens (or creates) the database at dbPath and migrates the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		scenario_name TEXT NOT NULL,
		periods INTEGER NOT NULL,
		entity_ids_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at
		ON runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_scenario
		ON runs(scenario_name);

	CREATE TABLE IF NOT EXISTS entity_results (
		run_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		result_json TEXT NOT NULL,
		PRIMARY KEY (run_id, entity_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS consolidated_results (
		run_id TEXT PRIMARY KEY,
		result_json TEXT NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveRun stores a completed group result under the given record. The
// write is transactional: a run either appears whole or not at all.
func (s *Store) SaveRun(ctx context.Context, rec RunRecord, res *group.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	idsJSON, err := json.Marshal(rec.EntityIDs)
	if err != nil {
		return fmt.Errorf("marshal entity ids: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, scenario_name, periods, entity_ids_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.ScenarioName, rec.Periods, string(idsJSON),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for id, er := range res.Entities {
		blob, err := json.Marshal(er)
		if err != nil {
			return fmt.Errorf("marshal entity %s: %w", id, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entity_results (run_id, entity_id, result_json) VALUES (?, ?, ?)`,
			rec.ID, string(id), string(blob))
		if err != nil {
			return fmt.Errorf("insert entity result %s: %w", id, err)
		}
	}

	if res.Consolidated != nil {
		blob, err := json.Marshal(res.Consolidated)
		if err != nil {
			return fmt.Errorf("marshal consolidated: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO consolidated_results (run_id, result_json) VALUES (?, ?)`,
			rec.ID, string(blob))
		if err != nil {
			return fmt.Errorf("insert consolidated: %w", err)
		}
	}

	return tx.Commit()
}

// ListRuns returns run metadata, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scenario_name, periods, entity_ids_json, created_at
		 FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRun returns one run's metadata.
func (s *Store) GetRun(ctx context.Context, id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, scenario_name, periods, entity_ids_json, created_at
		 FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// GetEntityResult returns one entity's stored result for a run.
func (s *Store) GetEntityResult(ctx context.Context, runID string, entityID engine.EntityID) (*engine.EntityResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM entity_results WHERE run_id = ? AND entity_id = ?`,
		runID, string(entityID)).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s in run %s", engine.ErrEntityNotFound, entityID, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query entity result: %w", err)
	}

	var result engine.EntityResult
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return nil, fmt.Errorf("unmarshal entity result: %w", err)
	}
	return &result, nil
}

// GetConsolidated returns a run's consolidated result.
func (s *Store) GetConsolidated(ctx context.Context, runID string) (*group.Consolidated, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT result_json FROM consolidated_results WHERE run_id = ?`, runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("query consolidated: %w", err)
	}

	var result group.Consolidated
	if err := json.Unmarshal([]byte(blob), &result); err != nil {
		return nil, fmt.Errorf("unmarshal consolidated: %w", err)
	}
	return &result, nil
}

// Reset drops all stored runs. Dev/demo only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"consolidated_results", "entity_results", "runs"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var rec RunRecord
	var idsJSON, createdAt string
	if err := row.Scan(&rec.ID, &rec.ScenarioName, &rec.Periods, &idsJSON, &createdAt); err != nil {
		return RunRecord{}, err
	}
	if err := json.Unmarshal([]byte(idsJSON), &rec.EntityIDs); err != nil {
		return RunRecord{}, fmt.Errorf("unmarshal entity ids: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}
