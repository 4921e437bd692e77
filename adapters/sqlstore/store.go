// Package sqlstore persists sweep runs and their power tables in SQLite or
// PostgreSQL through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"mixedpower/domain/core"
	"mixedpower/domain/sim"
	"mixedpower/ports"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by LoadRun for unknown IDs
var ErrRunNotFound = errors.New("sweep run not found")

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Open connects to url. postgres:// and postgresql:// URLs use lib/pq;
// anything else is a SQLite path or DSN, with an optional sqlite:// prefix.
func Open(ctx context.Context, url string) (*sqlx.DB, error) {
	driver, dsn := "sqlite", strings.TrimPrefix(url, "sqlite://")
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		driver, dsn = "postgres", url
	}
	if dsn == "" {
		return nil, fmt.Errorf("empty database URL")
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", driver, err)
	}
	if driver == "sqlite" {
		// one writer; also keeps every query on the same :memory: database
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return db, nil
}

// sweepRepository implements ports.SweepRepository
type sweepRepository struct {
	db *sqlx.DB
}

// NewSweepRepository creates a repository over a migrated database
func NewSweepRepository(db *sqlx.DB) ports.SweepRepository {
	return &sweepRepository{db: db}
}

type rowRecord struct {
	RunID    core.RunID `db:"run_id"`
	Position int        `db:"position"`
	sim.SweepRow
}

// SaveRun inserts the run and all of its rows in one transaction
func (r *sweepRepository) SaveRun(ctx context.Context, run sim.SweepRun, table *sim.SweepTable) error {
	if run.ID == "" {
		return fmt.Errorf("run ID is required")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO sweep_runs (id, formula, seed, nsims, alpha, created_at)
		VALUES (:id, :formula, :seed, :nsims, :alpha, :created_at)`, run)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}

	if table != nil {
		for i, row := range table.Rows() {
			rec := rowRecord{RunID: run.ID, Position: i, SweepRow: row}
			_, err := tx.NamedExecContext(ctx, `INSERT INTO sweep_rows (run_id, position, effect, power, item_n, sub_n)
				VALUES (:run_id, :position, :effect, :power, :item_n, :sub_n)`, rec)
			if err != nil {
				return fmt.Errorf("failed to insert row %d of run %s: %w", i, run.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.ID, err)
	}
	return nil
}

// LoadRun returns a run and its rows in their original order
func (r *sweepRepository) LoadRun(ctx context.Context, id core.RunID) (*sim.SweepRun, *sim.SweepTable, error) {
	var run sim.SweepRun
	err := r.db.GetContext(ctx, &run,
		r.db.Rebind(`SELECT id, formula, seed, nsims, alpha, created_at FROM sweep_runs WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil, nil, fmt.Errorf("failed to get run: %w", err)
	}

	var rows []sim.SweepRow
	err = r.db.SelectContext(ctx, &rows,
		r.db.Rebind(`SELECT effect, power, item_n, sub_n FROM sweep_rows WHERE run_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get rows of run %s: %w", id, err)
	}

	table := sim.NewSweepTable()
	table.Append(rows...)
	return &run, table, nil
}

// ListRuns returns the most recent runs first
func (r *sweepRepository) ListRuns(ctx context.Context, limit int) ([]sim.SweepRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []sim.SweepRun
	err := r.db.SelectContext(ctx, &runs,
		r.db.Rebind(`SELECT id, formula, seed, nsims, alpha, created_at FROM sweep_runs ORDER BY created_at DESC, id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
