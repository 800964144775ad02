// Package ledger records completed sweep runs in Postgres so large parameter
// sweeps are queryable after the fact: one header row per run, one row per
// leaf with its parameter path and outcome.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vk/mdsweep/internal/ctxlog"
	"github.com/vk/mdsweep/internal/scheduler"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sweep_runs (
	run_id      TEXT PRIMARY KEY,
	sweep_name  TEXT NOT NULL,
	leaves      INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS sweep_leaves (
	run_id     TEXT NOT NULL REFERENCES sweep_runs(run_id),
	leaf_index INTEGER NOT NULL,
	node_id    TEXT NOT NULL,
	assignment JSONB NOT NULL,
	status     TEXT NOT NULL,
	error      TEXT,
	PRIMARY KEY (run_id, leaf_index)
);`

// Ledger writes run outcomes through a pgx connection pool.
type Ledger struct {
	pool *pgxpool.Pool
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to ledger database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring ledger schema: %w", err)
	}
	return &Ledger{pool: pool}, nil
}

// Close releases the connection pool.
func (l *Ledger) Close() {
	l.pool.Close()
}

// RunRecord is the header row for one completed run.
type RunRecord struct {
	RunID      string
	SweepName  string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Record persists one run header and all of its leaf rows.
func (l *Ledger) Record(ctx context.Context, rec RunRecord, results []scheduler.LeafResult) error {
	logger := ctxlog.FromContext(ctx)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sweep_runs (run_id, sweep_name, leaves, failed, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.RunID, rec.SweepName, len(results), failed, rec.StartedAt, rec.FinishedAt)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", rec.RunID, err)
	}

	for _, r := range results {
		row, err := LeafRow(rec.RunID, r)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO sweep_leaves (run_id, leaf_index, node_id, assignment, status, error)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			row.RunID, row.LeafIndex, row.NodeID, row.Assignment, row.Status, row.Error)
		if err != nil {
			return fmt.Errorf("recording leaf %d of run %s: %w", r.LeafIndex, rec.RunID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing ledger transaction: %w", err)
	}
	logger.Info("Run recorded in ledger.", "runID", rec.RunID, "leaves", len(results), "failed", failed)
	return nil
}
