package db

import (
	"database/sql"
	"fmt"
	"strings"
)

const schemaMachines = `
CREATE TABLE IF NOT EXISTS machines (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    customer_id TEXT NOT NULL
);
`

const schemaActivityIntervals = `
CREATE TABLE IF NOT EXISTS activity_intervals (
    id TEXT PRIMARY KEY,
    machine_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    job_id TEXT,
    status TEXT NOT NULL,
    color TEXT NOT NULL,
    reason TEXT,
    start_time {{ts}} NOT NULL,
    end_time {{ts}},
    last_update_time {{ts}} NOT NULL,
    source TEXT NOT NULL
);
`

const schemaActivityIndexes = `
CREATE INDEX IF NOT EXISTS idx_activity_machine_start ON activity_intervals (machine_id, start_time);
`

const schemaActivityOpenIndex = `
CREATE INDEX IF NOT EXISTS idx_activity_open ON activity_intervals (machine_id) WHERE end_time IS NULL;
`

const schemaMachineJobs = `
CREATE TABLE IF NOT EXISTS machine_jobs (
    id TEXT PRIMARY KEY,
    machine_id TEXT NOT NULL,
    name TEXT NOT NULL,
    status TEXT NOT NULL,
    planned_start {{ts}} NOT NULL,
    planned_end {{ts}} NOT NULL,
    qty_required {{real}} NOT NULL DEFAULT 0,
    qty_completed {{real}} NOT NULL DEFAULT 0,
    qty_good {{real}} NOT NULL DEFAULT 0,
    qty_bad {{real}} NOT NULL DEFAULT 0,
    target_cycle_time {{real}} NOT NULL DEFAULT 0
);
`

const schemaMachineJobsIndex = `
CREATE INDEX IF NOT EXISTS idx_jobs_machine_window ON machine_jobs (machine_id, planned_start, planned_end);
`

const schemaStatusConfigs = `
CREATE TABLE IF NOT EXISTS status_configs (
    machine_id TEXT PRIMARY KEY,
    mappings TEXT NOT NULL
);
`

const schemaOutbox = `
CREATE TABLE IF NOT EXISTS outbox (
    id {{serial}},
    event_id TEXT NOT NULL UNIQUE,
    machine_id TEXT NOT NULL,
    type TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at {{ts}} NOT NULL,
    published_at {{ts}}
);
`

const schemaOutboxPendingIndex = `
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (id) WHERE published_at IS NULL;
`

func schemaStatements(dialect Dialect) []string {
	types := map[string]string{
		"{{ts}}":     "TIMESTAMP",
		"{{real}}":   "REAL",
		"{{serial}}": "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
	if dialect == Postgres {
		types = map[string]string{
			"{{ts}}":     "TIMESTAMPTZ",
			"{{real}}":   "DOUBLE PRECISION",
			"{{serial}}": "BIGSERIAL PRIMARY KEY",
		}
	}

	raw := []string{
		schemaMachines,
		schemaActivityIntervals,
		schemaActivityIndexes,
		schemaActivityOpenIndex,
		schemaMachineJobs,
		schemaMachineJobsIndex,
		schemaStatusConfigs,
		schemaOutbox,
		schemaOutboxPendingIndex,
	}
	out := make([]string, len(raw))
	for i, stmt := range raw {
		for placeholder, typ := range types {
			stmt = strings.ReplaceAll(stmt, placeholder, typ)
		}
		out[i] = stmt
	}
	return out
}

// EnsureSchema creates every table and index in one transaction.
func EnsureSchema(conn *sql.DB, dialect Dialect) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback()
	}()

	for i, stmt := range schemaStatements(dialect) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
