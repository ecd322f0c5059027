package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"
)

type ActivitySQL struct {
	conn    *sql.DB
	dialect db.Dialect
}

func NewActivitySQL(conn *sql.DB, dialect db.Dialect) *ActivitySQL {
	return &ActivitySQL{conn: conn, dialect: dialect}
}

const (
	intervalColumns = `id, machine_id, customer_id, job_id, status, color, reason, start_time, end_time, last_update_time, source`

	selectOpenSQL = `
		SELECT ` + intervalColumns + `
		FROM activity_intervals
		WHERE machine_id = ? AND end_time IS NULL
		ORDER BY start_time ASC, id ASC
	`

	closeIntervalSQL = `
		UPDATE activity_intervals SET end_time = ?, last_update_time = ?
		WHERE id = ? AND end_time IS NULL
	`

	insertIntervalSQL = `
		INSERT INTO activity_intervals (` + intervalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	insertOutboxSQL = `
		INSERT INTO outbox (event_id, machine_id, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	touchIntervalSQL = `
		UPDATE activity_intervals SET last_update_time = ?
		WHERE id = ? AND end_time IS NULL AND last_update_time < ?
	`

	multipleOpenSQL = `
		SELECT machine_id FROM activity_intervals
		WHERE end_time IS NULL
		GROUP BY machine_id
		HAVING COUNT(*) > 1
		ORDER BY machine_id
	`

	staleOpenSQL = `
		SELECT ` + intervalColumns + `
		FROM activity_intervals
		WHERE end_time IS NULL AND status <> ? AND last_update_time < ?
		ORDER BY machine_id, start_time
	`
)

// ListOpen returns all open intervals; more than one means a historical race.
func (r *ActivitySQL) ListOpen(ctx context.Context, machineID string) ([]models.ActivityInterval, error) {
	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(selectOpenSQL), machineID)
	if err != nil {
		return nil, fmt.Errorf("list open intervals: %w", err)
	}
	return scanIntervals(rows)
}

// ApplyTransition runs the whole batch in one transaction. A closure that finds its
// interval already closed aborts the batch with ErrConflict.
func (r *ActivitySQL) ApplyTransition(ctx context.Context, t models.Transition) (err error) {
	if t.Empty() {
		return nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range t.Closes {
		end := c.End.UTC()
		res, execErr := tx.ExecContext(ctx, r.dialect.Rebind(closeIntervalSQL), end, end, c.IntervalID)
		if execErr != nil {
			return fmt.Errorf("close interval %s: %w", c.IntervalID, execErr)
		}
		n, raErr := res.RowsAffected()
		if raErr != nil {
			return fmt.Errorf("close interval %s: %w", c.IntervalID, raErr)
		}
		if n == 0 {
			return fmt.Errorf("close interval %s: %w", c.IntervalID, ErrConflict)
		}
	}

	if iv := t.Open; iv != nil {
		if _, err = tx.ExecContext(ctx, r.dialect.Rebind(insertIntervalSQL),
			iv.ID,
			iv.MachineID,
			iv.CustomerID,
			nullString(iv.JobID),
			iv.Status,
			iv.Color,
			nullString(iv.Reason),
			iv.Start.UTC(),
			nil,
			iv.LastUpdateTime.UTC(),
			iv.Source,
		); err != nil {
			return fmt.Errorf("insert interval %s: %w", iv.ID, err)
		}
	}

	for _, ev := range t.Events {
		if _, err = tx.ExecContext(ctx, r.dialect.Rebind(insertOutboxSQL),
			ev.EventID,
			ev.MachineID,
			ev.Type,
			string(ev.Payload),
			ev.CreatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("insert outbox event %s: %w", ev.EventID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	return nil
}

// Touch is bookkeeping only; it never moves last_update_time backwards.
func (r *ActivitySQL) Touch(ctx context.Context, intervalID string, at time.Time) error {
	at = at.UTC()
	if _, err := r.conn.ExecContext(ctx, r.dialect.Rebind(touchIntervalSQL), at, intervalID, at); err != nil {
		return fmt.Errorf("touch interval %s: %w", intervalID, err)
	}
	return nil
}

// ListRange returns intervals overlapping [from, to] ordered by start.
// Zero bounds are open-ended.
func (r *ActivitySQL) ListRange(ctx context.Context, machineID string, from, to time.Time, statuses []string) ([]models.ActivityInterval, error) {
	conds := []string{"machine_id = ?"}
	args := []any{machineID}

	if !to.IsZero() {
		conds = append(conds, "start_time <= ?")
		args = append(args, to.UTC())
	}
	if !from.IsZero() {
		conds = append(conds, "(end_time IS NULL OR end_time >= ?)")
		args = append(args, from.UTC())
	}
	if len(statuses) > 0 {
		conds = append(conds, "status IN ("+placeholders(len(statuses))+")")
		for _, s := range statuses {
			args = append(args, s)
		}
	}

	q := `SELECT ` + intervalColumns + ` FROM activity_intervals WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY start_time ASC, id ASC`

	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	return scanIntervals(rows)
}

func (r *ActivitySQL) MachinesWithMultipleOpen(ctx context.Context) ([]string, error) {
	rows, err := r.conn.QueryContext(ctx, multipleOpenSQL)
	if err != nil {
		return nil, fmt.Errorf("find machines with multiple open intervals: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ActivitySQL) ListStaleOpen(ctx context.Context, before time.Time, skipStatus string) ([]models.ActivityInterval, error) {
	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(staleOpenSQL), skipStatus, before.UTC())
	if err != nil {
		return nil, fmt.Errorf("list stale open intervals: %w", err)
	}
	return scanIntervals(rows)
}

func scanIntervals(rows *sql.Rows) ([]models.ActivityInterval, error) {
	defer rows.Close()

	out := make([]models.ActivityInterval, 0, 16)
	for rows.Next() {
		var (
			iv            models.ActivityInterval
			jobID, reason sql.NullString
			end           sql.NullTime
		)
		if err := rows.Scan(
			&iv.ID,
			&iv.MachineID,
			&iv.CustomerID,
			&jobID,
			&iv.Status,
			&iv.Color,
			&reason,
			&iv.Start,
			&end,
			&iv.LastUpdateTime,
			&iv.Source,
		); err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		iv.JobID = jobID.String
		iv.Reason = reason.String
		iv.Start = iv.Start.UTC()
		iv.LastUpdateTime = iv.LastUpdateTime.UTC()
		if end.Valid {
			e := end.Time.UTC()
			iv.End = &e
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
