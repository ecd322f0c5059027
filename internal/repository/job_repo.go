package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"
)

// JobSQL reads machine_jobs. The table is written by the scheduling system.
type JobSQL struct {
	conn    *sql.DB
	dialect db.Dialect
}

func NewJobSQL(conn *sql.DB, dialect db.Dialect) *JobSQL {
	return &JobSQL{conn: conn, dialect: dialect}
}

const (
	jobColumns = `id, machine_id, name, status, planned_start, planned_end,
		qty_required, qty_completed, qty_good, qty_bad, target_cycle_time`

	// a running job wins over a scheduled one whose window contains at
	selectActiveJobSQL = `
		SELECT ` + jobColumns + `
		FROM machine_jobs
		WHERE machine_id = ?
		  AND planned_start <= ?
		  AND (status = 'running' OR (status = 'scheduled' AND planned_end > ?))
		ORDER BY CASE status WHEN 'running' THEN 0 ELSE 1 END, planned_start DESC
		LIMIT 1
	`

	selectOverlappingJobsSQL = `
		SELECT ` + jobColumns + `
		FROM machine_jobs
		WHERE machine_id = ? AND planned_start < ? AND planned_end > ?
		ORDER BY planned_start ASC
	`

	selectJobSQL = `SELECT ` + jobColumns + ` FROM machine_jobs WHERE id = ?`
)

// Active returns the job the machine is working on at the given instant.
func (r *JobSQL) Active(ctx context.Context, machineID string, at time.Time) (models.MachineJob, error) {
	at = at.UTC()
	row := r.conn.QueryRowContext(ctx, r.dialect.Rebind(selectActiveJobSQL), machineID, at, at)
	return scanJob(row)
}

// ListOverlapping returns jobs whose planned window intersects [from, to).
func (r *JobSQL) ListOverlapping(ctx context.Context, machineID string, from, to time.Time) ([]models.MachineJob, error) {
	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(selectOverlappingJobsSQL), machineID, to.UTC(), from.UTC())
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []models.MachineJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *JobSQL) Get(ctx context.Context, id string) (models.MachineJob, error) {
	return scanJob(r.conn.QueryRowContext(ctx, r.dialect.Rebind(selectJobSQL), id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.MachineJob, error) {
	var j models.MachineJob
	err := row.Scan(
		&j.ID,
		&j.MachineID,
		&j.Name,
		&j.Status,
		&j.PlannedStart,
		&j.PlannedEnd,
		&j.Quantities.Required,
		&j.Quantities.Completed,
		&j.Quantities.Good,
		&j.Quantities.Bad,
		&j.Metrics.TargetCycleTime,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.MachineJob{}, ErrNotFound
	}
	if err != nil {
		return models.MachineJob{}, fmt.Errorf("scan job: %w", err)
	}
	j.PlannedStart = j.PlannedStart.UTC()
	j.PlannedEnd = j.PlannedEnd.UTC()
	return j, nil
}
