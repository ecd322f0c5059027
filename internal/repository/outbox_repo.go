package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"
)

type OutboxSQL struct {
	conn    *sql.DB
	dialect db.Dialect
}

func NewOutboxSQL(conn *sql.DB, dialect db.Dialect) *OutboxSQL {
	return &OutboxSQL{conn: conn, dialect: dialect}
}

const selectPendingSQL = `
	SELECT id, event_id, machine_id, type, payload, created_at
	FROM outbox
	WHERE published_at IS NULL
	ORDER BY id ASC
	LIMIT ?
`

// Pending returns unpublished events in insertion order.
func (r *OutboxSQL) Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	rows, err := r.conn.QueryContext(ctx, r.dialect.Rebind(selectPendingSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox: %w", err)
	}
	defer rows.Close()

	out := make([]models.OutboxEvent, 0, limit)
	for rows.Next() {
		var (
			ev      models.OutboxEvent
			payload string
		)
		if err := rows.Scan(&ev.ID, &ev.EventID, &ev.MachineID, &ev.Type, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox: %w", err)
		}
		ev.Payload = []byte(payload)
		ev.CreatedAt = ev.CreatedAt.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkPublished stamps the given rows. Already published rows are left alone.
func (r *OutboxSQL) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, at.UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	q := `UPDATE outbox SET published_at = ? WHERE published_at IS NULL AND id IN (` + placeholders(len(ids)) + `)`
	if _, err := r.conn.ExecContext(ctx, r.dialect.Rebind(q), args...); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
