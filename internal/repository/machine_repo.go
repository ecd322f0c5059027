package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"
)

type MachineSQL struct {
	conn    *sql.DB
	dialect db.Dialect
}

func NewMachineSQL(conn *sql.DB, dialect db.Dialect) *MachineSQL {
	return &MachineSQL{conn: conn, dialect: dialect}
}

const (
	// an exact id match beats a name match
	resolveMachineSQL = `
		SELECT id, name, customer_id FROM machines
		WHERE id = ? OR name = ?
		ORDER BY CASE WHEN id = ? THEN 0 ELSE 1 END
		LIMIT 1
	`
	listMachinesSQL = `SELECT id, name, customer_id FROM machines ORDER BY id`
)

// Resolve accepts either a machine id or its registry name.
func (r *MachineSQL) Resolve(ctx context.Context, nameOrID string) (models.Machine, error) {
	key := strings.TrimSpace(nameOrID)
	if key == "" {
		return models.Machine{}, ErrNotFound
	}

	var m models.Machine
	err := r.conn.QueryRowContext(ctx, r.dialect.Rebind(resolveMachineSQL), key, key, key).
		Scan(&m.ID, &m.Name, &m.CustomerID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Machine{}, ErrNotFound
	}
	if err != nil {
		return models.Machine{}, fmt.Errorf("resolve machine %q: %w", key, err)
	}
	return m, nil
}

func (r *MachineSQL) List(ctx context.Context) ([]models.Machine, error) {
	rows, err := r.conn.QueryContext(ctx, listMachinesSQL)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	defer rows.Close()

	var out []models.Machine
	for rows.Next() {
		var m models.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.CustomerID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
