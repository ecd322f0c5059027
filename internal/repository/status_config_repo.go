package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"

	"github.com/goccy/go-json"
)

// StatusConfigSQL reads per-machine mapping tables stored as JSON.
type StatusConfigSQL struct {
	conn    *sql.DB
	dialect db.Dialect
}

func NewStatusConfigSQL(conn *sql.DB, dialect db.Dialect) *StatusConfigSQL {
	return &StatusConfigSQL{conn: conn, dialect: dialect}
}

const selectStatusConfigSQL = `SELECT mappings FROM status_configs WHERE machine_id = ?`

func (r *StatusConfigSQL) Get(ctx context.Context, machineID string) (models.StatusConfig, error) {
	var raw string
	err := r.conn.QueryRowContext(ctx, r.dialect.Rebind(selectStatusConfigSQL), machineID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return models.StatusConfig{}, ErrNotFound
	}
	if err != nil {
		return models.StatusConfig{}, fmt.Errorf("load status config %s: %w", machineID, err)
	}

	cfg := models.StatusConfig{MachineID: machineID}
	if raw == "" {
		return cfg, nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg.Mappings); err != nil {
		return models.StatusConfig{}, fmt.Errorf("decode status config %s: %w", machineID, err)
	}
	return cfg, nil
}
