package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict means a row changed underneath a transition, e.g. an interval
	// expected to be open was already closed.
	ErrConflict = errors.New("write conflict")
)

type ActivityRepo interface {
	// ListOpen returns every interval of the machine with no end, oldest first.
	ListOpen(ctx context.Context, machineID string) ([]models.ActivityInterval, error)
	// ApplyTransition writes closures, the new interval and outbox rows atomically.
	ApplyTransition(ctx context.Context, t models.Transition) error
	// Touch moves last_update_time of an open interval forward.
	Touch(ctx context.Context, intervalID string, at time.Time) error
	// ListRange returns intervals overlapping [from, to], optionally restricted to statuses.
	ListRange(ctx context.Context, machineID string, from, to time.Time, statuses []string) ([]models.ActivityInterval, error)
	// MachinesWithMultipleOpen lists machines with more than one open interval.
	MachinesWithMultipleOpen(ctx context.Context) ([]string, error)
	// ListStaleOpen returns open intervals not updated since before, excluding skipStatus.
	ListStaleOpen(ctx context.Context, before time.Time, skipStatus string) ([]models.ActivityInterval, error)
}

type JobRepo interface {
	Active(ctx context.Context, machineID string, at time.Time) (models.MachineJob, error)
	ListOverlapping(ctx context.Context, machineID string, from, to time.Time) ([]models.MachineJob, error)
	Get(ctx context.Context, id string) (models.MachineJob, error)
}

type MachineRepo interface {
	Resolve(ctx context.Context, nameOrID string) (models.Machine, error)
	List(ctx context.Context) ([]models.Machine, error)
}

type StatusConfigRepo interface {
	Get(ctx context.Context, machineID string) (models.StatusConfig, error)
}

type OutboxRepo interface {
	Pending(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

type Repository struct {
	Activity      ActivityRepo
	Jobs          JobRepo
	Machines      MachineRepo
	StatusConfigs StatusConfigRepo
	Outbox        OutboxRepo
}

func NewRepository(conn *sql.DB, dialect db.Dialect) *Repository {
	return &Repository{
		Activity:      NewActivitySQL(conn, dialect),
		Jobs:          NewJobSQL(conn, dialect),
		Machines:      NewMachineSQL(conn, dialect),
		StatusConfigs: NewStatusConfigSQL(conn, dialect),
		Outbox:        NewOutboxSQL(conn, dialect),
	}
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}
