package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

type sqlmockArgumentFunc func(v driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool {
	return f(v)
}

// utcAt matches a time.Time argument equal to want and in UTC.
func utcAt(want time.Time) sqlmockArgumentFunc {
	return func(v driver.Value) bool {
		tm, ok := v.(time.Time)
		return ok && tm.Equal(want) && tm.Location() == time.UTC
	}
}

var intervalCols = []string{"id", "machine_id", "customer_id", "job_id", "status", "color", "reason", "start_time", "end_time", "last_update_time", "source"}
