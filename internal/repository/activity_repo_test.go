package repository

import (
	"errors"
	"regexp"
	"testing"
	"time"

	"machine_monitor/internal/models"
	"machine_monitor/internal/repository/db"

	"github.com/DATA-DOG/go-sqlmock"
)

var (
	berlin = time.FixedZone("CET", 3600)
	t0     = time.Date(2024, 1, 6, 9, 0, 0, 0, berlin) // 08:00 UTC
)

func TestListOpen_ScansNullableColumns(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	end := t0.Add(time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(selectOpenSQL)).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(intervalCols).
			AddRow("a", "m-1", "c-1", nil, "Running", "#0f0", nil, t0, nil, t0, "plc").
			AddRow("b", "m-1", "c-1", "job-7", "Down", "#f00", "jam", t0, end, end, "plc"))

	got, err := repo.ListOpen(ctx(t), "m-1")
	if err != nil {
		t.Fatalf("ListOpen: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 rows, got %d", len(got))
	}
	if got[0].JobID != "" || got[0].Reason != "" || got[0].End != nil {
		t.Fatalf("nullable columns not mapped to zero values: %+v", got[0])
	}
	if got[0].Start.Location() != time.UTC {
		t.Fatalf("start not normalized to UTC: %v", got[0].Start.Location())
	}
	if got[1].JobID != "job-7" || got[1].Reason != "jam" || got[1].End == nil || !got[1].End.Equal(end) {
		t.Fatalf("unexpected row: %+v", got[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestApplyTransition_CommitsBatch(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	open := &models.ActivityInterval{
		ID: "new", MachineID: "m-1", CustomerID: "c-1", Status: "Down", Color: "#f00",
		Reason: "jam", Start: t0, LastUpdateTime: t0, Source: "plc",
	}
	tr := models.Transition{
		MachineID: "m-1",
		Closes:    []models.Closure{{IntervalID: "old", End: t0}},
		Open:      open,
		Events: []models.OutboxEvent{
			{EventID: "e1", MachineID: "m-1", Type: "interval.closed", Payload: []byte(`{}`), CreatedAt: t0},
			{EventID: "e2", MachineID: "m-1", Type: "interval.opened", Payload: []byte(`{}`), CreatedAt: t0},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(closeIntervalSQL)).
		WithArgs(utcAt(t0), utcAt(t0), "old").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertIntervalSQL)).
		WithArgs("new", "m-1", "c-1", nil, "Down", "#f00", "jam", utcAt(t0), nil, utcAt(t0), "plc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertOutboxSQL)).
		WithArgs("e1", "m-1", "interval.closed", "{}", utcAt(t0)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertOutboxSQL)).
		WithArgs("e2", "m-1", "interval.opened", "{}", utcAt(t0)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := repo.ApplyTransition(ctx(t), tr); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestApplyTransition_ConflictRollsBack(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	tr := models.Transition{
		MachineID: "m-1",
		Closes:    []models.Closure{{IntervalID: "old", End: t0}},
		Open:      &models.ActivityInterval{ID: "new", MachineID: "m-1", Start: t0, LastUpdateTime: t0},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(closeIntervalSQL)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "old").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.ApplyTransition(ctx(t), tr)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestApplyTransition_InsertErrorRollsBack(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertIntervalSQL)).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.ApplyTransition(ctx(t), models.Transition{
		MachineID: "m-1",
		Open:      &models.ActivityInterval{ID: "new", MachineID: "m-1", Start: t0, LastUpdateTime: t0},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestApplyTransition_EmptyIsNoop(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	if err := repo.ApplyTransition(ctx(t), models.Transition{MachineID: "m-1"}); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestTouch_UsesUTC(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	mock.ExpectExec(regexp.QuoteMeta(touchIntervalSQL)).
		WithArgs(utcAt(t0), "a", utcAt(t0)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Touch(ctx(t), "a", t0); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestListRange_PostgresPlaceholders(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.Postgres)

	from, to := t0, t0.Add(24*time.Hour)
	mock.ExpectQuery(regexp.QuoteMeta(
		`WHERE machine_id = $1 AND start_time <= $2 AND (end_time IS NULL OR end_time >= $3) AND status IN ($4, $5) ORDER BY start_time ASC, id ASC`)).
		WithArgs("m-1", utcAt(to), utcAt(from), "Down", "Idle").
		WillReturnRows(sqlmock.NewRows(intervalCols))

	got, err := repo.ListRange(ctx(t), "m-1", from, to, []string{"Down", "Idle"})
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want no rows, got %d", len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("mock expectations: %v", err)
	}
}

func TestListRange_NoBounds(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM activity_intervals WHERE machine_id = ? ORDER BY`)).
		WithArgs("m-1").
		WillReturnRows(sqlmock.NewRows(intervalCols).
			AddRow("a", "m-1", "c-1", nil, "Running", "#0f0", nil, t0, nil, t0, "plc"))

	got, err := repo.ListRange(ctx(t), "m-1", time.Time{}, time.Time{}, nil)
	if err != nil {
		t.Fatalf("ListRange: %v", err)
	}
	if len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("unexpected rows: %+v", got)
	}
}

func TestMachinesWithMultipleOpen(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	mock.ExpectQuery(regexp.QuoteMeta(multipleOpenSQL)).
		WillReturnRows(sqlmock.NewRows([]string{"machine_id"}).AddRow("m-1").AddRow("m-4"))

	got, err := repo.MachinesWithMultipleOpen(ctx(t))
	if err != nil {
		t.Fatalf("MachinesWithMultipleOpen: %v", err)
	}
	if len(got) != 2 || got[0] != "m-1" || got[1] != "m-4" {
		t.Fatalf("unexpected ids: %v", got)
	}
}

func TestListStaleOpen(t *testing.T) {
	t.Parallel()
	conn, mock := newMock(t)
	repo := NewActivitySQL(conn, db.SQLite)

	mock.ExpectQuery(regexp.QuoteMeta(staleOpenSQL)).
		WithArgs(models.StatusOffline, utcAt(t0)).
		WillReturnError(errors.New("boom"))

	if _, err := repo.ListStaleOpen(ctx(t), t0, models.StatusOffline); err == nil {
		t.Fatal("expected error")
	}
}
