package sqlite

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/newspaper/mailing/internal/cron"
)

var errDisk = errors.New("disk I/O error")

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return newStore(db), mock
}

func TestStore_Get_QueryError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = ?`)).
		WithArgs("weekly_digest").
		WillReturnError(errDisk)

	_, err := s.Get(context.Background(), "weekly_digest")
	if !errors.Is(err, errDisk) || errors.Is(err, cron.ErrJobNotFound) {
		t.Fatalf("got %v, want wrapped disk error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_Get_CorruptTimestamp(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM jobs WHERE id = ?`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "trigger", "next_fire_time", "updated_at"}).
			AddRow("job", "@daily", "yesterday", "2024-01-01T00:00:00.000000000Z"))

	if _, err := s.Get(context.Background(), "job"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStore_Register_ExistingWithoutReplace(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM jobs WHERE id = ?")).
		WithArgs("job").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.Register(context.Background(), cron.Definition{ID: "job", Trigger: "@daily"}, time.Now())
	if !errors.Is(err, cron.ErrJobExists) {
		t.Fatalf("got %v, want ErrJobExists", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStore_Register_UpsertError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT(id) DO UPDATE")).
		WithArgs("job", "@daily", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errDisk)

	_, err := s.Register(context.Background(), cron.Definition{ID: "job", Trigger: "@daily", ReplaceExisting: true}, time.Now())
	if !errors.Is(err, errDisk) {
		t.Fatalf("got %v, want wrapped disk error", err)
	}
}

func TestStore_SetNextFire_ExecError(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE jobs SET next_fire_time")).
		WillReturnError(errDisk)

	if err := s.SetNextFire(context.Background(), "job", time.Now()); !errors.Is(err, errDisk) {
		t.Fatalf("got %v, want wrapped disk error", err)
	}
}

func TestStore_Finish_NoRows(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE job_executions SET finished_at")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Finish(context.Background(), "gone", time.Now(), cron.OutcomeSuccess, "")
	if !errors.Is(err, cron.ErrExecutionNotFound) {
		t.Fatalf("got %v, want ErrExecutionNotFound", err)
	}
}

func TestStore_DeleteFinishedBefore_Error(t *testing.T) {
	t.Parallel()

	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM job_executions")).
		WillReturnError(errDisk)

	if _, err := s.DeleteFinishedBefore(context.Background(), time.Now()); !errors.Is(err, errDisk) {
		t.Fatalf("got %v, want wrapped disk error", err)
	}
}

func TestMigrate_Errors(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_version")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_version")).
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS jobs")).
		WillReturnError(errDisk)

	if _, err := New(context.Background(), db); !errors.Is(err, errDisk) {
		t.Fatalf("got %v, want wrapped disk error", err)
	}
}

func TestMigrate_AlreadyCurrent(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_version")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) FROM schema_version")).
		WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(schemaVersion))

	if err := migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
