// Package sqlite persists the scheduler's job states and execution records
// in SQLite. It uses modernc.org/sqlite (pure Go, no CGO).
//
// Timestamps are stored as fixed-width UTC text so that string comparison in
// SQL matches chronological order.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/newspaper/mailing/internal/cron"
)

// Compile-time interface guards.
var (
	_ cron.JobStore     = (*Store)(nil)
	_ cron.ExecutionLog = (*Store)(nil)
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements cron.JobStore and cron.ExecutionLog on one database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps an open database and migrates its schema.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	if err := migrate(ctx, db); err != nil {
		return nil, err
	}
	return newStore(db), nil
}

func newStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close: %w", err)
	}
	return nil
}

// Stop closes the database; it lets the store take part in the
// application's shutdown sequence.
func (s *Store) Stop(context.Context) error { return s.Close() }

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// nullTime maps the zero time to NULL.
func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("sqlite: parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}
