package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/newspaper/mailing/internal/cron"
)

// Register implements cron.JobStore.
func (s *Store) Register(ctx context.Context, def cron.Definition, nextFire time.Time) (cron.State, error) {
	now := s.now()
	st := cron.State{
		JobID:     def.ID,
		Trigger:   def.Trigger,
		NextFire:  nextFire,
		UpdatedAt: now,
	}

	if def.ReplaceExisting {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO jobs (id, "trigger", next_fire_time, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				"trigger" = excluded."trigger",
				next_fire_time = excluded.next_fire_time,
				updated_at = excluded.updated_at`,
			def.ID, def.Trigger, nullTime(nextFire), formatTime(now),
		)
		if err != nil {
			return cron.State{}, fmt.Errorf("sqlite: upsert job %s: %w", def.ID, err)
		}
		return st, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cron.State{}, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, "SELECT 1 FROM jobs WHERE id = ?", def.ID).Scan(&exists)
	switch {
	case err == nil:
		return cron.State{}, fmt.Errorf("%w: %s", cron.ErrJobExists, def.ID)
	case !errors.Is(err, sql.ErrNoRows):
		return cron.State{}, fmt.Errorf("sqlite: lookup job %s: %w", def.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO jobs (id, "trigger", next_fire_time, updated_at) VALUES (?, ?, ?, ?)`,
		def.ID, def.Trigger, nullTime(nextFire), formatTime(now),
	); err != nil {
		return cron.State{}, fmt.Errorf("sqlite: insert job %s: %w", def.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return cron.State{}, fmt.Errorf("sqlite: commit: %w", err)
	}
	return st, nil
}

// Get implements cron.JobStore.
func (s *Store) Get(ctx context.Context, id string) (cron.State, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, "trigger", next_fire_time, updated_at FROM jobs WHERE id = ?`, id)
	st, err := scanState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return cron.State{}, fmt.Errorf("%w: %s", cron.ErrJobNotFound, id)
	}
	if err != nil {
		return cron.State{}, fmt.Errorf("sqlite: get job %s: %w", id, err)
	}
	return st, nil
}

// SetNextFire implements cron.JobStore.
func (s *Store) SetNextFire(ctx context.Context, id string, next time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET next_fire_time = ?, updated_at = ? WHERE id = ?",
		nullTime(next), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: set next fire of %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: set next fire of %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", cron.ErrJobNotFound, id)
	}
	return nil
}

// List implements cron.JobStore.
func (s *Store) List(ctx context.Context) ([]cron.State, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, "trigger", next_fire_time, updated_at FROM jobs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []cron.State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan job: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate jobs: %w", err)
	}
	return out, nil
}

// Remove implements cron.JobStore.
func (s *Store) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id); err != nil {
		return fmt.Errorf("sqlite: remove job %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanState(sc scanner) (cron.State, error) {
	var (
		st        cron.State
		next      sql.NullString
		updatedAt string
	)
	if err := sc.Scan(&st.JobID, &st.Trigger, &next, &updatedAt); err != nil {
		return cron.State{}, err
	}
	var err error
	if st.NextFire, err = parseNullTime(next); err != nil {
		return cron.State{}, err
	}
	if st.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return cron.State{}, err
	}
	return st, nil
}
