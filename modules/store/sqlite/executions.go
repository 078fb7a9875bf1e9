package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/newspaper/mailing/internal/cron"
)

// Insert implements cron.ExecutionLog.
func (s *Store) Insert(ctx context.Context, rec cron.Record) error {
	var finished sql.NullString
	if rec.FinishedAt != nil {
		finished = nullTime(*rec.FinishedAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO job_executions (id, job_id, started_at, finished_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.JobID, formatTime(rec.StartedAt), finished, string(rec.Outcome), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("sqlite: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// Finish implements cron.ExecutionLog.
func (s *Store) Finish(ctx context.Context, id string, finishedAt time.Time, outcome cron.Outcome, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_executions SET finished_at = ?, outcome = ?, error = ?
		WHERE id = ? AND finished_at IS NULL`,
		formatTime(finishedAt), string(outcome), errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: finish execution %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: finish execution %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", cron.ErrExecutionNotFound, id)
	}
	return nil
}

// History implements cron.ExecutionLog. A limit <= 0 returns every record.
func (s *Store) History(ctx context.Context, jobID string, limit int) ([]cron.Record, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, started_at, finished_at, outcome, error
		FROM job_executions WHERE job_id = ?
		ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		jobID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: history of %s: %w", jobID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []cron.Record
	for rows.Next() {
		var (
			rec      cron.Record
			started  string
			finished sql.NullString
			outcome  string
		)
		if err := rows.Scan(&rec.ID, &rec.JobID, &started, &finished, &outcome, &rec.Error); err != nil {
			return nil, fmt.Errorf("sqlite: scan execution: %w", err)
		}
		if rec.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			at, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			rec.FinishedAt = &at
		}
		rec.Outcome = cron.Outcome(outcome)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate executions: %w", err)
	}
	return out, nil
}

// DeleteFinishedBefore implements cron.ExecutionLog.
func (s *Store) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM job_executions WHERE finished_at IS NOT NULL AND started_at < ?",
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: delete executions: %w", err)
	}
	return n, nil
}

// CloseAbandoned implements cron.ExecutionLog.
func (s *Store) CloseAbandoned(ctx context.Context, before, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE job_executions SET finished_at = ?, outcome = ?, error = 'abandoned'
		WHERE finished_at IS NULL AND started_at < ?`,
		formatTime(at), string(cron.OutcomeFailure), formatTime(before),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: close abandoned executions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: close abandoned executions: %w", err)
	}
	return n, nil
}
