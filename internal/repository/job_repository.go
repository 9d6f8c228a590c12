package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stagehall/boxoffice/internal/model"
)

// JobRepo is the durable job queue backing the worker. Jobs live in a
// plain table; the dequeue selects and leases in one transaction with
// FOR UPDATE SKIP LOCKED, which is what makes running several worker
// processes against the same database safe.
type JobRepo struct {
	db *sql.DB
}

// NewJobRepo returns a new JobRepo bound to the given database.
func NewJobRepo(db *sql.DB) *JobRepo { return &JobRepo{db: db} }

// Enqueue inserts a pending job and returns its id. Payload is stored as
// opaque JSON; its schema depends on jobType.
func (r *JobRepo) Enqueue(ctx context.Context, jobType string, payload []byte, priority int) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO jobs (type, payload, status, priority) VALUES (?, ?, ?, ?)`,
		jobType, payload, model.JobPending, priority)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// DequeueBatch claims up to limit runnable jobs: pending, with next_retry_at
// unset or elapsed, ordered by priority descending then FIFO within a
// priority. Selection and the flip to PROCESSING happen in one transaction
// so no two workers can ever claim the same job.
func (r *JobRepo) DequeueBatch(ctx context.Context, limit int) ([]model.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dequeue tx: %w", err)
	}
	defer tx.Rollback()

	const q = `SELECT id, type, payload, status, priority, execution_count, next_retry_at, last_error, created_at, updated_at
	           FROM jobs
	           WHERE status = ? AND (next_retry_at IS NULL OR next_retry_at <= UTC_TIMESTAMP())
	           ORDER BY priority DESC, created_at ASC, id ASC
	           LIMIT ?
	           FOR UPDATE SKIP LOCKED`
	rows, err := tx.QueryContext(ctx, q, model.JobPending, limit)
	if err != nil {
		return nil, fmt.Errorf("select runnable jobs: %w", err)
	}
	jobs := make([]model.Job, 0, limit)
	for rows.Next() {
		var j model.Job
		var nextRetry sql.NullTime
		var lastErr sql.NullString
		if err := rows.Scan(&j.ID, &j.Type, &j.Payload, &j.Status, &j.Priority,
			&j.ExecutionCount, &nextRetry, &lastErr, &j.CreatedAt, &j.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if nextRetry.Valid {
			t := nextRetry.Time
			j.NextRetryAt = &t
		}
		if lastErr.Valid {
			e := lastErr.String
			j.LastError = &e
		}
		jobs = append(jobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, tx.Commit()
	}

	placeholders := make([]string, len(jobs))
	args := make([]any, 0, len(jobs)+1)
	args = append(args, model.JobProcessing)
	for i, j := range jobs {
		placeholders[i] = "?"
		args = append(args, j.ID)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("lease jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dequeue: %w", err)
	}
	for i := range jobs {
		jobs[i].Status = model.JobProcessing
	}
	return jobs, nil
}

// MarkCompleted transitions a leased job to its successful terminal state.
func (r *JobRepo) MarkCompleted(ctx context.Context, jobID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, last_error = NULL WHERE id = ?`,
		model.JobCompleted, jobID)
	return err
}

// ScheduleRetry returns a leased job to PENDING with the given execution
// count, retry eligibility time and failure message.
func (r *JobRepo) ScheduleRetry(ctx context.Context, jobID uint64, executionCount int, nextRetryAt time.Time, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, execution_count = ?, next_retry_at = ?, last_error = ? WHERE id = ?`,
		model.JobPending, executionCount, nextRetryAt.UTC(), errMsg, jobID)
	return err
}

// MarkFailed transitions a job to its terminal failure state after the
// attempt budget is exhausted or the job is unprocessable.
func (r *JobRepo) MarkFailed(ctx context.Context, jobID uint64, executionCount int, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, execution_count = ?, last_error = ? WHERE id = ?`,
		model.JobFailed, executionCount, errMsg, jobID)
	return err
}

// PurgeTerminal deletes completed and failed jobs older than the cutoff
// and reports how many were removed. This retention sweep is the only
// code path that ever deletes jobs.
func (r *JobRepo) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		model.JobCompleted, model.JobFailed, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge terminal jobs: %w", err)
	}
	return res.RowsAffected()
}
