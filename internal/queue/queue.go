// Package queue implements the persistent job queue on the shared
// relational database. The queue owns the Job lifecycle exclusively: every
// status transition goes through Enqueue, Dequeue, Complete, or Fail.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"catalog-ingestion/internal/models"
	"catalog-ingestion/internal/store"
)

const (
	defaultMaxAttempts  = 3
	defaultClaimRetries = 8
)

// Queue coordinates job claims across any number of worker processes.
// Mutual exclusion relies only on the database: a claim is an UPDATE guarded
// by status = 'pending', so exactly one racing caller wins.
type Queue struct {
	db           *sqlx.DB
	maxAttempts  int
	claimRetries int
}

// New builds a queue over the shared database handle. maxAttempts is the
// retry ceiling applied to newly enqueued jobs; claimRetries bounds how
// often a dequeue retries after losing a claim race.
func New(db *sqlx.DB, maxAttempts, claimRetries int) *Queue {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	if claimRetries < 1 {
		claimRetries = defaultClaimRetries
	}
	return &Queue{db: db, maxAttempts: maxAttempts, claimRetries: claimRetries}
}

// Enqueue inserts a new pending job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, jobType models.JobType, payload models.Payload) (string, error) {
	if payload == nil {
		payload = models.Payload{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	id := uuid.New().String()
	_, err = q.db.ExecContext(ctx, q.db.Rebind(`
		INSERT INTO job_queue (id, job_type, payload, status, attempts, max_attempts, created_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`), id, jobType, string(raw), models.StatusPending, q.maxAttempts, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest pending job, transitioning it to running and
// incrementing its attempt count. It returns nil when the queue is empty.
//
// The claim is an optimistic compare-and-swap: read the oldest candidate,
// then update it guarded by status = 'pending'. Losing the race is normal
// contention, not an error; the loop retries against the next candidate
// with a short jittered backoff, bounded so heavy contention degrades to
// "queue empty" and the poll interval provides spacing.
func (q *Queue) Dequeue(ctx context.Context) (*models.Job, error) {
	for attempt := 0; attempt < q.claimRetries; attempt++ {
		row, found, err := q.oldestPending(ctx)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, nil
		}

		now := time.Now().UTC()
		res, err := q.db.ExecContext(ctx, q.db.Rebind(`
			UPDATE job_queue
			SET status = ?, attempts = attempts + 1, locked_at = ?
			WHERE id = ? AND status = ?
		`), models.StatusRunning, now, row.ID, models.StatusPending)
		if err != nil {
			return nil, fmt.Errorf("claim job: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("claim job rows: %w", err)
		}
		if n == 1 {
			job, err := row.toModel()
			if err != nil {
				return nil, err
			}
			job.Status = models.StatusRunning
			job.Attempts++
			job.LockedAt = &now
			return &job, nil
		}

		// Lost the race; back off briefly before trying the next candidate.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(20*time.Millisecond))) + 5*time.Millisecond):
		}
	}
	return nil, nil
}

// Complete marks a running job as completed. Calling it twice is safe: the
// status guard turns the second call into a no-op.
func (q *Queue) Complete(ctx context.Context, jobID string) error {
	_, err := q.db.ExecContext(ctx, q.db.Rebind(`
		UPDATE job_queue SET status = ?, completed_at = ?
		WHERE id = ? AND status = ?
	`), models.StatusCompleted, time.Now().UTC(), jobID, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// Fail records a job failure. Below the attempt ceiling the job returns to
// pending with its original created_at, so it keeps its place in FIFO
// order; at the ceiling the failure is terminal. There is no backoff delay
// at the queue layer: the worker poll interval provides natural spacing.
func (q *Queue) Fail(ctx context.Context, jobID, message string) error {
	var counts struct {
		Attempts    int `db:"attempts"`
		MaxAttempts int `db:"max_attempts"`
	}
	err := q.db.GetContext(ctx, &counts, q.db.Rebind(`
		SELECT attempts, max_attempts FROM job_queue WHERE id = ?
	`), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("fail job: job %s not found", jobID)
	}
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}

	if counts.Attempts < counts.MaxAttempts {
		_, err = q.db.ExecContext(ctx, q.db.Rebind(`
			UPDATE job_queue SET status = ?, error = ?, locked_at = NULL
			WHERE id = ? AND status = ?
		`), models.StatusPending, message, jobID, models.StatusRunning)
	} else {
		_, err = q.db.ExecContext(ctx, q.db.Rebind(`
			UPDATE job_queue SET status = ?, error = ?, locked_at = NULL, completed_at = ?
			WHERE id = ? AND status = ?
		`), models.StatusFailed, message, time.Now().UTC(), jobID, models.StatusRunning)
	}
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetJob fetches a job by id.
func (q *Queue) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	var row jobRow
	err := q.db.GetContext(ctx, &row, q.db.Rebind(`
		SELECT id, job_type, payload, status, attempts, max_attempts,
			locked_at, completed_at, error, created_at
		FROM job_queue WHERE id = ?
	`), jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", jobID, store.ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("query job: %w", err)
	}
	return row.toModel()
}

// Stats returns job counts per status for observability.
func (q *Queue) Stats(ctx context.Context) (map[models.JobStatus]int, error) {
	stats := map[models.JobStatus]int{
		models.StatusPending:   0,
		models.StatusRunning:   0,
		models.StatusCompleted: 0,
		models.StatusFailed:    0,
	}
	rows, err := q.db.QueryxContext(ctx, `
		SELECT status, COUNT(*) AS n FROM job_queue GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("query queue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan queue stats: %w", err)
		}
		stats[models.JobStatus(status)] = n
	}
	return stats, rows.Err()
}

// HasActiveJob reports whether a pending or running job of the given type
// carries payloadKey = payloadValue. The scheduler uses this to avoid
// enqueueing duplicate in-flight work. Payload matching happens in Go so
// the same query runs on every supported driver.
func (q *Queue) HasActiveJob(ctx context.Context, jobType models.JobType, payloadKey, payloadValue string) (bool, error) {
	var payloads []string
	err := q.db.SelectContext(ctx, &payloads, q.db.Rebind(`
		SELECT payload FROM job_queue
		WHERE job_type = ? AND status IN (?, ?)
	`), jobType, models.StatusPending, models.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("query active jobs: %w", err)
	}
	for _, raw := range payloads {
		var payload models.Payload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			continue
		}
		if v, ok := payload.StringField(payloadKey); ok && v == payloadValue {
			return true, nil
		}
	}
	return false, nil
}

type jobRow struct {
	ID          string         `db:"id"`
	JobType     string         `db:"job_type"`
	Payload     string         `db:"payload"`
	Status      string         `db:"status"`
	Attempts    int            `db:"attempts"`
	MaxAttempts int            `db:"max_attempts"`
	LockedAt    sql.NullTime   `db:"locked_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	Error       sql.NullString `db:"error"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r jobRow) toModel() (models.Job, error) {
	job := models.Job{
		ID:          r.ID,
		JobType:     models.JobType(r.JobType),
		Status:      models.JobStatus(r.Status),
		Attempts:    r.Attempts,
		MaxAttempts: r.MaxAttempts,
		CreatedAt:   r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Payload), &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if r.LockedAt.Valid {
		t := r.LockedAt.Time
		job.LockedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		job.CompletedAt = &t
	}
	if r.Error.Valid {
		msg := r.Error.String
		job.Error = &msg
	}
	return job, nil
}

func (q *Queue) oldestPending(ctx context.Context) (jobRow, bool, error) {
	var row jobRow
	err := q.db.GetContext(ctx, &row, q.db.Rebind(`
		SELECT id, job_type, payload, status, attempts, max_attempts,
			locked_at, completed_at, error, created_at
		FROM job_queue
		WHERE status = ?
		ORDER BY created_at, id
		LIMIT 1
	`), models.StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return jobRow{}, false, nil
	}
	if err != nil {
		return jobRow{}, false, fmt.Errorf("query oldest pending job: %w", err)
	}
	return row, true, nil
}
