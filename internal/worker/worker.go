// Package worker drives the job execution loop. Any number of worker
// processes may run concurrently; coordination happens entirely through
// the queue's claim semantics.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catalog-ingestion/internal/models"
	"catalog-ingestion/internal/telemetry"
)

// Handler executes one job. Handlers never retry internally: errors bubble
// up and the queue's attempt accounting decides whether the job runs
// again.
type Handler func(ctx context.Context, job models.Job) error

// JobQueue is the slice of the queue the worker needs.
type JobQueue interface {
	Dequeue(ctx context.Context) (*models.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, message string) error
	Stats(ctx context.Context) (map[models.JobStatus]int, error)
}

// Worker polls the queue and dispatches claimed jobs to registered
// handlers.
type Worker struct {
	queue        JobQueue
	handlers     map[models.JobType]Handler
	pollInterval time.Duration
	logger       *slog.Logger
}

func New(q JobQueue, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &Worker{
		queue:        q,
		handlers:     make(map[models.JobType]Handler),
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// RegisterHandler binds a handler to a job type.
func (w *Worker) RegisterHandler(jobType models.JobType, handler Handler) {
	if jobType == "" || handler == nil {
		return
	}
	w.handlers[jobType] = handler
}

// Run polls until the context is cancelled. Shutdown stops claiming new
// jobs; a job already claimed runs to completion.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", "poll_interval", w.pollInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			w.logger.Error("dequeue failed", "error", err)
			w.sleep(ctx)
			continue
		}
		if job == nil {
			if stats, err := w.queue.Stats(ctx); err == nil {
				telemetry.PendingJobsGauge.Set(float64(stats[models.StatusPending]))
			}
			w.sleep(ctx)
			continue
		}

		w.process(ctx, *job)
	}
}

// process runs one claimed job and reports the outcome to the queue. This
// is the only place that calls Complete or Fail.
func (w *Worker) process(ctx context.Context, job models.Job) {
	// In-flight work is not preemptible: the job context survives loop
	// cancellation so a claimed job always reaches complete or fail.
	jobCtx := context.WithoutCancel(ctx)

	w.logger.Info("processing job",
		"job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)

	if err := w.dispatch(jobCtx, job); err != nil {
		if job.Attempts >= job.MaxAttempts {
			telemetry.JobsFailed.Inc()
		} else {
			telemetry.JobsRetried.Inc()
		}
		w.logger.Error("job failed",
			"job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts, "error", err)
		if ferr := w.queue.Fail(jobCtx, job.ID, err.Error()); ferr != nil {
			w.logger.Error("record job failure", "job_id", job.ID, "error", ferr)
		}
		return
	}

	if err := w.queue.Complete(jobCtx, job.ID); err != nil {
		w.logger.Error("record job completion", "job_id", job.ID, "error", err)
		return
	}
	telemetry.JobsCompleted.Inc()
	w.logger.Info("job completed", "job_id", job.ID, "job_type", job.JobType)
}

func (w *Worker) dispatch(ctx context.Context, job models.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return fmt.Errorf("no handler registered for job type %q", job.JobType)
	}
	return handler(ctx, job)
}

func (w *Worker) sleep(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
