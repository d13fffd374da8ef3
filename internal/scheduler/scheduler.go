// Package scheduler periodically enqueues ingestion and asset work.
// It is safe to run alongside live workers: dedup checks keep it from
// stacking duplicate jobs for the same source or product.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"catalog-ingestion/internal/models"
)

// JobQueue is the slice of the queue the scheduler needs.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload models.Payload) (string, error)
	HasActiveJob(ctx context.Context, jobType models.JobType, payloadKey, payloadValue string) (bool, error)
}

// Catalog supplies the scheduling candidates.
type Catalog interface {
	ActiveSources(ctx context.Context) ([]models.Source, error)
	ProductsWithoutAssets(ctx context.Context, limit int) ([]string, error)
}

type Scheduler struct {
	queue     JobQueue
	catalog   Catalog
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func New(queue JobQueue, catalog Catalog, interval time.Duration, batchSize int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Scheduler{
		queue:     queue,
		catalog:   catalog,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run executes scheduling passes on a fixed interval until the context is
// cancelled. The first pass runs immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error("scheduling pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scheduling pass. Exposed for cron-style
// invocation.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if err := s.scheduleIngestion(ctx); err != nil {
		return fmt.Errorf("schedule ingestion: %w", err)
	}
	if err := s.scheduleAssetPrep(ctx); err != nil {
		return fmt.Errorf("schedule asset prep: %w", err)
	}
	return nil
}

// scheduleIngestion enqueues one ingestion job per active source, unless
// a job for that source is already pending or running.
func (s *Scheduler) scheduleIngestion(ctx context.Context) error {
	sources, err := s.catalog.ActiveSources(ctx)
	if err != nil {
		return fmt.Errorf("list active sources: %w", err)
	}

	enqueued := 0
	for _, src := range sources {
		active, err := s.queue.HasActiveJob(ctx, models.JobIngestSource, "source_id", src.ID)
		if err != nil {
			return fmt.Errorf("check active jobs for source %s: %w", src.ID, err)
		}
		if active {
			s.logger.Debug("ingestion already queued", "source_id", src.ID, "source", src.Name)
			continue
		}
		if _, err := s.queue.Enqueue(ctx, models.JobIngestSource, models.Payload{"source_id": src.ID}); err != nil {
			return fmt.Errorf("enqueue ingestion for source %s: %w", src.ID, err)
		}
		enqueued++
	}

	s.logger.Info("ingestion scheduled", "sources", len(sources), "enqueued", enqueued)
	return nil
}

// scheduleAssetPrep enqueues asset jobs for products that have no assets
// yet, capped per pass so a large backlog drains gradually.
func (s *Scheduler) scheduleAssetPrep(ctx context.Context) error {
	productIDs, err := s.catalog.ProductsWithoutAssets(ctx, s.batchSize)
	if err != nil {
		return fmt.Errorf("list products without assets: %w", err)
	}

	enqueued := 0
	for _, id := range productIDs {
		active, err := s.queue.HasActiveJob(ctx, models.JobPrepAssets, "product_id", id)
		if err != nil {
			return fmt.Errorf("check active jobs for product %s: %w", id, err)
		}
		if active {
			continue
		}
		if _, err := s.queue.Enqueue(ctx, models.JobPrepAssets, models.Payload{"product_id": id}); err != nil {
			return fmt.Errorf("enqueue asset prep for product %s: %w", id, err)
		}
		enqueued++
	}

	s.logger.Info("asset prep scheduled", "candidates", len(productIDs), "enqueued", enqueued)
	return nil
}
