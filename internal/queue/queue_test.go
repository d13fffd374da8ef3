package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-ingestion/internal/models"
	"catalog-ingestion/internal/store"
)

func newTestQueue(t *testing.T, maxAttempts int) *Queue {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.RunMigrations(ctx))

	return New(st.DB(), maxAttempts, 8)
}

func TestDequeueEmptyQueue(t *testing.T) {
	q := newTestQueue(t, 3)

	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueOldestFirst(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := q.Enqueue(ctx, models.JobIngestSource, models.Payload{"source_id": "src"})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	for _, want := range ids {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, want, job.ID)
		assert.Equal(t, models.StatusRunning, job.Status)
		assert.Equal(t, 1, job.Attempts)
		require.NotNil(t, job.LockedAt)
	}
}

func TestDequeuePayloadRoundTrip(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.JobPrepAssets, models.Payload{"product_id": "p-1"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	got, ok := job.Payload.StringField("product_id")
	require.True(t, ok)
	assert.Equal(t, "p-1", got)
}

func TestConcurrentDequeueClaimsAreDistinct(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	const n = 5
	for i := 0; i < n; i++ {
		_, err := q.Enqueue(ctx, models.JobIngestSource, models.Payload{"source_id": "src"})
		require.NoError(t, err)
	}

	var (
		mu      sync.Mutex
		claimed = make(map[string]int)
		wg      sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job, err := q.Dequeue(ctx)
			if err != nil || job == nil {
				return
			}
			mu.Lock()
			claimed[job.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, count := range claimed {
		assert.Equalf(t, 1, count, "job %s claimed %d times", id, count)
	}
	// Stragglers that lost every race exhaust their retries and report
	// empty; drain sequentially to confirm nothing was claimed twice.
	for len(claimed) < n {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		_, seen := claimed[job.ID]
		require.False(t, seen)
		claimed[job.ID] = 1
	}
}

func TestFailRequeuesBelowAttemptCeiling(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.JobRefreshPrice, models.Payload{"product_id": "p-1"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, 1, job.Attempts)

	require.NoError(t, q.Fail(ctx, id, "transient upstream error"))

	got, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Nil(t, got.LockedAt)
	require.NotNil(t, got.Error)
	assert.Equal(t, "transient upstream error", *got.Error)
}

func TestFailTerminalAtAttemptCeiling(t *testing.T) {
	q := newTestQueue(t, 2)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.JobRefreshInventory, models.Payload{"product_id": "p-1"})
	require.NoError(t, err)

	for attempt := 1; attempt <= 2; attempt++ {
		job, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, job)
		require.Equal(t, attempt, job.Attempts)
		require.NoError(t, q.Fail(ctx, id, "still broken"))
	}

	got, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.NotNil(t, got.CompletedAt)

	// A terminally failed job never returns to the queue.
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestCompleteIsIdempotent(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, models.JobIngestSource, models.Payload{"source_id": "src"})
	require.NoError(t, err)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	require.NoError(t, q.Complete(ctx, id))
	require.NoError(t, q.Complete(ctx, id))

	got, err := q.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestStatsCoverAllStatuses(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	for _, status := range []models.JobStatus{
		models.StatusPending, models.StatusRunning, models.StatusCompleted, models.StatusFailed,
	} {
		assert.Contains(t, stats, status)
		assert.Zero(t, stats[status])
	}

	_, err = q.Enqueue(ctx, models.JobIngestSource, nil)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, models.JobIngestSource, nil)
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)

	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[models.StatusPending])
	assert.Equal(t, 1, stats[models.StatusRunning])
}

func TestHasActiveJobMatchesPayloadField(t *testing.T) {
	q := newTestQueue(t, 3)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, models.JobIngestSource, models.Payload{"source_id": "src-a"})
	require.NoError(t, err)

	active, err := q.HasActiveJob(ctx, models.JobIngestSource, "source_id", "src-a")
	require.NoError(t, err)
	assert.True(t, active)

	active, err = q.HasActiveJob(ctx, models.JobIngestSource, "source_id", "src-b")
	require.NoError(t, err)
	assert.False(t, active)

	// A running job still counts as active.
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	active, err = q.HasActiveJob(ctx, models.JobIngestSource, "source_id", "src-a")
	require.NoError(t, err)
	assert.True(t, active)

	// Completion releases the dedup hold.
	require.NoError(t, q.Complete(ctx, job.ID))
	active, err = q.HasActiveJob(ctx, models.JobIngestSource, "source_id", "src-a")
	require.NoError(t, err)
	assert.False(t, active)
}
