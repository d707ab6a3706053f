package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/topicforge/topicforge/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		BusyTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testPayload(title string) models.TopicPayload {
	return models.TopicPayload{
		Title:           title,
		Description:     "A description of " + title,
		Category:        "golang",
		Tags:            []string{"go", "runtime"},
		Technologies:    []string{"Go"},
		ComplexityLevel: "intermediate",
	}
}

func TestEnqueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("new title creates a pending item", func(t *testing.T) {
		id, created, err := s.Enqueue(ctx, "Goroutine scheduling internals")
		require.NoError(t, err)
		assert.True(t, created)

		item, err := s.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, "Goroutine scheduling internals", item.OriginalTitle)
		assert.Equal(t, models.StatePending, item.State)
		assert.Empty(t, item.CurrentTitle)
	})

	t.Run("duplicate title returns the existing id", func(t *testing.T) {
		id1, created, err := s.Enqueue(ctx, "Channels under the hood")
		require.NoError(t, err)
		require.True(t, created)

		id2, created, err := s.Enqueue(ctx, "Channels under the hood")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id1, id2)
	})

	t.Run("dedup is byte-for-byte, not semantic", func(t *testing.T) {
		_, created, err := s.Enqueue(ctx, "24. **Why memory generations optimize GC**")
		require.NoError(t, err)
		require.True(t, created)

		// The cleaned-looking variant is a different byte string, so it is a
		// different queue item.
		_, created, err = s.Enqueue(ctx, "Why memory generations optimize GC")
		require.NoError(t, err)
		assert.True(t, created)
	})

	t.Run("enqueue does not resurrect a failed row", func(t *testing.T) {
		id, created, err := s.Enqueue(ctx, "A title that fails")
		require.NoError(t, err)
		require.True(t, created)
		claimAll(t, s)
		require.NoError(t, s.Fail(ctx, id, "model exploded"))

		gotID, created, err := s.Enqueue(ctx, "A title that fails")
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, id, gotID)

		item, err := s.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StateFailed, item.State)
	})
}

func TestEnqueueConcurrentSameTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const submitters = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = make(map[int64]bool)
		creates int
	)
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, created, err := s.Enqueue(ctx, "Escape analysis in practice")
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			ids[id] = true
			if created {
				creates++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, ids, 1, "every submitter must resolve to the same row")
	assert.Equal(t, 1, creates, "exactly one submitter creates the row")

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.StatePending])
}

func TestClaimPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("claims in FIFO order and flips state", func(t *testing.T) {
		var ids []int64
		for i := 0; i < 3; i++ {
			id, _, err := s.Enqueue(ctx, fmt.Sprintf("fifo topic %d", i))
			require.NoError(t, err)
			ids = append(ids, id)
			time.Sleep(2 * time.Millisecond)
		}

		claimed, err := s.ClaimPending(ctx, 2)
		require.NoError(t, err)
		require.Len(t, claimed, 2)
		assert.Equal(t, ids[0], claimed[0].ID)
		assert.Equal(t, ids[1], claimed[1].ID)
		for _, item := range claimed {
			assert.Equal(t, models.StateProcessing, item.State)
		}

		// The third item is still pending.
		item, err := s.GetItem(ctx, ids[2])
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, item.State)
	})

	t.Run("zero limit claims nothing", func(t *testing.T) {
		claimed, err := s.ClaimPending(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})

	t.Run("empty queue claims nothing", func(t *testing.T) {
		// Drain what the previous subtest left behind.
		_, err := s.ClaimPending(ctx, 100)
		require.NoError(t, err)

		claimed, err := s.ClaimPending(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, claimed)
	})
}

func TestClaimPendingConcurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const total = 100
	for i := 0; i < total; i++ {
		_, _, err := s.Enqueue(ctx, fmt.Sprintf("concurrent claim topic %03d", i))
		require.NoError(t, err)
	}

	const claimers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed = make(map[int64]int)
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := s.ClaimPending(ctx, total/claimers)
			require.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, item := range items {
				claimed[item.ID]++
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, total, "every item claimed exactly once")
	for id, n := range claimed {
		assert.Equal(t, 1, n, "item %d claimed %d times", id, n)
	}

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, counts[models.StatePending])
	assert.Equal(t, total, counts[models.StateProcessing])
}

func TestComplete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("persists cleaned title and topic atomically", func(t *testing.T) {
		id, _, err := s.Enqueue(ctx, "24. **Why memory generations optimize GC**")
		require.NoError(t, err)
		claimAll(t, s)

		payload := testPayload("Why memory generations optimize GC")
		require.NoError(t, s.Complete(ctx, id, "Why memory generations optimize GC", payload))

		item, err := s.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StateCompleted, item.State)
		assert.Equal(t, "24. **Why memory generations optimize GC**", item.OriginalTitle)
		assert.Equal(t, "Why memory generations optimize GC", item.CurrentTitle)
		assert.Empty(t, item.ErrorMessage)

		topic, err := s.GetTopicByQueueID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, topic.TopicStatusID)
		assert.Equal(t, payload.Title, topic.Title)
		assert.Equal(t, payload.Description, topic.Description)
		assert.Equal(t, payload.Category, topic.Category)
		assert.Equal(t, payload.Tags, topic.Tags)
		assert.Equal(t, payload.Technologies, topic.Technologies)
		assert.Equal(t, payload.ComplexityLevel, topic.ComplexityLevel)
	})

	t.Run("re-completion upserts the same topic row", func(t *testing.T) {
		id, _, err := s.Enqueue(ctx, "Profiling allocations")
		require.NoError(t, err)
		claimAll(t, s)
		require.NoError(t, s.Complete(ctx, id, "Profiling allocations", testPayload("Profiling allocations")))

		first, err := s.GetTopicByQueueID(ctx, id)
		require.NoError(t, err)

		updated := testPayload("Profiling heap allocations")
		require.NoError(t, s.Complete(ctx, id, "Profiling heap allocations", updated))

		second, err := s.GetTopicByQueueID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID, "linkage is stable across re-completion")
		assert.Equal(t, "Profiling heap allocations", second.Title)
	})

	t.Run("unknown id returns ErrNotFound", func(t *testing.T) {
		err := s.Complete(ctx, 999999, "x", testPayload("x"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFailAndRetry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, "A doomed topic")
	require.NoError(t, err)
	claimAll(t, s)

	require.NoError(t, s.Fail(ctx, id, "response envelope had 3 entries, expected 5"))
	item, err := s.GetItem(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, item.State)
	assert.Equal(t, "response envelope had 3 entries, expected 5", item.ErrorMessage)

	t.Run("retry re-queues the same row and clears the error", func(t *testing.T) {
		require.NoError(t, s.RetryFailed(ctx, id))
		item, err := s.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, item.State)
		assert.Empty(t, item.ErrorMessage)
	})

	t.Run("retry on a non-failed item returns ErrInvalidState", func(t *testing.T) {
		assert.ErrorIs(t, s.RetryFailed(ctx, id), ErrInvalidState)
	})

	t.Run("retry on a missing item returns ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, s.RetryFailed(ctx, 999999), ErrNotFound)
	})

	t.Run("fail on a missing item returns ErrNotFound", func(t *testing.T) {
		assert.ErrorIs(t, s.Fail(ctx, 999999, "x"), ErrNotFound)
	})
}

func TestRequeue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	procID, _, err := s.Enqueue(ctx, "transient victim")
	require.NoError(t, err)
	doneID, _, err := s.Enqueue(ctx, "already done")
	require.NoError(t, err)
	claimAll(t, s)
	require.NoError(t, s.Complete(ctx, doneID, "already done", testPayload("already done")))

	// Only the processing item moves; the completed one is guarded.
	require.NoError(t, s.Requeue(ctx, []int64{procID, doneID}))

	item, err := s.GetItem(ctx, procID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, item.State)

	item, err = s.GetItem(ctx, doneID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, item.State)

	assert.NoError(t, s.Requeue(ctx, nil), "empty id list is a no-op")
}

func TestResetStale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, "abandoned by a crash")
	require.NoError(t, err)
	claimAll(t, s)

	t.Run("fresh items survive a thresholded reset", func(t *testing.T) {
		reclaimed, err := s.ResetStale(ctx, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, reclaimed)
	})

	t.Run("zero threshold reclaims everything in processing", func(t *testing.T) {
		reclaimed, err := s.ResetStale(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), reclaimed)

		item, err := s.GetItem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.StatePending, item.State)
	})
}

func TestLookupByTitle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, _, err := s.Enqueue(ctx, "24. **Why memory generations optimize GC**")
	require.NoError(t, err)

	item, err := s.LookupByTitle(ctx, "24. **Why memory generations optimize GC**")
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)

	_, err = s.LookupByTitle(ctx, "Why memory generations optimize GC")
	assert.ErrorIs(t, err, ErrNotFound, "lookup never normalizes")
}

func TestCountByState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[models.State]int{
		models.StatePending:    0,
		models.StateProcessing: 0,
		models.StateCompleted:  0,
		models.StateFailed:     0,
	}, counts, "every state is present even when zero")

	for i := 0; i < 3; i++ {
		_, _, err := s.Enqueue(ctx, fmt.Sprintf("count topic %d", i))
		require.NoError(t, err)
	}
	claimed, err := s.ClaimPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	counts, err = s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.StatePending])
	assert.Equal(t, 1, counts[models.StateProcessing])
}

func TestListByState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _, err := s.Enqueue(ctx, fmt.Sprintf("list topic %d", i))
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	t.Run("paginates in FIFO order", func(t *testing.T) {
		page1, total, err := s.ListByState(ctx, models.StatePending, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page1, 2)
		assert.Equal(t, "list topic 0", page1[0].OriginalTitle)
		assert.Equal(t, "list topic 1", page1[1].OriginalTitle)

		page3, total, err := s.ListByState(ctx, models.StatePending, 3, 2)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		require.Len(t, page3, 1)
		assert.Equal(t, "list topic 4", page3[0].OriginalTitle)
	})

	t.Run("empty state lists everything", func(t *testing.T) {
		items, total, err := s.ListByState(ctx, "", 1, 10)
		require.NoError(t, err)
		assert.Equal(t, 5, total)
		assert.Len(t, items, 5)
	})

	t.Run("state with no items returns an empty page", func(t *testing.T) {
		items, total, err := s.ListByState(ctx, models.StateFailed, 1, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})
}

func TestRecentFailures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, _, err := s.Enqueue(ctx, fmt.Sprintf("failure topic %d", i))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	claimAll(t, s)
	for _, id := range ids {
		require.NoError(t, s.Fail(ctx, id, "boom"))
		time.Sleep(2 * time.Millisecond)
	}

	failures, err := s.RecentFailures(ctx, 2)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, ids[2], failures[0].ID, "newest failure first")
	assert.Equal(t, ids[1], failures[1].ID)
}

// claimAll moves every pending item to processing.
func claimAll(t *testing.T, s *Store) {
	t.Helper()
	_, err := s.ClaimPending(context.Background(), 1000)
	require.NoError(t, err)
}
