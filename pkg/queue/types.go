// Package queue provides the worker pool that drains the pending queue
// through the batch processor.
package queue

import (
	"context"
	"time"

	"github.com/topicforge/topicforge/pkg/models"
	"github.com/topicforge/topicforge/pkg/processor"
)

// ItemStore is the store surface the worker pool needs.
type ItemStore interface {
	ClaimPending(ctx context.Context, limit int) ([]models.QueueItem, error)
	Complete(ctx context.Context, id int64, currentTitle string, payload models.TopicPayload) error
	Fail(ctx context.Context, id int64, errorMessage string) error
	Requeue(ctx context.Context, ids []int64) error
	ResetStale(ctx context.Context, olderThan time.Duration) (int64, error)
	CountByState(ctx context.Context) (map[models.State]int, error)
}

// BatchProcessor converts one claimed batch into an outcome. Satisfied by
// *processor.Processor; tests substitute stubs.
type BatchProcessor interface {
	Process(ctx context.Context, items []models.QueueItem) processor.BatchOutcome
}

// ClaimBurst caps how many items one tick may claim, independent of free
// executor capacity. Keeps a single dispatcher from monopolizing pending
// work when several processes share the store.
const ClaimBurst = 30

// batchAssignment is the ephemeral unit of dispatch. It holds no durable
// state: on crash, the items' state = processing rows are the recovery
// record.
type batchAssignment struct {
	id        string
	items     []models.QueueItem
	startedAt time.Time
}

// PoolHealth is a point-in-time snapshot of the worker pool, derived from
// the store on demand rather than tracked in parallel counters.
type PoolHealth struct {
	IsHealthy        bool                 `json:"is_healthy"`
	StoreReachable   bool                 `json:"store_reachable"`
	StoreError       string               `json:"store_error,omitempty"`
	QueueDepth       map[models.State]int `json:"queue_depth"`
	InFlightBatches  int64                `json:"in_flight_batches"`
	MaxParallel      int                  `json:"max_parallel"`
	BatchesProcessed int64                `json:"batches_processed"`
	LastStaleScan    time.Time            `json:"last_stale_scan"`
	StaleReclaimed   int64                `json:"stale_reclaimed"`
}
