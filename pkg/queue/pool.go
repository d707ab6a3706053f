package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"github.com/topicforge/topicforge/pkg/config"
	"github.com/topicforge/topicforge/pkg/llm"
	"github.com/topicforge/topicforge/pkg/models"
	"github.com/topicforge/topicforge/pkg/processor"
)

// WorkerPool polls the store for pending items, partitions them into
// batches, and dispatches each batch to a bounded executor. At most
// MaxParallel batches execute simultaneously; when the executor is
// saturated the dispatcher blocks on submission rather than dropping work.
type WorkerPool struct {
	store     ItemStore
	processor BatchProcessor
	cfg       *config.QueueConfig

	sem      *semaphore.Weighted
	inflight atomic.Int64

	// coolingUntil delays claiming while the LLM credential pool is fully
	// cold (unix nanos; zero means not cooling).
	coolingUntil atomic.Int64

	batchesProcessed atomic.Int64

	stopCh     chan struct{}
	stopOnce   sync.Once
	cancelWait context.CancelFunc
	loopWG     sync.WaitGroup
	batchWG    sync.WaitGroup
	started    bool

	mu             sync.Mutex
	lastStaleScan  time.Time
	staleReclaimed int64
}

// NewWorkerPool creates a worker pool over the given store and processor.
func NewWorkerPool(store ItemStore, proc BatchProcessor, cfg *config.QueueConfig) *WorkerPool {
	return &WorkerPool{
		store:     store,
		processor: proc,
		cfg:       cfg,
		sem:       semaphore.NewWeighted(int64(cfg.MaxParallel)),
		stopCh:    make(chan struct{}),
	}
}

// Start runs the startup stale reset and launches the dispatcher and
// stale-reset loops. Safe to call once; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call")
		return nil
	}
	p.started = true

	// Reclaim items stuck in processing from a prior crash before the
	// first poll.
	if err := p.resetStale(ctx, p.cfg.StaleTimeout); err != nil {
		return fmt.Errorf("startup stale reset: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancelWait = cancel

	slog.Info("Starting worker pool",
		"batch_size", p.cfg.BatchSize,
		"max_parallel", p.cfg.MaxParallel,
		"poll_interval", p.cfg.PollInterval)

	p.loopWG.Add(2)
	go func() {
		defer p.loopWG.Done()
		p.runDispatcher(loopCtx)
	}()
	go func() {
		defer p.loopWG.Done()
		p.runStaleReset(loopCtx)
	}()
	return nil
}

// Stop performs graceful shutdown: stop polling, drain in-flight batches up
// to the drain deadline, then reset every still-processing item back to
// pending so nothing stays claimed across a clean shutdown.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.loopWG.Wait()

	drained := make(chan struct{})
	go func() {
		p.batchWG.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		slog.Info("Worker pool drained")
	case <-time.After(p.cfg.DrainTimeout):
		slog.Warn("Drain deadline exceeded, abandoning in-flight batches",
			"in_flight", p.inflight.Load())
		if p.cancelWait != nil {
			p.cancelWait()
		}
		<-drained
	}

	// Shutdown reset uses a fresh context: the pool context is cancelled by
	// now, but leftover processing rows must still be returned to pending.
	resetCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.resetStale(resetCtx, 0); err != nil {
		slog.Error("Shutdown stale reset failed", "error", err)
	}
	slog.Info("Worker pool stopped")
}

// runDispatcher is the poll-claim-dispatch loop.
func (p *WorkerPool) runDispatcher(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	// First poll immediately; the ticker covers subsequent ones.
	p.tick(ctx)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick claims up to the executor's free capacity and dispatches batches.
func (p *WorkerPool) tick(ctx context.Context) {
	if until := p.coolingUntil.Load(); until > 0 && time.Now().UnixNano() < until {
		return
	}

	free := int64(p.cfg.MaxParallel) - p.inflight.Load()
	if free <= 0 {
		return
	}

	// Claim no more than can be submitted this tick: free slots worth of
	// batches, capped by the per-tick burst.
	limit := min(ClaimBurst, 10*p.cfg.BatchSize, int(free)*p.cfg.BatchSize)
	items, err := p.store.ClaimPending(ctx, limit)
	if err != nil {
		slog.Error("Failed to claim pending items", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	batches := lo.Chunk(items, p.cfg.BatchSize)
	slog.Debug("Dispatching claimed items", "items", len(items), "batches", len(batches))

	for i, chunk := range batches {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			// Shutdown while waiting for a slot: return everything not yet
			// dispatched so the next run picks it up immediately.
			p.requeueBatches(batches[i:])
			return
		}
		assignment := batchAssignment{
			id:        uuid.New().String(),
			items:     chunk,
			startedAt: time.Now(),
		}
		p.inflight.Add(1)
		p.batchWG.Add(1)
		go p.runBatch(ctx, assignment)
	}
}

// runBatch executes one batch and writes outcomes back through the store.
// Failures never propagate to the dispatcher loop.
func (p *WorkerPool) runBatch(ctx context.Context, assignment batchAssignment) {
	log := slog.With("batch_id", assignment.id, "items", len(assignment.items))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic in batch execution", "panic", r, "stack", string(debug.Stack()))
			p.failBatch(assignment.items, fmt.Sprintf("internal error: %v", r))
		}
		p.inflight.Add(-1)
		p.sem.Release(1)
		p.batchWG.Done()
		p.batchesProcessed.Add(1)
	}()

	outcome := p.processor.Process(ctx, assignment.items)
	switch outcome.Kind {
	case processor.OutcomeSuccess:
		for _, item := range outcome.Items {
			p.completeItem(item, log)
		}
		log.Info("Batch completed", "duration", time.Since(assignment.startedAt))

	case processor.OutcomeTransient:
		if isAllKeysCooling(outcome.Err) {
			p.coolingUntil.Store(time.Now().Add(p.cfg.PollInterval).UnixNano())
		}
		log.Warn("Batch hit transient failure, re-queueing", "error", outcome.Err)
		p.requeueBatches([][]models.QueueItem{assignment.items})

	case processor.OutcomeFatal:
		log.Error("Batch failed", "error", outcome.Err)
		p.failBatch(assignment.items, outcome.Err.Error())
	}
}

// completeItem writes one successful outcome back, retrying once on a
// store failure. If both attempts fail the item stays in processing and is
// reclaimed by the next stale reset.
func (p *WorkerPool) completeItem(item processor.PerItem, log *slog.Logger) {
	// Write-backs use a background context: batch context cancellation
	// must not lose results the LLM already produced.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := p.store.Complete(ctx, item.ID, item.CleanedTitle, item.Topic)
	if err == nil {
		return
	}
	log.Warn("Write-back failed, retrying once", "item_id", item.ID, "error", err)

	time.Sleep(500 * time.Millisecond)
	if err := p.store.Complete(ctx, item.ID, item.CleanedTitle, item.Topic); err != nil {
		log.Error("Write-back failed after retry, leaving item for stale reset",
			"item_id", item.ID, "error", err)
	}
}

// failBatch marks every item in the batch as failed.
func (p *WorkerPool) failBatch(items []models.QueueItem, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, item := range items {
		if err := p.store.Fail(ctx, item.ID, message); err != nil {
			slog.Error("Failed to mark item as failed", "item_id", item.ID, "error", err)
		}
	}
}

// requeueBatches returns batches to pending.
func (p *WorkerPool) requeueBatches(batches [][]models.QueueItem) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, batch := range batches {
		ids := lo.Map(batch, func(item models.QueueItem, _ int) int64 { return item.ID })
		if err := p.store.Requeue(ctx, ids); err != nil {
			slog.Error("Failed to re-queue batch, items await stale reset",
				"ids", ids, "error", err)
		}
	}
}

// runStaleReset periodically reclaims items stuck in processing.
func (p *WorkerPool) runStaleReset(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.StaleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.resetStale(ctx, p.cfg.StaleTimeout); err != nil {
				slog.Error("Periodic stale reset failed", "error", err)
			}
		}
	}
}

func (p *WorkerPool) resetStale(ctx context.Context, olderThan time.Duration) error {
	reclaimed, err := p.store.ResetStale(ctx, olderThan)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.lastStaleScan = time.Now()
	p.staleReclaimed += reclaimed
	p.mu.Unlock()
	if reclaimed > 0 {
		slog.Warn("Reclaimed stale processing items", "count", reclaimed, "older_than", olderThan)
	}
	return nil
}

// InFlight returns the number of batches currently executing.
func (p *WorkerPool) InFlight() int64 {
	return p.inflight.Load()
}

// Health returns the current pool health, with queue depth derived from
// the store on demand.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	depth, err := p.store.CountByState(ctx)

	p.mu.Lock()
	lastScan := p.lastStaleScan
	reclaimed := p.staleReclaimed
	p.mu.Unlock()

	health := &PoolHealth{
		StoreReachable:   err == nil,
		QueueDepth:       depth,
		InFlightBatches:  p.inflight.Load(),
		MaxParallel:      p.cfg.MaxParallel,
		BatchesProcessed: p.batchesProcessed.Load(),
		LastStaleScan:    lastScan,
		StaleReclaimed:   reclaimed,
	}
	if err != nil {
		health.StoreError = err.Error()
	}
	health.IsHealthy = health.StoreReachable
	return health
}

func isAllKeysCooling(err error) bool {
	return errors.Is(err, llm.ErrAllKeysCooling)
}
