package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/topicforge/topicforge/pkg/models"
	"github.com/topicforge/topicforge/pkg/store"
)

// SubmitStatus reports what Submit did with a title.
type SubmitStatus string

// Submit outcomes.
const (
	// StatusQueued: a new queue item was created.
	StatusQueued SubmitStatus = "queued"

	// StatusAlreadyQueued: the title is already pending or processing.
	StatusAlreadyQueued SubmitStatus = "already_queued"

	// StatusSkipped: the title already completed; nothing to do.
	StatusSkipped SubmitStatus = "skipped"

	// StatusRetried: the title previously failed and its row was re-queued.
	StatusRetried SubmitStatus = "retried"
)

// SubmitResult is the outcome of one Submit call.
type SubmitResult struct {
	ID     int64
	Status SubmitStatus
}

// ProcessingStatus is the derived queue overview for the status API.
type ProcessingStatus struct {
	Pending        int                `json:"pending"`
	Processing     int                `json:"processing"`
	Completed      int                `json:"completed"`
	Failed         int                `json:"failed"`
	RecentFailures []models.QueueItem `json:"recent_failures"`
}

// recentFailureLimit bounds the failure slice in the status response.
const recentFailureLimit = 10

// IntakeService is the thin, synchronous ingress called by the HTTP layer.
type IntakeService struct {
	store *store.Store
}

// NewIntakeService creates a new IntakeService.
func NewIntakeService(st *store.Store) *IntakeService {
	if st == nil {
		panic("NewIntakeService: store must not be nil")
	}
	return &IntakeService{store: st}
}

// Submit validates and enqueues one title. Only surrounding whitespace is
// trimmed: formatting inside the title survives byte-for-byte, which is
// the invariant the whole pipeline is built around. Duplicate titles
// deduplicate against existing rows; a previously failed title re-queues
// its existing row (never a fresh one).
func (s *IntakeService) Submit(ctx context.Context, title string) (*SubmitResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, NewValidationError("title", "title must not be empty")
	}

	existing, err := s.store.LookupByTitle(ctx, title)
	switch {
	case errors.Is(err, store.ErrNotFound):
		// New title; fall through to enqueue.
	case err != nil:
		return nil, fmt.Errorf("dedup lookup: %w", err)
	default:
		return s.resolveExisting(ctx, existing)
	}

	id, created, err := s.store.Enqueue(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	if !created {
		// Raced with a concurrent submitter for the same title.
		return &SubmitResult{ID: id, Status: StatusAlreadyQueued}, nil
	}
	return &SubmitResult{ID: id, Status: StatusQueued}, nil
}

// resolveExisting maps an existing row's state to a submit outcome.
func (s *IntakeService) resolveExisting(ctx context.Context, item *models.QueueItem) (*SubmitResult, error) {
	switch item.State {
	case models.StateCompleted:
		return &SubmitResult{ID: item.ID, Status: StatusSkipped}, nil
	case models.StatePending, models.StateProcessing:
		return &SubmitResult{ID: item.ID, Status: StatusAlreadyQueued}, nil
	case models.StateFailed:
		err := s.store.RetryFailed(ctx, item.ID)
		if errors.Is(err, store.ErrInvalidState) {
			// Another submitter re-queued it first.
			return &SubmitResult{ID: item.ID, Status: StatusAlreadyQueued}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("retry failed item: %w", err)
		}
		return &SubmitResult{ID: item.ID, Status: StatusRetried}, nil
	default:
		return nil, fmt.Errorf("queue item %d has unknown state %q", item.ID, item.State)
	}
}

// Status returns the per-state counts and a slice of recent failures,
// derived from the store on every call.
func (s *IntakeService) Status(ctx context.Context) (*ProcessingStatus, error) {
	counts, err := s.store.CountByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("count by state: %w", err)
	}
	failures, err := s.store.RecentFailures(ctx, recentFailureLimit)
	if err != nil {
		return nil, fmt.Errorf("recent failures: %w", err)
	}
	if failures == nil {
		failures = []models.QueueItem{}
	}
	return &ProcessingStatus{
		Pending:        counts[models.StatePending],
		Processing:     counts[models.StateProcessing],
		Completed:      counts[models.StateCompleted],
		Failed:         counts[models.StateFailed],
		RecentFailures: failures,
	}, nil
}

// List returns a page of queue items, optionally filtered by state.
func (s *IntakeService) List(ctx context.Context, state string, page, pageSize int) ([]models.QueueItem, int, error) {
	st := models.State(state)
	if state != "" && !st.Valid() {
		return nil, 0, NewValidationError("state", fmt.Sprintf("unknown state %q", state))
	}
	return s.store.ListByState(ctx, st, page, pageSize)
}

// Get returns one queue item and, when it has completed, its topic.
func (s *IntakeService) Get(ctx context.Context, id int64) (*models.QueueItem, *models.Topic, error) {
	item, err := s.store.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	topic, err := s.store.GetTopicByQueueID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return item, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return item, topic, nil
}

// Retry transitions a failed item back to pending.
func (s *IntakeService) Retry(ctx context.Context, id int64) error {
	err := s.store.RetryFailed(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrInvalidState):
		return ErrInvalidState
	}
	return err
}
