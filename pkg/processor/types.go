// Package processor converts a claimed batch of queue items into per-item
// outcomes by way of a single LLM call.
package processor

import "github.com/topicforge/topicforge/pkg/models"

// OutcomeKind discriminates the batch result union.
type OutcomeKind string

// Batch outcome kinds. The worker pool switches on these: success writes
// items back as completed, transient re-queues the batch, fatal fails it.
const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeTransient OutcomeKind = "transient"
	OutcomeFatal     OutcomeKind = "fatal"
)

// PerItem is the result for one queue item in a successful batch.
type PerItem struct {
	ID           int64
	CleanedTitle string
	Topic        models.TopicPayload
}

// BatchOutcome is the explicit result union for one batch. Partial success
// does not exist: either Items covers every input id, or Err explains why
// the whole batch failed.
type BatchOutcome struct {
	Kind  OutcomeKind
	Items []PerItem
	Err   error
}

// Success wraps per-item results.
func Success(items []PerItem) BatchOutcome {
	return BatchOutcome{Kind: OutcomeSuccess, Items: items}
}

// TransientFail marks the batch as retryable.
func TransientFail(err error) BatchOutcome {
	return BatchOutcome{Kind: OutcomeTransient, Err: err}
}

// FatalFail marks the batch as permanently failed.
func FatalFail(err error) BatchOutcome {
	return BatchOutcome{Kind: OutcomeFatal, Err: err}
}
