// Package models contains the domain types shared across the store,
// worker pool, and API layers.
package models

import "time"

// State is the lifecycle state of a queue item.
type State string

// Queue item lifecycle states.
const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Valid reports whether s is a known lifecycle state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProcessing, StateCompleted, StateFailed:
		return true
	}
	return false
}

// QueueItem is a single submitted title with its lifecycle state.
//
// OriginalTitle is the exact user-submitted string, byte-for-byte, and is
// never mutated after insert. CurrentTitle is the LLM-cleaned string, empty
// until the item first completes.
type QueueItem struct {
	ID            int64     `json:"id"`
	OriginalTitle string    `json:"original_title"`
	CurrentTitle  string    `json:"current_title,omitempty"`
	State         State     `json:"state"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
