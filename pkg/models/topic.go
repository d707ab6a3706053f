package models

import "time"

// TopicPayload is the structured topic record produced by the LLM for a
// single queue item. Field names mirror the response envelope.
type TopicPayload struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Tags            []string          `json:"tags"`
	Technologies    []string          `json:"technologies"`
	ComplexityLevel string            `json:"complexity_level"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Topic is the canonical, LLM-cleaned record derived from a completed
// queue item. TopicStatusID links back to the queue row that produced it;
// the topic id is its own sequence and never collides with another topic.
type Topic struct {
	ID              int64             `json:"id"`
	TopicStatusID   int64             `json:"topic_status_id"`
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Category        string            `json:"category"`
	Tags            []string          `json:"tags"`
	Technologies    []string          `json:"technologies"`
	ComplexityLevel string            `json:"complexity_level"`
	Extra           map[string]string `json:"extra,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}
