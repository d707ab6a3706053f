package api

import (
	"github.com/topicforge/topicforge/pkg/models"
	"github.com/topicforge/topicforge/pkg/queue"
	"github.com/topicforge/topicforge/pkg/store"
)

// SubmitTopicsResponse is returned by POST /api/v1/topics. Each submitted
// title lands in exactly one bucket: newly queued, skipped (already
// completed or already in flight), or retried (failed row re-queued).
type SubmitTopicsResponse struct {
	Queued  []int64 `json:"queued"`
	Skipped []int64 `json:"skipped"`
	Retried []int64 `json:"retried"`
}

// ListTopicsResponse is the paginated queue listing.
type ListTopicsResponse struct {
	Items    []models.QueueItem `json:"items"`
	Total    int                `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
}

// TopicDetailResponse is one queue item plus its topic, when completed.
type TopicDetailResponse struct {
	Item  *models.QueueItem `json:"item"`
	Topic *models.Topic     `json:"topic,omitempty"`
}

// RetryResponse is returned by POST /api/v1/topics/:id/retry.
type RetryResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status     string              `json:"status"`
	Store      *store.HealthStatus `json:"store"`
	WorkerPool *queue.PoolHealth   `json:"worker_pool,omitempty"`
}
