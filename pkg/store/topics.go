package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/topicforge/topicforge/pkg/models"
)

// upsertTopic inserts or replaces the topic row linked to a queue item.
// Runs inside the Complete transaction. The topic id is its own sequence;
// linkage to the queue row is the unique topic_status_id column.
func upsertTopic(ctx context.Context, tx *sql.Tx, queueID int64, title string, payload models.TopicPayload, now time.Time) error {
	tags, err := marshalList(payload.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	technologies, err := marshalList(payload.Technologies)
	if err != nil {
		return fmt.Errorf("marshal technologies: %w", err)
	}
	extra := "{}"
	if len(payload.Extra) > 0 {
		raw, err := json.Marshal(payload.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra: %w", err)
		}
		extra = string(raw)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO topics (topic_status_id, title, description, category, tags, technologies, complexity_level, extra, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (topic_status_id) DO UPDATE SET
		     title = excluded.title,
		     description = excluded.description,
		     category = excluded.category,
		     tags = excluded.tags,
		     technologies = excluded.technologies,
		     complexity_level = excluded.complexity_level,
		     extra = excluded.extra`,
		queueID, title, payload.Description, payload.Category,
		tags, technologies, payload.ComplexityLevel, extra, now)
	if err != nil {
		return fmt.Errorf("upsert topic: %w", err)
	}
	return nil
}

// GetTopicByQueueID returns the topic produced by the given queue item,
// or ErrNotFound when the item has not completed.
func (s *Store) GetTopicByQueueID(ctx context.Context, queueID int64) (*models.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, topic_status_id, title, description, category, tags, technologies, complexity_level, extra, created_at
		 FROM topics WHERE topic_status_id = ?`, queueID)

	var (
		t            models.Topic
		tags         string
		technologies string
		extra        string
	)
	err := row.Scan(&t.ID, &t.TopicStatusID, &t.Title, &t.Description, &t.Category,
		&tags, &technologies, &t.ComplexityLevel, &extra, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get topic for queue item %d: %w", queueID, err)
	}

	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("store: decode topic tags: %w", err)
	}
	if err := json.Unmarshal([]byte(technologies), &t.Technologies); err != nil {
		return nil, fmt.Errorf("store: decode topic technologies: %w", err)
	}
	if extra != "" && extra != "{}" {
		if err := json.Unmarshal([]byte(extra), &t.Extra); err != nil {
			return nil, fmt.Errorf("store: decode topic extra: %w", err)
		}
	}
	return &t, nil
}

// marshalList JSON-encodes a string slice, normalizing nil to [].
func marshalList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
