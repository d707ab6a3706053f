package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/topicforge/topicforge/pkg/models"
)

// Enqueue inserts a new queue item for originalTitle in the pending state.
// Idempotent under concurrent callers: when a row for the title already
// exists (in any state), its id is returned with created = false and the
// row is left untouched. Failed-row retry is a separate, explicit
// transition (RetryFailed); Enqueue never resurrects or duplicates a
// failed row.
func (s *Store) Enqueue(ctx context.Context, originalTitle string) (id int64, created bool, err error) {
	err = withBusyRetry(func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("begin: %w", txErr)
		}
		defer func() { _ = tx.Rollback() }()

		// The transaction holds the write lock (_txlock=immediate), so the
		// lookup and insert are atomic with respect to other writers.
		var existing int64
		lookupErr := tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT id FROM topic_queue WHERE %s = ?`, s.titleColumn()),
			originalTitle).Scan(&existing)
		switch {
		case lookupErr == nil:
			id, created = existing, false
			return tx.Commit()
		case !errors.Is(lookupErr, sql.ErrNoRows):
			return fmt.Errorf("lookup: %w", lookupErr)
		}

		now := time.Now().UTC()
		res, insErr := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO topic_queue (%s, state, created_at, updated_at) VALUES (?, ?, ?, ?)`,
				s.titleColumn()),
			originalTitle, models.StatePending, now, now)
		if insErr != nil {
			return fmt.Errorf("insert: %w", insErr)
		}
		newID, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("last insert id: %w", idErr)
		}
		id, created = newID, true
		return tx.Commit()
	})
	if err != nil {
		return 0, false, fmt.Errorf("store: enqueue: %w", err)
	}
	return id, created, nil
}

// ClaimPending atomically transitions up to limit pending items to
// processing and returns them in FIFO order (created_at, then id). The
// select-and-update is a single statement, so two concurrent claimers
// never receive overlapping items.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]models.QueueItem, error) {
	if limit <= 0 {
		return nil, nil
	}

	var items []models.QueueItem
	err := withBusyRetry(func() error {
		items = items[:0]
		now := time.Now().UTC()
		query := fmt.Sprintf(
			`UPDATE topic_queue SET state = ?, updated_at = ?
			 WHERE id IN (
			     SELECT id FROM topic_queue WHERE state = ?
			     ORDER BY created_at, id LIMIT ?
			 )
			 RETURNING %s`, s.queueColumns())

		rows, qErr := s.db.QueryContext(ctx, query,
			models.StateProcessing, now, models.StatePending, limit)
		if qErr != nil {
			return fmt.Errorf("claim: %w", qErr)
		}
		defer rows.Close()

		for rows.Next() {
			item, scanErr := scanQueueItem(rows)
			if scanErr != nil {
				return scanErr
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store: claim pending: %w", err)
	}

	// RETURNING order is unspecified; restore FIFO.
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

// Complete transitions the item to completed with its cleaned title and
// upserts the linked topic row in the same transaction. Either both
// succeed or both roll back. In legacy mode the cleaned title has no
// column and is persisted only on the topic row.
func (s *Store) Complete(ctx context.Context, id int64, currentTitle string, payload models.TopicPayload) error {
	err := withBusyRetry(func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("begin: %w", txErr)
		}
		defer func() { _ = tx.Rollback() }()

		now := time.Now().UTC()
		var (
			res    sql.Result
			updErr error
		)
		if s.legacy {
			res, updErr = tx.ExecContext(ctx,
				`UPDATE topic_queue SET state = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
				models.StateCompleted, now, id)
		} else {
			res, updErr = tx.ExecContext(ctx,
				`UPDATE topic_queue SET state = ?, current_title = ?, error_message = NULL, updated_at = ? WHERE id = ?`,
				models.StateCompleted, currentTitle, now, id)
		}
		if updErr != nil {
			return fmt.Errorf("update queue item: %w", updErr)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}

		if err := upsertTopic(ctx, tx, id, currentTitle, payload, now); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("store: complete %d: %w", id, err)
	}
	return nil
}

// Fail transitions the item to failed and stamps the diagnostic.
func (s *Store) Fail(ctx context.Context, id int64, errorMessage string) error {
	err := withBusyRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE topic_queue SET state = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			models.StateFailed, errorMessage, time.Now().UTC(), id)
		if execErr != nil {
			return execErr
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("store: fail %d: %w", id, err)
	}
	return nil
}

// Requeue returns processing items to pending, clearing nothing else.
// Used for transient batch failures so the next poll retries them.
func (s *Store) Requeue(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	err := withBusyRetry(func() error {
		query, args := inQuery(
			`UPDATE topic_queue SET state = ?, updated_at = ? WHERE state = ? AND id IN`,
			[]any{models.StatePending, time.Now().UTC(), models.StateProcessing}, ids)
		_, execErr := s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("store: requeue: %w", err)
	}
	return nil
}

// RetryFailed transitions a failed item back to pending, clearing its
// error. Returns ErrInvalidState when the item exists but is not failed.
func (s *Store) RetryFailed(ctx context.Context, id int64) error {
	err := withBusyRetry(func() error {
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE topic_queue SET state = ?, error_message = NULL, updated_at = ? WHERE id = ? AND state = ?`,
			models.StatePending, time.Now().UTC(), id, models.StateFailed)
		if execErr != nil {
			return execErr
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		// Distinguish missing from wrong-state.
		var state string
		scanErr := s.db.QueryRowContext(ctx,
			`SELECT state FROM topic_queue WHERE id = ?`, id).Scan(&state)
		if errors.Is(scanErr, sql.ErrNoRows) {
			return ErrNotFound
		}
		if scanErr != nil {
			return scanErr
		}
		return ErrInvalidState
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidState) {
			return err
		}
		return fmt.Errorf("store: retry failed %d: %w", id, err)
	}
	return nil
}

// ResetStale returns processing items whose updated_at is older than the
// threshold back to pending. Called on startup, periodically, and with a
// zero threshold on clean shutdown. Returns the number of reclaimed items.
func (s *Store) ResetStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	var reclaimed int64
	err := withBusyRetry(func() error {
		now := time.Now().UTC()
		res, execErr := s.db.ExecContext(ctx,
			`UPDATE topic_queue SET state = ?, updated_at = ? WHERE state = ? AND updated_at <= ?`,
			models.StatePending, now, models.StateProcessing, now.Add(-olderThan))
		if execErr != nil {
			return execErr
		}
		reclaimed, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: reset stale: %w", err)
	}
	return reclaimed, nil
}

// LookupByTitle returns the queue item whose submitted title matches
// originalTitle byte-for-byte, or ErrNotFound.
func (s *Store) LookupByTitle(ctx context.Context, originalTitle string) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM topic_queue WHERE %s = ?`, s.queueColumns(), s.titleColumn()),
		originalTitle)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup by title: %w", err)
	}
	return &item, nil
}

// GetItem returns the queue item by id, or ErrNotFound.
func (s *Store) GetItem(ctx context.Context, id int64) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM topic_queue WHERE id = ?`, s.queueColumns()), id)
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get item %d: %w", id, err)
	}
	return &item, nil
}

// CountByState returns the number of items per lifecycle state, with every
// state present in the map even when zero.
func (s *Store) CountByState(ctx context.Context) (map[models.State]int, error) {
	counts := map[models.State]int{
		models.StatePending:    0,
		models.StateProcessing: 0,
		models.StateCompleted:  0,
		models.StateFailed:     0,
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT state, COUNT(*) FROM topic_queue GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("store: count by state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			state models.State
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("store: count by state scan: %w", err)
		}
		counts[state] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: count by state rows: %w", err)
	}
	return counts, nil
}

// RecentFailures returns the most recently failed items, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]models.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM topic_queue WHERE state = ? ORDER BY updated_at DESC, id DESC LIMIT ?`,
			s.queueColumns()),
		models.StateFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent failures: %w", err)
	}
	defer rows.Close()
	return collectQueueItems(rows)
}

// ListByState returns a page of queue items (FIFO by created_at) plus the
// total matching count. An empty state lists every item.
func (s *Store) ListByState(ctx context.Context, state models.State, page, pageSize int) ([]models.QueueItem, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	where, args := "", []any{}
	if state != "" {
		where = " WHERE state = ?"
		args = append(args, state)
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM topic_queue`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: list count: %w", err)
	}

	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM topic_queue%s ORDER BY created_at, id LIMIT ? OFFSET ?`,
			s.queueColumns(), where),
		args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	items, err := collectQueueItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueItem(row rowScanner) (models.QueueItem, error) {
	var (
		item         models.QueueItem
		currentTitle sql.NullString
		errorMessage sql.NullString
	)
	err := row.Scan(&item.ID, &item.OriginalTitle, &currentTitle, &item.State,
		&errorMessage, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return models.QueueItem{}, err
	}
	item.CurrentTitle = currentTitle.String
	item.ErrorMessage = errorMessage.String
	return item, nil
}

func collectQueueItems(rows *sql.Rows) ([]models.QueueItem, error) {
	var items []models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan queue item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: queue item rows: %w", err)
	}
	return items, nil
}

// inQuery expands "... IN" with one placeholder per id.
func inQuery(prefix string, leading []any, ids []int64) (string, []any) {
	placeholders := make([]byte, 0, len(ids)*2)
	args := append([]any{}, leading...)
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	return prefix + " (" + string(placeholders) + ")", args
}
