package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetArtifact returns the cached generator artifact for a fingerprint.
// The boolean reports whether the cache held an entry.
func (s *Store) GetArtifact(ctx context.Context, fingerprint string) (string, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM artifact_cache WHERE fingerprint = ?`, fingerprint).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get artifact: %w", err)
	}
	return payload, true, nil
}

// PutArtifact stores (or refreshes) a generator artifact under its
// fingerprint.
func (s *Store) PutArtifact(ctx context.Context, fingerprint, payload string) error {
	err := withBusyRetry(func() error {
		now := time.Now().UTC()
		_, execErr := s.db.ExecContext(ctx,
			`INSERT INTO artifact_cache (fingerprint, payload, created_at, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT (fingerprint) DO UPDATE SET
			     payload = excluded.payload,
			     updated_at = excluded.updated_at`,
			fingerprint, payload, now, now)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("store: put artifact: %w", err)
	}
	return nil
}
