package store

import (
	"errors"
	"time"

	retry "github.com/avast/retry-go"
	sqlite3 "github.com/mattn/go-sqlite3"
)

// Busy-retry parameters: 5 attempts, 100 ms initial delay doubling each
// time, capped at 1.6 s (total budget ~3.1 s). After exhaustion the engine
// error surfaces to the caller, which typically skips the tick and lets the
// next poll (or the stale reset) pick the work back up.
const (
	busyAttempts  = 5
	busyInitDelay = 100 * time.Millisecond
	busyMaxDelay  = 1600 * time.Millisecond
)

// isBusy reports whether err is the engine's transient lock-contention
// error. Everything else (constraint violations, corruption, disk-full)
// must not be retried.
func isBusy(err error) bool {
	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
}

// withBusyRetry runs fn with exponential backoff on SQLITE_BUSY/LOCKED.
func withBusyRetry(fn func() error) error {
	return retry.Do(fn,
		retry.Attempts(busyAttempts),
		retry.Delay(busyInitDelay),
		retry.MaxDelay(busyMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isBusy),
		retry.LastErrorOnly(true),
	)
}
