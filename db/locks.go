package db

import (
	"context"
	"fmt"
	"time"
)

const lockTimeout = 5 * time.Minute

// AcquireLock takes the named lock row, or takes over an expired one. Returns
// false when another holder owns an unexpired lock. This is what keeps two
// sweep passes from overlapping on the same database.
func (db *Database) AcquireLock(ctx context.Context, lockName string) (bool, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(lockTimeout)

	result, err := db.GetWritePool().Exec(ctx, `
		INSERT INTO locks (lock_name, acquired_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (lock_name) DO UPDATE SET
			acquired_at = $2,
			expires_at = $3
		WHERE locks.expires_at < $2
	`, lockName, now, expiresAt)
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", lockName, err)
	}

	return result.RowsAffected() > 0, nil
}

// RefreshLock pushes the named lock's expiry forward by the lease duration.
// Long-running holders call this periodically so a slow pass is not taken
// over mid-flight.
func (db *Database) RefreshLock(ctx context.Context, lockName string) error {
	_, err := db.GetWritePool().Exec(ctx, `
		UPDATE locks SET expires_at = $2 WHERE lock_name = $1
	`, lockName, time.Now().UTC().Add(lockTimeout))
	if err != nil {
		return fmt.Errorf("failed to refresh lock %s: %w", lockName, err)
	}
	return nil
}

// ReleaseLock drops the named lock row. Best effort.
func (db *Database) ReleaseLock(ctx context.Context, lockName string) {
	_, _ = db.GetWritePool().Exec(ctx, `DELETE FROM locks WHERE lock_name = $1`, lockName)
}
