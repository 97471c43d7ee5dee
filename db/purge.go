package db

import (
	"context"
	"fmt"
	"time"

	"github.com/migadu/sera/consts"
)

// PurgeExpired deletes ledger rows and terminal scheduled rows older than the
// retention window in a single transaction. Returns the counts deleted from
// each table.
func (db *Database) PurgeExpired(ctx context.Context, olderThan time.Duration) (logsDeleted, scheduledDeleted int64, err error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	logsDeleted, err = db.PurgeOldReplyLogs(ctx, tx, olderThan)
	if err != nil {
		return 0, 0, err
	}
	scheduledDeleted, err = db.PurgeTerminalScheduledReplies(ctx, tx, olderThan)
	if err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	return logsDeleted, scheduledDeleted, nil
}
