package engine

import (
	"context"
	"time"

	"github.com/migadu/sera/consts"
	"github.com/migadu/sera/logger"
)

// purgeLoop deletes expired ledger rows and terminal scheduled rows on a slow
// cadence, under its own lock row so only one instance purges.
func (e *Engine) purgeLoop(ctx context.Context) {
	logger.Info("purge worker started",
		"interval", e.opts.PurgeInterval, "retention", e.opts.LogRetention)
	ticker := time.NewTicker(e.opts.PurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.RunPurge(ctx, e.opts.LogRetention); err != nil {
				logger.Error("purge failed", "error", err)
			}
		}
	}
}

// RunPurge deletes rows older than the retention window. Also the admin
// entry point, which may pass a window different from the configured one.
func (e *Engine) RunPurge(ctx context.Context, olderThan time.Duration) error {
	acquired, err := e.store.AcquireLock(ctx, consts.PurgeLockName)
	if err != nil {
		return err
	}
	if !acquired {
		logger.Info("purge skipped, lock held elsewhere")
		return nil
	}
	defer e.store.ReleaseLock(ctx, consts.PurgeLockName)

	logs, scheduled, err := e.store.PurgeExpired(ctx, olderThan)
	if err != nil {
		return err
	}
	if logs > 0 || scheduled > 0 {
		logger.Info("purged expired rows", "reply_logs", logs, "scheduled_replies", scheduled)
	}
	return nil
}
