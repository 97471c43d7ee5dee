package engine

import (
	"context"
	"errors"
	"time"

	"github.com/migadu/sera/consts"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/logger"
	"github.com/migadu/sera/pkg/metrics"
)

// ErrSweepInProgress means another sweeper holds the lock row.
var ErrSweepInProgress = errors.New("sweep already in progress")

// SweepCounts aggregates one tick's outcomes. Processed counts candidate
// messages evaluated; the rest count per-(message, rule) ledger outcomes.
type SweepCounts struct {
	Processed  int
	Sent       int
	Skipped    int
	Failed     int
	NotMatched int
}

// Start runs the periodic sweep until the context is cancelled or Stop is
// called. The first tick fires immediately.
func (e *Engine) Start(ctx context.Context) {
	go e.sweepLoop(ctx)
	go e.purgeLoop(ctx)
}

// Stop terminates the workers and drops armed timers.
func (e *Engine) Stop() {
	close(e.stopCh)
	e.scheduler.Stop()
}

func (e *Engine) sweepLoop(ctx context.Context) {
	logger.Info("sweep worker started", "interval", e.opts.SweepInterval)
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()

	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	start := time.Now()
	counts, err := e.RunSweep(ctx, 0)
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, ErrSweepInProgress):
		metrics.SweepTicksTotal.WithLabelValues("skipped").Inc()
		logger.Info("sweep skipped, lock held elsewhere")
	case err != nil:
		metrics.SweepTicksTotal.WithLabelValues("error").Inc()
		logger.Error("sweep failed", "error", err)
	default:
		metrics.SweepTicksTotal.WithLabelValues("ok").Inc()
		logger.Info("sweep completed",
			"processed", counts.Processed, "sent", counts.Sent, "skipped", counts.Skipped,
			"failed", counts.Failed, "not_matched", counts.NotMatched,
			"duration", time.Since(start))
	}
}

// RunSweep executes one full sweep: reap orphaned claims, drain due scheduled
// replies, then walk every active rule's candidates. Pass ruleID 0 for all
// rules, or a specific id to sweep just that rule (the admin path and the
// immediate check for a freshly created rule).
func (e *Engine) RunSweep(ctx context.Context, ruleID int64) (SweepCounts, error) {
	var counts SweepCounts

	acquired, err := e.store.AcquireLock(ctx, consts.SweepLockName)
	if err != nil {
		return counts, err
	}
	if !acquired {
		return counts, ErrSweepInProgress
	}
	defer e.store.ReleaseLock(ctx, consts.SweepLockName)

	// The lock lease is shorter than a worst-case pass over a full candidate
	// batch, so keep extending it until the sweep returns.
	stopKeepalive := e.keepLockAlive(ctx, consts.SweepLockName)
	defer stopKeepalive()

	if reaped, err := e.store.ReapStaleProcessing(ctx, e.opts.ProcessingTimeout); err != nil {
		logger.Error("failed to reap stale claims", "error", err)
	} else if reaped > 0 {
		logger.Warn("reaped stale processing claims", "count", reaped)
	}

	if drained, err := e.scheduler.DrainDue(ctx, e.opts.CandidateBatchSize); err != nil {
		logger.Error("failed to drain due scheduled replies", "error", err)
	} else if drained > 0 {
		logger.Info("drained due scheduled replies", "count", drained)
	}

	rules, err := e.sweepRules(ctx, ruleID)
	if err != nil {
		return counts, err
	}

	// Rules grouped per owner so each candidate is fetched once and marked
	// processed only after every rule of that owner has seen it.
	byUser := make(map[int64][]*db.Rule)
	var userOrder []int64
	for _, r := range rules {
		if _, seen := byUser[r.UserID]; !seen {
			userOrder = append(userOrder, r.UserID)
		}
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	// A single-rule sweep must leave the processed marker alone: the owner's
	// other rules still need to see these messages on the next full sweep.
	markProcessed := ruleID == 0

	for _, userID := range userOrder {
		e.sweepUser(ctx, userID, byUser[userID], markProcessed, &counts)
	}

	if pending, err := e.store.CountPendingScheduledReplies(ctx); err == nil {
		metrics.ScheduledRepliesCurrent.Set(float64(pending))
	}

	return counts, nil
}

// lockRefreshInterval sits well under the db lock lease. Var so tests can
// shrink it.
var lockRefreshInterval = 2 * time.Minute

// keepLockAlive extends the named lock's lease until the returned stop
// function is called.
func (e *Engine) keepLockAlive(ctx context.Context, lockName string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(lockRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := e.store.RefreshLock(ctx, lockName); err != nil {
					logger.Error("failed to refresh lock", "lock", lockName, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}

func (e *Engine) sweepRules(ctx context.Context, ruleID int64) ([]*db.Rule, error) {
	if ruleID == 0 {
		return e.store.ListActiveRules(ctx)
	}
	rule, err := e.store.GetRuleByID(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.IsActive {
		return nil, nil
	}
	return []*db.Rule{rule}, nil
}

func (e *Engine) sweepUser(ctx context.Context, userID int64, rules []*db.Rule, markProcessed bool, counts *SweepCounts) {
	user, err := e.store.GetUserByID(ctx, userID)
	if err != nil {
		logger.Error("failed to load rule owner, skipping", "user_id", userID, "error", err)
		return
	}

	candidates, err := e.store.GetCandidateMessages(ctx, userID, e.opts.CandidateBatchSize)
	if err != nil {
		logger.Error("failed to fetch candidates, skipping user", "user_id", userID, "error", err)
		return
	}

	for _, msg := range candidates {
		retry := false
		for _, rule := range rules {
			if !e.processPair(ctx, msg, rule, user, counts) {
				retry = true
			}
		}
		counts.Processed++

		// A pair that hit a transient storage error stays unprocessed so the
		// next tick sees the message again.
		if retry || !markProcessed {
			continue
		}
		if err := e.store.MarkMessageProcessed(ctx, msg.ID); err != nil {
			logger.Error("failed to mark message processed", "message_id", msg.ID, "error", err)
		}
	}
}

// processPair runs one (message, rule) pair through matcher, guard and
// dispatch. Returns false only on transient storage errors where no outcome
// was recorded.
func (e *Engine) processPair(ctx context.Context, msg *db.Message, rule *db.Rule, user *db.User, counts *SweepCounts) bool {
	if !Matches(msg, rule) {
		if err := e.store.RecordReplyOutcome(ctx, msg, rule, consts.StatusNotMatched, "", ""); err != nil {
			logger.Error("failed to record NotMatched outcome", "rule_id", rule.ID, "message_id", msg.ID, "error", err)
			return false
		}
		counts.NotMatched++
		metrics.ReplyOutcomesTotal.WithLabelValues("not_matched").Inc()
		return true
	}

	ok, reason, err := e.guard.Eligible(ctx, msg, rule, user)
	if err != nil {
		logger.Error("eligibility check failed", "rule_id", rule.ID, "message_id", msg.ID, "error", err)
		return false
	}
	if !ok {
		// "already processed" pairs settled on an earlier tick; re-recording
		// would just hit the conflict clause.
		if reason != "already processed" {
			if err := e.store.RecordReplyOutcome(ctx, msg, rule, consts.StatusSkipped, reason, ""); err != nil {
				logger.Error("failed to record Skipped outcome", "rule_id", rule.ID, "message_id", msg.ID, "error", err)
				return false
			}
			counts.Skipped++
			metrics.ReplyOutcomesTotal.WithLabelValues("skipped").Inc()
		}
		return true
	}

	if rule.DelayMinutes > 0 {
		if _, err := e.scheduler.ScheduleReply(ctx, msg, rule); err != nil {
			logger.Error("failed to schedule delayed reply", "rule_id", rule.ID, "message_id", msg.ID, "error", err)
			return false
		}
		return true
	}

	return e.claimAndDispatch(ctx, msg, rule, user, counts)
}

// claimAndDispatch follows the processPair contract: false means a transient
// storage error left no ledger row for the pair.
func (e *Engine) claimAndDispatch(ctx context.Context, msg *db.Message, rule *db.Rule, user *db.User, counts *SweepCounts) bool {
	tmpl, err := e.store.GetTemplateByID(ctx, rule.TemplateID)
	if errors.Is(err, consts.ErrTemplateNotFound) {
		if err := e.store.RecordReplyOutcome(ctx, msg, rule, consts.StatusFailed, "", "template deleted"); err != nil {
			logger.Error("failed to record Failed outcome", "rule_id", rule.ID, "error", err)
			return false
		}
		counts.Failed++
		metrics.ReplyOutcomesTotal.WithLabelValues("failed").Inc()
		return true
	}
	if err != nil {
		logger.Error("failed to load template", "template_id", rule.TemplateID, "error", err)
		return false
	}

	entry, err := e.store.ClaimReply(ctx, msg, rule, tmpl.ID)
	if errors.Is(err, consts.ErrDBUniqueViolation) {
		// Lost the claim race to a concurrent sweeper or timer. Their row is
		// the outcome.
		metrics.ClaimConflictsTotal.Inc()
		return true
	}
	if err != nil {
		logger.Error("failed to claim reply", "rule_id", rule.ID, "message_id", msg.ID, "error", err)
		return false
	}

	providerID, sendErr := e.dispatcher.Dispatch(ctx, msg, user, tmpl)
	if sendErr != nil {
		logger.Error("dispatch failed", "rule_id", rule.ID, "recipient", msg.Sender, "error", sendErr)
		if err := e.store.FinalizeReplyLog(ctx, entry.ID, consts.StatusFailed, sendErr.Error()); err != nil {
			logger.Error("failed to record dispatch failure", "log_id", entry.ID, "error", err)
		}
		counts.Failed++
		metrics.ReplyOutcomesTotal.WithLabelValues("failed").Inc()
		return true
	}

	logger.Info("sent reply", "rule_id", rule.ID, "recipient", msg.Sender, "provider_id", providerID)
	if err := e.store.FinalizeReplyLog(ctx, entry.ID, consts.StatusSent, ""); err != nil {
		logger.Error("failed to finalize sent reply log", "log_id", entry.ID, "error", err)
	}
	counts.Sent++
	metrics.ReplyOutcomesTotal.WithLabelValues("sent").Inc()
	return true
}
