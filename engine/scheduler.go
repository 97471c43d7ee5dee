package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/migadu/sera/consts"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/logger"
	"github.com/migadu/sera/pkg/metrics"
)

// Scheduler persists delayed replies and executes them when due. The
// scheduled_replies row is the durable source of truth; the in-process timer
// is only a latency optimization. Timers lost to a restart are recovered by
// the sweep's due-row drain, and both paths funnel through Execute, where the
// ledger claim decides who actually sends.
type Scheduler struct {
	store      Store
	guard      *Guard
	dispatcher *Dispatcher
	clock      Clock

	mu       sync.Mutex
	timers   map[int64]*time.Timer
	inFlight map[int64]struct{}
	stopped  bool
}

func NewScheduler(store Store, guard *Guard, dispatcher *Dispatcher, clock Clock) *Scheduler {
	return &Scheduler{
		store:      store,
		guard:      guard,
		dispatcher: dispatcher,
		clock:      clock,
		timers:     make(map[int64]*time.Timer),
		inFlight:   make(map[int64]struct{}),
	}
}

// ScheduleReply persists a deferred reply firing after the rule's delay and
// arms a timer for it. The pending row also shields the pair from re-claims
// on later sweeps.
func (s *Scheduler) ScheduleReply(ctx context.Context, msg *db.Message, rule *db.Rule) (*db.ScheduledReply, error) {
	fireAt := s.clock.Now().UTC().Add(time.Duration(rule.DelayMinutes) * time.Minute)

	row, err := s.store.InsertScheduledReply(ctx, msg, rule, fireAt)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule reply: %w", err)
	}
	s.armTimer(row)
	logger.Info("scheduled reply", "scheduled_id", row.ID, "rule_id", rule.ID,
		"message_id", msg.ID, "fire_at", fireAt)
	return row, nil
}

func (s *Scheduler) armTimer(row *db.ScheduledReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	delay := row.ScheduledAt.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	id := row.ID
	s.timers[id] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, id)
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.Execute(ctx, row)
	})
}

// Execute drives one scheduled reply to a terminal status: re-validate, claim
// the ledger slot, dispatch, finalize. Safe to call from both the timer and
// the sweep drain; a second concurrent call for the same row is a no-op.
func (s *Scheduler) Execute(ctx context.Context, row *db.ScheduledReply) {
	s.mu.Lock()
	if _, busy := s.inFlight[row.ID]; busy {
		s.mu.Unlock()
		return
	}
	s.inFlight[row.ID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, row.ID)
		s.mu.Unlock()
	}()

	if err := s.execute(ctx, row); err != nil {
		logger.Error("scheduled reply execution failed", "scheduled_id", row.ID, "error", err)
	}
}

func (s *Scheduler) execute(ctx context.Context, row *db.ScheduledReply) error {
	finalize := func(status consts.ScheduledReplyStatus, skipReason, failureReason string) error {
		return s.store.FinalizeScheduledReply(ctx, row.ID, status, skipReason, failureReason)
	}

	rule, err := s.store.GetRuleByID(ctx, row.RuleID)
	if errors.Is(err, consts.ErrRuleNotFound) {
		return finalize(consts.ScheduledStatusCancelled, "rule deleted", "")
	}
	if err != nil {
		return err
	}
	if !rule.IsActive {
		return finalize(consts.ScheduledStatusCancelled, "rule deactivated", "")
	}

	msg, err := s.store.GetMessageByID(ctx, row.MessageID)
	if errors.Is(err, consts.ErrMessageNotFound) {
		return finalize(consts.ScheduledStatusCancelled, "message deleted", "")
	}
	if err != nil {
		return err
	}

	user, err := s.store.GetUserByID(ctx, row.UserID)
	if errors.Is(err, consts.ErrUserNotFound) {
		return finalize(consts.ScheduledStatusCancelled, "user deleted", "")
	}
	if err != nil {
		return err
	}

	tmpl, err := s.store.GetTemplateByID(ctx, rule.TemplateID)
	if errors.Is(err, consts.ErrTemplateNotFound) {
		return finalize(consts.ScheduledStatusFailed, "", "template deleted")
	}
	if err != nil {
		return err
	}

	ok, reason, err := s.guard.Revalidate(ctx, msg, rule, user)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info("scheduled reply no longer valid", "scheduled_id", row.ID, "reason", reason)
		return finalize(consts.ScheduledStatusSkipped, reason, "")
	}

	entry, err := s.store.ClaimReply(ctx, msg, rule, tmpl.ID)
	if errors.Is(err, consts.ErrDBUniqueViolation) {
		metrics.ClaimConflictsTotal.Inc()
		return finalize(consts.ScheduledStatusSkipped, "already processed", "")
	}
	if err != nil {
		return err
	}

	providerID, sendErr := s.dispatcher.Dispatch(ctx, msg, user, tmpl)
	if sendErr != nil {
		metrics.ReplyOutcomesTotal.WithLabelValues("failed").Inc()
		if err := s.store.FinalizeReplyLog(ctx, entry.ID, consts.StatusFailed, sendErr.Error()); err != nil {
			logger.Error("failed to record dispatch failure", "log_id", entry.ID, "error", err)
		}
		return finalize(consts.ScheduledStatusFailed, "", sendErr.Error())
	}

	metrics.ReplyOutcomesTotal.WithLabelValues("sent").Inc()
	logger.Info("sent scheduled reply", "scheduled_id", row.ID, "rule_id", rule.ID,
		"recipient", msg.Sender, "provider_id", providerID)
	if err := s.store.FinalizeReplyLog(ctx, entry.ID, consts.StatusSent, ""); err != nil {
		logger.Error("failed to finalize sent reply log", "log_id", entry.ID, "error", err)
	}
	return finalize(consts.ScheduledStatusSent, "", "")
}

// DrainDue executes every due scheduled row. This is the restart-recovery
// path: rows whose timers died with a previous process get picked up here.
func (s *Scheduler) DrainDue(ctx context.Context, limit int) (int, error) {
	due, err := s.store.AcquireDueScheduledReplies(ctx, s.clock.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	for _, row := range due {
		s.stopTimer(row.ID)
		s.Execute(ctx, row)
	}
	return len(due), nil
}

// CancelScheduled cancels any pending reply for the pair. Missing rows are a
// no-op.
func (s *Scheduler) CancelScheduled(ctx context.Context, messageID, ruleID, userID int64) error {
	if err := s.store.CancelScheduledReply(ctx, messageID, ruleID, userID); err != nil {
		return err
	}
	return nil
}

// CancelScheduledForRule cancels every pending reply under a rule, for use
// when a rule is deactivated or removed.
func (s *Scheduler) CancelScheduledForRule(ctx context.Context, ruleID int64) (int64, error) {
	n, err := s.store.CancelScheduledRepliesForRule(ctx, ruleID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("cancelled scheduled replies for rule", "rule_id", ruleID, "count", n)
	}
	return n, nil
}

func (s *Scheduler) stopTimer(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Stop cancels all armed timers. Pending rows stay in the database and fire
// through the drain on the next start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
