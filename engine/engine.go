// Package engine implements the auto-reply decision core: rule matching,
// eligibility gating, claim-then-dispatch over the idempotency ledger, delayed
// replies, and the periodic sweep that drives it all.
package engine

import (
	"context"
	"time"

	"github.com/migadu/sera/consts"
	"github.com/migadu/sera/db"
)

// Store is the persistence surface the engine needs. *db.Database implements
// it; tests substitute a mock.
type Store interface {
	GetUserByID(ctx context.Context, userID int64) (*db.User, error)
	GetRuleByID(ctx context.Context, ruleID int64) (*db.Rule, error)
	ListActiveRules(ctx context.Context) ([]*db.Rule, error)
	GetTemplateByID(ctx context.Context, templateID int64) (*db.Template, error)

	GetMessageByID(ctx context.Context, messageID int64) (*db.Message, error)
	GetCandidateMessages(ctx context.Context, userID int64, limit int) ([]*db.Message, error)
	MarkMessageProcessed(ctx context.Context, messageID int64) error

	HasReplyOutcome(ctx context.Context, providerMessageID string, userID, ruleID int64) (bool, error)
	ClaimReply(ctx context.Context, msg *db.Message, rule *db.Rule, templateID int64) (*db.ReplyLog, error)
	FinalizeReplyLog(ctx context.Context, logID int64, status consts.ReplyLogStatus, errorMessage string) error
	RecordReplyOutcome(ctx context.Context, msg *db.Message, rule *db.Rule, status consts.ReplyLogStatus, skipReason, errorMessage string) error
	ReapStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error)

	InsertScheduledReply(ctx context.Context, msg *db.Message, rule *db.Rule, fireAt time.Time) (*db.ScheduledReply, error)
	AcquireDueScheduledReplies(ctx context.Context, now time.Time, limit int) ([]*db.ScheduledReply, error)
	FinalizeScheduledReply(ctx context.Context, id int64, status consts.ScheduledReplyStatus, skipReason, failureReason string) error
	CancelScheduledReply(ctx context.Context, messageID, ruleID, userID int64) error
	CancelScheduledRepliesForRule(ctx context.Context, ruleID int64) (int64, error)
	CountPendingScheduledReplies(ctx context.Context) (int64, error)

	AcquireLock(ctx context.Context, lockName string) (bool, error)
	RefreshLock(ctx context.Context, lockName string) error
	ReleaseLock(ctx context.Context, lockName string)
	PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, int64, error)
}

// Messenger is the outbound messaging provider. SendReply delivers a reply
// threaded to the original message and returns the provider's id for the sent
// message. UserHasRepliedInThread is a best-effort lookup; callers treat
// errors as "unknown" rather than blocking.
type Messenger interface {
	SendReply(ctx context.Context, user *db.User, original *db.Message, subject, textBody, htmlBody string) (string, error)
	UserHasRepliedInThread(ctx context.Context, userID int64, threadID, excludeProviderMessageID string) (bool, error)
}

// Options carries the tunables a sweep engine runs with. Zero values fall back
// to the same defaults the config package documents.
type Options struct {
	SweepInterval      time.Duration
	CandidateBatchSize int
	ProcessingTimeout  time.Duration
	LogRetention       time.Duration
	PurgeInterval      time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.SweepInterval <= 0 {
		out.SweepInterval = 2 * time.Minute
	}
	if out.CandidateBatchSize <= 0 {
		out.CandidateBatchSize = 200
	}
	if out.ProcessingTimeout <= 0 {
		out.ProcessingTimeout = 15 * time.Minute
	}
	if out.LogRetention <= 0 {
		out.LogRetention = 90 * 24 * time.Hour
	}
	if out.PurgeInterval <= 0 {
		out.PurgeInterval = 24 * time.Hour
	}
	return out
}

// Engine ties the matcher, guard, dispatcher and scheduler together behind
// the periodic sweep worker.
type Engine struct {
	store     Store
	messenger Messenger
	clock     Clock
	opts      Options

	guard      *Guard
	dispatcher *Dispatcher
	scheduler  *Scheduler

	stopCh chan struct{}
}

// New builds an engine. Pass nil clock for wall-clock time.
func New(store Store, messenger Messenger, clock Clock, opts Options) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	e := &Engine{
		store:     store,
		messenger: messenger,
		clock:     clock,
		opts:      opts.withDefaults(),
		stopCh:    make(chan struct{}),
	}
	e.guard = NewGuard(store, messenger, clock)
	e.dispatcher = NewDispatcher(messenger)
	e.scheduler = NewScheduler(store, e.guard, e.dispatcher, clock)
	return e
}

// Scheduler exposes the delay scheduler, mainly so callers can cancel pending
// replies when rules change.
func (e *Engine) Scheduler() *Scheduler {
	return e.scheduler
}
