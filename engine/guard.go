package engine

import (
	"context"
	"time"

	"github.com/migadu/sera/consts"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/helpers"
	"github.com/migadu/sera/logger"
)

// Guard decides whether a matched (message, rule) pair may actually fire.
// Gates run in a fixed order and the first failure wins; the returned reason
// string goes verbatim into the ledger's skip_reason.
type Guard struct {
	store     Store
	messenger Messenger
	clock     Clock
}

func NewGuard(store Store, messenger Messenger, clock Clock) *Guard {
	return &Guard{store: store, messenger: messenger, clock: clock}
}

// Eligible runs every gate including the ledger already-claimed check. A
// non-nil error means a gate could not be evaluated at all (storage failure)
// and the pair should be retried on a later sweep, not recorded.
func (g *Guard) Eligible(ctx context.Context, msg *db.Message, rule *db.Rule, user *db.User) (bool, string, error) {
	if !rule.ApplyToExisting && msg.ReceivedAt != nil && msg.ReceivedAt.Before(rule.UpdatedAt) {
		return false, "message older than rule", nil
	}

	claimed, err := g.store.HasReplyOutcome(ctx, msg.ProviderMessageID, rule.UserID, rule.ID)
	if err != nil {
		return false, "", err
	}
	if claimed {
		return false, "already processed", nil
	}

	return g.revalidate(ctx, msg, rule, user)
}

// Revalidate re-runs the gates at scheduled-reply fire time. It skips the
// already-claimed check: the fire path settles that atomically through the
// ledger claim itself, and the pending scheduled row would otherwise trip the
// check against its own existence.
func (g *Guard) Revalidate(ctx context.Context, msg *db.Message, rule *db.Rule, user *db.User) (bool, string, error) {
	if !rule.ApplyToExisting && msg.ReceivedAt != nil && msg.ReceivedAt.Before(rule.UpdatedAt) {
		return false, "message older than rule", nil
	}
	return g.revalidate(ctx, msg, rule, user)
}

func (g *Guard) revalidate(ctx context.Context, msg *db.Message, rule *db.Rule, user *db.User) (bool, string, error) {
	if msg.Folder == consts.FolderSent {
		return false, "sent folder", nil
	}
	if msg.ProviderMessageID == "" {
		return false, "missing provider message id", nil
	}

	if ok, reason := g.safeToReply(ctx, msg, user); !ok {
		return false, reason, nil
	}

	if !g.withinBusinessHours(rule, user) {
		return false, "outside business hours", nil
	}

	return true, "", nil
}

// withinBusinessHours evaluates the rule's "HH:MM" window in the owner's
// timezone. A window whose start is after its end wraps past midnight, so
// 17:00-09:00 covers evenings and early mornings. Rules with no window, or a
// malformed one, always pass.
func (g *Guard) withinBusinessHours(rule *db.Rule, user *db.User) bool {
	if rule.BusinessHoursStart == "" || rule.BusinessHoursEnd == "" {
		return true
	}

	start, okStart := helpers.ParseClockTime(rule.BusinessHoursStart)
	end, okEnd := helpers.ParseClockTime(rule.BusinessHoursEnd)
	if !okStart || !okEnd {
		logger.Warn("malformed business hours window, ignoring",
			"rule_id", rule.ID, "start", rule.BusinessHoursStart, "end", rule.BusinessHoursEnd)
		return true
	}

	loc := time.UTC
	if user.Timezone != "" {
		if l, err := time.LoadLocation(user.Timezone); err == nil {
			loc = l
		} else {
			logger.Warn("unknown timezone, using UTC", "user_id", user.ID, "timezone", user.Timezone)
		}
	}

	now := g.clock.Now().In(loc)
	minutes := now.Hour()*60 + now.Minute()

	if start > end {
		return minutes >= start || minutes <= end
	}
	return minutes >= start && minutes <= end
}
