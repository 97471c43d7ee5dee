package engine

import (
	"context"
	"strings"

	"github.com/migadu/sera/db"
	"github.com/migadu/sera/helpers"
	"github.com/migadu/sera/logger"
)

// Heuristics that keep the engine from answering machines. A reply to a
// no-reply mailbox bounces; a reply to a bulk provider or to another
// auto-responder risks a loop.
var (
	noReplyDomainTokens = []string{
		"noreply", "no-reply", "donotreply", "do-not-reply",
		"notification", "alert", "mailer", "bounce",
	}

	newsletterDomains = map[string]struct{}{
		"mailchimp.com":       {},
		"campaignmonitor.com": {},
		"constantcontact.com": {},
		"sendgrid.com":        {},
		"mailgun.com":         {},
		"postmarkapp.com":     {},
	}

	autoSubjectTokens = []string{
		"auto-reply", "automatic reply", "out of office", "ooo",
		"vacation", "away", "delivery status", "undeliverable",
	}
)

// safeToReply runs the loop-prevention heuristics against a message. The
// thread scan asks the messaging provider whether the user already answered
// in this thread; provider errors leave the gate open since a missed reply is
// cheaper than a blocked legitimate one.
func (g *Guard) safeToReply(ctx context.Context, msg *db.Message, user *db.User) (bool, string) {
	if msg.Sender != "" {
		_, domain := helpers.SplitEmailAddress(helpers.ExtractAddress(msg.Sender))
		for _, token := range noReplyDomainTokens {
			if strings.Contains(domain, token) {
				return false, "no-reply address"
			}
		}
		if _, bulk := newsletterDomains[domain]; bulk {
			return false, "newsletter provider"
		}
	}

	if msg.Subject != "" {
		subject := strings.ToLower(msg.Subject)
		for _, token := range autoSubjectTokens {
			if strings.Contains(subject, token) {
				return false, "looks like an automated message"
			}
		}
	}

	if msg.ThreadID != "" {
		replied, err := g.messenger.UserHasRepliedInThread(ctx, user.ID, msg.ThreadID, msg.ProviderMessageID)
		if err != nil {
			logger.Warn("thread scan failed, continuing", "thread_id", msg.ThreadID, "error", err)
		} else if replied {
			return false, "already replied in thread"
		}
	}

	return true, ""
}
