package engine

import (
	"context"
	"strings"
	"time"

	"github.com/k3a/html2text"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/helpers"
	"github.com/migadu/sera/pkg/metrics"
)

// Dispatcher turns a template into a concrete reply and hands it to the
// messaging provider. Exactly one SendReply call per Dispatch; retry policy
// belongs to the caller, which records the Failed outcome instead.
type Dispatcher struct {
	messenger Messenger
}

func NewDispatcher(messenger Messenger) *Dispatcher {
	return &Dispatcher{messenger: messenger}
}

// Dispatch renders the template for this message and sends the reply.
// Returns the provider's id for the sent message.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *db.Message, user *db.User, tmpl *db.Template) (string, error) {
	subject := tmpl.ReplySubject
	if strings.TrimSpace(subject) == "" {
		subject = helpers.EnsureReplyPrefix(msg.Subject)
	} else {
		subject = substitutePlaceholders(subject, msg, user)
	}

	body := substitutePlaceholders(tmpl.ReplyBody, msg, user)

	var textBody, htmlBody string
	if looksLikeHTML(body) {
		htmlBody = body
		textBody = html2text.HTML2Text(body)
	} else {
		textBody = body
	}

	start := time.Now()
	providerID, err := d.messenger.SendReply(ctx, user, msg, subject, textBody, htmlBody)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DispatchTotal.WithLabelValues("failure").Inc()
		return "", err
	}
	metrics.DispatchTotal.WithLabelValues("success").Inc()
	return providerID, nil
}

// substitutePlaceholders expands the template tokens against the incoming
// message and the rule owner. Unknown tokens pass through untouched.
func substitutePlaceholders(text string, msg *db.Message, user *db.User) string {
	r := strings.NewReplacer(
		"{{sender_name}}", helpers.SenderName(msg.Sender),
		"{{sender_email}}", helpers.ExtractAddress(msg.Sender),
		"{{subject}}", msg.Subject,
		"{{user_name}}", user.Name,
		"{{user_email}}", user.Email,
	)
	return r.Replace(text)
}

// looksLikeHTML is a cheap markup sniff: templates authored as HTML carry
// tags, plain-text ones don't.
func looksLikeHTML(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range []string{"<html", "<body", "<div", "<p>", "<p ", "<br", "<table", "<a "} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
