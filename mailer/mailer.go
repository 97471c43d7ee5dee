// Package mailer delivers engine replies through an external SMTP relay. It
// builds RFC 5322 reply messages threaded to the original and stamped as
// auto-submitted, so receiving auto-responders stay quiet.
package mailer

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-message"
	"github.com/google/uuid"
	"github.com/migadu/sera/config"
	"github.com/migadu/sera/db"
	"github.com/migadu/sera/helpers"
	"github.com/migadu/sera/logger"
)

// SMTPMailer implements engine.Messenger over an external SMTP relay. Thread
// lookups go against the synced message store, which is the best view of the
// user's sent mail we have.
type SMTPMailer struct {
	cfg      *config.MailerConfig
	database *db.Database
}

func New(cfg *config.MailerConfig, database *db.Database) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, database: database}
}

// SendReply builds the reply and hands it to the relay. Returns the generated
// message id (without angle brackets) as the provider id for the sent reply.
func (m *SMTPMailer) SendReply(ctx context.Context, user *db.User, original *db.Message, subject, textBody, htmlBody string) (string, error) {
	to := helpers.ExtractAddress(original.Sender)
	if to == "" {
		return "", fmt.Errorf("original message %d has no sender address", original.ID)
	}

	msgID := fmt.Sprintf("%s@%s", uuid.New().String(), m.cfg.Hostname)
	raw, err := m.buildReply(msgID, user, original, subject, textBody, htmlBody)
	if err != nil {
		return "", fmt.Errorf("failed to build reply: %w", err)
	}

	timeout, err := m.cfg.GetSendTimeout()
	if err != nil {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := m.relay(sendCtx, user.Email, to, raw); err != nil {
		return "", err
	}

	logger.Info("relayed reply", "to", to, "message_id", msgID)
	return msgID, nil
}

func (m *SMTPMailer) buildReply(msgID string, user *db.User, original *db.Message, subject, textBody, htmlBody string) ([]byte, error) {
	from := user.Email
	if user.Name != "" {
		from = fmt.Sprintf("%s <%s>", user.Name, user.Email)
	}

	var buf bytes.Buffer
	var header message.Header
	header.Set("From", from)
	header.Set("To", original.Sender)
	header.Set("Subject", subject)
	header.Set("Message-ID", fmt.Sprintf("<%s>", msgID))
	header.Set("Date", time.Now().Format(time.RFC1123Z))
	header.Set("Auto-Submitted", "auto-replied")
	header.Set("X-Auto-Response-Suppress", "All")
	header.Set("MIME-Version", "1.0")

	if original.ProviderMessageID != "" {
		ref := fmt.Sprintf("<%s>", original.ProviderMessageID)
		header.Set("In-Reply-To", ref)
		header.Set("References", ref)
	}

	if htmlBody != "" {
		header.Set("Content-Type", "multipart/alternative")
		w, err := message.CreateWriter(&buf, header)
		if err != nil {
			return nil, err
		}

		var textHeader message.Header
		textHeader.Set("Content-Type", "text/plain; charset=utf-8")
		tw, err := w.CreatePart(textHeader)
		if err != nil {
			return nil, err
		}
		tw.Write([]byte(textBody))
		tw.Close()

		var htmlHeader message.Header
		htmlHeader.Set("Content-Type", "text/html; charset=utf-8")
		hw, err := w.CreatePart(htmlHeader)
		if err != nil {
			return nil, err
		}
		hw.Write([]byte(htmlBody))
		hw.Close()
		w.Close()
		return buf.Bytes(), nil
	}

	header.Set("Content-Type", "text/plain; charset=utf-8")
	w, err := message.CreateWriter(&buf, header)
	if err != nil {
		return nil, err
	}
	w.Write([]byte(textBody))
	w.Close()
	return buf.Bytes(), nil
}

// UserHasRepliedInThread scans the synced sent folder for another message of
// the user in the same thread. Best effort; callers fail open.
func (m *SMTPMailer) UserHasRepliedInThread(ctx context.Context, userID int64, threadID, excludeProviderMessageID string) (bool, error) {
	return m.database.HasUserReplyInThread(ctx, userID, threadID, excludeProviderMessageID)
}
