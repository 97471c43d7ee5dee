package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/migadu/sera/consts"
)

// HasReplyOutcome reports whether any ledger entry exists for this
// (provider message, user, rule), or an active scheduled reply holds the pair.
// Any hit means the pair must not be claimed again.
func (db *Database) HasReplyOutcome(ctx context.Context, providerMessageID string, userID, ruleID int64) (bool, error) {
	if providerMessageID == "" {
		return false, nil
	}

	var exists bool
	err := db.GetReadPool().QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM reply_logs
			WHERE provider_message_id = $1 AND user_id = $2 AND rule_id = $3
		)
	`, providerMessageID, userID, ruleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check reply logs: %w", err)
	}
	if exists {
		return true, nil
	}

	err = db.GetReadPool().QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM scheduled_replies
			WHERE provider_message_id = $1 AND user_id = $2 AND rule_id = $3
			AND status IN ($4, $5)
		)
	`, providerMessageID, userID, ruleID,
		consts.ScheduledStatusScheduled, consts.ScheduledStatusSent).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check scheduled replies: %w", err)
	}
	return exists, nil
}

// ClaimReply inserts a Processing ledger row for the (rule, provider message)
// pair. The unique constraint on (rule_id, provider_message_id) makes this the
// single serialization point: of any number of concurrent claims exactly one
// succeeds, the rest get consts.ErrDBUniqueViolation.
func (db *Database) ClaimReply(ctx context.Context, msg *Message, rule *Rule, templateID int64) (*ReplyLog, error) {
	entry := &ReplyLog{
		UserID:            rule.UserID,
		RuleID:            rule.ID,
		MessageID:         &msg.ID,
		ProviderMessageID: msg.ProviderMessageID,
		TemplateID:        &templateID,
		Recipient:         msg.Sender,
		IncomingSubject:   msg.Subject,
		Status:            consts.StatusProcessing,
	}

	err := db.GetWritePool().QueryRow(ctx, `
		INSERT INTO reply_logs
			(user_id, rule_id, message_id, provider_message_id, template_id,
			 recipient, incoming_subject, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, entry.UserID, entry.RuleID, entry.MessageID, entry.ProviderMessageID,
		entry.TemplateID, entry.Recipient, entry.IncomingSubject,
		entry.Status).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return nil, consts.ErrDBUniqueViolation
		}
		return nil, fmt.Errorf("failed to claim reply for message %s rule %d: %w",
			msg.ProviderMessageID, rule.ID, err)
	}
	return entry, nil
}

// FinalizeReplyLog moves a Processing row forward to Sent or Failed. The
// guard on current status makes repeated finalize calls no-ops, and a row
// that already reached the target status stays untouched.
func (db *Database) FinalizeReplyLog(ctx context.Context, logID int64, status consts.ReplyLogStatus, errorMessage string) error {
	if status != consts.StatusSent && status != consts.StatusFailed {
		return fmt.Errorf("invalid finalize status %q", status)
	}

	var sentAt *time.Time
	if status == consts.StatusSent {
		now := time.Now().UTC()
		sentAt = &now
	}

	_, err := db.GetWritePool().Exec(ctx, `
		UPDATE reply_logs
		SET status = $2, error_message = NULLIF($3, ''), sent_at = COALESCE($4, sent_at)
		WHERE id = $1 AND status IN ($5, $2)
	`, logID, status, errorMessage, sentAt, consts.StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to finalize reply log %d: %w", logID, err)
	}
	return nil
}

// RecordReplyOutcome writes a terminal Skipped/NotMatched/Failed row directly,
// without a claim phase. Duplicate rows for the pair are silently dropped so
// repeated sweeps do not error on already-recorded outcomes. A message with
// no provider id yet is stored with a NULL id so two unsynced messages never
// collide on the (rule_id, provider_message_id) constraint.
func (db *Database) RecordReplyOutcome(ctx context.Context, msg *Message, rule *Rule, status consts.ReplyLogStatus, skipReason, errorMessage string) error {
	var sentAt *time.Time

	_, err := db.GetWritePool().Exec(ctx, `
		INSERT INTO reply_logs
			(user_id, rule_id, message_id, provider_message_id, template_id,
			 recipient, incoming_subject, status, skip_reason, error_message, sent_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11)
		ON CONFLICT (rule_id, provider_message_id) DO NOTHING
	`, rule.UserID, rule.ID, msg.ID, msg.ProviderMessageID, rule.TemplateID,
		msg.Sender, msg.Subject, status, skipReason, errorMessage, sentAt)
	if err != nil {
		return fmt.Errorf("failed to record %s outcome for message %s rule %d: %w",
			status, msg.ProviderMessageID, rule.ID, err)
	}
	return nil
}

// ReapStaleProcessing fails Processing rows older than the staleness timeout.
// These are orphans from a crash between claim and finalize; failing them
// keeps the ledger honest and unblocks administrative retry.
func (db *Database) ReapStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := db.GetWritePool().Exec(ctx, `
		UPDATE reply_logs
		SET status = $1, error_message = 'processing timed out'
		WHERE status = $2 AND created_at < $3
	`, consts.StatusFailed, consts.StatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale processing rows: %w", err)
	}
	return result.RowsAffected(), nil
}

// ListRecentReplyLogs returns ledger rows created within the window, newest
// first. Used by the admin tool.
func (db *Database) ListRecentReplyLogs(ctx context.Context, since time.Time, limit int) ([]*ReplyLog, error) {
	rows, err := db.GetReadPool().Query(ctx, `
		SELECT id, user_id, rule_id, message_id, COALESCE(provider_message_id, ''), template_id,
			recipient, incoming_subject, status,
			COALESCE(skip_reason, ''), COALESCE(error_message, ''), sent_at, created_at
		FROM reply_logs
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reply logs: %w", err)
	}
	defer rows.Close()

	var logs []*ReplyLog
	for rows.Next() {
		var l ReplyLog
		if err := rows.Scan(&l.ID, &l.UserID, &l.RuleID, &l.MessageID,
			&l.ProviderMessageID, &l.TemplateID, &l.Recipient, &l.IncomingSubject,
			&l.Status, &l.SkipReason, &l.ErrorMessage, &l.SentAt, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reply log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// PurgeOldReplyLogs deletes ledger rows older than the retention window.
// Administrative operation; the engine itself never deletes ledger rows.
func (db *Database) PurgeOldReplyLogs(ctx context.Context, tx pgx.Tx, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := tx.Exec(ctx, `
		DELETE FROM reply_logs WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old reply logs: %w", err)
	}
	return result.RowsAffected(), nil
}
