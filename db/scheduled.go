package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/migadu/sera/consts"
)

const scheduledColumns = `id, user_id, rule_id, message_id, provider_message_id,
	scheduled_at, sent_at, status, COALESCE(skip_reason, ''),
	COALESCE(failure_reason, ''), created_at, updated_at`

func scanScheduled(row pgx.Row) (*ScheduledReply, error) {
	var s ScheduledReply
	err := row.Scan(&s.ID, &s.UserID, &s.RuleID, &s.MessageID, &s.ProviderMessageID,
		&s.ScheduledAt, &s.SentAt, &s.Status, &s.SkipReason, &s.FailureReason,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// InsertScheduledReply persists a deferred dispatch attempt.
func (db *Database) InsertScheduledReply(ctx context.Context, msg *Message, rule *Rule, fireAt time.Time) (*ScheduledReply, error) {
	s := &ScheduledReply{
		UserID:            rule.UserID,
		RuleID:            rule.ID,
		MessageID:         msg.ID,
		ProviderMessageID: msg.ProviderMessageID,
		ScheduledAt:       fireAt.UTC(),
		Status:            consts.ScheduledStatusScheduled,
	}

	err := db.GetWritePool().QueryRow(ctx, `
		INSERT INTO scheduled_replies
			(user_id, rule_id, message_id, provider_message_id, scheduled_at, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, s.UserID, s.RuleID, s.MessageID, s.ProviderMessageID, s.ScheduledAt,
		s.Status).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert scheduled reply for message %d rule %d: %w",
			msg.ID, rule.ID, err)
	}
	return s, nil
}

// ClaimDueScheduledReplies atomically flips due Scheduled rows to Processing
// ownership by returning them while skipping rows locked by a concurrent
// drain. Status stays Scheduled; finalization happens after re-validation.
func (db *Database) ClaimDueScheduledReplies(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]*ScheduledReply, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+scheduledColumns+`
		FROM scheduled_replies
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, consts.ScheduledStatusScheduled, now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due scheduled replies: %w", err)
	}
	defer rows.Close()

	var due []*ScheduledReply
	for rows.Next() {
		s, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled reply: %w", err)
		}
		due = append(due, s)
	}
	return due, rows.Err()
}

// AcquireDueScheduledReplies runs the due-row drain in its own transaction.
// Rows stay Scheduled; the caller owns driving each one to a terminal status
// after re-validation, with the ledger claim arbitrating actual dispatch.
func (db *Database) AcquireDueScheduledReplies(ctx context.Context, now time.Time, limit int) ([]*ScheduledReply, error) {
	tx, err := db.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	due, err := db.ClaimDueScheduledReplies(ctx, tx, now, limit)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", consts.ErrDBCommitTransactionFailed, err)
	}
	return due, nil
}

// FinalizeScheduledReply terminates a scheduled reply exactly once. The status
// guard means a row already terminated by a concurrent path is left alone.
func (db *Database) FinalizeScheduledReply(ctx context.Context, id int64, status consts.ScheduledReplyStatus, skipReason, failureReason string) error {
	var sentAt *time.Time
	if status == consts.ScheduledStatusSent {
		now := time.Now().UTC()
		sentAt = &now
	}

	_, err := db.GetWritePool().Exec(ctx, `
		UPDATE scheduled_replies
		SET status = $2, skip_reason = NULLIF($3, ''), failure_reason = NULLIF($4, ''),
			sent_at = $5, updated_at = now()
		WHERE id = $1 AND status = $6
	`, id, status, skipReason, failureReason, sentAt, consts.ScheduledStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to finalize scheduled reply %d: %w", id, err)
	}
	return nil
}

// CancelScheduledReply cancels a pending scheduled reply for the pair. A pair
// with no pending row is a no-op, not an error.
func (db *Database) CancelScheduledReply(ctx context.Context, messageID, ruleID, userID int64) error {
	_, err := db.GetWritePool().Exec(ctx, `
		UPDATE scheduled_replies
		SET status = $4, updated_at = now()
		WHERE message_id = $1 AND rule_id = $2 AND user_id = $3 AND status = $5
	`, messageID, ruleID, userID,
		consts.ScheduledStatusCancelled, consts.ScheduledStatusScheduled)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled reply: %w", err)
	}
	return nil
}

// CancelScheduledRepliesForRule cancels every pending scheduled reply under a
// rule. Used when a rule is deactivated or deleted.
func (db *Database) CancelScheduledRepliesForRule(ctx context.Context, ruleID int64) (int64, error) {
	result, err := db.GetWritePool().Exec(ctx, `
		UPDATE scheduled_replies
		SET status = $2, updated_at = now()
		WHERE rule_id = $1 AND status = $3
	`, ruleID, consts.ScheduledStatusCancelled, consts.ScheduledStatusScheduled)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel scheduled replies for rule %d: %w", ruleID, err)
	}
	return result.RowsAffected(), nil
}

// ListPendingScheduledReplies returns Scheduled rows ordered by fire time.
func (db *Database) ListPendingScheduledReplies(ctx context.Context, limit int) ([]*ScheduledReply, error) {
	rows, err := db.GetReadPool().Query(ctx, `
		SELECT `+scheduledColumns+`
		FROM scheduled_replies
		WHERE status = $1
		ORDER BY scheduled_at
		LIMIT $2
	`, consts.ScheduledStatusScheduled, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending scheduled replies: %w", err)
	}
	defer rows.Close()

	var pending []*ScheduledReply
	for rows.Next() {
		s, err := scanScheduled(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled reply: %w", err)
		}
		pending = append(pending, s)
	}
	return pending, rows.Err()
}

// CountPendingScheduledReplies returns the number of Scheduled rows.
func (db *Database) CountPendingScheduledReplies(ctx context.Context) (int64, error) {
	var count int64
	err := db.GetReadPool().QueryRow(ctx, `
		SELECT COUNT(*) FROM scheduled_replies WHERE status = $1
	`, consts.ScheduledStatusScheduled).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending scheduled replies: %w", err)
	}
	return count, nil
}

// PurgeTerminalScheduledReplies deletes terminated scheduled rows older than
// the retention window.
func (db *Database) PurgeTerminalScheduledReplies(ctx context.Context, tx pgx.Tx, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := tx.Exec(ctx, `
		DELETE FROM scheduled_replies
		WHERE updated_at < $1 AND status IN ($2, $3, $4, $5)
	`, cutoff, consts.ScheduledStatusSent, consts.ScheduledStatusFailed,
		consts.ScheduledStatusSkipped, consts.ScheduledStatusCancelled)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal scheduled replies: %w", err)
	}
	return result.RowsAffected(), nil
}
