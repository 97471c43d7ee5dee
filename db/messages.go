package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/migadu/sera/consts"
)

const messageColumns = `id, user_id, provider_message_id, thread_id, sender,
	subject, folder, received_at, processed_for_reply, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.UserID, &m.ProviderMessageID, &m.ThreadID, &m.Sender,
		&m.Subject, &m.Folder, &m.ReceivedAt, &m.ProcessedForReply, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMessageByID fetches a single message.
func (db *Database) GetMessageByID(ctx context.Context, messageID int64) (*Message, error) {
	row := db.GetReadPool().QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, messageID)
	m, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to fetch message %d: %w", messageID, err)
	}
	return m, nil
}

// GetCandidateMessages returns inbox messages for one user that have not yet
// reached a terminal automation outcome, oldest first.
func (db *Database) GetCandidateMessages(ctx context.Context, userID int64, limit int) ([]*Message, error) {
	rows, err := db.GetReadPool().Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE user_id = $1 AND folder = $2 AND NOT processed_for_reply
		ORDER BY received_at NULLS LAST, id
		LIMIT $3
	`, userID, consts.FolderInbox, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate messages for user %d: %w", userID, err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkMessageProcessed sets the terminal "already considered for automation"
// marker on a message.
func (db *Database) MarkMessageProcessed(ctx context.Context, messageID int64) error {
	_, err := db.GetWritePool().Exec(ctx, `
		UPDATE messages SET processed_for_reply = TRUE WHERE id = $1
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to mark message %d processed: %w", messageID, err)
	}
	return nil
}

// HasUserReplyInThread reports whether the user has a sent-folder message in
// the given thread other than the message under consideration. Used by the
// safety gate's best-effort thread scan.
func (db *Database) HasUserReplyInThread(ctx context.Context, userID int64, threadID, excludeProviderMessageID string) (bool, error) {
	if threadID == "" {
		return false, nil
	}
	var exists bool
	err := db.GetReadPool().QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM messages
			WHERE user_id = $1
			AND thread_id = $2
			AND folder = $3
			AND provider_message_id <> $4
		)
	`, userID, threadID, consts.FolderSent, excludeProviderMessageID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to scan thread %s: %w", threadID, err)
	}
	return exists, nil
}
