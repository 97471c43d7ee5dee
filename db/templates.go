package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/migadu/sera/consts"
)

// GetTemplateByID fetches a single reply template.
func (db *Database) GetTemplateByID(ctx context.Context, templateID int64) (*Template, error) {
	var t Template
	err := db.GetReadPool().QueryRow(ctx, `
		SELECT id, user_id, name, reply_subject, reply_body, created_at, updated_at
		FROM reply_templates
		WHERE id = $1
	`, templateID).Scan(&t.ID, &t.UserID, &t.Name, &t.ReplySubject, &t.ReplyBody,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to fetch template %d: %w", templateID, err)
	}
	return &t, nil
}
