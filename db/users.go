package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/migadu/sera/consts"
)

// GetUserByID fetches a single user.
func (db *Database) GetUserByID(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := db.GetReadPool().QueryRow(ctx, `
		SELECT id, email, name, timezone, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.Name, &u.Timezone, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch user %d: %w", userID, err)
	}
	return &u, nil
}
