package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/migadu/sera/consts"
)

const ruleColumns = `id, user_id, template_id, name, is_active,
	COALESCE(sender_filter, ''), COALESCE(subject_filter, ''),
	apply_to_all, apply_to_existing, delay_minutes,
	COALESCE(business_hours_start, ''), COALESCE(business_hours_end, ''),
	created_at, updated_at`

func scanRule(row pgx.Row) (*Rule, error) {
	var r Rule
	err := row.Scan(&r.ID, &r.UserID, &r.TemplateID, &r.Name, &r.IsActive,
		&r.SenderFilter, &r.SubjectFilter,
		&r.ApplyToAll, &r.ApplyToExisting, &r.DelayMinutes,
		&r.BusinessHoursStart, &r.BusinessHoursEnd,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRuleByID fetches a single rule, active or not.
func (db *Database) GetRuleByID(ctx context.Context, ruleID int64) (*Rule, error) {
	row := db.GetReadPool().QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM reply_rules WHERE id = $1`, ruleID)
	r, err := scanRule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, consts.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to fetch rule %d: %w", ruleID, err)
	}
	return r, nil
}

// ListActiveRules returns all active rules, ordered by id for stable sweeps.
func (db *Database) ListActiveRules(ctx context.Context) ([]*Rule, error) {
	rows, err := db.GetReadPool().Query(ctx,
		`SELECT `+ruleColumns+` FROM reply_rules WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}
