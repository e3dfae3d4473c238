package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DraftSnapshot is a saved, resumable task draft.
type DraftSnapshot struct {
	ID        string
	OrgID     string
	UserID    string
	State     string // JSON encoded draft state
	UpdatedAt LocalTime
}

// SaveDraft stores or replaces a draft snapshot.
func (db *DB) SaveDraft(ctx context.Context, d *DraftSnapshot) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO drafts (id, org_id, user_id, state, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = CURRENT_TIMESTAMP
	`, d.ID, d.OrgID, d.UserID, d.State)
	if err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	return nil
}

// GetDraft retrieves a draft snapshot by ID.
func (db *DB) GetDraft(ctx context.Context, id string) (*DraftSnapshot, error) {
	d := &DraftSnapshot{}
	err := db.QueryRowContext(ctx, `
		SELECT id, org_id, COALESCE(user_id, ''), state, updated_at FROM drafts WHERE id = ?
	`, id).Scan(&d.ID, &d.OrgID, &d.UserID, &d.State, &d.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query draft: %w", err)
	}
	return d, nil
}

// ListDrafts returns the saved drafts of a user, newest first.
func (db *DB) ListDrafts(ctx context.Context, orgID, userID string) ([]*DraftSnapshot, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, org_id, COALESCE(user_id, ''), state, updated_at
		FROM drafts WHERE org_id = ? AND user_id = ? ORDER BY updated_at DESC
	`, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("query drafts: %w", err)
	}
	defer rows.Close()

	var drafts []*DraftSnapshot
	for rows.Next() {
		d := &DraftSnapshot{}
		if err := rows.Scan(&d.ID, &d.OrgID, &d.UserID, &d.State, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// DeleteDraft removes a draft snapshot.
func (db *DB) DeleteDraft(ctx context.Context, id string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
