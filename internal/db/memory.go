package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// ResolutionAudit is one recorded chip resolution.
type ResolutionAudit struct {
	ID        int64
	OrgID     string
	UserID    string
	ChipLabel string
	ChipType  string
	Resolved  bool
	EntityID  string
	CreatedAt LocalTime
}

// QueryResolution looks up a remembered resolution for a label.
// Labels are matched after normalisation.
func (db *DB) QueryResolution(ctx context.Context, orgID, label string, kind entity.Kind) (string, bool, error) {
	var id string
	err := db.QueryRowContext(ctx, `
		SELECT entity_id FROM chip_resolution_memory
		WHERE org_id = ? AND label = ? AND entity_type = ?
	`, orgID, entity.Normalize(label), string(kind)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query resolution memory: %w", err)
	}
	return id, true, nil
}

// StoreResolution creates or overwrites the remembered resolution for a label.
func (db *DB) StoreResolution(ctx context.Context, orgID, label string, kind entity.Kind, entityID string, confidence float64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chip_resolution_memory (org_id, label, entity_type, entity_id, confidence, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(org_id, label, entity_type) DO UPDATE SET
			entity_id = excluded.entity_id,
			confidence = excluded.confidence,
			updated_at = CURRENT_TIMESTAMP
	`, orgID, entity.Normalize(label), string(kind), entityID, confidence)
	if err != nil {
		return fmt.Errorf("store resolution memory: %w", err)
	}
	return nil
}

// LogResolution appends an audit entry for a chip resolution.
func (db *DB) LogResolution(ctx context.Context, orgID, userID, chipLabel, chipType string, resolved bool, entityID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chip_resolution_audit (org_id, user_id, chip_label, chip_type, resolved, entity_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, orgID, userID, chipLabel, chipType, resolved, entityID)
	if err != nil {
		return fmt.Errorf("insert resolution audit: %w", err)
	}
	return nil
}

// ListResolutionAudit returns the most recent audit entries of an organisation.
func (db *DB) ListResolutionAudit(ctx context.Context, orgID string, limit int) ([]*ResolutionAudit, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, org_id, COALESCE(user_id, ''), chip_label, chip_type, COALESCE(resolved, 0),
		       COALESCE(entity_id, ''), created_at
		FROM chip_resolution_audit WHERE org_id = ?
		ORDER BY id DESC LIMIT ?
	`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("query resolution audit: %w", err)
	}
	defer rows.Close()

	var entries []*ResolutionAudit
	for rows.Next() {
		e := &ResolutionAudit{}
		if err := rows.Scan(&e.ID, &e.OrgID, &e.UserID, &e.ChipLabel, &e.ChipType, &e.Resolved, &e.EntityID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan resolution audit: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
