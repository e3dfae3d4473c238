package db

import (
	"context"
	"database/sql"
	"fmt"
)

// GetSetting retrieves a setting value. Missing keys return "".
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query setting: %w", err)
	}
	return value, nil
}

// SetSetting sets a setting value.
func (db *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

func lastPropertyKey(orgID, userID string) string {
	return fmt.Sprintf("last_property:%s:%s", orgID, userID)
}

// GetLastUsedProperty returns the property a user last created a task for.
func (db *DB) GetLastUsedProperty(ctx context.Context, orgID, userID string) (string, error) {
	return db.GetSetting(ctx, lastPropertyKey(orgID, userID))
}

// SetLastUsedProperty remembers the property a user last created a task for.
func (db *DB) SetLastUsedProperty(ctx context.Context, orgID, userID, propertyID string) error {
	if propertyID == "" {
		return nil
	}
	return db.SetSetting(ctx, lastPropertyKey(orgID, userID), propertyID)
}
