// Package db provides SQLite database operations.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection.
type DB struct {
	*sql.DB
	eventEmitter EventEmitter
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	wrapped := &DB{DB: db}

	if err := wrapped.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return wrapped, nil
}

// migrate runs database migrations.
func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS organisations (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Organisation members; tasks are assigned to these.
		`CREATE TABLE IF NOT EXISTS members (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			email TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS teams (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS team_members (
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			member_id TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
			PRIMARY KEY (team_id, member_id)
		)`,

		`CREATE TABLE IF NOT EXISTS properties (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			address TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS spaces (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			property_id TEXT NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			space_id TEXT REFERENCES spaces(id) ON DELETE SET NULL,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS themes (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			type TEXT DEFAULT 'category',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL REFERENCES organisations(id) ON DELETE CASCADE,
			property_id TEXT REFERENCES properties(id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			description TEXT DEFAULT '',
			priority TEXT DEFAULT 'medium',
			status TEXT DEFAULT 'open',
			due_date DATETIME,
			assigned_user_id TEXT REFERENCES members(id) ON DELETE SET NULL,
			is_compliance INTEGER DEFAULT 0,
			compliance_level TEXT DEFAULT '',
			annotation_required INTEGER DEFAULT 0,
			recurrence_type TEXT DEFAULT '',
			recurrence_interval INTEGER DEFAULT 0,
			created_by TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS task_spaces (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			space_id TEXT NOT NULL REFERENCES spaces(id) ON DELETE CASCADE,
			PRIMARY KEY (task_id, space_id)
		)`,

		`CREATE TABLE IF NOT EXISTS task_teams (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			team_id TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			PRIMARY KEY (task_id, team_id)
		)`,

		`CREATE TABLE IF NOT EXISTS task_themes (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			theme_id TEXT NOT NULL REFERENCES themes(id) ON DELETE CASCADE,
			PRIMARY KEY (task_id, theme_id)
		)`,

		`CREATE TABLE IF NOT EXISTS task_assets (
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			asset_id TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
			PRIMARY KEY (task_id, asset_id)
		)`,

		`CREATE TABLE IF NOT EXISTS subtasks (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			done INTEGER DEFAULT 0,
			sort_order INTEGER DEFAULT 0
		)`,

		`CREATE TABLE IF NOT EXISTS attachments (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			org_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			content_type TEXT DEFAULT '',
			file_url TEXT DEFAULT '',
			thumbnail_url TEXT DEFAULT '',
			upload_status TEXT DEFAULT 'pending',
			error_message TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS attachment_annotations (
			id TEXT PRIMARY KEY,
			attachment_id TEXT NOT NULL REFERENCES attachments(id) ON DELETE CASCADE,
			data TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Resolution memory: normalised label -> entity, per organisation.
		`CREATE TABLE IF NOT EXISTS chip_resolution_memory (
			org_id TEXT NOT NULL,
			label TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			confidence REAL DEFAULT 1,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (org_id, label, entity_type)
		)`,

		`CREATE TABLE IF NOT EXISTS chip_resolution_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			org_id TEXT NOT NULL,
			user_id TEXT DEFAULT '',
			chip_label TEXT NOT NULL,
			chip_type TEXT NOT NULL,
			resolved INTEGER DEFAULT 0,
			entity_id TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL UNIQUE REFERENCES tasks(id) ON DELETE CASCADE,
			org_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			author_id TEXT DEFAULT '',
			body TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Resumable draft snapshots (JSON encoded draft state).
		`CREATE TABLE IF NOT EXISTS drafts (
			id TEXT PRIMARY KEY,
			org_id TEXT NOT NULL,
			user_id TEXT DEFAULT '',
			state TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_tasks_org ON tasks(org_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_property ON tasks(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_spaces_property ON spaces(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_assets_property ON assets(property_id)`,
		`CREATE INDEX IF NOT EXISTS idx_attachments_task ON attachments(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	return nil
}

// DefaultPath returns the default database path.
func DefaultPath() string {
	if p := os.Getenv("TASKPRO_DB_PATH"); p != "" {
		return p
	}

	// Default to ~/.local/share/taskpro/tasks.db
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "taskpro", "tasks.db")
}

// nullString maps "" to NULL for optional foreign keys.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
