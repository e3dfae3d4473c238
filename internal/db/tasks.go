package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Task represents a task in the database.
type Task struct {
	ID                 string
	OrgID              string
	PropertyID         string
	Title              string
	Description        string
	Priority           string
	Status             string
	DueDate            *LocalTime
	AssignedUserID     string
	IsCompliance       bool
	ComplianceLevel    string
	AnnotationRequired bool
	RecurrenceType     string // "", "daily", "weekly", "monthly"
	RecurrenceInterval int
	CreatedBy          string
	CreatedAt          LocalTime
	UpdatedAt          LocalTime
}

// Task statuses
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusArchived   = "archived"
)

// Task priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// TaskLinks holds the junction rows of a task.
type TaskLinks struct {
	SpaceIDs []string
	TeamIDs  []string
	ThemeIDs []string
	AssetIDs []string
}

// Subtask is a checklist item on a task.
type Subtask struct {
	ID        string
	TaskID    string
	Title     string
	Done      bool
	SortOrder int
}

// ErrOrganisationRequired is returned when a task has no organisation.
var ErrOrganisationRequired = fmt.Errorf("organisation is required")

const taskColumns = `
	id, org_id, COALESCE(property_id, ''), title, COALESCE(description, ''),
	COALESCE(priority, 'medium'), COALESCE(status, 'open'), due_date,
	COALESCE(assigned_user_id, ''), COALESCE(is_compliance, 0), COALESCE(compliance_level, ''),
	COALESCE(annotation_required, 0), COALESCE(recurrence_type, ''), COALESCE(recurrence_interval, 0),
	COALESCE(created_by, ''), created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	err := row.Scan(
		&t.ID, &t.OrgID, &t.PropertyID, &t.Title, &t.Description,
		&t.Priority, &t.Status, &t.DueDate,
		&t.AssignedUserID, &t.IsCompliance, &t.ComplianceLevel,
		&t.AnnotationRequired, &t.RecurrenceType, &t.RecurrenceInterval,
		&t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

// CreateTask creates a new task.
func (db *DB) CreateTask(ctx context.Context, t *Task) error {
	if t.OrgID == "" {
		return ErrOrganisationRequired
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO tasks (id, org_id, property_id, title, description, priority, status, due_date,
		                   assigned_user_id, is_compliance, compliance_level, annotation_required,
		                   recurrence_type, recurrence_interval, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OrgID, nullString(t.PropertyID), t.Title, t.Description, t.Priority, t.Status, timePtr(t.DueDate),
		nullString(t.AssignedUserID), t.IsCompliance, t.ComplianceLevel, t.AnnotationRequired,
		t.RecurrenceType, t.RecurrenceInterval, t.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}

	db.emitTaskCreated(t)
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

// ListTasksOptions defines options for listing tasks.
type ListTasksOptions struct {
	OrgID          string
	PropertyID     string
	Status         string
	AssignedUserID string
	IncludeClosed  bool // include done and archived tasks
	Limit          int
}

// ListTasks retrieves tasks with optional filtering, newest first.
func (db *DB) ListTasks(ctx context.Context, opts ListTasksOptions) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []interface{}

	if opts.OrgID != "" {
		query += " AND org_id = ?"
		args = append(args, opts.OrgID)
	}
	if opts.PropertyID != "" {
		query += " AND property_id = ?"
		args = append(args, opts.PropertyID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, opts.Status)
	} else if !opts.IncludeClosed {
		query += " AND status NOT IN (?, ?)"
		args = append(args, StatusDone, StatusArchived)
	}
	if opts.AssignedUserID != "" {
		query += " AND assigned_user_id = ?"
		args = append(args, opts.AssignedUserID)
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTaskStatus updates a task's status.
func (db *DB) UpdateTaskStatus(ctx context.Context, id, status string) error {
	_, err := db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}

	if t, _ := db.GetTask(ctx, id); t != nil {
		db.emitTaskUpdated(t, map[string]interface{}{"status": status})
	}
	return nil
}

// DeleteTask deletes a task and its junction rows.
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	t, _ := db.GetTask(ctx, id)
	if _, err := db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if t != nil {
		db.emitTaskDeleted(t.ID, t.Title)
	}
	return nil
}

// LinkTaskSpaces links a task to spaces.
func (db *DB) LinkTaskSpaces(ctx context.Context, taskID string, spaceIDs []string) error {
	return db.link(ctx, "task_spaces", "space_id", taskID, spaceIDs)
}

// LinkTaskTeams links a task to teams.
func (db *DB) LinkTaskTeams(ctx context.Context, taskID string, teamIDs []string) error {
	return db.link(ctx, "task_teams", "team_id", taskID, teamIDs)
}

// LinkTaskThemes links a task to themes.
func (db *DB) LinkTaskThemes(ctx context.Context, taskID string, themeIDs []string) error {
	return db.link(ctx, "task_themes", "theme_id", taskID, themeIDs)
}

// LinkTaskAssets links a task to assets.
func (db *DB) LinkTaskAssets(ctx context.Context, taskID string, assetIDs []string) error {
	return db.link(ctx, "task_assets", "asset_id", taskID, assetIDs)
}

// link inserts junction rows in one transaction so a bad id leaves none behind.
func (db *DB) link(ctx context.Context, table, column, taskID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", table, err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf("INSERT OR IGNORE INTO %s (task_id, %s) VALUES (?, ?)", table, column)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, stmt, taskID, id); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// GetTaskLinks returns the junction rows of a task.
func (db *DB) GetTaskLinks(ctx context.Context, taskID string) (*TaskLinks, error) {
	links := &TaskLinks{}
	var err error
	if links.SpaceIDs, err = db.linkedIDs(ctx, "task_spaces", "space_id", taskID); err != nil {
		return nil, err
	}
	if links.TeamIDs, err = db.linkedIDs(ctx, "task_teams", "team_id", taskID); err != nil {
		return nil, err
	}
	if links.ThemeIDs, err = db.linkedIDs(ctx, "task_themes", "theme_id", taskID); err != nil {
		return nil, err
	}
	if links.AssetIDs, err = db.linkedIDs(ctx, "task_assets", "asset_id", taskID); err != nil {
		return nil, err
	}
	return links, nil
}

func (db *DB) linkedIDs(ctx context.Context, table, column, taskID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE task_id = ? ORDER BY rowid", column, table), taskID)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CreateSubtasks adds checklist items to a task in order.
func (db *DB) CreateSubtasks(ctx context.Context, taskID string, subtasks []*Subtask) error {
	for i, s := range subtasks {
		if strings.TrimSpace(s.Title) == "" {
			continue
		}
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		s.TaskID = taskID
		s.SortOrder = i
		_, err := db.ExecContext(ctx, `
			INSERT INTO subtasks (id, task_id, title, done, sort_order) VALUES (?, ?, ?, ?, ?)
		`, s.ID, taskID, s.Title, s.Done, s.SortOrder)
		if err != nil {
			return fmt.Errorf("insert subtask: %w", err)
		}
	}
	return nil
}

// ListSubtasks returns the checklist of a task.
func (db *DB) ListSubtasks(ctx context.Context, taskID string) ([]*Subtask, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, task_id, title, COALESCE(done, 0), COALESCE(sort_order, 0)
		FROM subtasks WHERE task_id = ? ORDER BY sort_order
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*Subtask
	for rows.Next() {
		s := &Subtask{}
		if err := rows.Scan(&s.ID, &s.TaskID, &s.Title, &s.Done, &s.SortOrder); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}
