package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Conversation is the message thread of a task.
type Conversation struct {
	ID        string
	TaskID    string
	OrgID     string
	CreatedAt LocalTime
}

// Message is one entry in a task's conversation.
type Message struct {
	ID             string
	ConversationID string
	AuthorID       string
	Body           string
	CreatedAt      LocalTime
}

// ErrEmptyMessage is returned when posting a blank message.
var ErrEmptyMessage = fmt.Errorf("message body is empty")

// EnsureConversation returns the conversation of a task, creating it on first use.
func (db *DB) EnsureConversation(ctx context.Context, taskID, orgID string) (*Conversation, error) {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO conversations (id, task_id, org_id) VALUES (?, ?, ?)
	`, uuid.New().String(), taskID, orgID)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	c := &Conversation{}
	err = db.QueryRowContext(ctx, `
		SELECT id, task_id, org_id, created_at FROM conversations WHERE task_id = ?
	`, taskID).Scan(&c.ID, &c.TaskID, &c.OrgID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return c, nil
}

// PostMessage appends a message to a task's conversation.
func (db *DB) PostMessage(ctx context.Context, taskID, orgID, authorID, body string) (*Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := db.EnsureConversation(ctx, taskID, orgID)
	if err != nil {
		return nil, err
	}

	m := &Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		AuthorID:       authorID,
		Body:           body,
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, author_id, body) VALUES (?, ?, ?, ?)
	`, m.ID, m.ConversationID, m.AuthorID, m.Body)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	err = db.QueryRowContext(ctx, `SELECT created_at FROM messages WHERE id = ?`, m.ID).Scan(&m.CreatedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return m, nil
}

// ListMessages returns a task's messages, oldest first.
func (db *DB) ListMessages(ctx context.Context, taskID string) ([]*Message, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, COALESCE(m.author_id, ''), m.body, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.task_id = ?
		ORDER BY m.created_at, m.rowid
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.AuthorID, &m.Body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
