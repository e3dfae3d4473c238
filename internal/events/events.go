// Package events fans task lifecycle events out to in-process listeners and
// to hook scripts.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
)

// Event types
const (
	TaskCreated      = "task.created"
	TaskUpdated      = "task.updated"
	TaskDeleted      = "task.deleted"
	AttachmentStatus = "attachment.status"
	MessagePosted    = "message.posted"
)

// Event represents a task lifecycle event.
type Event struct {
	Type       string                 `json:"type"`
	TaskID     string                 `json:"task_id"`
	OrgID      string                 `json:"org_id,omitempty"`
	Task       *db.Task               `json:"task,omitempty"`
	Attachment *db.Attachment         `json:"attachment,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Emitter delivers events to subscribers and runs the matching hook script.
type Emitter struct {
	hooksDir string
	logger   *log.Logger

	mu      sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	hooks sync.WaitGroup
}

// New creates a new event emitter. An empty hooksDir disables hooks.
func New(hooksDir string, logger *log.Logger) *Emitter {
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "hooks"})
	}
	return &Emitter{hooksDir: hooksDir, logger: logger, subs: make(map[int]func(Event))}
}

// Subscribe registers fn for every event. The returned function removes it.
func (e *Emitter) Subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subs, id)
	}
}

// Emit delivers an event. Subscribers run synchronously; the hook runs in
// the background.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	e.mu.Lock()
	subs := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.mu.Unlock()
	for _, fn := range subs {
		fn(event)
	}

	if e.hooksDir != "" {
		e.hooks.Add(1)
		go func() {
			defer e.hooks.Done()
			e.runHook(event)
		}()
	}
}

// Wait blocks until every started hook has finished. Short-lived commands
// call it before exiting.
func (e *Emitter) Wait() {
	e.hooks.Wait()
}

// runHook executes the hook script for an event.
func (e *Emitter) runHook(event Event) {
	hookPath := filepath.Join(e.hooksDir, event.Type)
	if _, err := os.Stat(hookPath); os.IsNotExist(err) {
		return
	}

	env := os.Environ()
	env = append(env,
		fmt.Sprintf("TASK_ID=%s", event.TaskID),
		fmt.Sprintf("TASK_EVENT=%s", event.Type),
		fmt.Sprintf("TASK_TIMESTAMP=%s", event.Timestamp.Format(time.RFC3339)),
	)
	if event.OrgID != "" {
		env = append(env, fmt.Sprintf("TASK_ORG=%s", event.OrgID))
	}
	if event.Task != nil {
		env = append(env,
			fmt.Sprintf("TASK_TITLE=%s", event.Task.Title),
			fmt.Sprintf("TASK_STATUS=%s", event.Task.Status),
			fmt.Sprintf("TASK_PRIORITY=%s", event.Task.Priority),
			fmt.Sprintf("TASK_PROPERTY=%s", event.Task.PropertyID),
		)
	}
	if event.Attachment != nil {
		env = append(env,
			fmt.Sprintf("ATTACHMENT_ID=%s", event.Attachment.ID),
			fmt.Sprintf("ATTACHMENT_STATUS=%s", event.Attachment.UploadStatus),
		)
	}
	if event.Message != "" {
		env = append(env, fmt.Sprintf("TASK_MESSAGE=%s", event.Message))
	}
	if len(event.Metadata) > 0 {
		if data, err := json.Marshal(event.Metadata); err == nil {
			env = append(env, fmt.Sprintf("TASK_METADATA=%s", string(data)))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, hookPath)
	cmd.Env = env
	output, err := cmd.CombinedOutput()
	if err != nil {
		e.logger.Error("Hook failed", "event", event.Type, "error", err, "output", strings.TrimSpace(string(output)))
		return
	}
	e.logger.Debug("Hook executed", "event", event.Type)
}

// Helper methods for the db.EventEmitter interface

func (e *Emitter) EmitTaskCreated(task *db.Task) {
	e.Emit(Event{Type: TaskCreated, TaskID: task.ID, OrgID: task.OrgID, Task: task})
}

func (e *Emitter) EmitTaskUpdated(task *db.Task, changes map[string]interface{}) {
	e.Emit(Event{Type: TaskUpdated, TaskID: task.ID, OrgID: task.OrgID, Task: task, Metadata: changes})
}

func (e *Emitter) EmitTaskDeleted(taskID string, title string) {
	e.Emit(Event{Type: TaskDeleted, TaskID: taskID, Message: title})
}

func (e *Emitter) EmitAttachmentStatus(a *db.Attachment) {
	e.Emit(Event{Type: AttachmentStatus, TaskID: a.TaskID, OrgID: a.OrgID, Attachment: a, Message: a.ErrorMessage})
}

func (e *Emitter) EmitMessagePosted(taskID, orgID string, m *db.Message) {
	e.Emit(Event{Type: MessagePosted, TaskID: taskID, OrgID: orgID, Message: m.Body,
		Metadata: map[string]interface{}{"message_id": m.ID, "author_id": m.AuthorID}})
}

// DefaultHooksDir returns the default hooks directory path.
func DefaultHooksDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, "taskpro", "hooks")
}
