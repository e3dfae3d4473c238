package webapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/events"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
)

// TaskResponse represents a task in JSON responses.
type TaskResponse struct {
	ID                 string            `json:"id"`
	OrgID              string            `json:"org_id"`
	PropertyID         string            `json:"property_id,omitempty"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Priority           string            `json:"priority"`
	Status             string            `json:"status"`
	DueDate            *time.Time        `json:"due_date,omitempty"`
	Due                *sections.DueInfo `json:"due,omitempty"`
	AssignedUserID     string            `json:"assigned_user_id,omitempty"`
	IsCompliance       bool              `json:"is_compliance"`
	ComplianceLevel    string            `json:"compliance_level,omitempty"`
	AnnotationRequired bool              `json:"annotation_required"`
	RecurrenceType     string            `json:"recurrence_type,omitempty"`
	RecurrenceInterval int               `json:"recurrence_interval,omitempty"`
	CreatedBy          string            `json:"created_by,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`

	// Set on single task responses only.
	SpaceIDs []string          `json:"space_ids,omitempty"`
	AssetIDs []string          `json:"asset_ids,omitempty"`
	ThemeIDs []string          `json:"theme_ids,omitempty"`
	TeamIDs  []string          `json:"team_ids,omitempty"`
	Subtasks []SubtaskResponse `json:"subtasks,omitempty"`
}

// SubtaskResponse represents a checklist item.
type SubtaskResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// AttachmentResponse represents an attachment in JSON responses.
type AttachmentResponse struct {
	ID           string    `json:"id"`
	TaskID       string    `json:"task_id"`
	FileName     string    `json:"file_name"`
	ContentType  string    `json:"content_type,omitempty"`
	FileURL      string    `json:"file_url,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// MessageResponse represents a conversation message.
type MessageResponse struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id,omitempty"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// PostMessageRequest posts to a task's conversation.
type PostMessageRequest struct {
	Body string `json:"body"`
}

// UpdateStatusRequest changes a task's status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// taskToResponse converts a task. A zero now leaves out the due label.
func taskToResponse(t *db.Task, now time.Time) *TaskResponse {
	resp := &TaskResponse{
		ID:                 t.ID,
		OrgID:              t.OrgID,
		PropertyID:         t.PropertyID,
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		Status:             t.Status,
		AssignedUserID:     t.AssignedUserID,
		IsCompliance:       t.IsCompliance,
		ComplianceLevel:    t.ComplianceLevel,
		AnnotationRequired: t.AnnotationRequired,
		RecurrenceType:     t.RecurrenceType,
		RecurrenceInterval: t.RecurrenceInterval,
		CreatedBy:          t.CreatedBy,
		CreatedAt:          t.CreatedAt.Time,
		UpdatedAt:          t.UpdatedAt.Time,
	}
	if t.DueDate != nil && !t.DueDate.Time.IsZero() {
		resp.DueDate = &t.DueDate.Time
		if !now.IsZero() && t.Status != db.StatusDone && t.Status != db.StatusArchived {
			info := sections.BuildDueInfo(t.DueDate.Time, now)
			resp.Due = &info
		}
	}
	return resp
}

func attachmentToResponse(a *db.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:           a.ID,
		TaskID:       a.TaskID,
		FileName:     a.FileName,
		ContentType:  a.ContentType,
		FileURL:      a.FileURL,
		ThumbnailURL: a.ThumbnailURL,
		Status:       a.UploadStatus,
		Error:        a.ErrorMessage,
		CreatedAt:    a.CreatedAt.Time,
	}
}

// eventResponse is the WebSocket form of an event.
type eventResponse struct {
	Type       string                 `json:"type"`
	TaskID     string                 `json:"task_id"`
	OrgID      string                 `json:"org_id,omitempty"`
	Task       *TaskResponse          `json:"task,omitempty"`
	Attachment *AttachmentResponse    `json:"attachment,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

func eventToResponse(e events.Event) eventResponse {
	resp := eventResponse{
		Type:      e.Type,
		TaskID:    e.TaskID,
		OrgID:     e.OrgID,
		Message:   e.Message,
		Metadata:  e.Metadata,
		Timestamp: e.Timestamp,
	}
	if e.Task != nil {
		// Due labels depend on the viewer's clock; clients compute them.
		resp.Task = taskToResponse(e.Task, time.Time{})
	}
	if e.Attachment != nil {
		a := attachmentToResponse(e.Attachment)
		resp.Attachment = &a
	}
	return resp
}

// handleListTasks handles GET /tasks?org=&property=&status=&assignee=&all=&limit=
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := db.ListTasksOptions{
		OrgID:          q.Get("org"),
		PropertyID:     q.Get("property"),
		Status:         q.Get("status"),
		AssignedUserID: q.Get("assignee"),
		IncludeClosed:  q.Get("all") == "true",
	}
	if opts.OrgID == "" {
		jsonError(w, "org is required", http.StatusBadRequest)
		return
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			jsonError(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		opts.Limit = n
	}

	tasks, err := s.db.ListTasks(r.Context(), opts)
	if err != nil {
		s.writeError(w, err, "Failed to list tasks")
		return
	}
	resp := make([]*TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		resp = append(resp, taskToResponse(t, s.now()))
	}
	jsonResponse(w, resp, http.StatusOK)
}

// taskFromPath loads the task named in the path, writing a 404 when it does
// not exist.
func (s *Server) taskFromPath(w http.ResponseWriter, r *http.Request) (*db.Task, bool) {
	task, err := s.db.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "Failed to load task")
		return nil, false
	}
	if task == nil {
		jsonError(w, "Task not found", http.StatusNotFound)
		return nil, false
	}
	return task, true
}

// handleGetTask handles GET /tasks/{id}
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	resp := taskToResponse(task, s.now())

	links, err := s.db.GetTaskLinks(r.Context(), task.ID)
	if err != nil {
		s.writeError(w, err, "Failed to load task links")
		return
	}
	resp.SpaceIDs = links.SpaceIDs
	resp.AssetIDs = links.AssetIDs
	resp.ThemeIDs = links.ThemeIDs
	resp.TeamIDs = links.TeamIDs

	subtasks, err := s.db.ListSubtasks(r.Context(), task.ID)
	if err != nil {
		s.writeError(w, err, "Failed to load subtasks")
		return
	}
	for _, st := range subtasks {
		resp.Subtasks = append(resp.Subtasks, SubtaskResponse{ID: st.ID, Title: st.Title, Done: st.Done})
	}
	jsonResponse(w, resp, http.StatusOK)
}

// handleUpdateTaskStatus handles PATCH /tasks/{id}/status
func (s *Server) handleUpdateTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case db.StatusOpen, db.StatusInProgress, db.StatusDone, db.StatusArchived:
	default:
		jsonError(w, "Invalid status", http.StatusBadRequest)
		return
	}

	if err := s.db.UpdateTaskStatus(r.Context(), task.ID, req.Status); err != nil {
		s.writeError(w, err, "Failed to update task")
		return
	}
	task, ok = s.taskFromPath(w, r)
	if !ok {
		return
	}
	jsonResponse(w, taskToResponse(task, s.now()), http.StatusOK)
}

// handleDeleteTask handles DELETE /tasks/{id}
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	if err := s.db.DeleteTask(r.Context(), task.ID); err != nil {
		s.writeError(w, err, "Failed to delete task")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListAttachments handles GET /tasks/{id}/attachments
func (s *Server) handleListAttachments(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	attachments, err := s.db.ListAttachments(r.Context(), task.ID)
	if err != nil {
		s.writeError(w, err, "Failed to list attachments")
		return
	}
	resp := make([]AttachmentResponse, 0, len(attachments))
	for _, a := range attachments {
		resp = append(resp, attachmentToResponse(a))
	}
	jsonResponse(w, resp, http.StatusOK)
}

// handleListMessages handles GET /tasks/{id}/messages
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	messages, err := s.db.ListMessages(r.Context(), task.ID)
	if err != nil {
		s.writeError(w, err, "Failed to list messages")
		return
	}
	resp := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp = append(resp, MessageResponse{ID: m.ID, AuthorID: m.AuthorID, Body: m.Body, CreatedAt: m.CreatedAt.Time})
	}
	jsonResponse(w, resp, http.StatusOK)
}

// handlePostMessage handles POST /tasks/{id}/messages
func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskFromPath(w, r)
	if !ok {
		return
	}
	var req PostMessageRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.db.PostMessage(r.Context(), task.ID, task.OrgID, userID(r), req.Body)
	if errors.Is(err, db.ErrEmptyMessage) {
		jsonError(w, "Message body is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err, "Failed to post message")
		return
	}
	if s.events != nil {
		s.events.EmitMessagePosted(task.ID, task.OrgID, m)
	}
	jsonResponse(w, MessageResponse{ID: m.ID, AuthorID: m.AuthorID, Body: m.Body, CreatedAt: m.CreatedAt.Time}, http.StatusCreated)
}
