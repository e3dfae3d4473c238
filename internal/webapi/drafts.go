package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/composer"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/resolve"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/submit"
)

// maxImageBytes bounds a single multipart image upload.
const maxImageBytes = 32 << 20

type draftResponse struct {
	ID    string         `json:"id"`
	State draft.State    `json:"state"`
	View  *sections.View `json:"view,omitempty"`
}

// OpenDraftRequest opens a draft. PropertyID and DueDate (YYYY-MM-DD) are
// optional pre-selections.
type OpenDraftRequest struct {
	OrgID      string `json:"org_id"`
	PropertyID string `json:"property_id,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
}

// DescribeRequest sets a draft's description.
type DescribeRequest struct {
	Description string `json:"description"`
}

// ResolveChipRequest picks an entity for a chip.
type ResolveChipRequest struct {
	EntityID string `json:"entity_id"`
}

// UpdateFieldsRequest edits draft fields. Every field is optional; the set
// ones are applied in declaration order.
type UpdateFieldsRequest struct {
	Title              *string          `json:"title,omitempty"`
	Priority           *string          `json:"priority,omitempty"`
	PropertyID         *string          `json:"property_id,omitempty"`
	ToggleSpace        string           `json:"toggle_space,omitempty"`
	ToggleAsset        string           `json:"toggle_asset,omitempty"`
	ToggleTheme        string           `json:"toggle_theme,omitempty"`
	GhostSpace         string           `json:"ghost_space,omitempty"`
	GhostAsset         string           `json:"ghost_asset,omitempty"`
	GhostTheme         *GhostThemeInput `json:"ghost_theme,omitempty"`
	AssignedUserID     *string          `json:"assigned_user_id,omitempty"`
	ToggleTeam         string           `json:"toggle_team,omitempty"`
	Due                *DueInput        `json:"due,omitempty"`
	Recurrence         *RecurrenceInput `json:"recurrence,omitempty"`
	Compliance         *bool            `json:"compliance,omitempty"`
	ComplianceLevel    *string          `json:"compliance_level,omitempty"`
	AnnotationRequired *bool            `json:"annotation_required,omitempty"`
	AddSubtask         string           `json:"add_subtask,omitempty"`
	ToggleSubtask      string           `json:"toggle_subtask,omitempty"`
	RemoveSubtask      string           `json:"remove_subtask,omitempty"`
	RemoveImage        string           `json:"remove_image,omitempty"`
}

// GhostThemeInput names a theme that is created on submit.
type GhostThemeInput struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// DueInput sets or clears (empty date) the due date.
type DueInput struct {
	Date string `json:"date"`
	Time string `json:"time,omitempty"`
}

// RecurrenceInput sets or clears (empty type) the recurrence.
type RecurrenceInput struct {
	Type     string `json:"type"`
	Interval int    `json:"interval,omitempty"`
}

// SubmitResponse describes a created task.
type SubmitResponse struct {
	TaskID     string        `json:"task_id"`
	Task       *TaskResponse `json:"task,omitempty"`
	LinkErrors []string      `json:"link_errors,omitempty"`
	Draft      draftResponse `json:"draft"`
}

func (s *Server) draftState(w http.ResponseWriter, id string) (*composer.Session, bool) {
	sess, err := s.composer.Get(id)
	if err != nil {
		s.writeError(w, err, "Failed to load draft")
		return nil, false
	}
	return sess, true
}

// handleOpenDraft handles POST /drafts
func (s *Server) handleOpenDraft(w http.ResponseWriter, r *http.Request) {
	var req OpenDraftRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	open := composer.OpenRequest{OrgID: req.OrgID, UserID: userID(r), PropertyID: req.PropertyID}
	if req.DueDate != "" {
		due, err := sections.ParseDueInput(req.DueDate, "")
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		open.DueDate = due.Date
	}

	sess, err := s.composer.Open(r.Context(), open)
	if err != nil {
		s.writeError(w, err, "Failed to open draft")
		return
	}
	jsonResponse(w, draftResponse{ID: sess.ID, State: sess.State()}, http.StatusCreated)
}

// handleGetDraft handles GET /drafts/{id}. The response carries the
// section views alongside the raw state.
func (s *Server) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.draftState(w, id)
	if !ok {
		return
	}
	view, err := s.composer.View(r.Context(), id)
	if err != nil {
		s.writeError(w, err, "Failed to build draft view")
		return
	}
	jsonResponse(w, draftResponse{ID: id, State: sess.State(), View: &view}, http.StatusOK)
}

// handleCloseDraft handles DELETE /drafts/{id}?save=true
func (s *Server) handleCloseDraft(w http.ResponseWriter, r *http.Request) {
	save := r.URL.Query().Get("save") == "true"
	if err := s.composer.Close(r.Context(), r.PathValue("id"), save); err != nil {
		s.writeError(w, err, "Failed to close draft")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResumeDraft handles POST /drafts/{id}/resume
func (s *Server) handleResumeDraft(w http.ResponseWriter, r *http.Request) {
	sess, err := s.composer.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err, "Failed to resume draft")
		return
	}
	jsonResponse(w, draftResponse{ID: sess.ID, State: sess.State()}, http.StatusOK)
}

// handleDescribe handles POST /drafts/{id}/describe
func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	var req DescribeRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	st, err := s.composer.Describe(r.Context(), id, req.Description)
	if err != nil {
		s.writeError(w, err, "Failed to describe draft")
		return
	}
	jsonResponse(w, draftResponse{ID: id, State: st}, http.StatusOK)
}

// handleUpdateFields handles PATCH /drafts/{id}/fields
func (s *Server) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := s.draftState(w, id)
	if !ok {
		return
	}
	var req UpdateFieldsRequest
	if err := parseJSON(r, &req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entities, err := s.db.ListEntities(r.Context(), sess.OrgID)
	if err != nil {
		s.writeError(w, err, "Failed to list entities")
		return
	}
	st := sess.State()
	propertyID := st.PropertyID
	if req.PropertyID != nil {
		propertyID = *req.PropertyID
	}
	actions, err := fieldActions(req, entities, resolve.Context{OrgID: sess.OrgID, PropertyID: propertyID})
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, a := range actions {
		// A property change resolves space and asset chips again.
		if sp, ok := a.(draft.SelectProperty); ok {
			st, err = s.composer.SelectProperty(r.Context(), id, sp.PropertyID)
		} else {
			st, err = s.composer.Dispatch(id, a)
		}
		if err != nil {
			s.writeError(w, err, "Failed to update draft")
			return
		}
	}
	jsonResponse(w, draftResponse{ID: id, State: st}, http.StatusOK)
}

// fieldActions validates a field update and turns it into draft actions.
// Spaces and assets must belong to rc's property. Nothing is applied when any
// field is invalid.
func fieldActions(req UpdateFieldsRequest, entities []entity.Entity, rc resolve.Context) ([]draft.Action, error) {
	var actions []draft.Action

	lookup := func(kind entity.Kind, id string) (entity.Entity, error) {
		for _, e := range entities {
			if e.Kind == kind && e.ID == id {
				return e, nil
			}
		}
		return entity.Entity{}, fmt.Errorf("unknown %s %q", kind, id)
	}
	toggle := func(kind entity.Kind, id string, build func(entity.Ref) draft.Action) error {
		if id == "" {
			return nil
		}
		e, ok := resolve.Pick(kind, id, entities, rc)
		if !ok {
			if rc.PropertyID == "" && kind != entity.KindTheme {
				return fmt.Errorf("pick a property before adding %s %q", kind, id)
			}
			return fmt.Errorf("unknown %s %q for this property", kind, id)
		}
		actions = append(actions, build(e.Ref()))
		return nil
	}

	if req.Title != nil {
		actions = append(actions, draft.SetTitle{Title: *req.Title})
	}
	if req.Priority != nil {
		if !draft.ValidPriority(*req.Priority) {
			return nil, fmt.Errorf("invalid priority %q", *req.Priority)
		}
		actions = append(actions, draft.SetPriority{Priority: *req.Priority})
	}
	if req.PropertyID != nil {
		if *req.PropertyID != "" {
			if _, err := lookup(entity.KindProperty, *req.PropertyID); err != nil {
				return nil, err
			}
		}
		actions = append(actions, draft.SelectProperty{PropertyID: *req.PropertyID})
	}
	if err := toggle(entity.KindSpace, req.ToggleSpace, func(ref entity.Ref) draft.Action { return draft.ToggleSpace{Ref: ref} }); err != nil {
		return nil, err
	}
	if err := toggle(entity.KindAsset, req.ToggleAsset, func(ref entity.Ref) draft.Action { return draft.ToggleAsset{Ref: ref} }); err != nil {
		return nil, err
	}
	if err := toggle(entity.KindTheme, req.ToggleTheme, func(ref entity.Ref) draft.Action { return draft.ToggleTheme{Ref: ref} }); err != nil {
		return nil, err
	}
	if name := strings.TrimSpace(req.GhostSpace); name != "" {
		actions = append(actions, sections.GhostSpace(name))
	}
	if name := strings.TrimSpace(req.GhostAsset); name != "" {
		actions = append(actions, sections.GhostAsset(name))
	}
	if req.GhostTheme != nil && strings.TrimSpace(req.GhostTheme.Name) != "" {
		actions = append(actions, sections.GhostTheme(req.GhostTheme.Name, req.GhostTheme.Type))
	}
	if req.AssignedUserID != nil {
		if *req.AssignedUserID != "" {
			if _, err := lookup(entity.KindMember, *req.AssignedUserID); err != nil {
				return nil, err
			}
		}
		actions = append(actions, draft.AssignUser{UserID: *req.AssignedUserID})
	}
	if req.ToggleTeam != "" {
		if _, err := lookup(entity.KindTeam, req.ToggleTeam); err != nil {
			return nil, err
		}
		actions = append(actions, draft.ToggleTeam{TeamID: req.ToggleTeam})
	}
	if req.Due != nil {
		a, err := sections.ParseDueInput(req.Due.Date, req.Due.Time)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if req.Recurrence != nil {
		a, err := sections.ValidateRecurrence(req.Recurrence.Type, req.Recurrence.Interval)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if req.Compliance != nil {
		actions = append(actions, draft.SetCompliance{On: *req.Compliance})
	}
	if req.ComplianceLevel != nil {
		if *req.ComplianceLevel != "" && !draft.ValidComplianceLevel(*req.ComplianceLevel) {
			return nil, fmt.Errorf("invalid compliance level %q", *req.ComplianceLevel)
		}
		actions = append(actions, draft.SetComplianceLevel{Level: *req.ComplianceLevel})
	}
	if req.AnnotationRequired != nil {
		actions = append(actions, draft.SetAnnotationRequired{Required: *req.AnnotationRequired})
	}
	if title := strings.TrimSpace(req.AddSubtask); title != "" {
		actions = append(actions, draft.AddSubtask{ID: uuid.New().String(), Title: title})
	}
	if req.ToggleSubtask != "" {
		actions = append(actions, draft.ToggleSubtask{ID: req.ToggleSubtask})
	}
	if req.RemoveSubtask != "" {
		actions = append(actions, draft.RemoveSubtask{ID: req.RemoveSubtask})
	}
	if req.RemoveImage != "" {
		actions = append(actions, draft.RemoveImage{ImageID: req.RemoveImage})
	}
	return actions, nil
}

// handleToggleSection handles POST /drafts/{id}/sections/{section}/toggle
func (s *Server) handleToggleSection(w http.ResponseWriter, r *http.Request) {
	sec := draft.Section(r.PathValue("section"))
	if !sec.Valid() {
		jsonError(w, "Unknown section", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	st, err := s.composer.Dispatch(id, draft.ToggleSection{Section: sec})
	if err != nil {
		s.writeError(w, err, "Failed to toggle section")
		return
	}
	jsonResponse(w, draftResponse{ID: id, State: st}, http.StatusOK)
}

// handleResolveChip handles POST /drafts/{id}/chips/{chip}/resolve
func (s *Server) handleResolveChip(w http.ResponseWriter, r *http.Request) {
	var req ResolveChipRequest
	if err := parseJSON(r, &req); err != nil || req.EntityID == "" {
		jsonError(w, "entity_id is required", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	st, err := s.composer.ResolveChip(r.Context(), id, r.PathValue("chip"), req.EntityID)
	if err != nil {
		s.writeError(w, err, "Failed to resolve chip")
		return
	}
	jsonResponse(w, draftResponse{ID: id, State: st}, http.StatusOK)
}

// AssignByNameRequest is a name typed into the assignee box. Action is empty
// to look the name up, or invite_person / create_team to create it.
type AssignByNameRequest struct {
	Name   string             `json:"name"`
	Action sections.WhoAction `json:"action,omitempty"`
}

type assignByNameResponse struct {
	draftResponse
	Match *sections.WhoMatch `json:"match,omitempty"`
}

// handleAssignByName handles POST /drafts/{id}/who
func (s *Server) handleAssignByName(w http.ResponseWriter, r *http.Request) {
	var req AssignByNameRequest
	if err := parseJSON(r, &req); err != nil || strings.TrimSpace(req.Name) == "" {
		jsonError(w, "name is required", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")
	switch req.Action {
	case "":
		m, st, err := s.composer.AssignByName(r.Context(), id, req.Name)
		if err != nil {
			s.writeError(w, err, "Failed to assign")
			return
		}
		jsonResponse(w, assignByNameResponse{draftResponse: draftResponse{ID: id, State: st}, Match: &m}, http.StatusOK)
	case sections.WhoInvitePerson, sections.WhoCreateTeam:
		st, err := s.composer.CreateAssignee(r.Context(), id, req.Name, req.Action)
		if err != nil {
			s.writeError(w, err, "Failed to create assignee")
			return
		}
		jsonResponse(w, assignByNameResponse{draftResponse: draftResponse{ID: id, State: st}}, http.StatusOK)
	default:
		jsonError(w, fmt.Sprintf("unknown action %q", req.Action), http.StatusBadRequest)
	}
}

// handleCreateFromChip handles POST /drafts/{id}/chips/{chip}/create
func (s *Server) handleCreateFromChip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.composer.CreateFromChip(r.Context(), id, r.PathValue("chip"))
	if err != nil {
		s.writeError(w, err, "Failed to create from chip")
		return
	}
	jsonResponse(w, draftResponse{ID: id, State: st}, http.StatusOK)
}

// handleRemoveChip handles DELETE /drafts/{id}/chips/{chip}
func (s *Server) handleRemoveChip(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.composer.RemoveChip(id, r.PathValue("chip"))
	if err != nil {
		s.writeError(w, err, "Failed to remove chip")
		return
	}
	jsonResponse(w, draftResponse{ID: id, State: st}, http.StatusOK)
}

// handleAttachImage handles POST /drafts/{id}/images (multipart field
// "image", optional "annotation").
func (s *Server) handleAttachImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.draftState(w, id); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		jsonError(w, "Invalid multipart body", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		jsonError(w, "image file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		jsonError(w, "Only images can be attached", http.StatusUnsupportedMediaType)
		return
	}
	img, err := s.composer.AttachImage(id, header.Filename, contentType, file, r.FormValue("annotation"))
	if err != nil {
		s.writeError(w, err, "Failed to attach image")
		return
	}
	jsonResponse(w, img, http.StatusCreated)
}

// handleSubmit handles POST /drafts/{id}/submit
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := s.composer.Submit(r.Context(), id)
	if err != nil {
		var blocking *submit.BlockingChipError
		if errors.As(err, &blocking) {
			s.logger.Debug("submit blocked", "draft", id, "chip", blocking.Label)
		}
		s.writeError(w, err, "Failed to submit draft")
		return
	}

	resp := SubmitResponse{TaskID: res.TaskID}
	if res.Task != nil {
		resp.Task = taskToResponse(res.Task, s.now())
	}
	for _, e := range res.LinkErrors {
		resp.LinkErrors = append(resp.LinkErrors, e.Error())
	}
	if sess, err := s.composer.Get(id); err == nil {
		resp.Draft = draftResponse{ID: id, State: sess.State()}
	}
	jsonResponse(w, resp, http.StatusCreated)
}
