// Package submit turns a finished draft into a persisted task.
package submit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
)

// Validation errors.
var (
	ErrPropertyRequired = errors.New("pick a property before adding spaces or assets")
	ErrNoDescription    = errors.New("add a description")
	ErrNoOrganisation   = errors.New("no organisation selected")
)

// BlockingChipError is returned while a chip still needs the user to act.
type BlockingChipError struct {
	Label string
}

func (e *BlockingChipError) Error() string {
	return fmt.Sprintf("resolve %q before creating the task", e.Label)
}

// GhostError names the entity that could not be created.
type GhostError struct {
	Kind entity.Kind
	Name string
	Err  error
}

func (e *GhostError) Error() string {
	return fmt.Sprintf("create %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *GhostError) Unwrap() error { return e.Err }

// IsValidation reports whether err means the draft itself needs fixing.
func IsValidation(err error) bool {
	var blocking *BlockingChipError
	return errors.As(err, &blocking) ||
		errors.Is(err, ErrPropertyRequired) ||
		errors.Is(err, ErrNoDescription) ||
		errors.Is(err, ErrNoOrganisation)
}

// Store is the persistence the submitter writes to.
type Store interface {
	CreateSpace(ctx context.Context, s *db.Space) error
	CreateAsset(ctx context.Context, a *db.Asset) error
	CreateTheme(ctx context.Context, t *db.Theme) error
	CreateTask(ctx context.Context, t *db.Task) error
	LinkTaskSpaces(ctx context.Context, taskID string, ids []string) error
	LinkTaskTeams(ctx context.Context, taskID string, ids []string) error
	LinkTaskThemes(ctx context.Context, taskID string, ids []string) error
	LinkTaskAssets(ctx context.Context, taskID string, ids []string) error
	CreateSubtasks(ctx context.Context, taskID string, subtasks []*db.Subtask) error
}

// Uploader starts background uploads for a new task.
type Uploader interface {
	Start(ctx context.Context, taskID, orgID string, images []draft.Image)
}

// Request is one submission.
type Request struct {
	OrgID  string
	UserID string
	State  draft.State
}

// Result describes the created task. LinkErrors holds junction and subtask
// failures; the task exists regardless.
type Result struct {
	TaskID     string
	Task       *db.Task
	LinkErrors []error
}

// Submitter validates and persists drafts.
type Submitter struct {
	store    Store
	uploader Uploader
	logger   *log.Logger
}

// New creates a submitter. uploader may be nil when images are not used.
func New(store Store, uploader Uploader, logger *log.Logger) *Submitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Submitter{store: store, uploader: uploader, logger: logger}
}

// Validate checks a draft without writing anything and returns the title the
// task would get.
func Validate(req Request) (string, error) {
	s := req.State
	for _, c := range s.Chips {
		if c.IsVerb() {
			return "", &BlockingChipError{Label: c.Label}
		}
	}
	if propertyID(s) == "" {
		for _, c := range s.Chips {
			if c.Type == chip.TypeSpace || c.Type == chip.TypeAsset {
				return "", ErrPropertyRequired
			}
		}
		if len(s.Spaces) > 0 || len(s.Assets) > 0 {
			return "", ErrPropertyRequired
		}
	}

	title := FinalTitle(s)
	if title == "" {
		return "", ErrNoDescription
	}
	if req.OrgID == "" {
		return "", ErrNoOrganisation
	}
	return title, nil
}

const titleFromDescriptionLen = 50

// FinalTitle picks the user's title, then the suggested one, then the start
// of the description.
func FinalTitle(s draft.State) string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	if t := strings.TrimSpace(s.AITitle); t != "" {
		return t
	}
	desc := strings.TrimSpace(s.Description)
	if utf8.RuneCountInString(desc) <= titleFromDescriptionLen {
		return desc
	}
	return string([]rune(desc)[:titleFromDescriptionLen]) + "..."
}

func propertyID(s draft.State) string {
	if s.PropertyID != "" {
		return s.PropertyID
	}
	if len(s.SelectedPropertyIDs) > 0 {
		return s.SelectedPropertyIDs[0]
	}
	return ""
}

// Submit validates the draft, creates its ghost entities, inserts the task
// and its links, and starts image uploads.
func (sb *Submitter) Submit(ctx context.Context, req Request) (*Result, error) {
	title, err := Validate(req)
	if err != nil {
		return nil, err
	}
	s := req.State
	prop := propertyID(s)

	spaceIDs, err := sb.materialiseSpaces(ctx, req.OrgID, prop, s.Spaces)
	if err != nil {
		return nil, err
	}
	themeIDs, err := sb.materialiseThemes(ctx, req.OrgID, s.Themes)
	if err != nil {
		return nil, err
	}
	firstSpace := ""
	if len(spaceIDs) > 0 {
		firstSpace = spaceIDs[0]
	}
	assetIDs, err := sb.materialiseAssets(ctx, req.OrgID, prop, firstSpace, s.Assets)
	if err != nil {
		return nil, err
	}

	task := &db.Task{
		OrgID:              req.OrgID,
		PropertyID:         prop,
		Title:              title,
		Description:        strings.TrimSpace(s.Description),
		Priority:           s.Priority,
		Status:             db.StatusOpen,
		AssignedUserID:     s.AssignedUserID,
		IsCompliance:       s.IsCompliance,
		ComplianceLevel:    s.ComplianceLevel,
		AnnotationRequired: s.AnnotationRequired,
		CreatedBy:          req.UserID,
	}
	if due := sections.DueAt(s); due != nil {
		task.DueDate = &db.LocalTime{Time: *due}
	}
	if s.Recurrence != nil {
		task.RecurrenceType = s.Recurrence.Type
		task.RecurrenceInterval = s.Recurrence.Interval
	}
	if err := sb.store.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	res := &Result{TaskID: task.ID, Task: task}
	link := func(what string, ids []string, fn func(context.Context, string, []string) error) {
		if len(ids) == 0 {
			return
		}
		if err := fn(ctx, task.ID, ids); err != nil {
			sb.logger.Error("Failed to link task", "task", task.ID, "link", what, "error", err)
			res.LinkErrors = append(res.LinkErrors, fmt.Errorf("link %s: %w", what, err))
		}
	}
	link("spaces", spaceIDs, sb.store.LinkTaskSpaces)
	link("teams", s.TeamIDs, sb.store.LinkTaskTeams)
	link("themes", themeIDs, sb.store.LinkTaskThemes)
	link("assets", assetIDs, sb.store.LinkTaskAssets)

	if len(s.Subtasks) > 0 {
		subtasks := make([]*db.Subtask, 0, len(s.Subtasks))
		for _, st := range s.Subtasks {
			subtasks = append(subtasks, &db.Subtask{Title: st.Title, Done: st.Done})
		}
		if err := sb.store.CreateSubtasks(ctx, task.ID, subtasks); err != nil {
			sb.logger.Error("Failed to save subtasks", "task", task.ID, "error", err)
			res.LinkErrors = append(res.LinkErrors, fmt.Errorf("save subtasks: %w", err))
		}
	}

	if len(s.Images) > 0 && sb.uploader != nil {
		sb.uploader.Start(ctx, task.ID, req.OrgID, s.Images)
	}

	sb.logger.Info("Created task", "task", task.ID, "title", title, "link_errors", len(res.LinkErrors))
	return res, nil
}

func (sb *Submitter) materialiseSpaces(ctx context.Context, orgID, propertyID string, refs []entity.Ref) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if !r.IsGhost() {
			ids = append(ids, r.ID)
			continue
		}
		sp := &db.Space{OrgID: orgID, PropertyID: propertyID, Name: r.Name}
		if err := sb.store.CreateSpace(ctx, sp); err != nil {
			return nil, &GhostError{Kind: entity.KindSpace, Name: r.Name, Err: err}
		}
		sb.logger.Debug("Created space", "id", sp.ID, "name", sp.Name)
		ids = append(ids, sp.ID)
	}
	return ids, nil
}

func (sb *Submitter) materialiseThemes(ctx context.Context, orgID string, refs []entity.Ref) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if !r.IsGhost() {
			ids = append(ids, r.ID)
			continue
		}
		themeType := r.ThemeType
		if themeType == "" {
			themeType = entity.DefaultThemeType
		}
		th := &db.Theme{OrgID: orgID, Name: r.Name, Type: themeType}
		if err := sb.store.CreateTheme(ctx, th); err != nil {
			return nil, &GhostError{Kind: entity.KindTheme, Name: r.Name, Err: err}
		}
		ids = append(ids, th.ID)
	}
	return ids, nil
}

func (sb *Submitter) materialiseAssets(ctx context.Context, orgID, propertyID, spaceID string, refs []entity.Ref) ([]string, error) {
	ids := make([]string, 0, len(refs))
	for _, r := range refs {
		if !r.IsGhost() {
			ids = append(ids, r.ID)
			continue
		}
		a := &db.Asset{OrgID: orgID, PropertyID: propertyID, SpaceID: spaceID, Name: r.Name}
		if err := sb.store.CreateAsset(ctx, a); err != nil {
			return nil, &GhostError{Kind: entity.KindAsset, Name: r.Name, Err: err}
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}
