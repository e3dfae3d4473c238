package submit

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

func openTestDB(t *testing.T) (*db.DB, *db.Organisation, *db.Property) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	ctx := context.Background()
	org := &db.Organisation{Name: "Acme Lettings"}
	if err := database.CreateOrganisation(ctx, org); err != nil {
		t.Fatalf("failed to create organisation: %v", err)
	}
	prop := &db.Property{OrgID: org.ID, Name: "12 High Street"}
	if err := database.CreateProperty(ctx, prop); err != nil {
		t.Fatalf("failed to create property: %v", err)
	}
	return database, org, prop
}

type recordingUploader struct {
	taskID string
	images []draft.Image
}

func (u *recordingUploader) Start(ctx context.Context, taskID, orgID string, images []draft.Image) {
	u.taskID = taskID
	u.images = images
}

func TestGhostSpaceRoundTrip(t *testing.T) {
	database, org, prop := openTestDB(t)
	ctx := context.Background()

	s := draft.Reduce(draft.New(), draft.SelectProperty{PropertyID: prop.ID})
	s = draft.Reduce(s, draft.SetDescription{Description: "Check the attic for leaks"})
	s = draft.Reduce(s, draft.ToggleSpace{Ref: entity.Ghost(entity.KindSpace, "Attic")})
	s = draft.Reduce(s, draft.ToggleTheme{Ref: entity.GhostTheme("Roofing", "")})

	res, err := New(database, nil, nil).Submit(ctx, Request{OrgID: org.ID, UserID: "u1", State: s})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if len(res.LinkErrors) != 0 {
		t.Fatalf("unexpected link errors: %v", res.LinkErrors)
	}

	spaces, err := database.ListSpaces(ctx, org.ID, prop.ID)
	if err != nil {
		t.Fatalf("ListSpaces error: %v", err)
	}
	if len(spaces) != 1 || spaces[0].Name != "Attic" {
		t.Fatalf("expected exactly one Attic space, got %+v", spaces)
	}

	links, err := database.GetTaskLinks(ctx, res.TaskID)
	if err != nil {
		t.Fatalf("GetTaskLinks error: %v", err)
	}
	if len(links.SpaceIDs) != 1 || links.SpaceIDs[0] != spaces[0].ID {
		t.Errorf("space links = %v, want [%s]", links.SpaceIDs, spaces[0].ID)
	}

	themes, _ := database.ListThemes(ctx, org.ID)
	if len(themes) != 1 || themes[0].Type != entity.DefaultThemeType || links.ThemeIDs[0] != themes[0].ID {
		t.Errorf("themes = %+v links = %v", themes, links.ThemeIDs)
	}

	task, _ := database.GetTask(ctx, res.TaskID)
	if task == nil || task.Title != "Check the attic for leaks" || task.Status != db.StatusOpen {
		t.Errorf("task = %+v", task)
	}
}

func TestSubmitRejectsEmptyDraft(t *testing.T) {
	database, org, _ := openTestDB(t)

	_, err := New(database, nil, nil).Submit(context.Background(), Request{OrgID: org.ID, State: draft.New()})
	if !errors.Is(err, ErrNoDescription) {
		t.Fatalf("expected ErrNoDescription, got %v", err)
	}
	if err.Error() != "add a description" {
		t.Errorf("message = %q", err.Error())
	}
	if !IsValidation(err) {
		t.Error("expected a validation error")
	}

	tasks, _ := database.ListTasks(context.Background(), db.ListTasksOptions{OrgID: org.ID})
	if len(tasks) != 0 {
		t.Errorf("no task should be created, got %d", len(tasks))
	}
}

func TestValidateOrder(t *testing.T) {
	withVerb := draft.Reduce(draft.New(), draft.SetDescription{Description: "Sweep the garage"})
	withVerb = draft.Reduce(withVerb, draft.AddChip{Chip: chip.New(chip.TypeSpace, "Garage")})

	_, err := Validate(Request{OrgID: "o1", State: withVerb})
	var blocking *BlockingChipError
	if !errors.As(err, &blocking) || blocking.Label != "Garage" {
		t.Fatalf("expected blocking chip error, got %v", err)
	}

	noProp := draft.Reduce(draft.New(), draft.SetDescription{Description: "Sweep"})
	c := chip.New(chip.TypeCategory, "Roof")
	noProp = draft.Reduce(noProp, draft.AddChip{Chip: c})
	if _, err := Validate(Request{OrgID: "o1", State: noProp}); err != nil {
		t.Errorf("non-blocking chip should not stop submission: %v", err)
	}

	noOrg := draft.Reduce(draft.New(), draft.SetTitle{Title: "Sweep"})
	if _, err := Validate(Request{State: noOrg}); !errors.Is(err, ErrNoOrganisation) {
		t.Errorf("expected ErrNoOrganisation, got %v", err)
	}
}

func TestFinalTitle(t *testing.T) {
	long := strings.Repeat("a", 60)
	tests := []struct {
		name  string
		state draft.State
		want  string
	}{
		{"user title wins", draft.State{Title: "Mine", AITitle: "Theirs", Description: "desc"}, "Mine"},
		{"ai title next", draft.State{AITitle: "Theirs", Description: "desc"}, "Theirs"},
		{"short description", draft.State{Description: "  fix tap "}, "fix tap"},
		{"long description truncated", draft.State{Description: long}, strings.Repeat("a", 50) + "..."},
		{"empty", draft.State{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FinalTitle(tt.state); got != tt.want {
				t.Errorf("FinalTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJunctionFailureIsSwallowed(t *testing.T) {
	database, org, prop := openTestDB(t)
	ctx := context.Background()

	space := &db.Space{OrgID: org.ID, PropertyID: prop.ID, Name: "Kitchen"}
	if err := database.CreateSpace(ctx, space); err != nil {
		t.Fatal(err)
	}

	s := draft.Reduce(draft.New(), draft.SelectProperty{PropertyID: prop.ID})
	s = draft.Reduce(s, draft.SetTitle{Title: "Fix the tap"})
	s = draft.Reduce(s, draft.ToggleSpace{Ref: entity.Persisted(entity.KindSpace, space.ID, space.Name)})
	s = draft.Reduce(s, draft.ToggleTeam{TeamID: "team-that-does-not-exist"})
	s = draft.Reduce(s, draft.AddSubtask{ID: "st1", Title: "Turn off water"})
	s = draft.Reduce(s, draft.AddImage{Image: draft.Image{ID: "img1", FileName: "tap.jpg", Path: "/tmp/tap.jpg"}})

	uploader := &recordingUploader{}
	res, err := New(database, uploader, nil).Submit(ctx, Request{OrgID: org.ID, State: s})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if len(res.LinkErrors) != 1 || !strings.Contains(res.LinkErrors[0].Error(), "link teams") {
		t.Fatalf("LinkErrors = %v", res.LinkErrors)
	}

	task, _ := database.GetTask(ctx, res.TaskID)
	if task == nil {
		t.Fatal("task should exist despite the link failure")
	}
	links, _ := database.GetTaskLinks(ctx, res.TaskID)
	if len(links.SpaceIDs) != 1 || len(links.TeamIDs) != 0 {
		t.Errorf("links = %+v", links)
	}
	subtasks, _ := database.ListSubtasks(ctx, res.TaskID)
	if len(subtasks) != 1 {
		t.Errorf("subtasks = %+v", subtasks)
	}
	if uploader.taskID != res.TaskID || len(uploader.images) != 1 {
		t.Errorf("uploads not started: %+v", uploader)
	}
}

type failingSpaces struct {
	*db.DB
}

func (failingSpaces) CreateSpace(ctx context.Context, s *db.Space) error {
	return errors.New("disk full")
}

func TestGhostFailureAborts(t *testing.T) {
	database, org, prop := openTestDB(t)
	ctx := context.Background()

	s := draft.Reduce(draft.New(), draft.SelectProperty{PropertyID: prop.ID})
	s = draft.Reduce(s, draft.SetTitle{Title: "Insulate"})
	s = draft.Reduce(s, draft.ToggleSpace{Ref: entity.Ghost(entity.KindSpace, "Attic")})

	_, err := New(failingSpaces{database}, nil, nil).Submit(ctx, Request{OrgID: org.ID, State: s})
	var ghost *GhostError
	if !errors.As(err, &ghost) || ghost.Name != "Attic" || ghost.Kind != entity.KindSpace {
		t.Fatalf("expected GhostError for Attic, got %v", err)
	}
	tasks, _ := database.ListTasks(ctx, db.ListTasksOptions{OrgID: org.ID})
	if len(tasks) != 0 {
		t.Errorf("no task should be created after a ghost failure")
	}
}
