package sections

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

var (
	props = []entity.Entity{
		{ID: "p1", Kind: entity.KindProperty, Name: "12 High Street"},
		{ID: "p2", Kind: entity.KindProperty, Name: "Flat 2"},
	}
	spaces = []entity.Entity{
		{ID: "s1", Kind: entity.KindSpace, Name: "Kitchen", PropertyID: "p1"},
		{ID: "s2", Kind: entity.KindSpace, Name: "Hall", PropertyID: "p2"},
	}
	members = []entity.Entity{
		{ID: "m1", Kind: entity.KindMember, Name: "John"},
		{ID: "m2", Kind: entity.KindMember, Name: "Priya"},
	}
	teams = []entity.Entity{
		{ID: "t1", Kind: entity.KindTeam, Name: "Plumbers"},
	}
)

func TestAutoSelectProperty(t *testing.T) {
	if got := AutoSelectProperty("p2", props); got != "p2" {
		t.Errorf("default should win, got %q", got)
	}
	if got := AutoSelectProperty("", props[:1]); got != "p1" {
		t.Errorf("single property should be selected, got %q", got)
	}
	if got := AutoSelectProperty("", props); got != "" {
		t.Errorf("several properties should not auto-select, got %q", got)
	}
	if got := AutoSelectProperty("", nil); got != "" {
		t.Errorf("no properties, got %q", got)
	}
}

func TestWhereSteps(t *testing.T) {
	v := Where(draft.New(), props, spaces)
	if v.Step != StepProperty || v.Spaces != nil {
		t.Errorf("expected property step without spaces, got %+v", v)
	}

	s := draft.Reduce(draft.New(), draft.SelectProperty{PropertyID: "p1"})
	s = draft.Reduce(s, draft.ToggleSpace{Ref: spaces[0].Ref()})
	v = Where(s, props, spaces)
	if v.Step != StepSpace {
		t.Errorf("Step = %s", v.Step)
	}
	if len(v.Spaces) != 1 || v.Spaces[0].ID != "s1" {
		t.Errorf("spaces should be scoped to the property, got %+v", v.Spaces)
	}
	if v.Display != "12 High Street · Kitchen" {
		t.Errorf("Display = %q", v.Display)
	}
}

type countingLoader struct {
	calls   int
	spaceID string
	err     error
}

func (l *countingLoader) LoadAssets(ctx context.Context, propertyID, spaceID string) ([]entity.Entity, error) {
	l.calls++
	l.spaceID = spaceID
	if l.err != nil {
		return nil, l.err
	}
	return []entity.Entity{{ID: "a1", Kind: entity.KindAsset, Name: "Boiler", PropertyID: propertyID}}, nil
}

func TestWhatWithoutPropertyNeverLoads(t *testing.T) {
	loader := &countingLoader{}
	s := draft.Reduce(draft.New(), draft.AddChip{Chip: chip.New(chip.TypeAsset, "Boiler")})

	v, err := What(context.Background(), s, loader)
	if err != nil {
		t.Fatalf("What error: %v", err)
	}
	if loader.calls != 0 {
		t.Errorf("asset loader called %d times without a property", loader.calls)
	}
	if !v.Disabled {
		t.Error("section should be disabled")
	}
	if v.Assets == nil || len(v.Assets) != 0 {
		t.Errorf("Assets = %v, want empty list", v.Assets)
	}
}

func TestWhatScopesBySpace(t *testing.T) {
	loader := &countingLoader{}
	s := draft.Reduce(draft.New(), draft.SelectProperty{PropertyID: "p1"})
	s = draft.Reduce(s, GhostSpace("Attic"))
	s = draft.Reduce(s, draft.ToggleSpace{Ref: spaces[0].Ref()})

	v, err := What(context.Background(), s, loader)
	if err != nil {
		t.Fatalf("What error: %v", err)
	}
	if loader.calls != 1 || loader.spaceID != "s1" {
		t.Errorf("expected one load scoped to s1, got %d calls space=%q", loader.calls, loader.spaceID)
	}
	if len(v.Assets) != 1 {
		t.Errorf("Assets = %v", v.Assets)
	}

	loader.err = errors.New("db closed")
	if _, err := What(context.Background(), s, loader); err == nil {
		t.Error("expected loader error")
	}
}

func TestQuickPicks(t *testing.T) {
	// Wednesday 21 October 2026
	now := time.Date(2026, 10, 21, 15, 0, 0, 0, time.Local)
	picks := QuickPicks(now)
	want := []time.Time{
		time.Date(2026, 10, 21, 0, 0, 0, 0, time.Local),
		time.Date(2026, 10, 22, 0, 0, 0, 0, time.Local),
		time.Date(2026, 10, 23, 0, 0, 0, 0, time.Local),
		time.Date(2026, 10, 26, 0, 0, 0, 0, time.Local),
	}
	for i, p := range picks {
		if !p.Date.Equal(want[i]) {
			t.Errorf("%s = %v, want %v", p.Label, p.Date, want[i])
		}
	}

	friday := time.Date(2026, 10, 23, 9, 0, 0, 0, time.Local)
	if got := QuickPicks(friday)[2].Date; !got.Equal(draft.StartOfDay(friday)) {
		t.Errorf("this week on a Friday should be today, got %v", got)
	}
}

func TestParseDueInput(t *testing.T) {
	a, err := ParseDueInput("2026-10-30", "9:05")
	if err != nil {
		t.Fatalf("ParseDueInput error: %v", err)
	}
	if a.Date == nil || a.Date.Day() != 30 || a.Time != "09:05" {
		t.Errorf("unexpected action %+v", a)
	}

	if a, err := ParseDueInput("", ""); err != nil || a.Date != nil {
		t.Errorf("empty input should clear, got %+v %v", a, err)
	}
	if _, err := ParseDueInput("30/10/2026", ""); err == nil {
		t.Error("expected error for bad date")
	}
	if _, err := ParseDueInput("2026-10-30", "25:00"); err == nil {
		t.Error("expected error for bad time")
	}
}

func TestDueAt(t *testing.T) {
	d := time.Date(2026, 10, 30, 0, 0, 0, 0, time.Local)
	s := draft.Reduce(draft.New(), draft.SetDueDate{Date: &d, Time: "14:30"})
	if got := DueAt(s); got.Hour() != 14 || got.Minute() != 30 {
		t.Errorf("DueAt = %v", got)
	}
	s = draft.Reduce(draft.New(), draft.SetDueDate{Date: &d})
	if got := DueAt(s); got.Hour() != 23 {
		t.Errorf("date without time should be due at end of day, got %v", got)
	}
	if DueAt(draft.New()) != nil {
		t.Error("no due date expected")
	}
}

func TestValidateRecurrence(t *testing.T) {
	if a, err := ValidateRecurrence("Weekly", 2); err != nil || a.Recurrence.Type != draft.RecurrenceWeekly {
		t.Errorf("got %+v %v", a, err)
	}
	if _, err := ValidateRecurrence("weekly", 0); err == nil {
		t.Error("interval 0 should be rejected")
	}
	if _, err := ValidateRecurrence("hourly", 1); err == nil {
		t.Error("unknown type should be rejected")
	}
	if a, err := ValidateRecurrence("", 0); err != nil || a.Recurrence != nil {
		t.Error("empty type should clear")
	}
}

func TestBuildDueInfoSeverity(t *testing.T) {
	now := time.Now()

	overdue := BuildDueInfo(now.Add(-2*time.Hour), now)
	if overdue.Severity != DueSeverityOverdue {
		t.Fatalf("expected overdue severity, got %v", overdue.Severity)
	}
	if !strings.Contains(overdue.Text, "late") {
		t.Fatalf("expected overdue text to mention late, got %q", overdue.Text)
	}

	soon := BuildDueInfo(now.Add(30*time.Minute), now)
	if soon.Severity != DueSeveritySoon {
		t.Fatalf("expected soon severity, got %v", soon.Severity)
	}

	upcoming := BuildDueInfo(now.Add(72*time.Hour), now)
	if upcoming.Severity != DueSeverityUpcoming {
		t.Fatalf("expected upcoming severity, got %v", upcoming.Severity)
	}
	if !strings.HasPrefix(upcoming.Text, "due ") {
		t.Fatalf("expected upcoming text to start with 'due ', got %q", upcoming.Text)
	}

	if BuildDueInfo(time.Time{}, now).Severity != DueSeverityNone {
		t.Error("zero due date should have no severity")
	}
}

func TestMatchPerson(t *testing.T) {
	m := MatchPerson(" john ", members, teams)
	if m.Action != WhoAssignPerson || m.Entity.ID != "m1" {
		t.Fatalf("expected john assigned, got %+v", m)
	}
	if a, ok := m.Assign().(draft.AssignUser); !ok || a.UserID != "m1" {
		t.Errorf("Assign = %#v", m.Assign())
	}

	m = MatchPerson("plumbers", members, teams)
	if m.Action != WhoAssignTeam {
		t.Errorf("expected team match, got %+v", m)
	}

	m = MatchPerson("Zed", members, teams)
	if m.Entity != nil || len(m.Options) != 2 || m.Assign() != nil {
		t.Errorf("expected invite/create options, got %+v", m)
	}
}

func TestWhoView(t *testing.T) {
	s := draft.Reduce(draft.New(), draft.AssignUser{UserID: "m2"})
	s = draft.Reduce(s, draft.ToggleTeam{TeamID: "t1"})
	v := Who(s, members, teams)
	if v.Assignee == nil || v.Assignee.Name != "Priya" {
		t.Errorf("Assignee = %+v", v.Assignee)
	}
	if len(v.Teams) != 1 {
		t.Errorf("Teams = %+v", v.Teams)
	}
}

func TestTagsAndCompliance(t *testing.T) {
	themes := []entity.Entity{
		{ID: "th1", Kind: entity.KindTheme, Name: "Heating"},
		{ID: "th2", Kind: entity.KindTheme, Name: "Safety", ThemeType: "compliance"},
	}
	s := draft.Reduce(draft.New(), draft.ToggleTheme{Ref: themes[0].Ref()})
	s = draft.Reduce(s, GhostTheme("Gutters", ""))

	v := Tags(s, themes)
	if len(v.Selected) != 2 || len(v.Available) != 1 || v.Available[0].ID != "th2" {
		t.Errorf("unexpected tags view %+v", v)
	}
	if v.Selected[1].ThemeType != entity.DefaultThemeType || !v.Selected[1].IsGhost() {
		t.Errorf("ghost theme = %+v", v.Selected[1])
	}

	damp := chip.New(chip.TypeCategory, "damp")
	v = Tags(draft.Reduce(s, draft.AddChip{Chip: damp}), themes)
	if n := len(v.Facts) + len(v.Verbs); n != 1 {
		t.Errorf("suggested theme should show as a tags chip, got %+v", v.Chips)
	}

	if c := Compliance(s); c.On || c.Levels != nil {
		t.Errorf("levels should be hidden while compliance is off: %+v", c)
	}
	s = draft.Reduce(s, draft.SetCompliance{On: true})
	if c := Compliance(s); len(c.Levels) != 4 {
		t.Errorf("Levels = %v", c.Levels)
	}
}

func TestFilter(t *testing.T) {
	got := Filter(append(members, entity.Entity{ID: "m3", Kind: entity.KindMember, Name: "johanna"}), "JO")
	if len(got) != 2 || got[0].Name != "johanna" || got[1].Name != "John" {
		t.Errorf("Filter = %+v", got)
	}
	if len(Filter(members, "")) != 2 {
		t.Error("empty query should return everything")
	}
}

func TestBuild(t *testing.T) {
	all := append(append(append([]entity.Entity{}, props...), spaces...), members...)
	lists := Split(all)
	if len(lists.Properties) != 2 || len(lists.Spaces) != 2 || len(lists.Members) != 2 {
		t.Fatalf("Split = %+v", lists)
	}

	s := draft.Reduce(draft.New(), draft.ToggleSection{Section: draft.SectionWhen})
	v, err := Build(context.Background(), s, lists, &countingLoader{}, time.Now())
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if v.Expanded != draft.SectionWhen || !v.What.Disabled || len(v.When.QuickPicks) != 4 {
		t.Errorf("unexpected view %+v", v)
	}
}
