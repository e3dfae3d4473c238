package draft

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/suggest"
)

// Action is a change to a draft. Actions are plain values; Reduce applies them.
type Action interface {
	isAction()
}

// Defaults pre-fill a draft when it is opened.
type Defaults struct {
	PropertyID         string     `json:"property_id,omitempty"`
	DueDate            *time.Time `json:"due_date,omitempty"`
	LastUsedPropertyID string     `json:"-"`
}

type (
	// Open resets the draft and applies defaults.
	Open struct{ Defaults Defaults }
	// Reset clears the draft.
	Reset struct{}

	SetTitle       struct{ Title string }
	SetDescription struct{ Description string }

	// ApplySuggestion merges a suggestion. Build it with NewApplySuggestion
	// so the entity mentions arrive as chips.
	ApplySuggestion struct {
		Suggestion suggest.Suggestion
		Chips      []chip.Chip
		Now        time.Time
	}

	AddChip    struct{ Chip chip.Chip }
	RemoveChip struct{ ChipID string }
	// SetChipResolution records the outcome of resolving a chip. A nil Ref
	// leaves the chip unresolved with the given candidates and message.
	// Confirmed is set when the user made the choice.
	SetChipResolution struct {
		ChipID     string
		Ref        *entity.Ref
		Source     chip.Source
		Confidence float64
		Candidates []entity.Entity
		Message    string
		Confirmed  bool
	}
	ApplyResolvedChips struct{}

	SelectProperty struct{ PropertyID string }
	ToggleSpace    struct{ Ref entity.Ref }
	ToggleAsset    struct{ Ref entity.Ref }
	ToggleTheme    struct{ Ref entity.Ref }
	AssignUser     struct{ UserID string }
	ToggleTeam     struct{ TeamID string }

	SetDueDate struct {
		Date *time.Time
		Time string
	}
	SetRecurrence         struct{ Recurrence *Recurrence }
	SetPriority           struct{ Priority string }
	SetCompliance         struct{ On bool }
	SetComplianceLevel    struct{ Level string }
	SetAnnotationRequired struct{ Required bool }

	AddImage       struct{ Image Image }
	RemoveImage    struct{ ImageID string }
	SetImageStatus struct{ ImageID, Status, Error string }

	AddSubtask    struct{ ID, Title string }
	ToggleSubtask struct{ ID string }
	RemoveSubtask struct{ ID string }

	ToggleSection struct{ Section Section }
)

func (Open) isAction()                  {}
func (Reset) isAction()                 {}
func (SetTitle) isAction()              {}
func (SetDescription) isAction()        {}
func (ApplySuggestion) isAction()       {}
func (AddChip) isAction()               {}
func (RemoveChip) isAction()            {}
func (SetChipResolution) isAction()     {}
func (ApplyResolvedChips) isAction()    {}
func (SelectProperty) isAction()        {}
func (ToggleSpace) isAction()           {}
func (ToggleAsset) isAction()           {}
func (ToggleTheme) isAction()           {}
func (AssignUser) isAction()            {}
func (ToggleTeam) isAction()            {}
func (SetDueDate) isAction()            {}
func (SetRecurrence) isAction()         {}
func (SetPriority) isAction()           {}
func (SetCompliance) isAction()         {}
func (SetComplianceLevel) isAction()    {}
func (SetAnnotationRequired) isAction() {}
func (AddImage) isAction()              {}
func (RemoveImage) isAction()           {}
func (SetImageStatus) isAction()        {}
func (AddSubtask) isAction()            {}
func (ToggleSubtask) isAction()         {}
func (RemoveSubtask) isAction()         {}
func (ToggleSection) isAction()         {}

// NewApplySuggestion turns the entity mentions of a suggestion into chips.
// The date literal becomes a date chip relative to now.
func NewApplySuggestion(s suggest.Suggestion, now time.Time) ApplySuggestion {
	var chips []chip.Chip
	if d, ok := ResolveDateLiteral(s.Date, now); ok {
		chips = append(chips, chip.NewValue(chip.TypeDate, strings.ReplaceAll(s.Date, "_", " "), d.Format(DateLayout)))
	}
	for _, p := range s.People {
		chips = append(chips, chip.New(chip.TypePerson, p.Name))
	}
	for _, t := range s.Teams {
		chips = append(chips, chip.New(chip.TypeTeam, t.Name))
	}
	for _, sp := range s.Spaces {
		chips = append(chips, chip.New(chip.TypeSpace, sp.Name))
	}
	for _, a := range s.Assets {
		chips = append(chips, chip.New(chip.TypeAsset, a.Name))
	}
	for _, th := range s.Themes {
		c := chip.New(chip.TypeCategory, th.Name)
		c.ThemeType = th.Type
		if c.ThemeType == "" {
			c.ThemeType = entity.DefaultThemeType
		}
		chips = append(chips, c)
	}
	return ApplySuggestion{Suggestion: s, Chips: chips, Now: now}
}

// Reduce returns the state that results from applying a to s. s is never
// modified.
func Reduce(s State, a Action) State {
	next := s.clone()

	switch a := a.(type) {
	case Open:
		next = New()
		switch {
		case a.Defaults.PropertyID != "":
			next = selectProperty(next, a.Defaults.PropertyID)
		case a.Defaults.LastUsedPropertyID != "":
			next = selectProperty(next, a.Defaults.LastUsedPropertyID)
		}
		if a.Defaults.DueDate != nil {
			d := *a.Defaults.DueDate
			next.DueDate = &d
		}

	case Reset:
		next = New()

	case SetTitle:
		next.Title = a.Title
		next.TitleEdited = strings.TrimSpace(a.Title) != ""

	case SetDescription:
		next.Description = a.Description

	case ApplySuggestion:
		next = applySuggestion(next, a)

	case AddChip:
		next = addChip(next, a.Chip)
		next = applyResolved(next)

	case RemoveChip:
		next = removeChip(next, a.ChipID)

	case SetChipResolution:
		next = setChipResolution(next, a)
		next = applyResolved(next)

	case ApplyResolvedChips:
		next = applyResolved(next)

	case SelectProperty:
		next = selectProperty(next, a.PropertyID)

	case ToggleSpace:
		if entity.ContainsRef(next.Spaces, a.Ref) {
			next.Spaces = removeRef(next.Spaces, a.Ref)
		} else if next.PropertyID != "" {
			next.Spaces = addRef(next.Spaces, a.Ref)
		}

	case ToggleAsset:
		if entity.ContainsRef(next.Assets, a.Ref) {
			next.Assets = removeRef(next.Assets, a.Ref)
		} else if next.PropertyID != "" {
			next.Assets = addRef(next.Assets, a.Ref)
		}

	case ToggleTheme:
		if entity.ContainsRef(next.Themes, a.Ref) {
			next.Themes = removeRef(next.Themes, a.Ref)
		} else {
			next.Themes = addRef(next.Themes, a.Ref)
		}

	case AssignUser:
		next.AssignedUserID = a.UserID

	case ToggleTeam:
		if containsString(next.TeamIDs, a.TeamID) {
			next.TeamIDs = removeString(next.TeamIDs, a.TeamID)
		} else {
			next.TeamIDs = addString(next.TeamIDs, a.TeamID)
		}

	case SetDueDate:
		if a.Date == nil {
			next.DueDate = nil
			next.DueTime = ""
			next.DueDateManual = false
			break
		}
		d := *a.Date
		next.DueDate = &d
		next.DueTime = a.Time
		next.DueDateManual = true

	case SetRecurrence:
		if a.Recurrence == nil {
			next.Recurrence = nil
			break
		}
		if a.Recurrence.Validate() != nil {
			return s
		}
		r := *a.Recurrence
		next.Recurrence = &r

	case SetPriority:
		if !ValidPriority(a.Priority) {
			return s
		}
		next.Priority = a.Priority
		next.PriorityManual = true

	case SetCompliance:
		next.IsCompliance = a.On
		if !a.On {
			next.ComplianceLevel = ""
		}

	case SetComplianceLevel:
		if !ValidComplianceLevel(a.Level) {
			return s
		}
		next.IsCompliance = true
		next.ComplianceLevel = a.Level

	case SetAnnotationRequired:
		next.AnnotationRequired = a.Required

	case AddImage:
		if a.Image.ID == "" {
			return s
		}
		for _, img := range next.Images {
			if img.ID == a.Image.ID {
				return s
			}
		}
		img := a.Image
		if img.Status == "" {
			img.Status = ImagePending
		}
		next.Images = append(next.Images, img)

	case RemoveImage:
		var images []Image
		for _, img := range next.Images {
			if img.ID != a.ImageID {
				images = append(images, img)
			}
		}
		next.Images = images

	case SetImageStatus:
		for i := range next.Images {
			if next.Images[i].ID == a.ImageID {
				next.Images[i].Status = a.Status
				next.Images[i].Error = a.Error
			}
		}

	case AddSubtask:
		title := strings.TrimSpace(a.Title)
		if a.ID == "" || title == "" {
			return s
		}
		next.Subtasks = append(next.Subtasks, Subtask{ID: a.ID, Title: title})

	case ToggleSubtask:
		for i := range next.Subtasks {
			if next.Subtasks[i].ID == a.ID {
				next.Subtasks[i].Done = !next.Subtasks[i].Done
			}
		}

	case RemoveSubtask:
		var subtasks []Subtask
		for _, st := range next.Subtasks {
			if st.ID != a.ID {
				subtasks = append(subtasks, st)
			}
		}
		next.Subtasks = subtasks

	case ToggleSection:
		if next.Expanded == a.Section {
			next.Expanded = ""
		} else if a.Section.Valid() {
			next.Expanded = a.Section
		}

	default:
		return s
	}

	next.Clarity = computeClarity(next)
	return next
}

func applySuggestion(s State, a ApplySuggestion) State {
	sg := a.Suggestion
	if title := strings.TrimSpace(sg.Title); title != "" {
		s.AITitle = capitalize(title)
		if !s.TitleEdited {
			s.Title = s.AITitle
		}
	}
	if p := suggest.NormalizePriority(sg.Priority); p != "" && !s.PriorityManual {
		s.Priority = p
	}
	if sg.Signature {
		s.IsCompliance = true
	}
	// The suggestion covers the whole description, so earlier suggested chips
	// it no longer mentions go, unless the user settled them.
	keep := make(map[string]bool, len(a.Chips))
	for _, c := range a.Chips {
		keep[c.Key()] = true
	}
	for _, old := range append([]chip.Chip(nil), s.Chips...) {
		if old.Suggested && !old.Confirmed && !keep[old.Key()] {
			s = removeChip(s, old.ID)
		}
	}
	for _, c := range a.Chips {
		c.Suggested = true
		if c.Type == chip.TypeDate && s.DueDateManual {
			continue
		}
		if c.Type == chip.TypeDate {
			// A newer date replaces an earlier suggested one.
			for _, old := range s.Chips {
				if old.Type == chip.TypeDate && old.Key() != c.Key() {
					s = removeChip(s, old.ID)
				}
			}
		}
		s = addChip(s, c)
	}
	return applyResolved(s)
}

// addChip adds c unless a chip with the same type and label exists. An
// existing unresolved chip takes over c's resolution.
func addChip(s State, c chip.Chip) State {
	if c.ID == "" || !c.Type.Valid() || strings.TrimSpace(c.Label) == "" {
		return s
	}
	for i, existing := range s.Chips {
		if existing.ID == c.ID || existing.Key() == c.Key() {
			if !existing.IsResolved() && c.IsResolved() {
				c.ID = existing.ID
				s.Chips[i] = cloneChip(c)
			}
			return s
		}
	}
	s.Chips = append(s.Chips, cloneChip(c))
	return s
}

func removeChip(s State, id string) State {
	c, ok := s.Chip(id)
	if !ok {
		return s
	}
	if s.IsApplied(id) {
		s = unapply(s, c)
	}
	var chips []chip.Chip
	for _, existing := range s.Chips {
		if existing.ID != id {
			chips = append(chips, existing)
		}
	}
	s.Chips = chips
	return s
}

func setChipResolution(s State, a SetChipResolution) State {
	for i, c := range s.Chips {
		if c.ID != a.ChipID {
			continue
		}
		if s.IsApplied(c.ID) {
			s = unapply(s, c)
		}
		c.Resolved = nil
		if a.Ref != nil {
			r := *a.Ref
			c.Resolved = &r
		}
		c.Source = a.Source
		c.Confidence = a.Confidence
		c.Candidates = append([]entity.Entity(nil), a.Candidates...)
		c.Message = a.Message
		c.Confirmed = a.Confirmed && c.Resolved != nil
		switch {
		case c.Resolved != nil:
			c.State = chip.StateResolved
			c.Candidates = nil
			c.Message = ""
		case c.BlockingRequired:
			c.State = chip.StateBlocked
		default:
			c.State = chip.StateSuggested
		}
		s.Chips[i] = c
		return s
	}
	return s
}

// applyResolved mirrors every resolved, not yet applied chip into its field.
func applyResolved(s State) State {
	for i, c := range s.Chips {
		if !c.IsResolved() || s.IsApplied(c.ID) {
			continue
		}
		var ok bool
		s, ok = apply(s, c)
		if !ok {
			continue
		}
		s.Chips[i].State = chip.StateApplied
		s.Applied = append(s.Applied, c.ID)
	}
	return s
}

func apply(s State, c chip.Chip) (State, bool) {
	switch c.Type {
	case chip.TypePerson:
		if c.ResolvedEntityID() == "" {
			return s, false
		}
		s.AssignedUserID = c.ResolvedEntityID()
	case chip.TypeTeam:
		if c.ResolvedEntityID() == "" {
			return s, false
		}
		s.TeamIDs = addString(s.TeamIDs, c.ResolvedEntityID())
	case chip.TypeSpace:
		s.Spaces = addRef(s.Spaces, *c.Resolved)
	case chip.TypeAsset:
		s.Assets = addRef(s.Assets, *c.Resolved)
	case chip.TypeCategory:
		s.Themes = addRef(s.Themes, *c.Resolved)
	case chip.TypeProperty:
		id := c.ResolvedEntityID()
		if id == "" {
			return s, false
		}
		if s.PropertyID == "" {
			s.PropertyID = id
		}
		s.SelectedPropertyIDs = addString(s.SelectedPropertyIDs, id)
	case chip.TypeDate:
		d, ok := ParseDateValue(c.Value)
		if !ok {
			return s, false
		}
		s.DueDate = &d
	case chip.TypeRecurrence:
		r, ok := ParseRecurrenceValue(c.Value)
		if !ok {
			return s, false
		}
		s.Recurrence = &r
	default:
		return s, false
	}
	return s, true
}

// unapply takes back what an applied chip contributed.
func unapply(s State, c chip.Chip) State {
	switch c.Type {
	case chip.TypePerson:
		if s.AssignedUserID == c.ResolvedEntityID() {
			s.AssignedUserID = ""
		}
	case chip.TypeTeam:
		s.TeamIDs = removeString(s.TeamIDs, c.ResolvedEntityID())
	case chip.TypeSpace:
		if c.Resolved != nil {
			s.Spaces = removeRef(s.Spaces, *c.Resolved)
		}
	case chip.TypeAsset:
		if c.Resolved != nil {
			s.Assets = removeRef(s.Assets, *c.Resolved)
		}
	case chip.TypeCategory:
		if c.Resolved != nil {
			s.Themes = removeRef(s.Themes, *c.Resolved)
		}
	case chip.TypeProperty:
		id := c.ResolvedEntityID()
		s.SelectedPropertyIDs = removeString(s.SelectedPropertyIDs, id)
		if s.PropertyID == id {
			s.PropertyID = ""
			if len(s.SelectedPropertyIDs) > 0 {
				s.PropertyID = s.SelectedPropertyIDs[0]
			}
		}
	case chip.TypeDate:
		if d, ok := ParseDateValue(c.Value); ok && s.DueDate != nil && s.DueDate.Equal(d) && !s.DueDateManual {
			s.DueDate = nil
		}
	case chip.TypeRecurrence:
		s.Recurrence = nil
	}
	s.Applied = removeString(s.Applied, c.ID)
	for i := range s.Chips {
		if s.Chips[i].ID == c.ID && s.Chips[i].State == chip.StateApplied {
			s.Chips[i].State = chip.StateResolved
		}
	}
	return s
}

// selectProperty changes the property. Spaces and assets belong to a
// property, so switching drops them and reopens their chips.
func selectProperty(s State, id string) State {
	if s.PropertyID == id {
		return s
	}
	// Chips blocked for want of a property reopen too, so the caller can
	// resolve them again under the new one.
	s.Spaces = nil
	s.Assets = nil
	for i, c := range s.Chips {
		if c.Type != chip.TypeSpace && c.Type != chip.TypeAsset {
			continue
		}
		s.Applied = removeString(s.Applied, c.ID)
		c.Resolved = nil
		c.Source = ""
		c.Confidence = 0
		c.Candidates = nil
		c.Message = ""
		c.Confirmed = false
		c.State = chip.StateSuggested
		s.Chips[i] = c
	}
	s.PropertyID = id
	s.SelectedPropertyIDs = nil
	if id != "" {
		s.SelectedPropertyIDs = []string{id}
	}
	return s
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
