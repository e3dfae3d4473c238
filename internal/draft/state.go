// Package draft holds the state of a task being drafted and the reducer that
// applies user and suggestion actions to it.
package draft

import (
	"fmt"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// Section is one collapsible part of the draft form.
type Section string

const (
	SectionWho        Section = "who"
	SectionWhere      Section = "where"
	SectionWhen       Section = "when"
	SectionWhat       Section = "what"
	SectionTags       Section = "tags"
	SectionCompliance Section = "compliance"
)

// Sections lists every section in display order.
var Sections = []Section{SectionWhere, SectionWhat, SectionWhen, SectionWho, SectionTags, SectionCompliance}

// Valid reports whether s is a known section.
func (s Section) Valid() bool {
	for _, known := range Sections {
		if s == known {
			return true
		}
	}
	return false
}

// SectionOf returns the section a chip type renders in.
func SectionOf(t chip.Type) Section {
	switch t {
	case chip.TypePerson, chip.TypeTeam:
		return SectionWho
	case chip.TypeSpace, chip.TypeProperty:
		return SectionWhere
	case chip.TypeDate, chip.TypeRecurrence:
		return SectionWhen
	case chip.TypeAsset:
		return SectionWhat
	case chip.TypeCategory:
		return SectionTags
	}
	return ""
}

// Priorities
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority reports whether p is a task priority.
func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh || p == PriorityUrgent
}

// ComplianceLevels lists the selectable compliance levels.
var ComplianceLevels = []string{"low", "medium", "high", "critical"}

// ValidComplianceLevel reports whether l is a compliance level.
func ValidComplianceLevel(l string) bool {
	for _, known := range ComplianceLevels {
		if l == known {
			return true
		}
	}
	return false
}

// Recurrence types
const (
	RecurrenceDaily   = "daily"
	RecurrenceWeekly  = "weekly"
	RecurrenceMonthly = "monthly"
)

// Recurrence repeats a task every Interval units of Type.
type Recurrence struct {
	Type     string `json:"type"`
	Interval int    `json:"interval"`
}

// Validate checks the rule.
func (r Recurrence) Validate() error {
	switch r.Type {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	default:
		return fmt.Errorf("unknown recurrence type %q", r.Type)
	}
	if r.Interval < 1 {
		return fmt.Errorf("recurrence interval must be at least 1")
	}
	return nil
}

// Image upload statuses
const (
	ImagePending   = "pending"
	ImageUploading = "uploading"
	ImageUploaded  = "uploaded"
	ImageFailed    = "failed"
)

// Image is a photo attached to the draft, uploaded after submission.
type Image struct {
	ID          string `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Path        string `json:"path"` // staged file on disk
	Annotation  string `json:"annotation,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

// Subtask is a checklist item.
type Subtask struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// Severity of the draft's clarity.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// Clarity tells the user whether the draft can be submitted.
type Clarity struct {
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message,omitempty"`
}

// State is a task being drafted.
type State struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AITitle     string `json:"ai_title,omitempty"`
	TitleEdited bool   `json:"title_edited,omitempty"`

	PropertyID          string       `json:"property_id,omitempty"`
	SelectedPropertyIDs []string     `json:"selected_property_ids,omitempty"`
	Spaces              []entity.Ref `json:"spaces,omitempty"`
	Assets              []entity.Ref `json:"assets,omitempty"`
	Themes              []entity.Ref `json:"themes,omitempty"`

	AssignedUserID string   `json:"assigned_user_id,omitempty"`
	TeamIDs        []string `json:"team_ids,omitempty"`

	DueDate       *time.Time  `json:"due_date,omitempty"`
	DueTime       string      `json:"due_time,omitempty"` // HH:MM, optional
	DueDateManual bool        `json:"due_date_manual,omitempty"`
	Recurrence    *Recurrence `json:"recurrence,omitempty"`

	Priority       string `json:"priority"`
	PriorityManual bool   `json:"priority_manual,omitempty"`

	IsCompliance       bool   `json:"is_compliance,omitempty"`
	ComplianceLevel    string `json:"compliance_level,omitempty"`
	AnnotationRequired bool   `json:"annotation_required,omitempty"`

	Images   []Image   `json:"images,omitempty"`
	Subtasks []Subtask `json:"subtasks,omitempty"`

	Chips    []chip.Chip `json:"chips,omitempty"`
	Applied  []string    `json:"applied,omitempty"` // ids of chips mirrored into fields
	Expanded Section     `json:"expanded,omitempty"`
	Clarity  Clarity     `json:"clarity"`
}

// New returns an empty draft.
func New() State {
	return State{Priority: PriorityMedium}
}

// Chip returns the chip with the given id.
func (s State) Chip(id string) (chip.Chip, bool) {
	for _, c := range s.Chips {
		if c.ID == id {
			return c, true
		}
	}
	return chip.Chip{}, false
}

// IsApplied reports whether a chip has been mirrored into the fields.
func (s State) IsApplied(id string) bool {
	return containsString(s.Applied, id)
}

// FactChips returns the settled chips of a section. An empty section returns
// the facts of every section.
func (s State) FactChips(sec Section) []chip.Chip {
	facts, _ := chip.Partition(s.sectionChips(sec))
	return facts
}

// VerbChips returns the chips of a section that still need the user.
func (s State) VerbChips(sec Section) []chip.Chip {
	_, verbs := chip.Partition(s.sectionChips(sec))
	return verbs
}

func (s State) sectionChips(sec Section) []chip.Chip {
	if sec == "" {
		return s.Chips
	}
	var out []chip.Chip
	for _, c := range s.Chips {
		if SectionOf(c.Type) == sec {
			out = append(out, c)
		}
	}
	return out
}

// HasLocationChips reports whether any space or asset chip is present.
func (s State) HasLocationChips() bool {
	for _, c := range s.Chips {
		if c.Type == chip.TypeSpace || c.Type == chip.TypeAsset {
			return true
		}
	}
	return false
}

// computeClarity returns the first blocking issue, else the first warning.
func computeClarity(s State) Clarity {
	var warning string
	for _, c := range s.Chips {
		if (c.Type == chip.TypeSpace || c.Type == chip.TypeAsset) && s.PropertyID == "" {
			return Clarity{Severity: SeverityBlocking, Message: fmt.Sprintf("Pick a property before adding %s", c.Label)}
		}
		if c.IsVerb() {
			return Clarity{Severity: SeverityBlocking, Message: fmt.Sprintf("Resolve %q before creating the task", c.Label)}
		}
		if warning == "" && !c.IsResolved() {
			warning = fmt.Sprintf("%q was not matched and will be left off the task", c.Label)
		}
	}
	if warning != "" {
		return Clarity{Severity: SeverityWarning, Message: warning}
	}
	return Clarity{}
}

func (s State) clone() State {
	out := s
	out.SelectedPropertyIDs = cloneStrings(s.SelectedPropertyIDs)
	out.Spaces = cloneRefs(s.Spaces)
	out.Assets = cloneRefs(s.Assets)
	out.Themes = cloneRefs(s.Themes)
	out.TeamIDs = cloneStrings(s.TeamIDs)
	if s.DueDate != nil {
		d := *s.DueDate
		out.DueDate = &d
	}
	if s.Recurrence != nil {
		r := *s.Recurrence
		out.Recurrence = &r
	}
	if s.Images != nil {
		out.Images = append([]Image(nil), s.Images...)
	}
	if s.Subtasks != nil {
		out.Subtasks = append([]Subtask(nil), s.Subtasks...)
	}
	if s.Chips != nil {
		out.Chips = make([]chip.Chip, len(s.Chips))
		for i, c := range s.Chips {
			out.Chips[i] = cloneChip(c)
		}
	}
	out.Applied = cloneStrings(s.Applied)
	return out
}

func cloneChip(c chip.Chip) chip.Chip {
	if c.Resolved != nil {
		r := *c.Resolved
		c.Resolved = &r
	}
	if c.Candidates != nil {
		c.Candidates = append([]entity.Entity(nil), c.Candidates...)
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneRefs(r []entity.Ref) []entity.Ref {
	if r == nil {
		return nil
	}
	return append([]entity.Ref(nil), r...)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func addString(list []string, s string) []string {
	if s == "" || containsString(list, s) {
		return list
	}
	return append(list, s)
}

func removeString(list []string, s string) []string {
	var out []string
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func addRef(list []entity.Ref, r entity.Ref) []entity.Ref {
	if entity.ContainsRef(list, r) {
		return list
	}
	return append(list, r)
}

func removeRef(list []entity.Ref, r entity.Ref) []entity.Ref {
	var out []entity.Ref
	for _, v := range list {
		if !v.Same(r) {
			out = append(out, v)
		}
	}
	return out
}
