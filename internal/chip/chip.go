// Package chip models the tokens a task draft collects from free text and
// manual input: each chip names an entity or a value and tracks whether it
// has been resolved.
package chip

import (
	"fmt"
	"strings"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
	"github.com/google/uuid"
)

// Type is what a chip refers to.
type Type string

const (
	TypePerson     Type = "person"
	TypeTeam       Type = "team"
	TypeSpace      Type = "space"
	TypeAsset      Type = "asset"
	TypeCategory   Type = "category"
	TypeDate       Type = "date"
	TypeProperty   Type = "property"
	TypeRecurrence Type = "recurrence"
)

// Types lists every chip type.
var Types = []Type{TypePerson, TypeTeam, TypeSpace, TypeAsset, TypeCategory, TypeDate, TypeProperty, TypeRecurrence}

// Valid reports whether t is a known chip type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// CanBlock reports whether an unresolved chip of this type stops submission.
// Only people, spaces and assets block.
func (t Type) CanBlock() bool {
	return t == TypePerson || t == TypeSpace || t == TypeAsset
}

// IsValue reports whether the chip carries its own value instead of pointing
// at an entity.
func (t Type) IsValue() bool {
	return t == TypeDate || t == TypeRecurrence
}

// EntityKind maps a chip type to the entity kind it resolves to. Value types
// return "".
func (t Type) EntityKind() entity.Kind {
	switch t {
	case TypePerson:
		return entity.KindMember
	case TypeTeam:
		return entity.KindTeam
	case TypeSpace:
		return entity.KindSpace
	case TypeAsset:
		return entity.KindAsset
	case TypeCategory:
		return entity.KindTheme
	case TypeProperty:
		return entity.KindProperty
	}
	return ""
}

// State is where a chip is in its lifecycle.
type State string

const (
	StateSuggested State = "suggested"
	StateResolved  State = "resolved"
	StateApplied   State = "applied"
	StateBlocked   State = "blocked"
)

// Source records how a chip was resolved.
type Source string

const (
	SourceExact  Source = "exact"
	SourceFuzzy  Source = "fuzzy"
	SourceMemory Source = "memory"
)

// Chip is one detected or declared reference.
type Chip struct {
	ID               string          `json:"id"`
	Type             Type            `json:"type"`
	Label            string          `json:"label"`
	Value            string          `json:"value,omitempty"`
	ThemeType        string          `json:"theme_type,omitempty"`
	Resolved         *entity.Ref     `json:"resolved,omitempty"`
	Source           Source          `json:"source,omitempty"`
	Confidence       float64         `json:"confidence,omitempty"`
	BlockingRequired bool            `json:"blocking_required"`
	State            State           `json:"state"`
	Message          string          `json:"message,omitempty"`
	Candidates       []entity.Entity `json:"candidates,omitempty"`
	// Suggested marks chips drawn from the description; Confirmed marks a
	// resolution the user picked or created.
	Suggested bool `json:"suggested,omitempty"`
	Confirmed bool `json:"confirmed,omitempty"`
}

// New creates a suggested chip for an entity mention.
func New(t Type, label string) Chip {
	return Chip{
		ID:               uuid.New().String(),
		Type:             t,
		Label:            strings.TrimSpace(label),
		BlockingRequired: t.CanBlock(),
		State:            StateSuggested,
	}
}

// NewValue creates a date or recurrence chip. These are settled as soon as
// they carry a value.
func NewValue(t Type, label, value string) Chip {
	c := New(t, label)
	c.Value = value
	if value != "" {
		c.State = StateResolved
	}
	return c
}

// IsResolved reports whether the chip has something to apply.
func (c Chip) IsResolved() bool {
	if c.Type.IsValue() {
		return c.Value != ""
	}
	return c.Resolved != nil
}

// IsVerb reports whether the chip still needs the user to act before the
// draft can be submitted.
func (c Chip) IsVerb() bool {
	return c.BlockingRequired && c.Resolved == nil
}

// ResolvedEntityID returns the id of the entity the chip resolved to. Ghost
// resolutions return "".
func (c Chip) ResolvedEntityID() string {
	if c.Resolved == nil {
		return ""
	}
	return c.Resolved.ID
}

// Key identifies a chip by what it refers to rather than by id, so the same
// mention suggested twice collapses into one chip.
func (c Chip) Key() string {
	return string(c.Type) + ":" + entity.Normalize(c.Label)
}

// Partition splits chips into facts (resolved or never blocking) and verbs
// (blocking and unresolved). Every chip lands in exactly one slice.
func Partition(chips []Chip) (facts, verbs []Chip) {
	for _, c := range chips {
		if c.IsVerb() {
			verbs = append(verbs, c)
		} else {
			facts = append(facts, c)
		}
	}
	return facts, verbs
}

// Prompt is the call to action shown for a verb chip, e.g. "ADD GARAGE TO SPACES".
func Prompt(c Chip) string {
	if !c.IsVerb() {
		return ""
	}
	label := strings.ToUpper(c.Label)
	if c.State == StateBlocked && c.Message != "" {
		return strings.ToUpper(c.Message)
	}
	if len(c.Candidates) > 0 {
		return fmt.Sprintf("CHOOSE %s FOR %s", strings.ToUpper(string(c.Type)), label)
	}
	switch c.Type {
	case TypePerson:
		return fmt.Sprintf("INVITE %s", label)
	case TypeSpace:
		return fmt.Sprintf("ADD %s TO SPACES", label)
	case TypeAsset:
		return fmt.Sprintf("ADD %s TO ASSETS", label)
	}
	return label
}
