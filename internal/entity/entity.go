// Package entity describes the organisation-scoped rows a task can reference
// and the reference type used by drafts before those rows exist.
package entity

import (
	"strings"
	"unicode"
)

// Kind identifies what an entity is.
type Kind string

const (
	KindMember   Kind = "member"
	KindTeam     Kind = "team"
	KindProperty Kind = "property"
	KindSpace    Kind = "space"
	KindAsset    Kind = "asset"
	KindTheme    Kind = "theme"
)

// Default theme type used when a suggestion does not name one.
const DefaultThemeType = "category"

// Entity is a persisted row that a chip may resolve to.
type Entity struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	Name       string `json:"name"`
	PropertyID string `json:"property_id,omitempty"` // spaces and assets
	SpaceID    string `json:"space_id,omitempty"`    // assets only
	ThemeType  string `json:"theme_type,omitempty"`  // themes only
}

// Ref points at an entity that either exists (ID set) or is a ghost: a name
// the user or the suggestion source produced that has no row yet.
type Ref struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	ThemeType string `json:"theme_type,omitempty"`
}

// Persisted returns a reference to an existing row.
func Persisted(kind Kind, id, name string) Ref {
	return Ref{Kind: kind, ID: id, Name: name}
}

// Ghost returns a reference to an entity that will be created on submit.
func Ghost(kind Kind, name string) Ref {
	return Ref{Kind: kind, Name: strings.TrimSpace(name)}
}

// GhostTheme returns a ghost theme reference carrying its theme type.
func GhostTheme(name, themeType string) Ref {
	if themeType == "" {
		themeType = DefaultThemeType
	}
	return Ref{Kind: KindTheme, Name: strings.TrimSpace(name), ThemeType: themeType}
}

// IsGhost reports whether the reference has no backing row yet.
func (r Ref) IsGhost() bool {
	return r.ID == ""
}

// Same reports whether two references point at the same entity. Ghosts are
// compared by kind and normalised name.
func (r Ref) Same(other Ref) bool {
	if r.Kind != other.Kind {
		return false
	}
	if r.IsGhost() != other.IsGhost() {
		return false
	}
	if r.IsGhost() {
		return Normalize(r.Name) == Normalize(other.Name)
	}
	return r.ID == other.ID
}

// Ref returns a persisted reference to e.
func (e Entity) Ref() Ref {
	return Ref{Kind: e.Kind, ID: e.ID, Name: e.Name, ThemeType: e.ThemeType}
}

// Normalize lowercases s, turns punctuation into spaces and collapses runs of
// whitespace so "Living-Room " and "living room" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// ContainsRef reports whether refs holds a reference equal to r.
func ContainsRef(refs []Ref, r Ref) bool {
	return IndexRef(refs, r) >= 0
}

// IndexRef returns the position of r in refs, or -1.
func IndexRef(refs []Ref, r Ref) int {
	for i, existing := range refs {
		if existing.Same(r) {
			return i
		}
	}
	return -1
}

// Names returns the display names of the given entities.
func Names(entities []Entity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.Name
	}
	return names
}
