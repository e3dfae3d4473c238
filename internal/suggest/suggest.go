// Package suggest extracts a task title, priority, date and entity mentions
// from a free-text description.
package suggest

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

// Date literals a source may return.
const (
	DateToday    = "today"
	DateTomorrow = "tomorrow"
	DateNextWeek = "next_week"
)

// Named is an entity mention.
type Named struct {
	Name string `json:"name"`
}

// ThemeMention is a theme or category mention with its type.
type ThemeMention struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Suggestion is what a source proposes for a description. Every field is
// optional.
type Suggestion struct {
	Title     string         `json:"title,omitempty"`
	Priority  string         `json:"priority,omitempty"`
	Date      string         `json:"date,omitempty"` // today, tomorrow, next_week or a weekday name
	Signature bool           `json:"signature,omitempty"`
	People    []Named        `json:"people,omitempty"`
	Teams     []Named        `json:"teams,omitempty"`
	Spaces    []Named        `json:"spaces,omitempty"`
	Assets    []Named        `json:"assets,omitempty"`
	Themes    []ThemeMention `json:"themes,omitempty"`
}

// IsEmpty reports whether the suggestion carries nothing.
func (s *Suggestion) IsEmpty() bool {
	return s == nil || (s.Title == "" && s.Priority == "" && s.Date == "" && !s.Signature &&
		len(s.People) == 0 && len(s.Teams) == 0 && len(s.Spaces) == 0 &&
		len(s.Assets) == 0 && len(s.Themes) == 0)
}

// Source proposes suggestions for a description.
type Source interface {
	Suggest(ctx context.Context, description string) (*Suggestion, error)
}

// Fallback asks Primary first and uses Secondary when Primary is unavailable
// or fails.
type Fallback struct {
	Primary   Source
	Secondary Source
	Logger    *log.Logger
}

// Suggest implements Source.
func (f *Fallback) Suggest(ctx context.Context, description string) (*Suggestion, error) {
	if f.Primary != nil && available(f.Primary) {
		s, err := f.Primary.Suggest(ctx, description)
		if err == nil {
			return s, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if f.Logger != nil {
			f.Logger.Warn("suggestion source failed, using fallback", "error", err)
		}
	}
	if f.Secondary == nil {
		return &Suggestion{}, nil
	}
	return f.Secondary.Suggest(ctx, description)
}

func available(s Source) bool {
	if a, ok := s.(interface{ IsAvailable() bool }); ok {
		return a.IsAvailable()
	}
	return true
}

// NormalizePriority maps free-form priority words onto the task priorities.
// Unknown values return "".
func NormalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low", "minor":
		return "low"
	case "medium", "normal":
		return "medium"
	case "high", "important":
		return "high"
	case "urgent", "critical", "asap", "emergency":
		return "urgent"
	}
	return ""
}
