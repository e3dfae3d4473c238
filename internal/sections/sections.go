// Package sections builds the per-section views of a draft (where, what,
// when, who, tags, compliance) and the actions their pickers emit.
package sections

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// Chips is the fact/verb split shown at the top of every section.
type Chips struct {
	Facts []chip.Chip `json:"facts,omitempty"`
	Verbs []chip.Chip `json:"verbs,omitempty"`
}

func chipsFor(s draft.State, sec draft.Section) Chips {
	return Chips{Facts: s.FactChips(sec), Verbs: s.VerbChips(sec)}
}

// Filter returns the entities whose name contains query, ignoring case,
// sorted by name. An empty query returns everything.
func Filter(entities []entity.Entity, query string) []entity.Entity {
	q := strings.ToLower(strings.TrimSpace(query))
	var out []entity.Entity
	for _, e := range entities {
		if q == "" || strings.Contains(strings.ToLower(e.Name), q) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// GhostSpace selects a space that does not exist yet. It is created on submit.
func GhostSpace(name string) draft.Action {
	return draft.ToggleSpace{Ref: entity.Ghost(entity.KindSpace, name)}
}

// GhostAsset selects an asset that does not exist yet.
func GhostAsset(name string) draft.Action {
	return draft.ToggleAsset{Ref: entity.Ghost(entity.KindAsset, name)}
}

// GhostTheme selects a theme that does not exist yet.
func GhostTheme(name, themeType string) draft.Action {
	return draft.ToggleTheme{Ref: entity.GhostTheme(name, themeType)}
}

func findEntity(entities []entity.Entity, id string) *entity.Entity {
	for i := range entities {
		if entities[i].ID == id {
			return &entities[i]
		}
	}
	return nil
}

func ofKind(entities []entity.Entity, kind entity.Kind) []entity.Entity {
	var out []entity.Entity
	for _, e := range entities {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Lists are the organisation entities the pickers choose from.
type Lists struct {
	Properties []entity.Entity
	Spaces     []entity.Entity
	Members    []entity.Entity
	Teams      []entity.Entity
	Themes     []entity.Entity
}

// Split groups a flat entity list by kind. Assets are left out; they are
// loaded per property by What.
func Split(entities []entity.Entity) Lists {
	return Lists{
		Properties: ofKind(entities, entity.KindProperty),
		Spaces:     ofKind(entities, entity.KindSpace),
		Members:    ofKind(entities, entity.KindMember),
		Teams:      ofKind(entities, entity.KindTeam),
		Themes:     ofKind(entities, entity.KindTheme),
	}
}

// Build assembles every section view of a draft.
func Build(ctx context.Context, s draft.State, lists Lists, assets AssetLoader, now time.Time) (View, error) {
	what, err := What(ctx, s, assets)
	if err != nil {
		return View{}, err
	}
	return View{
		Where:      Where(s, lists.Properties, lists.Spaces),
		What:       what,
		When:       When(s, now),
		Who:        Who(s, lists.Members, lists.Teams),
		Tags:       Tags(s, lists.Themes),
		Compliance: Compliance(s),
		Expanded:   s.Expanded,
		Clarity:    s.Clarity,
	}, nil
}
