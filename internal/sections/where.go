package sections

import (
	"strings"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// WhereStep is the step of the property then space flow.
type WhereStep string

const (
	StepProperty WhereStep = "property"
	StepSpace    WhereStep = "space"
)

// WhereView is the location section.
type WhereView struct {
	Step       WhereStep       `json:"step"`
	Property   *entity.Entity  `json:"property,omitempty"`
	Properties []entity.Entity `json:"properties"`
	Spaces     []entity.Entity `json:"spaces"`
	Selected   []entity.Ref    `json:"selected,omitempty"`
	Display    string          `json:"display,omitempty"` // e.g. "12 High Street · Kitchen"
	Chips
}

// AutoSelectProperty picks the property a new draft starts with: the
// caller's default, else the only property of the organisation, else none.
func AutoSelectProperty(defaultID string, properties []entity.Entity) string {
	if defaultID != "" {
		return defaultID
	}
	if len(properties) == 1 {
		return properties[0].ID
	}
	return ""
}

// Where builds the location view. spaces may hold spaces of any property;
// only those of the selected property are shown.
func Where(s draft.State, properties, spaces []entity.Entity) WhereView {
	v := WhereView{
		Step:       StepProperty,
		Properties: properties,
		Selected:   s.Spaces,
		Chips:      chipsFor(s, draft.SectionWhere),
	}
	if s.PropertyID == "" {
		return v
	}

	v.Step = StepSpace
	v.Property = findEntity(properties, s.PropertyID)
	for _, sp := range spaces {
		if sp.PropertyID == s.PropertyID {
			v.Spaces = append(v.Spaces, sp)
		}
	}

	if v.Property != nil {
		v.Display = v.Property.Name
		if len(s.Spaces) > 0 {
			names := make([]string, len(s.Spaces))
			for i, r := range s.Spaces {
				names[i] = r.Name
			}
			v.Display += " · " + strings.Join(names, ", ")
		}
	}
	return v
}
