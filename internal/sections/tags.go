package sections

import (
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// TagsView is the theme section.
type TagsView struct {
	Selected  []entity.Ref    `json:"selected,omitempty"`
	Available []entity.Entity `json:"available"`
	Chips
}

// Tags builds the theme view. Themes already selected are left out of
// Available.
func Tags(s draft.State, themes []entity.Entity) TagsView {
	v := TagsView{
		Selected: s.Themes,
		Chips:    chipsFor(s, draft.SectionTags),
	}
	for _, th := range ofKind(themes, entity.KindTheme) {
		if !entity.ContainsRef(s.Themes, th.Ref()) {
			v.Available = append(v.Available, th)
		}
	}
	return v
}

// ComplianceView is the compliance section.
type ComplianceView struct {
	On                 bool     `json:"on"`
	Level              string   `json:"level,omitempty"`
	Levels             []string `json:"levels,omitempty"` // only offered while on
	AnnotationRequired bool     `json:"annotation_required"`
}

// Compliance builds the compliance view.
func Compliance(s draft.State) ComplianceView {
	v := ComplianceView{
		On:                 s.IsCompliance,
		Level:              s.ComplianceLevel,
		AnnotationRequired: s.AnnotationRequired,
	}
	if s.IsCompliance {
		v.Levels = draft.ComplianceLevels
	}
	return v
}

// View bundles every section of a draft.
type View struct {
	Where      WhereView      `json:"where"`
	What       WhatView       `json:"what"`
	When       WhenView       `json:"when"`
	Who        WhoView        `json:"who"`
	Tags       TagsView       `json:"tags"`
	Compliance ComplianceView `json:"compliance"`
	Expanded   draft.Section  `json:"expanded,omitempty"`
	Clarity    draft.Clarity  `json:"clarity"`
}
