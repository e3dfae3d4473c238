package sections

import (
	"strings"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

// WhoAction is what the free-text assignee box offers.
type WhoAction string

const (
	WhoAssignPerson WhoAction = "assign_person"
	WhoAssignTeam   WhoAction = "assign_team"
	WhoInvitePerson WhoAction = "invite_person"
	WhoCreateTeam   WhoAction = "create_team"
)

// WhoMatch is the outcome of typing a name into the assignee box. On an
// exact match Action assigns it; otherwise Options lists what the user can
// do with Name.
type WhoMatch struct {
	Action  WhoAction      `json:"action,omitempty"`
	Entity  *entity.Entity `json:"entity,omitempty"`
	Name    string         `json:"name"`
	Options []WhoAction    `json:"options,omitempty"`
}

// Assign returns the draft action for an exact match, or nil.
func (m WhoMatch) Assign() draft.Action {
	if m.Entity == nil {
		return nil
	}
	switch m.Action {
	case WhoAssignPerson:
		return draft.AssignUser{UserID: m.Entity.ID}
	case WhoAssignTeam:
		return draft.ToggleTeam{TeamID: m.Entity.ID}
	}
	return nil
}

// MatchPerson looks text up among members, then teams, ignoring case.
func MatchPerson(text string, members, teams []entity.Entity) WhoMatch {
	name := strings.TrimSpace(text)
	m := WhoMatch{Name: name}
	if name == "" {
		return m
	}
	for i := range members {
		if strings.EqualFold(strings.TrimSpace(members[i].Name), name) {
			m.Action = WhoAssignPerson
			m.Entity = &members[i]
			return m
		}
	}
	for i := range teams {
		if strings.EqualFold(strings.TrimSpace(teams[i].Name), name) {
			m.Action = WhoAssignTeam
			m.Entity = &teams[i]
			return m
		}
	}
	m.Options = []WhoAction{WhoInvitePerson, WhoCreateTeam}
	return m
}

// WhoView is the assignment section.
type WhoView struct {
	Assignee *entity.Entity  `json:"assignee,omitempty"`
	Teams    []entity.Entity `json:"teams,omitempty"`
	Members  []entity.Entity `json:"members"`
	AllTeams []entity.Entity `json:"all_teams"`
	Chips
}

// Who builds the assignment view.
func Who(s draft.State, members, teams []entity.Entity) WhoView {
	v := WhoView{
		Members:  members,
		AllTeams: teams,
		Chips:    chipsFor(s, draft.SectionWho),
	}
	if s.AssignedUserID != "" {
		v.Assignee = findEntity(members, s.AssignedUserID)
	}
	for _, id := range s.TeamIDs {
		if t := findEntity(teams, id); t != nil {
			v.Teams = append(v.Teams, *t)
		}
	}
	return v
}
