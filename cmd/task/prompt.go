package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/composer"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
)

// Choice values that are not entity ids.
const (
	choiceCreate = "\x00create"
	choiceRemove = "\x00remove"
	choiceSkip   = "\x00skip"
)

// interactive reports whether prompts can be shown.
func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// chipOptions lists what the user can do with an unresolved chip: pick a
// candidate, create the entity, drop the chip or leave it.
func chipOptions(c chip.Chip) []huh.Option[string] {
	var opts []huh.Option[string]
	for _, cand := range c.Candidates {
		opts = append(opts, huh.NewOption(cand.Name, cand.ID))
	}
	opts = append(opts,
		huh.NewOption(fmt.Sprintf("Create %q", c.Label), choiceCreate),
		huh.NewOption("Remove it from the task", choiceRemove),
	)
	if !c.IsVerb() {
		opts = append(opts, huh.NewOption("Leave it", choiceSkip))
	}
	return opts
}

// applyChoice carries out one chip choice.
func applyChoice(ctx context.Context, svc *composer.Service, draftID string, c chip.Chip, choice string) (draft.State, error) {
	switch choice {
	case choiceCreate:
		return svc.CreateFromChip(ctx, draftID, c.ID)
	case choiceRemove:
		return svc.RemoveChip(draftID, c.ID)
	case choiceSkip, "":
		sess, err := svc.Get(draftID)
		if err != nil {
			return draft.State{}, err
		}
		return sess.State(), nil
	}
	return svc.ResolveChip(ctx, draftID, c.ID, choice)
}

// pendingChips returns the entity chips the user still has to settle.
func pendingChips(s draft.State) []chip.Chip {
	var out []chip.Chip
	for _, c := range s.Chips {
		if c.Type.IsValue() || c.IsResolved() {
			continue
		}
		out = append(out, c)
	}
	return out
}

// promptChips asks about every unresolved chip in turn.
func promptChips(ctx context.Context, svc *composer.Service, draftID string) (draft.State, error) {
	sess, err := svc.Get(draftID)
	if err != nil {
		return draft.State{}, err
	}
	st := sess.State()
	for _, c := range pendingChips(st) {
		title := chip.Prompt(c)
		if title == "" {
			title = fmt.Sprintf("What is %q?", c.Label)
		}
		var choice string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title(title).
					Description(c.Message).
					Options(chipOptions(c)...).
					Value(&choice),
			),
		).WithTheme(huh.ThemeDracula())
		if err := form.RunWithContext(ctx); err != nil {
			return st, err
		}
		if st, err = applyChoice(ctx, svc, draftID, c, choice); err != nil {
			return st, err
		}
	}
	return st, nil
}

func propertyOptions(props []*db.Property) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(props))
	for _, p := range props {
		label := p.Name
		if p.Address != "" {
			label += " (" + p.Address + ")"
		}
		opts = append(opts, huh.NewOption(label, p.ID))
	}
	return opts
}

// promptProperty asks for a property when the description names rooms or
// equipment but none is selected yet, then resolves those mentions under it.
func promptProperty(ctx context.Context, svc *composer.Service, database *db.DB, orgID, draftID string) (draft.State, error) {
	sess, err := svc.Get(draftID)
	if err != nil {
		return draft.State{}, err
	}
	st := sess.State()
	if st.PropertyID != "" || !st.HasLocationChips() {
		return st, nil
	}
	props, err := database.ListProperties(ctx, orgID)
	if err != nil || len(props) == 0 {
		return st, err
	}
	var choice string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which property is this for?").
				Options(propertyOptions(props)...).
				Value(&choice),
		),
	).WithTheme(huh.ThemeDracula())
	if err := form.RunWithContext(ctx); err != nil {
		return st, err
	}
	return svc.SelectProperty(ctx, draftID, choice)
}

// assignByName assigns the member or team called name. An unknown name is
// offered for invitation or as a new team when ask is set, otherwise it is
// an error.
func assignByName(ctx context.Context, svc *composer.Service, draftID, name string, ask bool) (draft.State, error) {
	m, st, err := svc.AssignByName(ctx, draftID, name)
	if err != nil || m.Entity != nil {
		return st, err
	}
	if !ask {
		return st, fmt.Errorf("no member or team called %q", m.Name)
	}

	var choice string
	opts := []huh.Option[string]{
		huh.NewOption(fmt.Sprintf("Invite %q as a member", m.Name), string(sections.WhoInvitePerson)),
		huh.NewOption(fmt.Sprintf("Create team %q", m.Name), string(sections.WhoCreateTeam)),
		huh.NewOption("Leave unassigned", choiceSkip),
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title(fmt.Sprintf("Nobody called %q", m.Name)).
				Options(opts...).
				Value(&choice),
		),
	).WithTheme(huh.ThemeDracula())
	if err := form.RunWithContext(ctx); err != nil {
		return st, err
	}
	if choice == choiceSkip {
		return st, nil
	}
	return svc.CreateAssignee(ctx, draftID, m.Name, sections.WhoAction(choice))
}
