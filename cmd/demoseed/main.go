// demoseed creates a demo database with a sample letting agency.
// Usage: go run ./cmd/demoseed [output.db]
// Default output: ~/.local/share/taskpro/demo.db
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/entity"
)

func main() {
	var dbPath string
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	} else {
		home, _ := os.UserHomeDir()
		dbPath = filepath.Join(home, ".local", "share", "taskpro", "demo.db")
	}

	// Start from an empty file every time
	if _, err := os.Stat(dbPath); err == nil {
		if err := os.Remove(dbPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error removing existing db: %v\n", err)
			os.Exit(1)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directory: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	fmt.Printf("Creating demo database at: %s\n", dbPath)
	org, err := seed(context.Background(), database, time.Now())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDone. Organisation id: %s\n", org)
	fmt.Printf("Try: task --config <config with db_path: %s> create \"fix the boiler with john tomorrow\"\n", dbPath)
}

type demoProperty struct {
	Name    string
	Address string
	Spaces  []string
	Assets  map[string]string // asset -> space it sits in ("" for none)
}

var demoProperties = []demoProperty{
	{
		Name:    "12 High Street",
		Address: "12 High Street, Bristol BS1 2AW",
		Spaces:  []string{"Kitchen", "Bathroom", "Hallway", "Garage"},
		Assets:  map[string]string{"Boiler": "Kitchen", "Smoke Alarm": "Hallway", "Garage Door": "Garage"},
	},
	{
		Name:    "Flat 3, Mill Lane",
		Address: "Flat 3, Mill Lane, Bath BA2 4EX",
		Spaces:  []string{"Kitchen", "Bedroom", "Communal Stairs"},
		Assets:  map[string]string{"Fire Door": "Communal Stairs", "Extractor Fan": "Kitchen"},
	},
	{
		Name:    "The Old Dairy",
		Address: "The Old Dairy, Frome BA11 1AA",
		Spaces:  []string{"Yard", "Office", "Store Room"},
		Assets:  map[string]string{"Lift": "", "Electric Gate": "Yard"},
	},
}

var demoMembers = []struct {
	Name  string
	Email string
}{
	{"John Carter", "john@acme-lettings.test"},
	{"Priya Shah", "priya@acme-lettings.test"},
	{"Sam Oduya", "sam@acme-lettings.test"},
}

var demoThemes = []struct {
	Name string
	Type string
}{
	{"Plumbing", "category"},
	{"Electrical", "category"},
	{"Fire Safety", "category"},
	{"Gas Safety", "category"},
	{"Cleaning", "category"},
	{"Urgent Repair", "tag"},
}

// seed fills database with one organisation and its properties, people,
// themes and a handful of tasks. It returns the organisation id.
func seed(ctx context.Context, database *db.DB, now time.Time) (string, error) {
	org := &db.Organisation{Name: "Acme Lettings"}
	if err := database.CreateOrganisation(ctx, org); err != nil {
		return "", fmt.Errorf("create organisation: %w", err)
	}
	fmt.Printf("  Created organisation: %s\n", org.Name)

	ids := make(map[string]string) // "<kind>:<name>" -> id
	for _, p := range demoProperties {
		prop := &db.Property{OrgID: org.ID, Name: p.Name, Address: p.Address}
		if err := database.CreateProperty(ctx, prop); err != nil {
			return "", fmt.Errorf("create property %s: %w", p.Name, err)
		}
		ids["property:"+p.Name] = prop.ID
		spaces := make(map[string]string)
		for _, name := range p.Spaces {
			s := &db.Space{OrgID: org.ID, PropertyID: prop.ID, Name: name}
			if err := database.CreateSpace(ctx, s); err != nil {
				return "", fmt.Errorf("create space %s: %w", name, err)
			}
			spaces[name] = s.ID
			ids["space:"+p.Name+"/"+name] = s.ID
		}
		for name, space := range p.Assets {
			a := &db.Asset{OrgID: org.ID, PropertyID: prop.ID, SpaceID: spaces[space], Name: name}
			if err := database.CreateAsset(ctx, a); err != nil {
				return "", fmt.Errorf("create asset %s: %w", name, err)
			}
			ids["asset:"+p.Name+"/"+name] = a.ID
		}
		fmt.Printf("  Created property: %s (%d spaces, %d assets)\n", p.Name, len(p.Spaces), len(p.Assets))
	}

	var memberIDs []string
	for _, m := range demoMembers {
		member := &db.Member{OrgID: org.ID, Name: m.Name, Email: m.Email}
		if err := database.CreateMember(ctx, member); err != nil {
			return "", fmt.Errorf("create member %s: %w", m.Name, err)
		}
		memberIDs = append(memberIDs, member.ID)
		ids["member:"+m.Name] = member.ID
	}
	team := &db.Team{OrgID: org.ID, Name: "Maintenance"}
	if err := database.CreateTeam(ctx, team); err != nil {
		return "", fmt.Errorf("create team: %w", err)
	}
	for _, id := range memberIDs[:2] {
		if err := database.AddTeamMember(ctx, team.ID, id); err != nil {
			return "", fmt.Errorf("add team member: %w", err)
		}
	}
	fmt.Printf("  Created %d members and team %s\n", len(memberIDs), team.Name)

	for _, th := range demoThemes {
		theme := &db.Theme{OrgID: org.ID, Name: th.Name, Type: th.Type}
		if err := database.CreateTheme(ctx, theme); err != nil {
			return "", fmt.Errorf("create theme %s: %w", th.Name, err)
		}
		ids["theme:"+th.Name] = theme.ID
	}
	fmt.Printf("  Created %d themes\n", len(demoThemes))

	day := func(offset int, hour int) *db.LocalTime {
		d := time.Date(now.Year(), now.Month(), now.Day()+offset, hour, 0, 0, 0, now.Location())
		return &db.LocalTime{Time: d}
	}
	tasks := []struct {
		Task     db.Task
		Spaces   []string
		Assets   []string
		Themes   []string
		Teams    []string
		Subtasks []string
		Messages []string
	}{
		{
			Task: db.Task{
				Title: "Boiler not firing", Description: "boiler in the kitchen isn't firing, tenant has no hot water",
				PropertyID: ids["property:12 High Street"], Priority: db.PriorityUrgent, Status: db.StatusInProgress,
				DueDate: day(0, 17), AssignedUserID: ids["member:John Carter"],
			},
			Spaces:   []string{ids["space:12 High Street/Kitchen"]},
			Assets:   []string{ids["asset:12 High Street/Boiler"]},
			Themes:   []string{ids["theme:Plumbing"], ids["theme:Urgent Repair"]},
			Subtasks: []string{"Call tenant to arrange access", "Check pressure", "Order replacement part"},
			Messages: []string{"Tenant is in after 2pm", "Pressure was at 0.3 bar, topped up but still not firing"},
		},
		{
			Task: db.Task{
				Title: "Annual gas safety check", Description: "annual gas safety check every 12 months",
				PropertyID: ids["property:12 High Street"], Priority: db.PriorityHigh, Status: db.StatusOpen,
				DueDate: day(14, 23), IsCompliance: true, ComplianceLevel: "statutory",
				RecurrenceType: "monthly", RecurrenceInterval: 12,
			},
			Assets: []string{ids["asset:12 High Street/Boiler"]},
			Themes: []string{ids["theme:Gas Safety"]},
		},
		{
			Task: db.Task{
				Title: "Test smoke alarms", Description: "test the smoke alarm in the hallway monthly",
				PropertyID: ids["property:12 High Street"], Priority: db.PriorityMedium, Status: db.StatusOpen,
				DueDate: day(3, 23), RecurrenceType: "monthly", RecurrenceInterval: 1, AnnotationRequired: true,
			},
			Spaces: []string{ids["space:12 High Street/Hallway"]},
			Assets: []string{ids["asset:12 High Street/Smoke Alarm"]},
			Themes: []string{ids["theme:Fire Safety"]},
		},
		{
			Task: db.Task{
				Title: "Fire door closer sticking", Description: "fire door on the communal stairs doesn't close on its own",
				PropertyID: ids["property:Flat 3, Mill Lane"], Priority: db.PriorityHigh, Status: db.StatusOpen,
				DueDate: day(-1, 12), AssignedUserID: ids["member:Sam Oduya"],
			},
			Spaces: []string{ids["space:Flat 3, Mill Lane/Communal Stairs"]},
			Assets: []string{ids["asset:Flat 3, Mill Lane/Fire Door"]},
			Themes: []string{ids["theme:Fire Safety"]},
			Teams:  []string{team.ID},
		},
		{
			Task: db.Task{
				Title: "Clear the yard", Description: "clear the rubbish in the yard before the viewing",
				PropertyID: ids["property:The Old Dairy"], Priority: db.PriorityLow, Status: db.StatusDone,
			},
			Spaces:   []string{ids["space:The Old Dairy/Yard"]},
			Themes:   []string{ids["theme:Cleaning"]},
			Subtasks: []string{"Book skip", "Photograph before and after"},
		},
		{
			Task: db.Task{
				Title: "Lift service", Description: "lift service every 6 months",
				PropertyID: ids["property:The Old Dairy"], Priority: db.PriorityMedium, Status: db.StatusOpen,
				DueDate: day(30, 9), RecurrenceType: "monthly", RecurrenceInterval: 6, IsCompliance: true,
			},
			Assets: []string{ids["asset:The Old Dairy/Lift"]},
			Teams:  []string{team.ID},
		},
	}

	for _, item := range tasks {
		t := item.Task
		t.OrgID = org.ID
		t.CreatedBy = memberIDs[1]
		if err := database.CreateTask(ctx, &t); err != nil {
			return "", fmt.Errorf("create task %s: %w", t.Title, err)
		}
		if err := database.LinkTaskSpaces(ctx, t.ID, item.Spaces); err != nil {
			return "", err
		}
		if err := database.LinkTaskAssets(ctx, t.ID, item.Assets); err != nil {
			return "", err
		}
		if err := database.LinkTaskThemes(ctx, t.ID, item.Themes); err != nil {
			return "", err
		}
		if err := database.LinkTaskTeams(ctx, t.ID, item.Teams); err != nil {
			return "", err
		}
		var subtasks []*db.Subtask
		for i, title := range item.Subtasks {
			subtasks = append(subtasks, &db.Subtask{Title: title, Done: t.Status == db.StatusDone || (i == 0 && t.Status == db.StatusInProgress)})
		}
		if len(subtasks) > 0 {
			if err := database.CreateSubtasks(ctx, t.ID, subtasks); err != nil {
				return "", err
			}
		}
		for _, body := range item.Messages {
			if _, err := database.PostMessage(ctx, t.ID, org.ID, t.AssignedUserID, body); err != nil {
				return "", err
			}
		}
		fmt.Printf("  Created task: [%s] %s\n", t.Status, truncate(t.Title, 50))
	}

	// Earlier picks so "john" resolves straight away in the demo
	if err := database.StoreResolution(ctx, org.ID, "john", entity.KindMember, ids["member:John Carter"], 1); err != nil {
		return "", err
	}
	return org.ID, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
