package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/chip"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/composer"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/db"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/sections"
	"github.com/RaygunnerZA/property-task-pro-sub000/internal/submit"
)

func newCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <description>",
		Short: "Create a task from a plain description",
		Long: `Create a task from a plain description.

People, rooms, equipment and dates mentioned in the description are picked
up and matched against the organisation. On a terminal you are asked about
anything that could not be matched; otherwise such mentions are left as they
are and may block the task.

Examples:
  task create "fix the boiler with john tomorrow"
  task create "clear the rubbish in the garage" --property 7f3c...
  task create "leak under the sink" --image sink.jpg --priority high
  task create "service the lift" --due 2026-11-02 --time 09:30 --subtask "Book engineer"
  task create "paint the hallway" --assign "Maintenance"`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			property, _ := cmd.Flags().GetString("property")
			title, _ := cmd.Flags().GetString("title")
			priority, _ := cmd.Flags().GetString("priority")
			due, _ := cmd.Flags().GetString("due")
			dueTime, _ := cmd.Flags().GetString("time")
			images, _ := cmd.Flags().GetStringArray("image")
			subtasks, _ := cmd.Flags().GetStringArray("subtask")
			assign, _ := cmd.Flags().GetString("assign")
			noPrompt, _ := cmd.Flags().GetBool("no-prompt")
			outputJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			rt, err := a.open()
			if err != nil {
				fail(err)
			}
			defer rt.close()

			org, err := a.organisation(ctx, rt.db)
			if err != nil {
				fail(err)
			}
			svc := composer.New(composer.Options{
				DB:         rt.db,
				Source:     rt.source,
				Uploader:   rt.uploads,
				StagingDir: a.cfg.StagingDir,
				Logger:     a.logs.For("composer"),
			})

			sess, err := svc.Open(ctx, composer.OpenRequest{OrgID: org, UserID: a.userID, PropertyID: property})
			if err != nil {
				fail(err)
			}
			if _, err := svc.Describe(ctx, sess.ID, args[0]); err != nil {
				fail(err)
			}

			actions, err := createActions(title, priority, due, dueTime, subtasks)
			if err != nil {
				fail(err)
			}
			for _, act := range actions {
				if _, err := svc.Dispatch(sess.ID, act); err != nil {
					fail(err)
				}
			}
			for _, path := range images {
				if err := attachFile(svc, sess.ID, path); err != nil {
					fail(err)
				}
			}

			ask := !noPrompt && !outputJSON && interactive()
			if strings.TrimSpace(assign) != "" {
				if _, err := assignByName(ctx, svc, sess.ID, assign, ask); err != nil {
					fail(err)
				}
			}
			if ask {
				if _, err := promptProperty(ctx, svc, rt.db, org, sess.ID); err != nil {
					fail(err)
				}
				if _, err := promptChips(ctx, svc, sess.ID); err != nil {
					fail(err)
				}
			}

			res, err := svc.Submit(ctx, sess.ID)
			if err != nil {
				if submit.IsValidation(err) {
					printBlocked(sess.State())
				}
				fail(err)
			}

			if outputJSON {
				out := map[string]interface{}{"id": res.TaskID, "title": res.Task.Title}
				if len(res.LinkErrors) > 0 {
					var msgs []string
					for _, e := range res.LinkErrors {
						msgs = append(msgs, e.Error())
					}
					out["link_errors"] = msgs
				}
				json.NewEncoder(os.Stdout).Encode(out)
				return
			}
			fmt.Println(successStyle.Render("Created " + res.Task.Title))
			fmt.Println(dimStyle.Render(res.TaskID))
			for _, e := range res.LinkErrors {
				fmt.Println(warnStyle.Render("Warning: " + e.Error()))
			}
			if len(images) > 0 {
				fmt.Println(dimStyle.Render(fmt.Sprintf("Uploading %d image(s)...", len(images))))
			}
		},
	}
	cmd.Flags().String("property", "", "Property id")
	cmd.Flags().String("title", "", "Title (default derived from the description)")
	cmd.Flags().StringP("priority", "p", "", "Priority: low, medium, high, urgent")
	cmd.Flags().String("due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().String("time", "", "Due time (HH:MM)")
	cmd.Flags().StringArray("image", nil, "Image file to attach (repeatable)")
	cmd.Flags().StringArray("subtask", nil, "Checklist item (repeatable)")
	cmd.Flags().String("assign", "", "Member or team name to assign")
	cmd.Flags().Bool("no-prompt", false, "Never ask about unmatched mentions")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

// createActions turns create flags into draft actions. Explicit values are
// applied after the description so they win over suggestions.
func createActions(title, priority, due, dueTime string, subtasks []string) ([]draft.Action, error) {
	var actions []draft.Action
	if strings.TrimSpace(title) != "" {
		actions = append(actions, draft.SetTitle{Title: title})
	}
	if priority != "" {
		if !draft.ValidPriority(priority) {
			return nil, fmt.Errorf("invalid priority %q", priority)
		}
		actions = append(actions, draft.SetPriority{Priority: priority})
	}
	if due != "" {
		a, err := sections.ParseDueInput(due, dueTime)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	} else if dueTime != "" {
		return nil, errors.New("--time needs --due")
	}
	for _, s := range subtasks {
		if s = strings.TrimSpace(s); s != "" {
			actions = append(actions, draft.AddSubtask{ID: uuid.New().String(), Title: s})
		}
	}
	return actions, nil
}

func attachFile(svc *composer.Service, draftID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = svc.AttachImage(draftID, filepath.Base(path), "", f, "")
	return err
}

// printBlocked explains which mentions stop the task from being created.
func printBlocked(s draft.State) {
	for _, c := range s.Chips {
		if p := chip.Prompt(c); p != "" {
			fmt.Fprintln(os.Stderr, warnStyle.Render("  "+p))
		}
	}
}

var priorityColors = map[string]lipgloss.Color{
	db.PriorityUrgent: lipgloss.Color("#EF4444"),
	db.PriorityHigh:   lipgloss.Color("#F59E0B"),
	db.PriorityMedium: lipgloss.Color("#3B82F6"),
	db.PriorityLow:    lipgloss.Color("#6B7280"),
}

// formatTaskLine renders one task for "task list".
func formatTaskLine(t *db.Task, propertyName string, now time.Time) string {
	color, ok := priorityColors[t.Priority]
	if !ok {
		color = priorityColors[db.PriorityMedium]
	}
	badge := lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%-6s", t.Priority))

	line := fmt.Sprintf("%s %s", badge, t.Title)
	if propertyName != "" {
		line += " " + dimStyle.Render("@ "+propertyName)
	}
	if t.DueDate != nil && t.Status != db.StatusDone && t.Status != db.StatusArchived {
		info := sections.BuildDueInfo(t.DueDate.Time, now)
		style := dimStyle
		switch info.Severity {
		case sections.DueSeverityOverdue:
			style = errorStyle
		case sections.DueSeveritySoon:
			style = warnStyle
		}
		line += "  " + style.Render(info.Icon+" "+info.Text)
	}
	if t.Status != db.StatusOpen {
		line += "  " + dimStyle.Render("["+t.Status+"]")
	}
	return line
}

func newListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Long: `List tasks with optional filtering.

Examples:
  task list
  task list --property 7f3c... --status in_progress
  task list --all --json`,
		Run: func(cmd *cobra.Command, args []string) {
			property, _ := cmd.Flags().GetString("property")
			status, _ := cmd.Flags().GetString("status")
			assignee, _ := cmd.Flags().GetString("assignee")
			all, _ := cmd.Flags().GetBool("all")
			limit, _ := cmd.Flags().GetInt("limit")
			outputJSON, _ := cmd.Flags().GetBool("json")

			ctx := cmd.Context()
			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				fail(err)
			}
			defer database.Close()

			org, err := a.organisation(ctx, database)
			if err != nil {
				fail(err)
			}
			tasks, err := database.ListTasks(ctx, db.ListTasksOptions{
				OrgID:          org,
				PropertyID:     property,
				Status:         status,
				AssignedUserID: assignee,
				IncludeClosed:  all,
				Limit:          limit,
			})
			if err != nil {
				fail(err)
			}

			if outputJSON {
				var output []map[string]interface{}
				for _, t := range tasks {
					item := map[string]interface{}{
						"id":         t.ID,
						"title":      t.Title,
						"status":     t.Status,
						"priority":   t.Priority,
						"property":   t.PropertyID,
						"created_at": t.CreatedAt.Time.Format(time.RFC3339),
					}
					if t.DueDate != nil {
						item["due_date"] = t.DueDate.Time.Format(time.RFC3339)
					}
					output = append(output, item)
				}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				enc.Encode(output)
				return
			}

			if len(tasks) == 0 {
				fmt.Println(dimStyle.Render("No tasks"))
				return
			}
			names := propertyNames(ctx, database, org)
			now := time.Now()
			for _, t := range tasks {
				fmt.Println(formatTaskLine(t, names[t.PropertyID], now))
				fmt.Println("       " + dimStyle.Render(t.ID))
			}
		},
	}
	cmd.Flags().String("property", "", "Filter by property id")
	cmd.Flags().String("status", "", "Filter by status")
	cmd.Flags().String("assignee", "", "Filter by assigned member id")
	cmd.Flags().BoolP("all", "a", false, "Include done and archived tasks")
	cmd.Flags().IntP("limit", "n", 50, "Maximum number of tasks")
	cmd.Flags().Bool("json", false, "Output in JSON format")
	return cmd
}

func propertyNames(ctx context.Context, database *db.DB, org string) map[string]string {
	names := make(map[string]string)
	props, err := database.ListProperties(ctx, org)
	if err != nil {
		return names
	}
	for _, p := range props {
		names[p.ID] = p.Name
	}
	return names
}

// taskDetail is everything "task show" prints.
type taskDetail struct {
	Task        *db.Task
	Names       map[string]string // entity id -> name
	Links       *db.TaskLinks
	Subtasks    []*db.Subtask
	Attachments []*db.Attachment
	Messages    []*db.Message
}

// taskMarkdown renders a task as markdown for glamour.
func taskMarkdown(d taskDetail, now time.Time) string {
	t := d.Task
	name := func(id string) string {
		if n, ok := d.Names[id]; ok {
			return n
		}
		return id
	}
	names := func(ids []string) string {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			out = append(out, name(id))
		}
		return strings.Join(out, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", t.Title)
	if t.Description != "" && t.Description != t.Title {
		fmt.Fprintf(&b, "%s\n\n", t.Description)
	}

	fmt.Fprintf(&b, "| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Status | %s |\n", t.Status)
	fmt.Fprintf(&b, "| Priority | %s |\n", t.Priority)
	if t.PropertyID != "" {
		fmt.Fprintf(&b, "| Property | %s |\n", name(t.PropertyID))
	}
	if d.Links != nil {
		if len(d.Links.SpaceIDs) > 0 {
			fmt.Fprintf(&b, "| Spaces | %s |\n", names(d.Links.SpaceIDs))
		}
		if len(d.Links.AssetIDs) > 0 {
			fmt.Fprintf(&b, "| Assets | %s |\n", names(d.Links.AssetIDs))
		}
		if len(d.Links.ThemeIDs) > 0 {
			fmt.Fprintf(&b, "| Themes | %s |\n", names(d.Links.ThemeIDs))
		}
		if len(d.Links.TeamIDs) > 0 {
			fmt.Fprintf(&b, "| Teams | %s |\n", names(d.Links.TeamIDs))
		}
	}
	if t.AssignedUserID != "" {
		fmt.Fprintf(&b, "| Assigned | %s |\n", name(t.AssignedUserID))
	}
	if t.DueDate != nil {
		due := t.DueDate.Time.Format("Mon 2 Jan 2006 15:04")
		if info := sections.BuildDueInfo(t.DueDate.Time, now); info.Text != "" && t.Status != db.StatusDone {
			due += " (" + info.Text + ")"
		}
		fmt.Fprintf(&b, "| Due | %s |\n", due)
	}
	if t.RecurrenceType != "" {
		fmt.Fprintf(&b, "| Repeats | every %d %s |\n", t.RecurrenceInterval, recurrenceUnit(t.RecurrenceType))
	}
	if t.IsCompliance {
		level := t.ComplianceLevel
		if level == "" {
			level = "yes"
		}
		fmt.Fprintf(&b, "| Compliance | %s |\n", level)
	}

	if len(d.Subtasks) > 0 {
		b.WriteString("\n## Checklist\n\n")
		for _, s := range d.Subtasks {
			mark := " "
			if s.Done {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, s.Title)
		}
	}
	if len(d.Attachments) > 0 {
		b.WriteString("\n## Images\n\n")
		for _, at := range d.Attachments {
			switch at.UploadStatus {
			case db.UploadUploaded:
				fmt.Fprintf(&b, "- [%s](%s)\n", at.FileName, at.FileURL)
			case db.UploadFailed:
				fmt.Fprintf(&b, "- %s: failed (%s)\n", at.FileName, at.ErrorMessage)
			default:
				fmt.Fprintf(&b, "- %s: %s\n", at.FileName, at.UploadStatus)
			}
		}
	}
	if len(d.Messages) > 0 {
		b.WriteString("\n## Messages\n\n")
		for _, m := range d.Messages {
			author := name(m.AuthorID)
			if author == "" {
				author = "someone"
			}
			fmt.Fprintf(&b, "**%s** %s\n\n%s\n\n", author, m.CreatedAt.Time.Format("2 Jan 15:04"), m.Body)
		}
	}
	return b.String()
}

func recurrenceUnit(t string) string {
	switch t {
	case "daily":
		return "day(s)"
	case "weekly":
		return "week(s)"
	case "monthly":
		return "month(s)"
	}
	return t
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			database, err := db.Open(a.cfg.DBPath)
			if err != nil {
				fail(err)
			}
			defer database.Close()

			task, err := database.GetTask(ctx, args[0])
			if err != nil {
				fail(err)
			}
			if task == nil {
				fail(fmt.Errorf("task %s not found", args[0]))
			}

			d := taskDetail{Task: task, Names: make(map[string]string)}
			if entities, err := database.ListEntities(ctx, task.OrgID); err == nil {
				for _, e := range entities {
					d.Names[e.ID] = e.Name
				}
			}
			if d.Links, err = database.GetTaskLinks(ctx, task.ID); err != nil {
				fail(err)
			}
			if d.Subtasks, err = database.ListSubtasks(ctx, task.ID); err != nil {
				fail(err)
			}
			if d.Attachments, err = database.ListAttachments(ctx, task.ID); err != nil {
				fail(err)
			}
			if d.Messages, err = database.ListMessages(ctx, task.ID); err != nil {
				fail(err)
			}

			md := taskMarkdown(d, time.Now())
			rendered, err := glamour.Render(md, "dark")
			if err != nil {
				fmt.Print(md)
				return
			}
			fmt.Print(rendered)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id> <status>",
		Short: "Change a task's status (open, in_progress, done, archived)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			switch args[1] {
			case db.StatusOpen, db.StatusInProgress, db.StatusDone, db.StatusArchived:
			default:
				fail(fmt.Errorf("invalid status %q", args[1]))
			}
			rt, err := a.open()
			if err != nil {
				fail(err)
			}
			defer rt.close()

			task, err := rt.db.GetTask(cmd.Context(), args[0])
			if err != nil {
				fail(err)
			}
			if task == nil {
				fail(fmt.Errorf("task %s not found", args[0]))
			}
			if err := rt.db.UpdateTaskStatus(cmd.Context(), task.ID, args[1]); err != nil {
				fail(err)
			}
			fmt.Println(successStyle.Render(fmt.Sprintf("%s is now %s", task.Title, args[1])))
		},
	}
}

func newMessageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "message <task-id> <text>",
		Short: "Post a message on a task",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			rt, err := a.open()
			if err != nil {
				fail(err)
			}
			defer rt.close()

			task, err := rt.db.GetTask(cmd.Context(), args[0])
			if err != nil {
				fail(err)
			}
			if task == nil {
				fail(fmt.Errorf("task %s not found", args[0]))
			}
			m, err := rt.db.PostMessage(cmd.Context(), task.ID, task.OrgID, a.userID, args[1])
			if err != nil {
				fail(err)
			}
			rt.events.EmitMessagePosted(task.ID, task.OrgID, m)
			fmt.Println(successStyle.Render("Posted"))
		},
	}
}
