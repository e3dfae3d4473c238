package sections

import (
	"fmt"
	"strings"
	"time"

	"github.com/RaygunnerZA/property-task-pro-sub000/internal/draft"
)

// QuickPick is a one-tap due date.
type QuickPick struct {
	Label string    `json:"label"`
	Date  time.Time `json:"date"`
}

// QuickPicks returns today, tomorrow, this week (the coming Friday) and next
// week (the next Monday).
func QuickPicks(now time.Time) []QuickPick {
	today := draft.StartOfDay(now)
	thisWeek := today
	if today.Weekday() != time.Friday {
		thisWeek = draft.NextWeekday(today, time.Friday)
	}
	return []QuickPick{
		{Label: "Today", Date: today},
		{Label: "Tomorrow", Date: today.AddDate(0, 0, 1)},
		{Label: "This week", Date: thisWeek},
		{Label: "Next week", Date: draft.NextWeekday(today, time.Monday)},
	}
}

// ParseDueInput parses an explicit date (YYYY-MM-DD) and optional time
// (HH:MM) into a SetDueDate action. An empty date clears the due date.
func ParseDueInput(date, clock string) (draft.SetDueDate, error) {
	date = strings.TrimSpace(date)
	clock = strings.TrimSpace(clock)
	if date == "" {
		return draft.SetDueDate{}, nil
	}
	d, ok := draft.ParseDateValue(date)
	if !ok {
		return draft.SetDueDate{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD", date)
	}
	if clock != "" {
		t, err := time.Parse("15:04", clock)
		if err != nil {
			return draft.SetDueDate{}, fmt.Errorf("invalid time %q, use HH:MM", clock)
		}
		clock = t.Format("15:04")
	}
	return draft.SetDueDate{Date: &d, Time: clock}, nil
}

// DueAt combines a draft's due date and time of day. Without a time the task
// is due at the end of the day.
func DueAt(s draft.State) *time.Time {
	if s.DueDate == nil {
		return nil
	}
	d := draft.StartOfDay(*s.DueDate)
	if t, err := time.Parse("15:04", s.DueTime); err == nil {
		d = d.Add(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute)
	} else {
		d = d.Add(23*time.Hour + 59*time.Minute)
	}
	return &d
}

// ValidateRecurrence builds a SetRecurrence action. An empty type clears it.
func ValidateRecurrence(recurrenceType string, interval int) (draft.SetRecurrence, error) {
	recurrenceType = strings.ToLower(strings.TrimSpace(recurrenceType))
	if recurrenceType == "" {
		return draft.SetRecurrence{}, nil
	}
	r := draft.Recurrence{Type: recurrenceType, Interval: interval}
	if err := r.Validate(); err != nil {
		return draft.SetRecurrence{}, err
	}
	return draft.SetRecurrence{Recurrence: &r}, nil
}

// DueSeverity represents the urgency of an upcoming or missed deadline.
type DueSeverity int

const (
	// DueSeverityNone indicates no due date.
	DueSeverityNone DueSeverity = iota
	// DueSeverityUpcoming indicates a due date more than a day away.
	DueSeverityUpcoming
	// DueSeveritySoon indicates a due date within the next 24 hours.
	DueSeveritySoon
	// DueSeverityOverdue indicates the due date has already passed.
	DueSeverityOverdue
)

// DueInfo describes how to render a due date indicator.
type DueInfo struct {
	Text     string      `json:"text,omitempty"`
	Icon     string      `json:"icon,omitempty"`
	Severity DueSeverity `json:"severity"`
}

// BuildDueInfo returns display metadata for a due date relative to now.
func BuildDueInfo(due time.Time, now time.Time) DueInfo {
	if due.IsZero() {
		return DueInfo{}
	}

	diff := due.Sub(now)
	info := DueInfo{}

	if diff <= 0 {
		info.Icon = "⚠"
		info.Severity = DueSeverityOverdue
		info.Text = fmt.Sprintf("%s late", formatDurationShort(-diff))
		return info
	}

	info.Text = fmt.Sprintf("due %s", FormatRelativeTime(due, now))

	if diff <= 24*time.Hour {
		info.Icon = "⌛"
		info.Severity = DueSeveritySoon
	} else {
		info.Icon = "📅"
		info.Severity = DueSeverityUpcoming
	}

	return info
}

// formatDurationShort renders a compact duration string (e.g. 2d, 4h, 15m).
func formatDurationShort(d time.Duration) string {
	if d < 0 {
		d = -d
	}

	if d >= 48*time.Hour {
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
	if d >= time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	mins := int(d.Minutes())
	if mins < 1 {
		mins = 1
	}
	return fmt.Sprintf("%dm", mins)
}

// FormatRelativeTime formats a future time relative to now.
func FormatRelativeTime(t, now time.Time) string {
	diff := t.Sub(now)

	if diff < 0 {
		return "overdue"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins <= 0 {
			return "now"
		}
		return fmt.Sprintf("%dm", mins)
	}
	if diff < 24*time.Hour {
		return fmt.Sprintf("%dh", int(diff.Hours()))
	}

	tomorrow := now.AddDate(0, 0, 1)
	if t.Day() == tomorrow.Day() && t.Month() == tomorrow.Month() && t.Year() == tomorrow.Year() {
		return "tmrw " + t.Format("3pm")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 2")
	}
	return t.Format("Jan 2 '06")
}

// WhenView is the scheduling section.
type WhenView struct {
	DueDate    *time.Time        `json:"due_date,omitempty"`
	DueTime    string            `json:"due_time,omitempty"`
	Due        DueInfo           `json:"due"`
	Recurrence *draft.Recurrence `json:"recurrence,omitempty"`
	QuickPicks []QuickPick       `json:"quick_picks"`
	Chips
}

// When builds the scheduling view.
func When(s draft.State, now time.Time) WhenView {
	v := WhenView{
		DueDate:    s.DueDate,
		DueTime:    s.DueTime,
		Recurrence: s.Recurrence,
		QuickPicks: QuickPicks(now),
		Chips:      chipsFor(s, draft.SectionWhen),
	}
	if due := DueAt(s); due != nil {
		v.Due = BuildDueInfo(*due, now)
	}
	return v
}
