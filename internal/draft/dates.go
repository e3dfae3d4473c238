package draft

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout is how date chips carry their value.
const DateLayout = "2006-01-02"

// StartOfDay truncates t to local midnight.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResolveDateLiteral turns a suggested date literal into a calendar day
// relative to now. Weekday names mean the next such day after today.
func ResolveDateLiteral(literal string, now time.Time) (time.Time, bool) {
	today := StartOfDay(now)
	switch strings.ToLower(strings.TrimSpace(literal)) {
	case "today":
		return today, true
	case "tomorrow":
		return today.AddDate(0, 0, 1), true
	case "next_week", "next week":
		return NextWeekday(today, time.Monday), true
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(literal, d.String()) {
			return NextWeekday(today, d), true
		}
	}
	return time.Time{}, false
}

// NextWeekday returns the first day strictly after from that falls on wd.
func NextWeekday(from time.Time, wd time.Weekday) time.Time {
	ahead := (int(wd) - int(from.Weekday()) + 7) % 7
	if ahead == 0 {
		ahead = 7
	}
	return StartOfDay(from).AddDate(0, 0, ahead)
}

// ParseDateValue parses a date chip value in the local zone.
func ParseDateValue(v string) (time.Time, bool) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(v), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseRecurrenceValue parses a recurrence chip value such as "weekly" or
// "weekly:2".
func ParseRecurrenceValue(v string) (Recurrence, bool) {
	typ, interval := v, 1
	if i := strings.IndexByte(v, ':'); i >= 0 {
		n, err := strconv.Atoi(v[i+1:])
		if err != nil {
			return Recurrence{}, false
		}
		typ, interval = v[:i], n
	}
	r := Recurrence{Type: strings.ToLower(strings.TrimSpace(typ)), Interval: interval}
	if r.Validate() != nil {
		return Recurrence{}, false
	}
	return r, true
}
