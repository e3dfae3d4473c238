package db

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// LocalTime is a time.Time that scans from SQLite DATETIME columns, which
// may come back as time.Time or as text depending on how they were written.
type LocalTime struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
	"2006-01-02",
}

// Scan implements sql.Scanner.
func (t *LocalTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.Local()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	}
	return fmt.Errorf("cannot scan %T into LocalTime", value)
}

func (t *LocalTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.Local()
			return nil
		}
	}
	return fmt.Errorf("parse time %q", s)
}

// Value implements driver.Valuer.
func (t LocalTime) Value() (driver.Value, error) {
	if t.Time.IsZero() {
		return nil, nil
	}
	return t.Time.UTC(), nil
}

// timePtr returns nil for an unset time so it is stored as NULL.
func timePtr(t *LocalTime) interface{} {
	if t == nil || t.Time.IsZero() {
		return nil
	}
	return t.Time.UTC()
}
