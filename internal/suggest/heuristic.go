package suggest

import (
	"context"
	"strings"
	"unicode"
)

// Heuristic is a keyword based Source used when no model is configured.
// It only proposes what it can read directly from the text.
type Heuristic struct{}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Words that never start a person or space mention.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "my": true, "our": true, "me": true, "us": true,
	"it": true, "them": true, "this": true, "that": true, "some": true,
	"today": true, "tomorrow": true, "next": true, "week": true,
}

var urgencyWords = map[string]string{
	"urgent":    "urgent",
	"urgently":  "urgent",
	"asap":      "urgent",
	"emergency": "urgent",
	"important": "high",
	"whenever":  "low",
}

// Suggest implements Source.
func (Heuristic) Suggest(ctx context.Context, description string) (*Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &Suggestion{}
	words := tokenize(description)

	for i, w := range words {
		switch w {
		case "today":
			s.Date = DateToday
		case "tomorrow":
			s.Date = DateTomorrow
		case "next":
			if i+1 < len(words) && words[i+1] == "week" {
				s.Date = DateNextWeek
			}
		case "with", "ask", "tell":
			if name := mention(words, i+1); name != "" {
				s.People = appendNamed(s.People, name)
			}
		case "in":
			if name := mention(words, i+1); name != "" && !isWeekday(name) {
				s.Spaces = appendNamed(s.Spaces, name)
			}
		case "sign", "signature", "signed":
			s.Signature = true
		}
		if isWeekday(w) && s.Date == "" {
			s.Date = w
		}
		if p, ok := urgencyWords[w]; ok && s.Priority == "" {
			s.Priority = p
		}
	}
	if strings.Contains(strings.ToLower(description), "high priority") {
		s.Priority = "high"
	}
	if strings.Contains(strings.ToLower(description), "low priority") {
		s.Priority = "low"
	}
	return s, nil
}

// mention returns the word at i, skipping one leading article.
func mention(words []string, i int) string {
	if i < len(words) && (words[i] == "the" || words[i] == "my" || words[i] == "our") {
		i++
	}
	if i >= len(words) || stopWords[words[i]] {
		return ""
	}
	return words[i]
}

func isWeekday(w string) bool {
	for _, d := range weekdays {
		if w == d {
			return true
		}
	}
	return false
}

func appendNamed(list []Named, name string) []Named {
	for _, n := range list {
		if strings.EqualFold(n.Name, name) {
			return list
		}
	}
	return append(list, Named{Name: name})
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
}
