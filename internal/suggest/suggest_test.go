package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sony/gobreaker"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		input     string
		date      string
		priority  string
		people    []string
		spaces    []string
		signature bool
	}{
		{"fix the boiler with john tomorrow", DateTomorrow, "", []string{"john"}, nil, false},
		{"Urgent: leak in the garage", "", "urgent", nil, []string{"garage"}, false},
		{"paint the hallway next week, low priority", DateNextWeek, "low", nil, nil, false},
		{"inspect gutters on friday and ask Priya", "friday", "", []string{"priya"}, nil, false},
		{"gas safety check, tenant must sign", "", "", nil, nil, true},
		{"clean up in the kitchen today", DateToday, "", nil, []string{"kitchen"}, false},
		{"", "", "", nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			s, err := Heuristic{}.Suggest(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Suggest error: %v", err)
			}
			if s.Date != tt.date {
				t.Errorf("Date = %q, want %q", s.Date, tt.date)
			}
			if s.Priority != tt.priority {
				t.Errorf("Priority = %q, want %q", s.Priority, tt.priority)
			}
			if s.Signature != tt.signature {
				t.Errorf("Signature = %v, want %v", s.Signature, tt.signature)
			}
			assertNames(t, "People", s.People, tt.people)
			assertNames(t, "Spaces", s.Spaces, tt.spaces)
		})
	}
}

func assertNames(t *testing.T, field string, got []Named, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("%s = %v, want %v", field, got, want)
		return
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("%s[%d] = %q, want %q", field, i, got[i].Name, want[i])
		}
	}
}

func TestParseResponse(t *testing.T) {
	response := "Here you go:\n```json\n" +
		`{"title":" Fix the boiler ","priority":"ASAP","date":"Next Week","people":[{"name":"john"},{"name":" "},{"name":"John"}],"themes":[{"name":"Heating","type":"category"},{"name":""}]}` +
		"\n```"
	s, err := parseResponse(response)
	if err != nil {
		t.Fatalf("parseResponse error: %v", err)
	}
	if s.Title != "Fix the boiler" {
		t.Errorf("Title = %q", s.Title)
	}
	if s.Priority != "urgent" {
		t.Errorf("Priority = %q, want urgent", s.Priority)
	}
	if s.Date != DateNextWeek {
		t.Errorf("Date = %q, want next_week", s.Date)
	}
	if len(s.People) != 1 {
		t.Errorf("People = %v, want one deduplicated entry", s.People)
	}
	if len(s.Themes) != 1 || s.Themes[0].Type != "category" {
		t.Errorf("Themes = %v", s.Themes)
	}
}

func TestParseResponseInvalid(t *testing.T) {
	if _, err := parseResponse("I could not understand that."); err == nil {
		t.Error("expected error without JSON")
	}
	if _, err := parseResponse("{not json}"); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestNormalizePriority(t *testing.T) {
	tests := map[string]string{
		"High":     "high",
		"critical": "urgent",
		" normal ": "medium",
		"low":      "low",
		"sometime": "",
	}
	for in, want := range tests {
		if got := NormalizePriority(in); got != want {
			t.Errorf("NormalizePriority(%q) = %q, want %q", in, got, want)
		}
	}
}

func anthropicServer(t *testing.T, status int, text string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if status != http.StatusOK {
			http.Error(w, "overloaded", status)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": text}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientSuggest(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, http.StatusOK, `{"title":"Fix the boiler","date":"tomorrow","people":[{"name":"john"}]}`, &calls)

	c := NewClient(ClientOptions{APIKey: "test-key", BaseURL: srv.URL})
	s, err := c.Suggest(context.Background(), "fix the boiler with john tomorrow")
	if err != nil {
		t.Fatalf("Suggest error: %v", err)
	}
	if s.Title != "Fix the boiler" || s.Date != DateTomorrow || len(s.People) != 1 {
		t.Errorf("unexpected suggestion %+v", s)
	}
}

func TestClientBreakerOpensAfterFailures(t *testing.T) {
	var calls int32
	srv := anthropicServer(t, http.StatusServiceUnavailable, "", &calls)

	c := NewClient(ClientOptions{APIKey: "test-key", BaseURL: srv.URL})
	for i := 0; i < 3; i++ {
		if _, err := c.Suggest(context.Background(), "anything"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	_, err := c.Suggest(context.Background(), "anything")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestClientWithoutKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	c := NewClient(ClientOptions{})
	if c.IsAvailable() {
		t.Fatal("client without key should be unavailable")
	}
	if _, err := c.Suggest(context.Background(), "x"); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

type stubSource struct {
	s   *Suggestion
	err error
}

func (s stubSource) Suggest(ctx context.Context, description string) (*Suggestion, error) {
	return s.s, s.err
}

func TestFallback(t *testing.T) {
	primary := stubSource{err: errors.New("down")}
	f := &Fallback{Primary: primary, Secondary: Heuristic{}}
	s, err := f.Suggest(context.Background(), "call john tomorrow")
	if err != nil {
		t.Fatalf("Suggest error: %v", err)
	}
	if s.Date != DateTomorrow {
		t.Errorf("expected heuristic result, got %+v", s)
	}

	f = &Fallback{Primary: stubSource{s: &Suggestion{Title: "From model"}}, Secondary: Heuristic{}}
	s, _ = f.Suggest(context.Background(), "x")
	if s.Title != "From model" {
		t.Errorf("expected primary result, got %+v", s)
	}

	t.Setenv("ANTHROPIC_API_KEY", "")
	f = &Fallback{Primary: NewClient(ClientOptions{}), Secondary: stubSource{s: &Suggestion{Title: "fallback"}}}
	s, _ = f.Suggest(context.Background(), "x")
	if s.Title != "fallback" {
		t.Errorf("unavailable primary should be skipped, got %+v", s)
	}
}

func TestSuggestionIsEmpty(t *testing.T) {
	var nilSuggestion *Suggestion
	if !nilSuggestion.IsEmpty() || !(&Suggestion{}).IsEmpty() {
		t.Error("expected empty suggestions")
	}
	if (&Suggestion{Signature: true}).IsEmpty() {
		t.Error("signature alone is not empty")
	}
}
