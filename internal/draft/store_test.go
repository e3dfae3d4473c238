package draft

import (
	"sync"
	"testing"
	"time"
)

func TestStoreNotifiesOnlyOnChange(t *testing.T) {
	store := NewStore(New())

	var calls int
	unsubscribe := store.Subscribe(func(State) { calls++ })

	if _, changed := store.Dispatch(SetTitle{Title: "Fix gate"}); !changed {
		t.Fatal("expected change")
	}
	if _, changed := store.Dispatch(SetTitle{Title: "Fix gate"}); changed {
		t.Error("same title should not report a change")
	}
	if _, changed := store.Dispatch(ToggleAsset{}); changed {
		t.Error("asset toggle without property should be a no-op")
	}
	if calls != 1 {
		t.Errorf("subscriber called %d times, want 1", calls)
	}

	unsubscribe()
	store.Dispatch(SetTitle{Title: "Other"})
	if calls != 1 {
		t.Errorf("unsubscribed callback still called")
	}
}

func TestStoreStateIsACopy(t *testing.T) {
	store := NewStore(New())
	store.Dispatch(ToggleTeam{TeamID: "t1"})

	s := store.State()
	s.TeamIDs[0] = "changed"
	if store.State().TeamIDs[0] != "t1" {
		t.Error("mutating a returned state leaked into the store")
	}
}

func TestStoreConcurrentDispatch(t *testing.T) {
	store := NewStore(New())
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			store.Dispatch(AddSubtask{ID: string(rune('a' + i)), Title: "step"})
		}(i)
	}
	wg.Wait()
	if got := len(store.State().Subtasks); got != 20 {
		t.Errorf("Subtasks = %d, want 20", got)
	}
}

func TestResolveDateLiteral(t *testing.T) {
	// testNow is a Sunday
	tests := []struct {
		literal string
		want    time.Time
		ok      bool
	}{
		{"today", time.Date(2026, 10, 18, 0, 0, 0, 0, time.Local), true},
		{"tomorrow", time.Date(2026, 10, 19, 0, 0, 0, 0, time.Local), true},
		{"next_week", time.Date(2026, 10, 19, 0, 0, 0, 0, time.Local), true},
		{"friday", time.Date(2026, 10, 23, 0, 0, 0, 0, time.Local), true},
		{"Sunday", time.Date(2026, 10, 25, 0, 0, 0, 0, time.Local), true},
		{"someday", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := ResolveDateLiteral(tt.literal, testNow)
		if ok != tt.ok || !got.Equal(tt.want) {
			t.Errorf("ResolveDateLiteral(%q) = %v, %v; want %v, %v", tt.literal, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseRecurrenceValue(t *testing.T) {
	if r, ok := ParseRecurrenceValue("daily"); !ok || r.Interval != 1 {
		t.Errorf("daily = %+v, %v", r, ok)
	}
	if r, ok := ParseRecurrenceValue("monthly:3"); !ok || r.Interval != 3 {
		t.Errorf("monthly:3 = %+v, %v", r, ok)
	}
	for _, bad := range []string{"yearly", "weekly:0", "weekly:x"} {
		if _, ok := ParseRecurrenceValue(bad); ok {
			t.Errorf("%q should not parse", bad)
		}
	}
}
