package draft

import (
	"reflect"
	"sync"
)

// Store holds one draft and serialises the actions applied to it.
type Store struct {
	mu      sync.Mutex
	state   State
	subs    map[int]func(State)
	nextSub int
}

// NewStore creates a store holding initial.
func NewStore(initial State) *Store {
	initial.Clarity = computeClarity(initial)
	return &Store{state: initial, subs: make(map[int]func(State))}
}

// State returns a copy of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Dispatch applies an action. It reports whether the state changed;
// subscribers are only notified when it did.
func (s *Store) Dispatch(a Action) (State, bool) {
	s.mu.Lock()
	next := Reduce(s.state, a)
	if reflect.DeepEqual(next, s.state) {
		current := s.state.clone()
		s.mu.Unlock()
		return current, false
	}
	s.state = next
	subs := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.clone())
	}
	return next.clone(), true
}

// Subscribe registers fn to be called with every new state. The returned
// function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}
