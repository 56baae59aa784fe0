package store

import (
	"sync"
	"sync/atomic"

	"github.com/getmockd/pocketmock/pkg/mock"
)

// RuleStore holds the active rule list. Replace swaps the whole list in one
// atomic step, so a reader sees either the old or the new generation, never
// a mix. Snapshots must be treated as read-only.
type RuleStore struct {
	rules atomic.Pointer[[]*mock.Rule]

	subsMu sync.Mutex
	subs   map[chan struct{}]struct{}
}

// NewRuleStore creates a store seeded with a copy of rules.
func NewRuleStore(rules ...*mock.Rule) *RuleStore {
	s := &RuleStore{subs: make(map[chan struct{}]struct{})}
	s.Replace(rules)
	return s
}

// Replace publishes a copy of rules as the active list and notifies subscribers.
// Later changes to the caller's slice or rules are not observed.
func (s *RuleStore) Replace(rules []*mock.Rule) {
	next := mock.CloneAll(rules)
	for _, r := range next {
		r.Method = r.NormalizedMethod()
	}
	s.rules.Store(&next)
	s.notify()
}

// Snapshot returns the active rule list.
func (s *RuleStore) Snapshot() []*mock.Rule {
	p := s.rules.Load()
	if p == nil {
		return nil
	}
	return *p
}

// Len returns the number of active rules.
func (s *RuleStore) Len() int {
	return len(s.Snapshot())
}

// Get returns the active rule with the given id.
func (s *RuleStore) Get(id string) (*mock.Rule, error) {
	for _, r := range s.Snapshot() {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, ErrNotFound
}

// Subscribe returns a channel that receives a value after every Replace.
// Notifications coalesce: a slow reader sees at least one signal after the
// latest change. Call the returned func to unsubscribe.
func (s *RuleStore) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, ch)
			s.subsMu.Unlock()
		})
	}
}

func (s *RuleStore) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
