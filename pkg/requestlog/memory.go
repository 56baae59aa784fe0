package requestlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries is the MemoryStore capacity used when none is given.
const DefaultMaxEntries = 1000

// MemoryStore implements Store with a fixed-capacity ring buffer.
// When full, the oldest record is evicted.
type MemoryStore struct {
	mu      sync.RWMutex
	buf     []Record
	start   int // index of the oldest record
	size    int
	maxSize int

	subMu       sync.RWMutex
	subscribers map[Subscriber]struct{}
}

// NewMemoryStore creates a MemoryStore holding at most maxEntries records.
func NewMemoryStore(maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &MemoryStore{
		buf:         make([]Record, maxEntries),
		maxSize:     maxEntries,
		subscribers: make(map[Subscriber]struct{}),
	}
}

// Add records rec, assigning an ID and timestamp when missing.
func (s *MemoryStore) Add(rec Record) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.TimestampMs == 0 {
		rec.TimestampMs = time.Now().UnixMilli()
	}

	s.mu.Lock()
	if s.size < s.maxSize {
		s.buf[(s.start+s.size)%s.maxSize] = rec
		s.size++
	} else {
		// FIFO eviction: overwrite the oldest
		s.buf[s.start] = rec
		s.start = (s.start + 1) % s.maxSize
	}
	s.mu.Unlock()

	// Notify subscribers (non-blocking)
	s.subMu.RLock()
	for sub := range s.subscribers {
		select {
		case sub <- rec:
		default:
			// Drop if subscriber is slow
		}
	}
	s.subMu.RUnlock()
}

// at returns the i-th oldest record. Caller holds mu.
func (s *MemoryStore) at(i int) Record {
	return s.buf[(s.start+i)%s.maxSize]
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < s.size; i++ {
		if rec := s.at(i); rec.ID == id {
			return rec, true
		}
	}
	return Record{}, false
}

// List returns records newest first, optionally filtered.
func (s *MemoryStore) List(filter *Filter) []Record {
	s.mu.RLock()
	result := make([]Record, 0, s.size)
	for i := s.size - 1; i >= 0; i-- {
		rec := s.at(i)
		if filter.Matches(rec) {
			result = append(result, rec)
		}
	}
	s.mu.RUnlock()
	return filter.page(result)
}

// Clear removes all records.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buf)
	s.start, s.size = 0, 0
}

// Count returns the number of records.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Subscribe registers a subscriber that receives every new record.
// Records are dropped for a subscriber whose buffer is full.
// Call the returned func to unsubscribe; it closes the channel.
func (s *MemoryStore) Subscribe(buffer int) (Subscriber, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := make(Subscriber, buffer)
	s.subMu.Lock()
	s.subscribers[sub] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return sub, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, sub)
			s.subMu.Unlock()
			close(sub)
		})
	}
}

var _ Store = (*MemoryStore)(nil)
