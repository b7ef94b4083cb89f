// Package history keeps the most recent interactions of a session.
package history

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of interactions retained.
const DefaultCapacity = 10

// Entry is one completed interaction. Entries are values and never change
// after Record.
type Entry struct {
	Transcript string    `json:"transcript"`
	Intent     string    `json:"intent"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	Fallback   bool      `json:"fallback"`
}

// Store is a fixed-capacity ring: recording past capacity evicts the oldest.
type Store struct {
	mu    sync.Mutex
	buf   []Entry
	start int // index of the oldest entry
	size  int
}

// NewStore returns a store holding at most capacity entries. Capacity is
// clamped to (0, DefaultCapacity].
func NewStore(capacity int) *Store {
	if capacity <= 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &Store{buf: make([]Entry, capacity)}
}

// Capacity returns the maximum number of entries.
func (s *Store) Capacity() int { return len(s.buf) }

// Record inserts e as the newest entry.
func (s *Store) Record(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size < len(s.buf) {
		s.buf[(s.start+s.size)%len(s.buf)] = e
		s.size++
		return
	}
	s.buf[s.start] = e
	s.start = (s.start + 1) % len(s.buf)
}

// All returns a copy of the entries, newest first.
func (s *Store) All() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.buf[(s.start+s.size-1-i)%len(s.buf)]
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Clear empties the store.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.buf)
	s.start, s.size = 0, 0
}
