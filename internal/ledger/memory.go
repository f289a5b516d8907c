package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Appends hold the write lock for
// the whole batch so readers never observe a partial sale.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	ids     map[string]struct{}
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: map[string]struct{}{}}
}

// Append implements Repository.
func (s *MemoryStore) Append(ctx context.Context, entries []Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	if err := ValidateBatch(entries); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	for _, e := range entries {
		if _, ok := s.ids[e.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateEntry, e.ID)
		}
	}
	for _, e := range entries {
		s.ids[e.ID] = struct{}{}
		s.entries = append(s.entries, e)
	}
	return nil
}

// Query implements Repository.
func (s *MemoryStore) Query(ctx context.Context, start, end time.Time) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0)
	for _, e := range s.entries {
		if InRange(e.Timestamp, start, end) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) load(entries []Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	for _, e := range entries {
		s.ids[e.ID] = struct{}{}
		s.entries = append(s.entries, e)
	}
}
