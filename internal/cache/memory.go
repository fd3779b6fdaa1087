package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps summaries in process memory. Records never expire.
// Intended for development and tests; state is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Record
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Record),
		now:   time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, key SummaryKey) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, unavailable("memory get", key, err)
	}

	s.mu.RLock()
	rec, ok := s.items[key.String()]
	s.mu.RUnlock()

	return rec, ok, nil
}

func (s *MemoryStore) Put(ctx context.Context, key SummaryKey, summary string) error {
	if err := ctx.Err(); err != nil {
		return unavailable("memory put", key, err)
	}

	rec := Record{Key: key, Summary: summary, UpdatedAt: s.now().UTC()}

	s.mu.Lock()
	s.items[key.String()] = rec
	s.mu.Unlock()

	return nil
}

// Len returns the number of stored summaries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear removes all summaries. Useful for tests or manual resets.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.items = make(map[string]Record)
	s.mu.Unlock()
}
