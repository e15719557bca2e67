package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory DurableStore used in tests and local
// development. FailReads/FailWrites simulate durable-tier outages.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry

	FailReads  error
	FailWrites error

	// Delay is applied before every operation to widen race windows in
	// concurrency tests.
	Delay time.Duration
}

type memoryEntry struct {
	value     []byte
	updatedAt time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Read(ctx context.Context, key string) ([]byte, error) {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailReads != nil {
		return nil, s.FailReads
	}
	entry, ok := s.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

func (s *MemoryStore) Write(ctx context.Context, key string, value []byte, updatedAt time.Time) error {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	if existing, ok := s.entries[key]; ok && existing.updatedAt.After(updatedAt) {
		return nil
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	s.entries[key] = memoryEntry{value: stored, updatedAt: updatedAt}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.sleep()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWrites != nil {
		return s.FailWrites
	}
	delete(s.entries, key)
	return nil
}

// Len reports how many keys are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) sleep() {
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}
}
