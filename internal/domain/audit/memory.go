package audit

import (
	"context"
	"sync"
)

// DefaultMemoryCapacity is how many records the memory store keeps
const DefaultMemoryCapacity = 10000

// MemoryStore keeps the most recent records in a ring buffer
type MemoryStore struct {
	mu    sync.RWMutex
	buf   []Record
	next  int
	count int
}

// NewMemoryStore creates a ring buffer holding up to capacity records
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{buf: make([]Record, capacity)}
}

func (s *MemoryStore) Append(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf[s.next] = rec
	s.next = (s.next + 1) % len(s.buf)
	if s.count < len(s.buf) {
		s.count++
	}
	return nil
}

func (s *MemoryStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}

	out := make([]Record, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.buf)) % len(s.buf)
		out = append(out, s.buf[idx])
	}
	return out, nil
}

// Len returns the number of stored records
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *MemoryStore) Close() error {
	return nil
}
