package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps events in process memory. Suitable for tests and
// single-node tools; events are lost on restart.
type MemoryStorage struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) Store(ctx context.Context, event Event) error {
	return s.StoreBatch(ctx, []Event{event})
}

func (s *MemoryStorage) StoreBatch(ctx context.Context, events []Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.events = append(s.events, events...)
	s.mu.Unlock()
	return nil
}

// Query returns matching events in insertion order.
func (s *MemoryStorage) Query(ctx context.Context, c Criteria) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Event, 0)
	skipped := 0
	for _, e := range s.events {
		if !c.match(e) {
			continue
		}
		if skipped < c.Offset {
			skipped++
			continue
		}
		out = append(out, e)
		if c.Limit > 0 && len(out) == c.Limit {
			break
		}
	}
	return out, nil
}

// Events returns a copy of everything stored so far.
func (s *MemoryStorage) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.events)
}
