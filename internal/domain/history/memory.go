package history

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryStore struct {
	mutex sync.RWMutex
	order []string
	items map[string]Record
	limit int
	ttl   time.Duration
}

// NewMemory builds a bounded in-memory store.
func NewMemory(cfg Config) Store {
	return &memoryStore{
		items: make(map[string]Record),
		limit: cfg.limit(),
		ttl:   cfg.TTL,
	}
}

func (s *memoryStore) expired(rec Record, now time.Time) bool {
	return s.ttl > 0 && now.After(rec.CreatedAt.Add(s.ttl))
}

func (s *memoryStore) Save(_ context.Context, rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id required")
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.items[rec.ID]; ok {
		s.removeLocked(rec.ID)
	}
	s.items[rec.ID] = rec
	s.order = append([]string{rec.ID}, s.order...)

	for len(s.order) > s.limit {
		oldest := s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]
		delete(s.items, oldest)
	}
	return nil
}

func (s *memoryStore) removeLocked(id string) {
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *memoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mutex.RLock()
	rec, ok := s.items[id]
	s.mutex.RUnlock()
	if !ok || s.expired(rec, time.Now()) {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *memoryStore) List(_ context.Context, limit int) ([]Record, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := time.Now()
	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		rec := s.items[id]
		if s.expired(rec, now) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	s.removeLocked(id)
	return nil
}

func (s *memoryStore) Stats(ctx context.Context) (Stats, error) {
	records, err := s.List(ctx, 0)
	if err != nil {
		return Stats{}, err
	}
	return summarize(DriverMemory, records), nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}

func summarize(driver string, records []Record) Stats {
	stats := Stats{Driver: driver, Total: int64(len(records))}
	for _, rec := range records {
		if rec.IsAIGenerated {
			stats.Synthetic++
		} else {
			stats.Authentic++
		}
	}
	return stats
}
