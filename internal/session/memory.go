package session

import (
	"context"
	"sync"
	"time"
)

type MemoryStore[T any] struct {
	mu  sync.RWMutex
	m   map[string]memEntry[T]
	ttl time.Duration
	now func() time.Time
}

type memEntry[T any] struct {
	v       T
	expires time.Time
}

// NewMemoryStore returns a store whose entries expire after ttl; 0 keeps
// them forever.
func NewMemoryStore[T any](ttl time.Duration) *MemoryStore[T] {
	return &MemoryStore[T]{m: map[string]memEntry[T]{}, ttl: ttl, now: time.Now}
}

func (s *MemoryStore[T]) Get(_ context.Context, id string) (T, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.m[id]
	if !ok || (!e.expires.IsZero() && !s.now().Before(e.expires)) {
		var zero T
		return zero, false, nil
	}
	return e.v, true, nil
}

func (s *MemoryStore[T]) Put(_ context.Context, id string, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry[T]{v: v}
	if s.ttl > 0 {
		e.expires = s.now().Add(s.ttl)
	}
	s.m[id] = e
	s.sweepLocked()
	return nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

// sweepLocked drops expired entries; callers hold mu.
func (s *MemoryStore[T]) sweepLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.now()
	for k, e := range s.m {
		if !now.Before(e.expires) {
			delete(s.m, k)
		}
	}
}
