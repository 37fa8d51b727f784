package fingerprint

import (
	"context"
	"sync"
)

// MemoryStore keeps fingerprints in process memory. Contents are lost on
// restart.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

func (s *MemoryStore) Record(_ context.Context, fp string) (bool, error) {
	if fp == "" {
		return false, ErrEmptyFingerprint
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[fp]; ok {
		return false, nil
	}
	s.seen[fp] = struct{}{}
	return true, nil
}

func (s *MemoryStore) Forget(_ context.Context, fp string) error {
	s.mu.Lock()
	delete(s.seen, fp)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.seen = make(map[string]struct{})
	s.mu.Unlock()
	return nil
}
