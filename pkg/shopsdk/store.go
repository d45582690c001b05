package shopsdk

import (
	"context"
	"sync"
)

// TokenStore persists the TokenState of a single shop. Save replaces the
// record as a whole; a store never exposes a partially written record.
type TokenStore interface {
	// Load returns the stored record, or ErrStateNotFound when there is none.
	Load(ctx context.Context) (TokenState, error)

	// Save durably replaces the stored record.
	Save(ctx context.Context, state TokenState) error
}

// MemoryStore is a TokenStore that keeps the record in memory.
type MemoryStore struct {
	mu    sync.Mutex
	state TokenState
	ok    bool
	saves int
}

// NewMemoryStore returns a MemoryStore, optionally seeded with a record.
func NewMemoryStore(seed ...TokenState) *MemoryStore {
	s := &MemoryStore{}
	if len(seed) > 0 {
		s.state, s.ok = seed[0], true
	}
	return s
}

func (s *MemoryStore) Load(_ context.Context) (TokenState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ok {
		return TokenState{}, ErrStateNotFound
	}
	return s.state, nil
}

func (s *MemoryStore) Save(_ context.Context, state TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state, s.ok = state, true
	s.saves++
	return nil
}

// Saves reports how many times Save has been called.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
