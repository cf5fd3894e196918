package history

import (
	"context"
	"sync"

	"github.com/vango-go/vai-mentor/pkg/core/transcript"
)

// MemoryStore keeps serialized transcripts in a map.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Load(_ context.Context, key string) ([]transcript.Turn, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return decodeTurns(raw)
}

func (s *MemoryStore) Save(_ context.Context, key string, turns []transcript.Turn) error {
	if err := validateKey(key); err != nil {
		return err
	}
	raw, err := encodeTurns(turns)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.data[key] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

// Has reports whether key is present.
func (s *MemoryStore) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

func (s *MemoryStore) Close() error { return nil }
