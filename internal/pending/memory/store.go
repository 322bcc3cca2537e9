package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/fatflowers/paycoord/internal/pending"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*pending.Record
}

func NewInMemory() pending.Store {
	return &InMemoryStore{
		records: map[string]*pending.Record{},
	}
}

func (s *InMemoryStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*pending.Record)
}

func (s *InMemoryStore) Get(_ context.Context, key string) (*pending.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return nil, pending.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, record *pending.Record) error {
	if key == "" {
		return errors.New("key is required")
	}
	if record == nil {
		return errors.New("record is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[key] = record.Clone()
	return nil
}

func (s *InMemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	return nil
}
