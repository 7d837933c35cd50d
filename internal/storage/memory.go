package storage

import (
	"context"
	"sync"

	"smsrelay/internal/relay"
)

type memoryStore struct {
	mu  sync.Mutex
	doc []relay.HistoryEntry
}

func NewMemory() relay.Store { return &memoryStore{} }

func (m *memoryStore) Load(ctx context.Context) ([]relay.HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]relay.HistoryEntry(nil), m.doc...), nil
}

func (m *memoryStore) Save(ctx context.Context, entries []relay.HistoryEntry) error {
	m.mu.Lock()
	m.doc = append([]relay.HistoryEntry(nil), entries...)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.doc = nil
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Close() error { return nil }
