package session

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process session store used in tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	payload string
	expires time.Time
}

// NewMemory returns an empty in-memory session store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expires) {
		return "", ErrNoSession
	}
	return e.payload, nil
}

func (m *Memory) Set(_ context.Context, key, payload string, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = memoryEntry{payload: payload, expires: time.Now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}
