package store

import (
	"errors"
	"sync"
)

// ErrSaveDisabled is returned by a Memory repository told to fail saves.
var ErrSaveDisabled = errors.New("saves disabled")

// Memory is a map-backed repository for tests and ephemeral runs.
type Memory struct {
	mu        sync.Mutex
	data      map[string][]byte
	failSaves bool
	saves     int
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Load returns a copy of the document stored under key.
func (m *Memory) Load(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Save stores a copy of data under key.
func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return ErrSaveDisabled
	}
	m.data[key] = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// FailSaves makes every subsequent Save fail (or succeed again).
func (m *Memory) FailSaves(fail bool) {
	m.mu.Lock()
	m.failSaves = fail
	m.mu.Unlock()
}

// Saves returns the number of successful saves.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
