package bodystore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-process body store.
type Memory struct {
	mu     sync.RWMutex
	bodies map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{bodies: make(map[string][]byte)}
}

// Put stores a copy of data under key and returns key as the reference.
func (m *Memory) Put(_ context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies[key] = slices.Clone(data)
	return key, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.bodies[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return slices.Clone(data), nil
}

// Delete removes a body. Deleting a missing body is not an error.
func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.bodies, ref)
	return nil
}

// Len returns the number of stored bodies.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bodies)
}
