package kvmirror

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory implements Driver with thread-safe in-memory storage.
// It is the default backing store and the usual choice in tests.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an in-memory Driver instance.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// NewMemoryFrom creates an in-memory Driver seeded with raw entries.
func NewMemoryFrom(seed map[string][]byte) *Memory {
	m := NewMemory()
	for k, v := range seed {
		m.data[k] = clone(v)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(v), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = clone(value)
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// MGet retrieves multiple keys. Missing keys are omitted from the result.
func (m *Memory) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if v, ok := m.data[key]; ok {
			result[key] = clone(v)
		}
	}
	return result, nil
}

// MSet sets multiple key-value pairs.
func (m *Memory) MSet(ctx context.Context, pairs map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, value := range pairs {
		m.data[key] = clone(value)
	}
	return nil
}

// MDel deletes multiple keys.
func (m *Memory) MDel(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

// Keys returns all keys starting with prefix, sorted.
func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, 0, len(m.data))
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			result = append(result, key)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Clear removes all keys starting with prefix.
func (m *Memory) Clear(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prefix == "" {
		m.data = make(map[string][]byte)
		return nil
	}
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func clone(src []byte) []byte {
	if src == nil {
		return nil
	}
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}
