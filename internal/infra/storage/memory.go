package storage

import (
	"context"
	"strings"
	"sync"

	"github.com/bryanwahyu/trustai-client/internal/domain/webstorage"
)

// Memory is a session-scoped store. It lives as long as the process and
// optionally enforces a byte quota across all keys and values.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	size     int
	maxBytes int
}

var (
	_ webstorage.Store         = (*Memory)(nil)
	_ webstorage.PrefixRemover = (*Memory)(nil)
)

// NewMemory creates a store; maxBytes <= 0 disables the quota.
func NewMemory(maxBytes int) *Memory {
	return &Memory{data: make(map[string]string), maxBytes: maxBytes}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.size + len(key) + len(value)
	if old, ok := m.data[key]; ok {
		next -= len(key) + len(old)
	}
	if m.maxBytes > 0 && next > m.maxBytes {
		return webstorage.ErrQuotaExceeded
	}
	m.data[key] = value
	m.size = next
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

func (m *Memory) RemovePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			m.size -= len(k) + len(v)
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of keys held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
