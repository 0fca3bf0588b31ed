// Package store is the client-local key/value capability the cart controller
// keeps its cart identifier in.
package store

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var ErrEmptyKey = errors.New("store: empty key")

// KV is the narrow storage capability handed to controllers.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Memory is a process-local KV.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type scoped struct {
	prefix string
	kv     KV
}

// Scoped prefixes every key with prefix + "/", giving one session its own key space.
func Scoped(kv KV, prefix string) KV {
	return scoped{prefix: strings.TrimSuffix(strings.TrimSpace(prefix), "/") + "/", kv: kv}
}

func (s scoped) Get(key string) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, ErrEmptyKey
	}
	return s.kv.Get(s.prefix + key)
}

func (s scoped) Set(key, value string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return s.kv.Set(s.prefix+key, value)
}
