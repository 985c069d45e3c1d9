// Package cache persists resolved fact values between runs, keyed by fact
// key and invalidated by source fingerprint.
package cache

import (
	"sync"
	"time"
)

// Entry is one cached fact value.
type Entry struct {
	ComputedAt  time.Time
	Key         string
	Fingerprint string
	Value       string
}

// Store is the persistence interface consumed by the fact resolver.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the cached value for key if its fingerprint still matches.
	Get(key, fingerprint string) (string, bool)
	// Put records a value, superseding any previous entry for key.
	Put(key, fingerprint, value string) error
	// Clear removes every entry.
	Clear() error
	// Close releases resources, flushing pending state.
	Close() error
}

// Memory is an in-process [Store]. It backs tests and degraded mode when the
// persistent store can't be opened.
type Memory struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

// NewMemory creates an empty in-memory [Store].
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]Entry)}
}

func (m *Memory) Get(key, fingerprint string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok || e.Fingerprint != fingerprint {
		return "", false
	}

	return e.Value, true
}

func (m *Memory) Put(key, fingerprint, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = Entry{
		Key:         key,
		Fingerprint: fingerprint,
		Value:       value,
		ComputedAt:  time.Now(),
	}

	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]Entry)

	return nil
}

func (m *Memory) Close() error {
	return nil
}
