// Package kvstore provides the persisted key-value store used for small client-side
// values such as the last-known identity snapshot.
//
// Every backend offers independently atomic per-key Get and Set. There are no
// cross-key transactions: when writes to different keys interleave, each key simply
// keeps its last completed write.
//
// Backends:
//
//   - [Memory]: process-local map, for tests and ephemeral runs.
//   - [Redis]: go-redis client with a key prefix.
//   - [SQLite]: a single-file device-local database (modernc.org/sqlite, no cgo).
package kvstore

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrUnavailable is returned when the backing store cannot serve a request.
	ErrUnavailable = errors.New("kvstore unavailable")
	// ErrEmptyKey is returned for blank keys.
	ErrEmptyKey = errors.New("kvstore: empty key")
)

// Store is an asynchronous-safe string store. Get reports ok=false for absent keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Memory is an in-process Store.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set implements Store.
func (m *Memory) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	m.values[key] = value
	m.mu.Unlock()
	return nil
}

// Len reports how many keys are stored.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
