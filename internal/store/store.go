// Package store persists the running session extrema between invocations.
package store

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"ExtremaSentinel/internal/model"
)

// Store reads and writes ExtremumState by key (the ticker symbol).
// Get returns (nil, nil) when nothing has been stored under key.
type Store interface {
	Get(ctx context.Context, key string) (*model.ExtremumState, error)
	Put(ctx context.Context, key string, state *model.ExtremumState) error
	// CompareAndSwap writes next only if the stored value still equals old
	// (nil old means "absent"). It reports whether the write happened.
	CompareAndSwap(ctx context.Context, key string, old, next *model.ExtremumState) (bool, error)
	Close() error
}

// Open returns the store for backend: "file" (path is a directory),
// "sqlite" (path is a database file) or "memory".
func Open(backend, path string) (Store, error) {
	switch backend {
	case "file", "":
		return NewFileStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	case "memory":
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown state backend %q", backend)
}

var unsafeKeyChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeKey(key string) string {
	return unsafeKeyChars.ReplaceAllString(key, "_")
}

// MemoryStore keeps state in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]*model.ExtremumState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*model.ExtremumState)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (*model.ExtremumState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key].Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, state *model.ExtremumState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state.Clone()
	return nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, key string, old, next *model.ExtremumState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.states[key].Equal(old) {
		return false, nil
	}
	m.states[key] = next.Clone()
	return true, nil
}

func (m *MemoryStore) Close() error { return nil }
