package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ExtremaSentinel/internal/logger"
	"ExtremaSentinel/internal/model"
)

const (
	lockRetry = 20 * time.Millisecond
	// lockStale is the age after which a lock file is assumed to belong to a
	// process that died holding it.
	lockStale = 30 * time.Second
)

// FileStore keeps one indented JSON document per key under Dir. Writes take
// a <key>.state.json.lock file, so separate processes sharing Dir do not
// lose each other's updates.
type FileStore struct {
	mu  sync.Mutex
	Dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.Dir, sanitizeKey(key)+".state.json")
}

func (s *FileStore) Get(_ context.Context, key string) (*model.ExtremumState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(key)
}

func (s *FileStore) Put(ctx context.Context, key string, state *model.ExtremumState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return s.save(key, state)
}

func (s *FileStore) CompareAndSwap(ctx context.Context, key string, old, next *model.ExtremumState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return false, err
	}
	defer unlock()
	current, err := s.load(key)
	if err != nil {
		return false, err
	}
	if !current.Equal(old) {
		return false, nil
	}
	return true, s.save(key, next)
}

func (s *FileStore) Close() error { return nil }

// lock creates the key's lock file exclusively, waiting while another
// process holds it.
func (s *FileStore) lock(ctx context.Context, key string) (func(), error) {
	path := s.path(key) + ".lock"
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock state: %w", err)
		}
		if fi, err := os.Stat(path); err == nil && time.Since(fi.ModTime()) > lockStale {
			logger.GetLogger().WithComponent("store").WithField("lock", path).Warn("removing stale state lock")
			os.Remove(path)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock state %q: %w", key, ctx.Err())
		case <-time.After(lockRetry):
		}
	}
}

// load returns (nil, nil) if the file does not exist.
func (s *FileStore) load(key string) (*model.ExtremumState, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var state model.ExtremumState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path(key), err)
	}
	return &state, nil
}

// save writes through a temp file and rename so readers never see a torn
// document.
func (s *FileStore) save(key string, state *model.ExtremumState) error {
	if state == nil {
		return fmt.Errorf("save state %q: nil state", key)
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Dir, sanitizeKey(key)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("replace state: %w", err)
	}
	logger.GetLogger().WithComponent("store").WithFields(logger.Fields{
		"key":     key,
		"session": state.SessionDate,
	}).Debug("state saved")
	return nil
}
