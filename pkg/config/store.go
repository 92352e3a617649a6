package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// ErrConfigMissing is returned when the tools config file does not exist.
var ErrConfigMissing = errors.New("tools config not found")

// Store serves the tools configuration per request. The parsed document is
// cached until the file changes, detected either by a WatchConfig signal or
// a modification time mismatch.
type Store struct {
	path string

	mu      sync.RWMutex
	cached  *Config
	modTime time.Time
}

// NewStore creates a Store for the tools config at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the watched config location.
func (s *Store) Path() string {
	return s.path
}

// Current returns the configuration for the current request.
func (s *Store) Current() (*Config, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigMissing, s.path)
		}
		return nil, fmt.Errorf("failed to stat tools config: %w", err)
	}

	s.mu.RLock()
	cfg, mod := s.cached, s.modTime
	s.mu.RUnlock()
	if cfg != nil && mod.Equal(info.ModTime()) {
		return cfg, nil
	}

	cfg, err = Load(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached, s.modTime = cfg, info.ModTime()
	s.mu.Unlock()
	return cfg, nil
}

// Invalidate drops the cached document so the next Current re-reads it.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Watch invalidates the cache whenever the config or any extra file changes.
// onChange, if non-nil, runs after each invalidation.
func (s *Store) Watch(ctx context.Context, onChange func(), extra ...string) {
	reloadCh := WatchConfig(ctx, append([]string{s.path}, extra...)...)
	go func() {
		for range reloadCh {
			s.Invalidate()
			slog.Info("Tools config reloaded", "file", s.path)
			if onChange != nil {
				onChange()
			}
		}
	}()
}
