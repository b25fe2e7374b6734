// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package policy_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent describes one reload attempt. On failure Current equals
// Previous and Err is set.
type ReloadEvent struct {
	Previous *PolicyEngine
	Current  *PolicyEngine
	Err      error
}

// Store publishes the live policy snapshot. Readers call Current once per
// check and keep that snapshot for the whole check; reloads swap the pointer
// and never mutate a published engine.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Reloads are serialized.
type Store struct {
	current atomic.Pointer[PolicyEngine]
	path    string
	logger  *slog.Logger

	mu       sync.Mutex
	onReload []func(ReloadEvent)
}

// NewStore wraps an already compiled engine. path may be empty, in which
// case Reload and Watch are unavailable.
func NewStore(initial *PolicyEngine, path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	s.current.Store(initial)
	return s
}

// OpenStore loads the policy at path, or the embedded policy when path is
// empty.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	var (
		engine *PolicyEngine
		err    error
	)
	if path == "" {
		engine, err = NewPolicyEngine()
	} else {
		engine, err = LoadPolicyFile(path)
	}
	if err != nil {
		return nil, err
	}
	return NewStore(engine, path, logger), nil
}

func (s *Store) Current() *PolicyEngine {
	return s.current.Load()
}

func (s *Store) Path() string {
	return s.path
}

// Swap publishes next and returns the snapshot it replaced.
func (s *Store) Swap(next *PolicyEngine) *PolicyEngine {
	return s.current.Swap(next)
}

// OnReload registers a callback invoked after every reload attempt.
func (s *Store) OnReload(fn func(ReloadEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = append(s.onReload, fn)
}

// Reload recompiles the policy file. A document that fails validation
// leaves the current snapshot in place.
func (s *Store) Reload() error {
	if s.path == "" {
		return errors.New("policy store has no file to reload")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.current.Load()
	next, err := LoadPolicyFile(s.path)
	ev := ReloadEvent{Previous: prev, Current: prev, Err: err}
	if err != nil {
		s.logger.Error("Policy reload rejected, keeping previous version",
			"path", s.path,
			"version", prev.Version(),
			"error", err)
	} else {
		s.current.Store(next)
		ev.Current = next
		s.logger.Info("Policy reloaded",
			"path", s.path,
			"previous_version", prev.Version(),
			"version", next.Version(),
			"fingerprint", next.Fingerprint())
	}
	for _, fn := range s.onReload {
		fn(ev)
	}
	return err
}

// Watch reloads the policy whenever its file changes. It watches the parent
// directory so editors that replace the file by rename are picked up. Watch
// blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return errors.New("policy store has no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create policy watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("failed to resolve policy path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.logger.Debug("Started watching policy file", "path", abs)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Errors are logged and reported to OnReload callbacks.
			_ = s.Reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Policy watcher error", "error", err)

		case <-ctx.Done():
			s.logger.Debug("Policy watcher stopping")
			return nil
		}
	}
}
