/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package script

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/friendsincode/skald/internal/announce"
	"github.com/friendsincode/skald/internal/events"
	"github.com/friendsincode/skald/internal/telemetry"
)

const reloadDebounce = 250 * time.Millisecond

// Service owns the live script state. The compiled registry is immutable;
// reloads build a replacement off to the side and swap it in only on
// success, so a broken edit never takes down announcements.
type Service struct {
	path   string
	opts   []announce.Option
	logger zerolog.Logger
	bus    events.PubSub

	mu           sync.RWMutex
	registry     *announce.Registry
	policy       announce.TagPolicy
	conjunctions []string
	loadedAt     time.Time
}

// NewService compiles the initial script. An empty path selects the embedded
// default script.
func NewService(path string, bus events.PubSub, logger zerolog.Logger, opts ...announce.Option) (*Service, error) {
	s := &Service{
		path:   path,
		opts:   opts,
		bus:    bus,
		logger: logger.With().Str("component", "script").Logger(),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads the script source and swaps the compiled state on success.
func (s *Service) Reload() error {
	var (
		doc *Document
		err error
	)
	if s.path == "" {
		doc = Default()
	} else {
		doc, err = Load(s.path)
	}
	if err == nil {
		var reg *announce.Registry
		var policy announce.TagPolicy
		var conjunctions []string
		reg, policy, conjunctions, err = doc.Compile(s.opts...)
		if err == nil {
			s.mu.Lock()
			s.registry = reg
			s.policy = policy
			s.conjunctions = conjunctions
			s.loadedAt = time.Now()
			s.mu.Unlock()

			telemetry.ScriptReloads.WithLabelValues("ok").Inc()
			s.bus.Publish(events.EventScriptReloaded, events.Payload{
				"path":         s.path,
				"entry_points": reg.EntryPoints(),
			})
			s.logger.Info().Str("path", s.path).Strs("entry_points", reg.EntryPoints()).Msg("script compiled")
			return nil
		}
	}

	telemetry.ScriptReloads.WithLabelValues("error").Inc()
	s.bus.Publish(events.EventScriptReloadFailed, events.Payload{
		"path":  s.path,
		"error": err.Error(),
	})
	s.logger.Error().Err(err).Str("path", s.path).Msg("script reload failed, keeping previous script")
	return fmt.Errorf("reload script: %w", err)
}

// Registry returns the current compiled registry with its policy and
// conjunction list. The returned values are never mutated after the swap.
func (s *Service) Registry() (*announce.Registry, announce.TagPolicy, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry, s.policy, s.conjunctions
}

// LoadedAt reports when the active script was compiled.
func (s *Service) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Watch reloads the script when the file changes, debounced to ride out
// editor write bursts. Blocks until ctx is done. A no-op when the service
// runs on the embedded script.
func (s *Service) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("script watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops the
	// watch on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("script watcher add: %w", err)
	}
	s.logger.Info().Str("path", s.path).Msg("watching script for changes")

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(s.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			if err := s.Reload(); err != nil {
				// Logged and published inside Reload; keep watching.
				continue
			}
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn().Err(werr).Msg("script watcher error")
		}
	}
}
