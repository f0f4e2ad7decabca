package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay lets editors finish writing before the file is re-read.
const reloadDelay = 50 * time.Millisecond

// Store holds the active catalog. Readers get an immutable snapshot; a reload
// swaps the whole catalog atomically.
type Store struct {
	current atomic.Pointer[Catalog]
	logger  zerolog.Logger
}

// NewStore returns a Store serving c.
func NewStore(c *Catalog, logger zerolog.Logger) *Store {
	s := &Store{logger: logger.With().Str("component", "catalog").Logger()}
	s.current.Store(c)
	return s
}

// Catalog returns the active catalog.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Reload loads path and swaps it in. On error the previous catalog stays
// active.
func (s *Store) Reload(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	s.current.Store(c)
	s.logger.Info().Str("path", path).Int("categories", len(c.Categories)).Msg("Catalog reloaded")
	return nil
}

// Watch reloads the catalog whenever path changes, until ctx is cancelled.
// The parent directory is watched so that atomic renames are seen.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: create watcher: %w", err)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Failed to close catalog watcher")
		}
	}()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("catalog: watch %q: %w", path, err)
	}
	s.logger.Info().Str("path", path).Msg("Catalog watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			time.Sleep(reloadDelay)
			if err := s.Reload(path); err != nil {
				s.logger.Warn().Err(err).Str("path", path).Msg("Catalog reload failed, keeping previous catalog")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error().Err(err).Msg("Catalog watcher error")
		}
	}
}
