package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after a file event before the
// document is reread.
const DefaultDebounce = 50 * time.Millisecond

// Watch follows external edits to the document until ctx is done. The
// parent directory is watched so editors that replace the file by rename
// are seen. Bursts of events are coalesced by debounce.
func (s *Session) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(s.path), err)
	}
	s.logger.Debug("watching document", "path", s.path)

	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			fire = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watcher error", "error", err)
		case <-fire:
			fire = nil
			if _, err := s.SyncFromDisk(ctx); err != nil {
				s.logger.Warn("reload after external change failed", "error", err)
			}
		}
	}
}

// SyncFromDisk rereads the document. Content byte-equal to the current
// source, which includes the session's own last write, is ignored.
// Anything else is loaded as a new revision and announced with External
// set. It reports whether a new revision was created.
//
// The read happens under the session lock so a commit cannot land between
// reading the file and comparing it.
func (s *Session) SyncFromDisk(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		// Mid-replace; the Create that follows triggers another sync.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read document: %w", err)
	}
	if string(data) == s.source {
		return false, nil
	}
	s.loadLocked(ctx, string(data), "external", true)
	s.announce(true)
	s.logger.Info("external change loaded",
		"revision", s.revision, "valid", s.lastValid == s.revision)
	return true, nil
}
