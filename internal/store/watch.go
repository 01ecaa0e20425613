package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/treykane/ssh-profiles/internal/util"
)

// Watch calls onChange after the config file is written, created, renamed
// or removed by someone else. Bursts are collapsed into one call. The parent
// directory is watched because editors and Save replace the file instead of
// writing it in place. Watch blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	target := filepath.Clean(s.path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	var fire <-chan time.Time
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(util.WatchDebounce)
			} else {
				timer.Reset(util.WatchDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			if s.ownWrite() {
				s.logger.Debug("ignoring own write", "path", target)
				continue
			}
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch ssh config", "path", target, "error", err)
		}
	}
}

// ownWrite reports whether the last Save happened within two debounce
// windows.
func (s *Store) ownWrite() bool {
	at := s.savedAt.Load()
	return at != 0 && time.Since(time.Unix(0, at)) < 2*util.WatchDebounce
}
