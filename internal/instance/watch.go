package instance

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Watch calls fn whenever an instance directory appears, disappears or is
// renamed under <root>/instances. It blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func()) error {
	dir := s.InstancesDir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create instances dir: %w", err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				fn()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Debug("instance watcher error", "error", err)
		}
	}
}
