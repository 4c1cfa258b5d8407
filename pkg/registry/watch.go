package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of file events into one reload.
const watchDebounce = 200 * time.Millisecond

// Watch reloads the registry whenever its settings file changes and calls
// onReload after each successful reload. It returns when ctx is cancelled.
// Watcher setup failure is returned immediately; callers may treat it as
// non-fatal and simply run without live reload.
func (r *Registry) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: editors and our own Save replace
	// the file, which would drop a file-level watch.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return err
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(r.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-fire:
			timer = nil
			fire = nil
			if err := r.Reload(); err == nil && onReload != nil {
				onReload()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watch errors degrade to no live reload; keep serving events.
		}
	}
}
