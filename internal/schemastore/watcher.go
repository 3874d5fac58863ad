package schemastore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/transom-dev/transom/internal/log"
)

// Watcher monitors the schema directory and invalidates the store's cache
// when schema files change, so a re-read sees edited content.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     *FileStore
	debounce  time.Duration
	done      chan struct{}
}

// WatcherConfig holds watcher configuration options.
type WatcherConfig struct {
	Store       *FileStore
	DebounceDur time.Duration
}

// DefaultWatcherConfig returns sensible defaults for the watcher.
func DefaultWatcherConfig(store *FileStore) WatcherConfig {
	return WatcherConfig{
		Store:       store,
		DebounceDur: 500 * time.Millisecond,
	}
}

// NewWatcher creates a watcher for the store's base directory.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		store:     cfg.Store,
		debounce:  cfg.DebounceDur,
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the schema base directory.
func (w *Watcher) Start() error {
	dir := w.store.BaseDir()
	if dir == "" {
		dir = "."
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go w.loop()

	return nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					// Drain the timer channel if it already fired
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				w.store.InvalidateAll()
				pending = false
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Warn(log.CatStore, "watcher error", "error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent reports whether the event touches a schema file.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(event.Name))
	return ext == ".json" || ext == ".schema"
}
