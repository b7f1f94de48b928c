package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change
// before reloading.
const DefaultDebounce = 2 * time.Second

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(ctx context.Context, cfg *Config) error

// WatcherLogger is the logging interface used by Watcher.
type WatcherLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Watcher monitors the configuration file and calls a ReloadFunc with the
// new configuration after it changes. Changes are debounced; a file that
// fails to load or validate is logged and the previous configuration stays
// in effect.
type Watcher struct {
	path     string
	onReload ReloadFunc
	logger   WatcherLogger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	timer    *time.Timer
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, onReload ReloadFunc, logger WatcherLogger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	return &Watcher{
		path:     absPath,
		onReload: onReload,
		logger:   logger,
		debounce: DefaultDebounce,
		watcher:  fw,
		done:     make(chan struct{}),
	}, nil
}

// SetDebounce overrides DefaultDebounce. Must be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Start begins watching. The directory is watched rather than the file so
// that editors which replace the file on save are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watching config directory %s: %w", dir, err)
	}
	w.logger.Info("config watcher started", "path", w.path)
	go w.loop(ctx)
	return nil
}

// Stop stops watching and cancels any pending reload.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		err = w.watcher.Close()
	})
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop() //nolint:errcheck // shutting down
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				w.logger.Debug("config file change detected", "op", event.Op.String())
				w.schedule(ctx)
			case event.Has(fsnotify.Remove):
				w.logger.Warn("config file removed", "path", event.Name)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "error", err)
		}
	}
}

// schedule (re)starts the debounce timer.
func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) reload(ctx context.Context) {
	select {
	case <-w.done:
		return
	default:
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping current configuration", "error", err)
		return
	}
	if err := w.onReload(ctx, cfg); err != nil {
		w.logger.Error("applying reloaded config failed", "error", err)
		return
	}
	w.logger.Info("configuration reloaded", "path", w.path)
}
