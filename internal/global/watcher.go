package global

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads config.toml when it changes on disk and hands the fresh
// snapshot to every registered handler. The parent directory is watched
// because Save replaces the file by rename.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu       sync.RWMutex
	handlers []func(GlobalConfig)
}

func NewWatcher(path string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: 500 * time.Millisecond,
		logger:   logger.With("module", "config_watcher"),
	}
}

// OnReload registers a handler. Handlers run on the watcher goroutine.
func (w *Watcher) OnReload(handler func(GlobalConfig)) {
	if handler == nil {
		return
	}
	w.mu.Lock()
	w.handlers = append(w.handlers, handler)
	w.mu.Unlock()
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("config watcher started", "path", w.path, "debounce", w.debounce)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			w.reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "err", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadConfigFile(w.path)
	if err != nil {
		w.logger.Warn("config reload failed", "err", err)
		return
	}
	w.mu.RLock()
	handlers := make([]func(GlobalConfig), len(w.handlers))
	copy(handlers, w.handlers)
	w.mu.RUnlock()

	w.logger.Info("config reloaded", "python", cfg.Scripts.Python, "scripts_dir", cfg.Scripts.Dir)
	for _, h := range handlers {
		h(cfg)
	}
}
