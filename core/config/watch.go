package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/adalundhe/docgraph/core/storage"
)

// DefaultWatchDebounce coalesces bursts of writes to one reload.
const DefaultWatchDebounce = 100 * time.Millisecond

// Watch reloads the configuration whenever one of its files changes, until
// ctx is done. A reload that fails keeps the previous configuration and is
// logged. Directories that do not exist yet are not watched.
func (m *Manager) Watch(ctx context.Context, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	files := m.files()
	dirs := make(map[string]struct{})
	for file := range files {
		dir := filepath.Dir(file)
		if _, seen := dirs[dir]; seen {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return err
		}
		dirs[dir] = struct{}{}
	}

	w := &configWatcher{
		m:        m,
		watcher:  watcher,
		files:    files,
		logger:   logger,
		debounce: DefaultWatchDebounce,
	}
	go w.run(ctx)
	return nil
}

// files lists the absolute paths of the YAML files Load reads. The .env
// file is not watched: its variables are only applied when unset.
func (m *Manager) files() map[string]struct{} {
	project := storage.ResolveProjectDirs(m.projectRoot)
	paths := []string{project.Config}
	if m.dirs != nil {
		paths = append(paths, m.dirs.ConfigDir("config.yaml"))
	}
	if m.file != "" {
		paths = append(paths, m.file)
	}

	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		out[filepath.Clean(p)] = struct{}{}
	}
	return out
}

type configWatcher struct {
	m        *Manager
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	logger   *slog.Logger
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func (w *configWatcher) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", slog.Any("error", err))
		}
	}
}

func (w *configWatcher) handle(event fsnotify.Event) {
	name := event.Name
	if abs, err := filepath.Abs(name); err == nil {
		name = abs
	}
	if _, ok := w.files[filepath.Clean(name)]; !ok {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *configWatcher) reload() {
	if err := w.m.Reload(); err != nil {
		w.logger.Warn("config reload failed, keeping previous config", slog.Any("error", err))
		return
	}
	w.logger.Info("config reloaded")
}
