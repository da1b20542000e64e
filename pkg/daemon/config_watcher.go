package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/thisislance98/claudia/config"
)

// ReloadFunc receives a configuration that loaded and validated cleanly.
type ReloadFunc func(cfg *config.Config, file string)

// ConfigWatcher watches the daemon's config file and reloads it on change.
// Invalid files are logged and ignored; the running configuration stays.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logrus.Entry
	onReload ReloadFunc

	// files maps every watched path (including symlink targets) to the
	// config file it stands for.
	files map[string]string

	mu    sync.Mutex
	timer *time.Timer
}

// NewConfigWatcher creates a ConfigWatcher for file, or for the default
// config names in paths.ConfigDir() when file is "". Rapid writes within
// debounce are coalesced into one reload.
func NewConfigWatcher(file string, debounce time.Duration, logger *logrus.Entry, onReload ReloadFunc) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	candidates := []string{file}
	if file == "" {
		candidates = config.DefaultConfigFiles()
	}

	w := &ConfigWatcher{
		watcher:  watcher,
		debounce: debounce,
		logger:   logger,
		onReload: onReload,
		files:    make(map[string]string),
	}
	if w.debounce <= 0 {
		w.debounce = 100 * time.Millisecond
	}

	// fsnotify doesn't follow symlinks, so targets are watched explicitly.
	watched := make(map[string]bool)
	watch := func(dir string) {
		if watched[dir] {
			return
		}
		if err := watcher.Add(dir); err != nil {
			logger.WithError(err).WithField("dir", dir).Warn("Failed to watch config directory")
			return
		}
		watched[dir] = true
	}

	for _, f := range candidates {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.files[abs] = abs
		watch(filepath.Dir(abs))

		if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
			target, err := filepath.EvalSymlinks(abs)
			if err != nil {
				logger.WithError(err).Warnf("Failed to resolve symlink %s", abs)
				continue
			}
			w.files[target] = abs
			watch(filepath.Dir(target))
			logger.Debugf("Watching symlink target: %s", target)
		}
	}

	if len(watched) == 0 {
		watcher.Close()
		return nil, os.ErrNotExist
	}
	return w, nil
}

// Start begins watching for config changes. It blocks until the context is cancelled.
func (w *ConfigWatcher) Start(ctx context.Context) {
	defer w.stopTimer()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			file, ok := w.files[filepath.Clean(event.Name)]
			if !ok {
				continue
			}
			w.logger.Debugf("fsnotify event: %s op=%v", event.Name, event.Op)
			w.schedule(file)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

// schedule reloads file once no further change arrives within the debounce window.
func (w *ConfigWatcher) schedule(file string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(file) })
}

func (w *ConfigWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *ConfigWatcher) reload(file string) {
	log := w.logger.WithField("file", filepath.Base(file))

	cfg, err := config.LoadFile(file)
	if err != nil {
		log.WithError(err).Warn("Ignoring invalid config change")
		return
	}
	log.Info("Config reloaded")
	if w.onReload != nil {
		w.onReload(cfg, file)
	}
}

// Close stops the watcher and releases resources.
func (w *ConfigWatcher) Close() error {
	w.stopTimer()
	return w.watcher.Close()
}
