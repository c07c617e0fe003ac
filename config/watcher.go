package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/signalsfoundry/phy-receiver-sim/internal/logging"
)

// ChangeCallback is invoked with the previous and freshly loaded
// configuration whenever the watched file changes and revalidates.
type ChangeCallback func(old, new *Config)

// Watcher watches a configuration file and reloads it on change. Reloads
// that fail to parse or validate are logged and dropped; the last good
// configuration stays in effect.
type Watcher struct {
	path string
	log  logging.Logger

	mu        sync.RWMutex
	current   *Config
	callbacks []ChangeCallback

	fsWatcher *fsnotify.Watcher
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewWatcher loads the initial configuration from path and prepares a
// file-system watcher for it.
func NewWatcher(path string, log logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.Noop()
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		path:      path,
		log:       log,
		current:   cfg,
		fsWatcher: fsWatcher,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Current returns the most recently loaded valid configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback fired after every successful reload.
func (w *Watcher) OnChange(cb ChangeCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching the configuration file's directory. Watching the
// directory instead of the file keeps reloads working across the
// rename-and-replace pattern editors and config writers use.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watch loop and releases the file-system watcher.
func (w *Watcher) Stop() {
	w.cancel()
	w.fsWatcher.Close()
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	// Small debounce so a burst of write events produces one reload.
	const debounce = 50 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				timer.Reset(debounce)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.log.Warn(w.ctx, "config watcher error", logging.String("error", err.Error()))

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn(w.ctx, "config reload failed, keeping previous config",
			logging.String("path", w.path),
			logging.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	callbacks := make([]ChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.log.Info(w.ctx, "config reloaded", logging.String("path", w.path))
	for _, cb := range callbacks {
		cb(old, cfg)
	}
}
