package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dshills/luaproc/internal/logging"
)

// DefaultDebounce collapses the bursts of events editors produce on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file whenever it changes.
//
// The file's directory is watched rather than the file itself so that
// editors which save by renaming a temporary file are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	log      *logging.Logger

	onChange func(*Config)
	onError  func(error)

	fsw *fsnotify.Watcher
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the watcher waits for events to settle.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithWatcherLogger sets the logger.
func WithWatcherLogger(l *logging.Logger) WatcherOption {
	return func(w *Watcher) {
		w.log = l
	}
}

// WithErrorHandler receives reload failures. The previous configuration
// stays in effect after a failure.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher that calls onChange with every successfully
// reloaded configuration.
func NewWatcher(path string, onChange func(*Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		log:      logging.Null(),
		onChange: onChange,
		onError:  func(error) {},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.log = w.log.WithComponent("config-watcher").WithField("path", abs)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w.fsw = fsw

	return w, nil
}

// Close releases the watcher. Run calls it on return.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run processes events until ctx is done, then releases the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.log.Debug("config event %s", ev.Op)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watch error")
			w.onError(err)

		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).Warn("config reload failed, keeping previous settings")
		w.onError(err)
		return
	}
	w.log.Info("config reloaded")
	w.onChange(cfg)
}
