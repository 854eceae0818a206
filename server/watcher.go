package server

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounceDelay = 500 * time.Millisecond

// Watcher calls a function when files in a directory change. Bursts of
// events are collapsed into a single call once the directory has been
// quiet for the debounce delay.
type Watcher struct {
	dir    string
	match  func(name string) bool
	fn     func() error
	delay  time.Duration
	logger *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches dir and calls fn after files for which match returns
// true are created, written, renamed or removed. Call Close to stop.
func NewWatcher(dir string, match func(name string) bool, fn func() error, logger *slog.Logger) (*Watcher, error) {
	return newWatcher(dir, match, fn, defaultDebounceDelay, logger)
}

// WatchFile watches the directory holding path, so editors that replace
// the file by renaming are seen too.
func WatchFile(path string, fn func() error, logger *slog.Logger) (*Watcher, error) {
	return watchFile(path, fn, defaultDebounceDelay, logger)
}

func watchFile(path string, fn func() error, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	name := filepath.Base(path)
	return newWatcher(filepath.Dir(path), func(n string) bool { return n == name }, fn, delay, logger)
}

func newWatcher(dir string, match func(name string) bool, fn func() error, delay time.Duration, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &Watcher{
		dir:     dir,
		match:   match,
		fn:      fn,
		delay:   delay,
		logger:  logger.With("component", "watcher", "dir", dir),
		watcher: fw,
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.processEvents()
	return w, nil
}

// Close stops watching and cancels any pending call.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	if !w.match(filepath.Base(event.Name)) {
		return
	}

	w.logger.Debug("file changed", "file", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.trigger)
}

func (w *Watcher) trigger() {
	select {
	case <-w.done:
		return
	default:
	}
	if err := w.fn(); err != nil {
		w.logger.Error("reload after file change failed", "error", err)
	}
}
