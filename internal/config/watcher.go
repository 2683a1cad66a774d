package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bulutsoft-dev/Transmind-PI/internal/logging"
)

// Watcher reloads a file when it changes and hands the freshly loaded value
// to every registered handler.
//
// The parent directory is watched rather than the file, so editors that
// save by writing a temp file and renaming it over the original are seen.
type Watcher[T any] struct {
	path     string
	debounce time.Duration
	loader   func(path string) (T, error)
	onError  func(error)
	logger   logging.Logger

	mu       sync.RWMutex
	handlers map[int]func(T)
	nextID   int

	fsw    *fsnotify.Watcher
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption[T any] func(*Watcher[T])

// WithDebounce sets how long the file must stay quiet before reloading.
// The default is 1500ms.
func WithDebounce[T any](d time.Duration) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.debounce = d
	}
}

// WithErrorHandler sets a callback for load failures.
func WithErrorHandler[T any](fn func(error)) WatcherOption[T] {
	return func(w *Watcher[T]) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher for path. loader runs on every change.
func NewWatcher[T any](path string, loader func(string) (T, error), logger logging.Logger, opts ...WatcherOption[T]) *Watcher[T] {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher[T]{
		path:     filepath.Clean(path),
		debounce: 1500 * time.Millisecond,
		loader:   loader,
		logger:   logger,
		handlers: make(map[int]func(T)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnReload registers fn and returns a function that unregisters it.
func (w *Watcher[T]) OnReload(fn func(T)) func() {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.handlers[id] = fn
	w.mu.Unlock()

	return func() {
		w.mu.Lock()
		delete(w.handlers, id)
		w.mu.Unlock()
	}
}

// Start begins watching.
func (w *Watcher[T]) Start() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}
	w.fsw = fsw

	w.logger.Info("Watching file", "path", w.path, "debounce", w.debounce)
	go w.run()
	return nil
}

// Stop ends watching and waits for the watch loop to exit.
func (w *Watcher[T]) Stop() error {
	w.cancel()
	if w.fsw == nil {
		return nil
	}
	err := w.fsw.Close()
	<-w.done
	return err
}

func (w *Watcher[T]) run() {
	defer close(w.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			w.logger.Debug("File change detected", "path", w.path, "op", ev.Op.String())
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("File watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher[T]) reload() {
	value, err := w.loader(w.path)
	if err != nil {
		w.logger.Warn("Reload failed", "path", w.path, "error", err)
		if w.onError != nil {
			w.onError(err)
		}
		return
	}

	w.mu.RLock()
	handlers := make([]func(T), 0, len(w.handlers))
	for _, fn := range w.handlers {
		handlers = append(handlers, fn)
	}
	w.mu.RUnlock()

	w.logger.Info("File reloaded", "path", w.path, "handlers", len(handlers))
	for _, fn := range handlers {
		fn(value)
	}
}
