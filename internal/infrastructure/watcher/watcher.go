// Package watcher reloads a single file when it changes on disk.
//
// The parent directory is watched rather than the file itself so that
// editors which save by writing a temp file and renaming it over the
// original are still seen. Bursts of events are coalesced: the handler
// runs once the file has been quiet for the debounce period.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is used when no positive debounce is given.
const DefaultDebounce = 250 * time.Millisecond

// ErrNotRegular is returned by New when the path names a directory.
var ErrNotRegular = errors.New("watcher: path is not a regular file")

// Handler is called after the file settles. Errors are logged, never fatal.
type Handler func(ctx context.Context, path string) error

// Logger is the logging interface used by the watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// FileWatcher calls a Handler whenever one file is written, created or
// replaced.
type FileWatcher struct {
	path     string
	debounce time.Duration
	handler  Handler
	logger   Logger
	fsw      *fsnotify.Watcher
}

// Option configures a FileWatcher.
type Option func(*FileWatcher)

// WithDebounce sets the quiet period before the handler runs.
func WithDebounce(d time.Duration) Option {
	return func(w *FileWatcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(w *FileWatcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher for path. The file need not exist yet but its
// directory must.
func New(path string, handler Handler, opts ...Option) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegular, abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w := &FileWatcher{
		path:     abs,
		debounce: DefaultDebounce,
		handler:  handler,
		logger:   noopLogger{},
		fsw:      fsw,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute watched path.
func (w *FileWatcher) Path() string { return w.path }

// Run processes events until ctx is cancelled, then closes the underlying
// watcher. It always returns nil after cancellation so it can sit in an
// errgroup next to the servers.
func (w *FileWatcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	// Timer channels are unbuffered since Go 1.23, so Stop and Reset never
	// leave a stale tick behind.
	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			w.logger.Debug("watched file changed", "path", w.path, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watch error", "path", w.path, "error", err)

		case <-timer.C:
			if _, err := os.Stat(w.path); err != nil {
				// Removed or mid-rename; wait for the next create.
				continue
			}
			if err := w.handler(ctx, w.path); err != nil {
				w.logger.Error("reload failed", "path", w.path, "error", err)
			}
		}
	}
}

func (w *FileWatcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
