// Package watcher registers a directory tree with the OS change-notification
// facility and hands out batches of change events.
package watcher

import (
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/ratelimit"
)

// ErrStopped is returned by Next when its context is done, and permanently
// once the watcher is closed or no registrations remain.
var ErrStopped = stderrors.New("watcher stopped")

// Watcher monitors a directory tree.
//
// Next and Register are meant to be called from a single goroutine; the
// registration set may be inspected concurrently.
type Watcher struct {
	logger  *slog.Logger
	opts    Options
	matcher *matcher
	// warnings throttles repeated registration failures for the same path.
	warnings *ratelimit.KeyedRateLimiter

	backend   backend
	recursive bool
	// tracing enables "update" logging once the initial scan is done.
	tracing bool
	stopped bool

	mu      sync.RWMutex
	handles map[int]string
}

// New creates a watcher. The notification facility is created by Start.
func New(logger *slog.Logger, opts Options) (*Watcher, error) {
	opts.setDefaults()

	m, err := newMatcher(opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeValidation, "invalid watch options")
	}

	return &Watcher{
		logger:   logger,
		opts:     opts,
		matcher:  m,
		warnings: ratelimit.New(time.Minute, 1),
		handles:  make(map[int]string),
	}, nil
}

// Start registers root, and in recursive mode every directory beneath it.
//
// It fails with a NOT_FOUND error when root is missing or not a directory and
// with a WATCH_REGISTRATION error when the facility cannot be created or
// root itself cannot be registered. Failures on subdirectories are logged and
// skipped.
func (w *Watcher) Start(root string, recursive bool) error {
	if w.backend != nil {
		return errors.Internal("watcher already started")
	}

	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.DirectoryNotFoundf("%s not found", root)
		}
		return errors.Wrapf(err, errors.CodeNotFound, "cannot access %s", root)
	}
	if !info.IsDir() {
		return errors.DirectoryNotFoundf("%s is not a directory", root)
	}

	b, err := newBackend(w.opts.Backend, w.logger)
	if err != nil {
		return errors.WatchRegistration(err, "cannot create watch facility")
	}
	w.backend = b
	w.recursive = recursive
	w.logger.Info("watch backend ready", "backend", b.name(), "recursive", recursive)

	if err := w.register(root); err != nil {
		return errors.WatchRegistration(err, "cannot watch "+root)
	}

	if recursive {
		w.logger.Info("scanning", "root", root)
		w.walk(root, true)
		w.logger.Info("done", "root", root, "directories", w.Len())
	}

	w.tracing = true
	return nil
}

// Recursive reports whether Start registered the whole tree.
func (w *Watcher) Recursive() bool {
	return w.recursive
}

// Register best-effort registers path and every directory beneath it.
// Failures are logged and never returned.
func (w *Watcher) Register(path string) {
	if w.backend == nil || w.stopped {
		return
	}
	w.walk(filepath.Clean(path), false)
}

// walk registers the directories of a subtree. The root of the subtree is
// skipped when skipRoot is set because Start registered it already.
func (w *Watcher) walk(root string, skipRoot bool) {
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.warn(p, "failed to access path", err)
			if d != nil && d.IsDir() && p != root {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if p != root && w.matcher.shouldIgnore(p) {
			return filepath.SkipDir
		}

		if p == root && skipRoot {
			return nil
		}

		if err := w.register(p); err != nil {
			w.warn(p, "failed to add watch", err)
		}
		return nil
	})
	if err != nil {
		w.warn(root, "failed to walk directory", err)
	}
}

// register adds one directory to the backend and records its handle.
func (w *Watcher) register(path string) error {
	handle, err := w.backend.add(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	previous, known := w.handles[handle]
	w.handles[handle] = path
	w.mu.Unlock()

	switch {
	case !known:
		w.logger.Debug("register", "path", path, "handle", handle)
	case previous != path && w.tracing:
		w.logger.Info("update", "old", previous, "new", path)
	}
	return nil
}

func (w *Watcher) warn(path, msg string, err error) {
	if w.warnings.Allow(path) {
		w.logger.Warn(msg, "path", path, "error", err)
		return
	}
	w.logger.Debug(msg, "path", path, "error", err)
}

// Next blocks until at least one change is observed and returns the batch in
// the order the OS reported it. It returns ErrStopped when ctx is done, when
// the watcher is closed, or once every registration has been dropped.
func (w *Watcher) Next(ctx context.Context) ([]Event, error) {
	if w.backend == nil {
		return nil, errors.Internal("watcher not started")
	}

	for {
		if w.stopped || w.Len() == 0 {
			w.stopped = true
			return nil, ErrStopped
		}

		raw, err := w.backend.read(ctx)
		if err != nil {
			if stderrors.Is(err, errBackendClosed) {
				w.stopped = true
				return nil, ErrStopped
			}
			if ctx.Err() != nil {
				return nil, ErrStopped
			}
			w.logger.Warn("watch read failed", "error", err)
			continue
		}

		if events := w.resolve(raw); len(events) > 0 {
			return events, nil
		}
	}
}

// resolve maps raw notifications onto registered paths and drops the
// registrations the OS invalidated.
func (w *Watcher) resolve(raw []rawEvent) []Event {
	events := make([]Event, 0, len(raw))
	for _, r := range raw {
		if r.kind == Overflow && !r.invalidated {
			w.logger.Debug("overflow")
			events = append(events, Event{Kind: Overflow})
			continue
		}

		w.mu.Lock()
		dir, ok := w.handles[r.handle]
		if ok && r.invalidated {
			delete(w.handles, r.handle)
		}
		w.mu.Unlock()

		if !ok {
			continue
		}
		if r.invalidated {
			w.logger.Debug("unregister", "path", dir, "handle", r.handle)
			continue
		}

		event := Event{Kind: r.kind, Dir: dir, Name: r.name, IsDir: r.isDir}
		if w.matcher.shouldIgnore(event.Path()) {
			continue
		}

		w.logger.Debug(event.Kind.String()+": "+event.Path())
		events = append(events, event)
	}
	return events
}

// Registrations returns the watched directories ordered by path.
func (w *Watcher) Registrations() []Registration {
	w.mu.RLock()
	defer w.mu.RUnlock()

	regs := make([]Registration, 0, len(w.handles))
	for handle, path := range w.handles {
		regs = append(regs, Registration{Handle: handle, Path: path})
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Path < regs[j].Path })
	return regs
}

// Len returns the number of watched directories.
func (w *Watcher) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handles)
}

// Close releases the notification facility. A Next in progress returns
// ErrStopped.
func (w *Watcher) Close() error {
	if w.backend == nil {
		return nil
	}
	return w.backend.close()
}
