package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsnotifyBackend implements backend with fsnotify. fsnotify has no watch
// descriptors, so handles are assigned sequentially per path.
type fsnotifyBackend struct {
	logger  *slog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	handles map[string]int
	next    int
}

func newFsnotifyBackend(logger *slog.Logger) (backend, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &fsnotifyBackend{
		logger:  logger,
		watcher: w,
		handles: make(map[string]int),
	}, nil
}

func (b *fsnotifyBackend) name() string {
	return BackendFsnotify
}

func (b *fsnotifyBackend) add(path string) (int, error) {
	if err := b.watcher.Add(path); err != nil {
		return 0, fmt.Errorf("fsnotify add %s: %w", path, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if handle, ok := b.handles[path]; ok {
		return handle, nil
	}
	b.next++
	b.handles[path] = b.next
	return b.next, nil
}

// read waits for one notification and then collects whatever else is
// already queued, so a burst is returned as one batch.
func (b *fsnotifyBackend) read(ctx context.Context) ([]rawEvent, error) {
	var batch []rawEvent

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event, ok := <-b.watcher.Events:
		if !ok {
			return nil, errBackendClosed
		}
		batch = b.translate(batch, event)
	case err, ok := <-b.watcher.Errors:
		if !ok {
			return nil, errBackendClosed
		}
		return b.translateError(err)
	}

	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return batch, nil
			}
			batch = b.translate(batch, event)
		default:
			return batch, nil
		}
	}
}

func (b *fsnotifyBackend) translateError(err error) ([]rawEvent, error) {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		return []rawEvent{{kind: Overflow, handle: -1}}, nil
	}
	return nil, err
}

// translate appends the raw events for one fsnotify event. The removal or
// rename of a watched directory also invalidates its handle.
func (b *fsnotifyBackend) translate(batch []rawEvent, event fsnotify.Event) []rawEvent {
	dir, name := filepath.Split(event.Name)
	dir = filepath.Clean(dir)

	b.mu.Lock()
	parent, parentOK := b.handles[dir]
	self, selfOK := b.handles[event.Name]
	b.mu.Unlock()

	var kind Kind
	switch {
	case event.Has(fsnotify.Create):
		kind = Created
	case event.Has(fsnotify.Write), event.Has(fsnotify.Chmod):
		kind = Modified
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = Deleted
	default:
		return batch
	}

	if parentOK {
		batch = append(batch, rawEvent{
			handle: parent,
			name:   name,
			kind:   kind,
			isDir:  selfOK,
		})
	}

	if kind == Deleted && selfOK {
		b.mu.Lock()
		delete(b.handles, event.Name)
		b.mu.Unlock()
		// Rename leaves the watch in place; removal has already dropped it.
		_ = b.watcher.Remove(event.Name)
		batch = append(batch, rawEvent{handle: self, invalidated: true})
	}

	return batch
}

func (b *fsnotifyBackend) close() error {
	return b.watcher.Close()
}
