package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// errBackendClosed is returned by read after close.
var errBackendClosed = errors.New("watch backend closed")

// rawEvent is a backend notification before path resolution.
type rawEvent struct {
	handle int
	name   string
	kind   Kind
	isDir  bool
	// invalidated means the OS dropped the watch for handle.
	invalidated bool
}

// backend is the platform-specific notification facility.
type backend interface {
	// add registers a directory and returns its handle. Adding a directory
	// that is already watched returns the existing handle.
	add(path string) (int, error)

	// read blocks until at least one notification is available, ctx is done,
	// or the backend is closed.
	read(ctx context.Context) ([]rawEvent, error)

	// close releases the facility and unblocks read.
	close() error

	name() string
}

// newBackend creates the backend named by kind.
func newBackend(kind string, logger *slog.Logger) (backend, error) {
	switch kind {
	case BackendAuto, "":
		if runtime.GOOS == "linux" {
			return newInotifyBackend()
		}
		return newFsnotifyBackend(logger)
	case BackendInotify:
		return newInotifyBackend()
	case BackendFsnotify:
		return newFsnotifyBackend(logger)
	default:
		return nil, fmt.Errorf("unknown watch backend %q", kind)
	}
}
