// Package processor classifies watcher events and turns source file changes
// into module rebuild requests.
package processor

import (
	"context"
	"log/slog"
	"os"

	"github.com/listenupapp/semodwatch/internal/metrics"
	"github.com/listenupapp/semodwatch/internal/watcher"
)

// Registrar extends the watch to a newly created subtree.
type Registrar interface {
	Register(path string)
}

// Router processes watcher event batches.
//
// Key design principles:
//   - Runs on the watcher goroutine, so a new directory is registered before
//     the next batch is read
//   - Only regular files with a recognised suffix produce a Module
//   - Deletions and overflows are dropped
//   - Deduplication is left to the receiver of the Module channel
type Router struct {
	extensions ExtensionSet
	recursive  bool
	registrar  Registrar
	out        chan<- Module
	logger     *slog.Logger
}

// NewRouter creates a router sending rebuild requests on out.
func NewRouter(extensions ExtensionSet, recursive bool, registrar Registrar, out chan<- Module, logger *slog.Logger) *Router {
	return &Router{
		extensions: extensions,
		recursive:  recursive,
		registrar:  registrar,
		out:        out,
		logger:     logger,
	}
}

// Route handles one batch in order. It blocks while the receiver is not
// draining and returns ctx.Err() if ctx ends first.
func (r *Router) Route(ctx context.Context, events []watcher.Event) error {
	for _, event := range events {
		metrics.EventObserved(event.Kind.String())

		module, ok := r.classify(event)
		if !ok {
			continue
		}

		select {
		case r.out <- module:
			r.logger.Debug("module changed", "module", module.Name, "dir", module.Dir, "path", event.Path())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// classify applies the routing rules to one event. It may register a new
// directory as a side effect.
func (r *Router) classify(event watcher.Event) (Module, bool) {
	switch event.Kind {
	case watcher.Overflow:
		r.logger.Debug("overflow dropped")
		return Module{}, false
	case watcher.Deleted:
		return Module{}, false
	case watcher.Created, watcher.Modified:
	default:
		return Module{}, false
	}

	path := event.Path()

	if event.Kind == watcher.Created && r.recursive {
		if info, err := os.Lstat(path); err == nil && info.IsDir() {
			r.registrar.Register(path)
			return Module{}, false
		}
	}

	module, ok := r.extensions.ModuleFromPath(path)
	if !ok {
		return Module{}, false
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return Module{}, false
	}

	return module, true
}
