package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"

	"github.com/listenupapp/semodwatch/internal/config"
	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/logger"
	"github.com/listenupapp/semodwatch/internal/metrics"
	"github.com/listenupapp/semodwatch/internal/processor"
	"github.com/listenupapp/semodwatch/internal/rebuild"
	"github.com/listenupapp/semodwatch/internal/trigger"
	"github.com/listenupapp/semodwatch/internal/watcher"
)

// moduleQueueSize bounds the rebuild requests queued between the router and
// the trigger loop. A full queue blocks the router.
const moduleQueueSize = 1024

// WatcherHandle wraps the directory watcher with shutdown capability.
type WatcherHandle struct {
	*watcher.Watcher
}

// Shutdown implements do.Shutdownable.
func (h *WatcherHandle) Shutdown() error {
	return h.Watcher.Close()
}

// ProvideWatcher provides a started directory watcher.
func ProvideWatcher(i do.Injector) (*WatcherHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	w, err := watcher.New(log.Component("watcher"), watcher.Options{
		Backend:        cfg.Watch.Backend,
		IgnorePatterns: cfg.Watch.IgnorePatterns,
		IgnoreHidden:   cfg.Watch.IgnoreHidden,
	})
	if err != nil {
		return nil, err
	}

	if err := w.Start(cfg.Watch.Root, cfg.Watch.Recursive); err != nil {
		_ = w.Close()
		return nil, err
	}
	metrics.WatchedDirectories(w.Len())

	return &WatcherHandle{Watcher: w}, nil
}

// PipelineHandle runs the watch loop and the trigger loop until the watch
// ends or Shutdown is called.
type PipelineHandle struct {
	loop   *trigger.Loop
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Wake requests an immediate build cycle.
func (h *PipelineHandle) Wake() {
	h.loop.Wake()
}

// Done is closed once both loops have returned.
func (h *PipelineHandle) Done() <-chan struct{} {
	return h.done
}

// Err returns the error that stopped the pipeline. It is valid after Done
// is closed.
func (h *PipelineHandle) Err() error {
	return h.err
}

// Shutdown implements do.Shutdownable. A cycle in progress is allowed to
// finish.
func (h *PipelineHandle) Shutdown() error {
	h.cancel()

	select {
	case <-h.done:
		return h.err
	case <-time.After(shutdownTimeout):
		return errors.Internal("timed out waiting for the build cycle to finish")
	}
}

// ProvidePipeline wires watcher, router and trigger loop together and starts
// them.
func ProvidePipeline(i do.Injector) (*PipelineHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	w := do.MustInvoke[*WatcherHandle](i)
	service := do.MustInvoke[*rebuild.Service](i)
	hook := do.MustInvoke[*rebuild.Hook](i)
	syncHandle := do.MustInvoke[*SyncerHandle](i)

	modules := make(chan processor.Module, moduleQueueSize)

	router := processor.NewRouter(
		processor.NewExtensionSet(cfg.Build.Extensions...),
		w.Recursive(),
		w.Watcher,
		modules,
		log.Component("router"),
	)

	// A nil *vcs.Syncer must not become a non-nil interface.
	var syncer trigger.Syncer
	if syncHandle.Syncer != nil {
		syncer = syncHandle.Syncer
	}

	loop := trigger.New(modules, service, hook, syncer, trigger.Config{
		Interval:        cfg.Build.Interval,
		MetricsTextfile: cfg.Metrics.TextfilePath,
	}, log.Component("trigger"))

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(modules)
		return watch(gctx, w.Watcher, router, log)
	})
	g.Go(func() error {
		return loop.Run(gctx)
	})

	h := &PipelineHandle{loop: loop, cancel: cancel, done: make(chan struct{})}
	go func() {
		h.err = g.Wait()
		cancel()
		close(h.done)
	}()

	return h, nil
}

// watch feeds observed changes to the router until the watcher stops.
func watch(ctx context.Context, w *watcher.Watcher, router *processor.Router, log *logger.Logger) error {
	for {
		events, err := w.Next(ctx)
		if errors.Is(err, watcher.ErrStopped) {
			if ctx.Err() == nil {
				log.Warn("Watch is no longer active", "directories", w.Len())
			}
			return nil
		}
		if err != nil {
			return err
		}

		if err := router.Route(ctx, events); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		metrics.WatchedDirectories(w.Len())
	}
}
