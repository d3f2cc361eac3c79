// Package trigger runs the periodic build cycle: sync the working copy,
// drain the pending modules, rebuild each one and run its hook.
package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/id"
	"github.com/listenupapp/semodwatch/internal/metrics"
	"github.com/listenupapp/semodwatch/internal/processor"
	"github.com/listenupapp/semodwatch/internal/rebuild"
	"github.com/listenupapp/semodwatch/internal/runner"
	"github.com/listenupapp/semodwatch/internal/vcs"
)

// DefaultInterval is the idle wait between cycles.
const DefaultInterval = 20 * time.Second

// Rebuilder compiles and installs one module.
type Rebuilder interface {
	Rebuild(ctx context.Context, moduleDir, moduleName string) (rebuild.Outcome, error)
}

// HookRunner runs a module's post-install hook if it has one.
type HookRunner interface {
	Run(ctx context.Context, moduleDir, moduleName string) (bool, runner.Result, error)
}

// Syncer updates the working copy from its remote.
type Syncer interface {
	Fetch(ctx context.Context) (bool, error)
	Pull(ctx context.Context) (vcs.PullSummary, error)
}

// Config configures a Loop.
type Config struct {
	Interval time.Duration
	// MetricsTextfile, when set, receives the metrics after every cycle.
	MetricsTextfile string
}

// Loop alternates between waiting and running one cycle.
//
// It is the only reader of the module channel and the only owner of the
// pending set, so sync, drain and rebuild never overlap with each other.
type Loop struct {
	in        <-chan processor.Module
	pending   *PendingSet
	rebuilder Rebuilder
	hook      HookRunner
	syncer    Syncer
	config    Config
	logger    *slog.Logger

	// pullPending is set when fetch moved a reference and cleared once a pull
	// succeeds, so a failed pull is retried on later cycles.
	pullPending bool

	wake chan struct{}
	done chan struct{}
}

// New creates a loop reading rebuild requests from in. syncer may be nil
// when the tree is not a git working copy.
func New(in <-chan processor.Module, rebuilder Rebuilder, hook HookRunner, syncer Syncer, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Loop{
		in:        in,
		pending:   NewPendingSet(),
		rebuilder: rebuilder,
		hook:      hook,
		syncer:    syncer,
		config:    cfg,
		logger:    logger,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// Wake requests a cycle without waiting for the timer. Requests made while
// one is already queued are merged.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run blocks until ctx is done or the module channel is closed. Closing the
// channel means the watch ended; the remaining work gets one final cycle
// unless ctx is already done. Cancellation is only observed between cycles.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	ticker := time.NewTicker(l.config.Interval)
	defer ticker.Stop()

	l.logger.Info("trigger loop started", "interval", l.config.Interval)

	for {
		if ctx.Err() != nil {
			l.logger.Info("trigger loop stopped", "pending", l.pending.Len())
			return nil
		}

		select {
		case <-ctx.Done():
			continue
		case module, ok := <-l.in:
			if !ok {
				if ctx.Err() != nil {
					continue
				}
				l.logger.Info("watch ended, running final cycle")
				l.cycle(ctx)
				return nil
			}
			l.add(module)
		case <-ticker.C:
			l.cycle(ctx)
			ticker.Reset(l.config.Interval)
		case <-l.wake:
			l.cycle(ctx)
			ticker.Reset(l.config.Interval)
		}
	}
}

func (l *Loop) add(m processor.Module) {
	if l.pending.Add(m.Name, m.Dir) {
		l.logger.Debug("module pending", "module", m.Name, "dir", m.Dir)
		metrics.PendingModules(l.pending.Len())
	}
}

// collect moves every queued request into the pending set without blocking.
func (l *Loop) collect() {
	for {
		select {
		case module, ok := <-l.in:
			if !ok {
				return
			}
			l.add(module)
		default:
			return
		}
	}
}

// cycle performs sync, drain, rebuild and hooks. It runs to completion even
// if ctx is cancelled meanwhile.
func (l *Loop) cycle(parent context.Context) {
	ctx := context.WithoutCancel(parent)
	start := time.Now()
	logger := l.logger.With("cycle", id.Cycle())

	l.collect()
	l.sync(ctx, logger)

	modules := l.pending.Drain()
	metrics.PendingModules(0)

	for _, m := range modules {
		l.process(ctx, logger, m)
	}

	metrics.CycleCompleted(time.Now())
	if len(modules) > 0 {
		logger.Info("cycle complete", "modules", len(modules), "duration", time.Since(start))
	}

	if l.config.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(l.config.MetricsTextfile); err != nil {
			logger.Warn("failed to write metrics", "error", err)
		}
	}
}

// sync fetches and, when a reference moved or an earlier pull failed, pulls.
// Failures leave the working copy as it is.
func (l *Loop) sync(ctx context.Context, logger *slog.Logger) {
	if l.syncer == nil {
		return
	}
	start := time.Now()

	changed, err := l.syncer.Fetch(ctx)
	if err != nil {
		logger.Warn("fetch failed", "error", err)
		metrics.SyncFailed("fetch")
		return
	}
	if changed {
		l.pullPending = true
	}

	if l.pullPending {
		summary, err := l.syncer.Pull(ctx)
		if err != nil {
			logger.Warn("pull failed, retrying next cycle", "error", err)
			metrics.SyncFailed("pull")
			return
		}
		l.pullPending = false
		logger.Info("PULL", "result", summary.String())
	}

	metrics.SyncCompleted(time.Since(start))
}

// process rebuilds one module and runs its hook. Failures are logged and
// do not affect other modules.
func (l *Loop) process(ctx context.Context, logger *slog.Logger, m processor.Module) {
	logger = logger.With("module", m.Name, "dir", m.Dir)

	outcome, err := l.rebuilder.Rebuild(ctx, m.Dir, m.Name)
	if errors.Is(err, errors.ErrPolicyDiscovery) {
		logger.Error("rebuild skipped", "error", err)
		metrics.ModuleRebuildAborted("policy_discovery")
		return
	}
	if err != nil {
		logger.Error("rebuild incomplete", "error", err)
	}
	metrics.ModuleRebuilt(outcome.CompileStatus, outcome.InstallStatus, outcome.Duration)

	if outcome.Succeeded() {
		logger.Info("module installed", "duration", outcome.Duration)
	} else {
		logger.Warn("module rebuild failed",
			"statusCompile", outcome.CompileStatus,
			"statusInstall", outcome.InstallStatus)
	}

	ran, result, err := l.hook.Run(ctx, m.Dir, m.Name)
	if !ran && err == nil {
		return
	}
	metrics.HookExecuted(result.ExitCode, err)
	switch {
	case err != nil:
		logger.Error("hook failed", "error", err)
	case result.ExitCode != 0:
		logger.Warn("hook exited with error", "status", result.ExitCode)
	}
}
