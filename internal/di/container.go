// Package di provides dependency injection configuration for semodwatch.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/semodwatch/internal/config"
	"github.com/listenupapp/semodwatch/internal/di/providers"
	"github.com/listenupapp/semodwatch/internal/logger"
	"github.com/listenupapp/semodwatch/internal/rebuild"
	"github.com/listenupapp/semodwatch/internal/runner"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer(args providers.StartupArgs) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, args)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Build layer
	do.Provide(injector, providers.ProvideRunner)
	do.Provide(injector, providers.ProvidePolicyLocator)
	do.Provide(injector, providers.ProvideRebuildService)
	do.Provide(injector, providers.ProvideHook)

	// Working copy sync
	do.Provide(injector, providers.ProvideSyncer)

	// Watch and trigger
	do.Provide(injector, providers.ProvideWatcher)
	do.Provide(injector, providers.ProvidePipeline)

	return injector
}

// Bootstrap initializes all services and returns the running pipeline.
// Configuration and watch registration errors surface here.
func Bootstrap(injector *do.RootScope) (*providers.PipelineHandle, error) {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return nil, err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*runner.Exec](injector)
	_ = do.MustInvoke[*rebuild.PolicyLocator](injector)
	_ = do.MustInvoke[*rebuild.Service](injector)
	_ = do.MustInvoke[*rebuild.Hook](injector)

	if _, err := do.Invoke[*providers.SyncerHandle](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.WatcherHandle](injector); err != nil {
		return nil, err
	}

	return do.Invoke[*providers.PipelineHandle](injector)
}
