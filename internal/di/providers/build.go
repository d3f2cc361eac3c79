package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/semodwatch/internal/config"
	"github.com/listenupapp/semodwatch/internal/logger"
	"github.com/listenupapp/semodwatch/internal/rebuild"
	"github.com/listenupapp/semodwatch/internal/runner"
)

// ProvideRunner provides the external command runner. Kept output lines of
// the build tools go to stdout.
func ProvideRunner(i do.Injector) (*runner.Exec, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return runner.New(runner.Options{Logger: log.Component("runner")}), nil
}

// ProvidePolicyLocator provides the lookup of the active policy's build recipe.
func ProvidePolicyLocator(i do.Injector) (*rebuild.PolicyLocator, error) {
	cfg := do.MustInvoke[*config.Config](i)
	r := do.MustInvoke[*runner.Exec](i)
	return rebuild.NewPolicyLocator(r, cfg.Build.StatusCommand, cfg.Build.PolicyRoot), nil
}

// ProvideRebuildService provides the compile and install service.
func ProvideRebuildService(i do.Injector) (*rebuild.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	r := do.MustInvoke[*runner.Exec](i)
	locator := do.MustInvoke[*rebuild.PolicyLocator](i)

	return rebuild.NewService(r, locator, rebuild.Config{
		MakeCommand:    cfg.Build.MakeCommand,
		InstallCommand: cfg.Build.InstallCommand,
		OutputFilter:   cfg.Build.OutputFilter,
	}, log.Component("rebuild")), nil
}

// ProvideHook provides the post-install hook runner.
func ProvideHook(i do.Injector) (*rebuild.Hook, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	r := do.MustInvoke[*runner.Exec](i)
	return rebuild.NewHook(r, cfg.Build.HookSuffix, cfg.Build.HookShell, log.Component("hook")), nil
}
