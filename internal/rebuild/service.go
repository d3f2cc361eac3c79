// Package rebuild compiles and installs SELinux policy modules and runs their
// relabelling hooks.
package rebuild

import (
	"context"
	"log/slog"
	"time"

	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/runner"
)

// StatusNotRun marks a step whose process could not be started.
const StatusNotRun = -1

// RecipeLocator resolves the build recipe for the active policy.
type RecipeLocator interface {
	Recipe(ctx context.Context) (string, error)
}

// Outcome carries the exit statuses of one rebuild.
type Outcome struct {
	CompileStatus int
	InstallStatus int
	Duration      time.Duration
}

// Succeeded reports whether both steps exited zero.
func (o Outcome) Succeeded() bool {
	return o.CompileStatus == 0 && o.InstallStatus == 0
}

// Config holds the commands used for a rebuild.
type Config struct {
	MakeCommand    string
	InstallCommand string
	// OutputFilter drops compiler output lines with this prefix.
	OutputFilter string
}

// Service compiles a module against the active policy recipe and installs
// the resulting package.
type Service struct {
	runner  runner.Runner
	locator RecipeLocator
	config  Config
	logger  *slog.Logger
}

// NewService creates a rebuild service.
func NewService(r runner.Runner, locator RecipeLocator, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		runner:  r,
		locator: locator,
		config:  cfg,
		logger:  logger,
	}
}

// Package returns the archive name built for a module.
func Package(moduleName string) string {
	return moduleName + ".pp"
}

// Rebuild compiles then installs moduleName from moduleDir. Both steps always
// run and their statuses are reported independently; a failing compile does
// not skip the install.
//
// The returned error is a POLICY_DISCOVERY error when the recipe cannot be
// located, in which case nothing runs. Otherwise it is non-nil only if a
// step's process could not be started; that step's status is StatusNotRun.
func (s *Service) Rebuild(ctx context.Context, moduleDir, moduleName string) (Outcome, error) {
	start := time.Now()
	outcome := Outcome{CompileStatus: StatusNotRun, InstallStatus: StatusNotRun}

	recipe, err := s.locator.Recipe(ctx)
	if err != nil {
		return outcome, err
	}

	pkg := Package(moduleName)
	logger := s.logger.With("module", moduleName, "dir", moduleDir)

	var errs []error

	compile, err := s.runner.Run(ctx, runner.Command{
		Name:   s.config.MakeCommand,
		Args:   []string{"-f", recipe, pkg},
		Dir:    moduleDir,
		Filter: runner.PrefixFilter(s.config.OutputFilter),
	})
	if err != nil {
		logger.Error("compile did not start", "error", err)
		errs = append(errs, err)
	} else {
		outcome.CompileStatus = compile.ExitCode
	}
	logger.Info("statusCompile", "status", outcome.CompileStatus)

	install, err := s.runner.Run(ctx, runner.Command{
		Name: s.config.InstallCommand,
		Args: []string{"-i", pkg},
		Dir:  moduleDir,
	})
	if err != nil {
		logger.Error("install did not start", "error", err)
		errs = append(errs, err)
	} else {
		outcome.InstallStatus = install.ExitCode
	}
	logger.Info("statusInstall", "status", outcome.InstallStatus)

	outcome.Duration = time.Since(start)
	return outcome, errors.Join(errs...)
}
