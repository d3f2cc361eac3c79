package rebuild

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/runner"
)

// Hook runs the optional per-module relabelling script <module><suffix>.
type Hook struct {
	runner runner.Runner
	suffix string
	shell  string
	logger *slog.Logger
}

// NewHook creates a hook runner for scripts named <module><suffix>, executed
// through shell.
func NewHook(r runner.Runner, suffix, shell string, logger *slog.Logger) *Hook {
	return &Hook{runner: r, suffix: suffix, shell: shell, logger: logger}
}

// Path returns where the hook for moduleName would live.
func (h *Hook) Path(moduleDir, moduleName string) string {
	return filepath.Join(moduleDir, moduleName+h.suffix)
}

// Run executes the hook if it exists and is a regular file. It first grants
// execute permission to owner, group and others, then runs the script through
// the shell with moduleDir as working directory.
//
// ran is false when there is no hook. A non-zero exit is reported in the
// result, not as an error.
func (h *Hook) Run(ctx context.Context, moduleDir, moduleName string) (ran bool, result runner.Result, err error) {
	path, err := filepath.Abs(h.Path(moduleDir, moduleName))
	if err != nil {
		return false, runner.Result{}, errors.Wrap(err, errors.CodeInternal, "resolve hook path")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, runner.Result{}, nil
		}
		return false, runner.Result{}, errors.Wrapf(err, errors.CodeInternal, "stat hook %s", path)
	}
	if !info.Mode().IsRegular() {
		return false, runner.Result{}, nil
	}

	if err := os.Chmod(path, info.Mode().Perm()|0o111); err != nil { //#nosec G302 -- hooks must be executable
		return false, runner.Result{}, errors.Wrapf(err, errors.CodeInternal, "make hook executable %s", path)
	}

	h.logger.Info("RESTORECON", "path", path)
	result, err = h.runner.Run(ctx, runner.Command{
		Name: h.shell,
		Args: []string{"-c", path},
		Dir:  moduleDir,
	})
	if err != nil {
		return true, result, err
	}
	h.logger.Info("RESTORECON end", "path", path, "status", result.ExitCode)

	return true, result, nil
}
