// Package runner executes external commands synchronously, merging stdout
// and stderr into one line stream and reporting the exit status.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/listenupapp/semodwatch/internal/errors"
)

// maxLineSize bounds a single output line. Compiler diagnostics are short,
// but generated policy can produce long m4 traces.
const maxLineSize = 1024 * 1024

// Command describes one external invocation.
type Command struct {
	// Name is the program, resolved through PATH.
	Name string
	Args []string
	// Dir is the working directory. Empty means the current directory.
	Dir string
	// Filter drops a line when it returns true.
	Filter func(line string) bool
	// Quiet captures output without echoing it.
	Quiet bool
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a command that was started.
type Result struct {
	ExitCode int
	// Lines holds the merged output after filtering.
	Lines []string
}

// Output joins the captured lines.
func (r Result) Output() string {
	return strings.Join(r.Lines, "\n")
}

// Success reports a zero exit status.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner is the process execution seam used by the rebuild service, the
// policy locator and the hook.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// Options configures an Exec runner.
type Options struct {
	// Echo receives every kept output line. Defaults to os.Stdout.
	Echo io.Writer
	// Quiet disables echoing; lines are still captured.
	Quiet  bool
	Logger *slog.Logger
}

// Exec runs commands with os/exec.
type Exec struct {
	echo   io.Writer
	logger *slog.Logger
	// Serialises echo so lines of concurrent commands do not interleave.
	mu sync.Mutex
}

// New creates an Exec runner.
func New(opts Options) *Exec {
	echo := opts.Echo
	if echo == nil {
		echo = os.Stdout
	}
	if opts.Quiet {
		echo = io.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{echo: echo, logger: logger}
}

// PrefixFilter returns a filter dropping lines that start with prefix.
// An empty prefix keeps everything.
func PrefixFilter(prefix string) func(string) bool {
	if prefix == "" {
		return nil
	}
	return func(line string) bool {
		return strings.HasPrefix(line, prefix)
	}
}

// Run starts the command and waits for it. There is no timeout: a hung
// process blocks the caller until ctx is cancelled.
//
// A non-zero exit is reported in Result.ExitCode with a nil error. The error
// is non-nil only when the process could not be started or waited for. Output
// that cannot be split into lines (a line longer than 1 MiB) is discarded
// from that point on; the exit status is still reported.
func (e *Exec) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...) //#nosec G204 -- commands come from configuration
	cmd.Dir = c.Dir

	// One pipe for both streams keeps the relative order of stdout and stderr.
	r, w, err := os.Pipe()
	if err != nil {
		return Result{ExitCode: -1}, errors.Wrap(err, errors.CodeInternal, "create output pipe")
	}
	cmd.Stdout = w
	cmd.Stderr = w

	e.logger.Debug("exec", "command", c.String(), "dir", c.Dir)

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return Result{ExitCode: -1}, errors.Wrapf(err, errors.CodeInternal, "start %s", c.Name)
	}
	// The child holds its own copy of the write end.
	_ = w.Close()

	lines, scanErr := e.collect(r, c)
	if scanErr != nil {
		// Keep the pipe open until the child exits so it is not killed by
		// SIGPIPE and its status stays meaningful.
		e.logger.Warn("discarding remaining output", "command", c.String(), "error", scanErr)
		_, _ = io.Copy(io.Discard, r)
	}
	_ = r.Close()

	waitErr := cmd.Wait()
	result := Result{Lines: lines, ExitCode: exitCode(cmd, waitErr)}

	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) {
		return result, errors.Wrapf(waitErr, errors.CodeInternal, "wait for %s", c.Name)
	}
	return result, nil
}

func (e *Exec) collect(r io.Reader, c Command) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if c.Filter != nil && c.Filter(line) {
			continue
		}
		lines = append(lines, line)
		if c.Quiet {
			continue
		}

		e.mu.Lock()
		fmt.Fprintln(e.echo, line)
		e.mu.Unlock()
	}
	return lines, scanner.Err()
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	return -1
}
