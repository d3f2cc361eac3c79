// Package main provides the entry point for semodwatch, which rebuilds and
// installs SELinux policy modules whenever their sources change.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"github.com/listenupapp/semodwatch/internal/config"
	"github.com/listenupapp/semodwatch/internal/di"
	"github.com/listenupapp/semodwatch/internal/di/providers"
	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/logger"
)

var flags config.Flags

var rootCmd = &cobra.Command{
	Use:   "semodwatch ROOT",
	Short: "Rebuild SELinux policy modules when their sources change",
	Long: `Watch ROOT for changes to policy module sources (.te, .if and .fc files by
default) and periodically compile and install every changed module against
the active policy's build recipe.

After a module is installed, an executable hook named <module>.restorecon in
the module's directory is run, if present.

When ROOT is inside a git working copy, each cycle first fetches the remote
and fast-forwards the checkout when it moved.

Send SIGUSR1 to run a cycle immediately.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.EnvFile, "env-file", ".env", "Load settings from this .env file if it exists")
	f.StringVar(&flags.Environment, "env", "", "Environment: development, staging or production")
	f.StringVar(&flags.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	f.StringVar(&flags.LogFormat, "log-format", "", "Log format: json, pretty or text")
	f.StringVar(&flags.Recursive, "recursive", "", "Watch every directory below ROOT (default true)")
	f.StringVar(&flags.Backend, "backend", "", "Watch backend: auto, inotify or fsnotify")
	f.StringVar(&flags.Ignore, "ignore", "", "Comma-separated glob patterns to ignore")
	f.StringVar(&flags.IgnoreHidden, "ignore-hidden", "", "Ignore hidden files and directories")
	f.StringVar(&flags.Interval, "interval", "", "Wait between build cycles (default 20s)")
	f.StringVar(&flags.Extensions, "extensions", "", "Comma-separated module source extensions")
	f.StringVar(&flags.PolicyRoot, "policy-root", "", "Directory holding the installed policy build trees")
	f.StringVar(&flags.HookShell, "hook-shell", "", "Shell used to run post-install hooks")
	f.StringVar(&flags.Git, "git", "", "Sync the working copy: auto, true or false")
	f.StringVar(&flags.GitRemote, "git-remote", "", "Remote to fetch from")
	f.StringVar(&flags.GitSSHKey, "git-ssh-key", "", "Private key for SSH remotes")
	f.StringVar(&flags.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after every cycle")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "semodwatch: %v\n", err)
		os.Exit(errors.ExitCode(err))
	}
}

func run(_ *cobra.Command, args []string) error {
	// Create DI container
	injector := di.NewContainer(providers.StartupArgs{Root: args[0], Flags: flags})

	// Bootstrap all services
	pipeline, err := di.Bootstrap(injector)
	if err != nil {
		injector.Shutdown()
		return err
	}

	log := do.MustInvoke[*logger.Logger](injector)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	defer signal.Stop(signals)

	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGUSR1 {
				log.Info("Cycle requested by signal")
				pipeline.Wake()
				continue
			}
			log.Info("Shutting down gracefully...", "signal", sig.String())
			if err := injector.Shutdown(); err != nil {
				log.Error("Shutdown error", "error", err)
			}
			return nil

		case <-pipeline.Done():
			// The watch ended on its own; the final cycle has already run.
			if err := pipeline.Err(); err != nil {
				injector.Shutdown()
				return err
			}
			log.Info("Watch ended, exiting")
			if err := injector.Shutdown(); err != nil {
				log.Error("Shutdown error", "error", err)
			}
			return nil
		}
	}
}
