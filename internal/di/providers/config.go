// Package providers contains dependency injection providers for semodwatch.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/semodwatch/internal/config"
	"github.com/listenupapp/semodwatch/internal/logger"
)

// StartupArgs carries the command line into the container.
type StartupArgs struct {
	Root  string
	Flags config.Flags
}

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[StartupArgs](i)
	return config.LoadConfig(args.Root, args.Flags)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting semodwatch",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"root", cfg.Watch.Root,
		"recursive", cfg.Watch.Recursive,
		"interval", cfg.Build.Interval,
		"extensions", cfg.Build.Extensions,
	)

	return log, nil
}
