package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/semodwatch/internal/config"
	"github.com/listenupapp/semodwatch/internal/errors"
	"github.com/listenupapp/semodwatch/internal/logger"
	"github.com/listenupapp/semodwatch/internal/vcs"
)

// SyncerHandle wraps the optional git syncer. Syncer is nil when
// synchronisation is disabled or the root is not a working copy.
type SyncerHandle struct {
	Syncer *vcs.Syncer
}

// ProvideSyncer provides the git syncer according to the configured mode.
func ProvideSyncer(i do.Injector) (*SyncerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Git.Enabled == config.GitDisabled {
		log.Info("Git sync disabled")
		return &SyncerHandle{}, nil
	}

	syncer, err := vcs.Open(cfg.Watch.Root, vcs.Config{
		Remote:     cfg.Git.Remote,
		Username:   cfg.Git.Username,
		Password:   cfg.Git.Password,
		SSHKeyPath: cfg.Git.SSHKeyPath,
	})
	if errors.Is(err, vcs.ErrNotRepository) && cfg.Git.Enabled == config.GitAuto {
		log.Info("Root is not a git working copy, sync disabled", "root", cfg.Watch.Root)
		return &SyncerHandle{}, nil
	}
	if errors.Is(err, vcs.ErrNotRepository) {
		return nil, errors.Validationf("git sync requested but %s is not a git working copy", cfg.Watch.Root)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Git sync enabled", "remote", syncer.Remote())
	return &SyncerHandle{Syncer: syncer}, nil
}
