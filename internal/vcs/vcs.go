// Package vcs keeps the watched tree in step with its git remote. The Syncer
// is not thread-safe; the trigger loop is its only caller.
package vcs

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/protocol/packp/capability"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/listenupapp/semodwatch/internal/errors"
)

// ErrNotRepository is returned by Open when root is not inside a git
// working copy.
var ErrNotRepository = stderrors.New("not a git working copy")

func init() {
	// For Azure DevOps compatibility. More details: https://github.com/go-git/go-git/issues/64
	transport.UnsupportedCapabilities = []capability.Capability{
		capability.ThinPack,
	}
}

// Config holds remote and credential settings.
type Config struct {
	Remote   string
	Username string
	// Password is the HTTP password, or the key passphrase with SSHKeyPath.
	Password   string
	SSHKeyPath string
}

// PullSummary describes the result of a pull.
type PullSummary struct {
	Before  plumbing.Hash
	After   plumbing.Hash
	Updated bool
}

// String renders the summary for logs.
func (p PullSummary) String() string {
	if !p.Updated {
		return "already up to date " + shortHash(p.After)
	}
	return fmt.Sprintf("%s..%s", shortHash(p.Before), shortHash(p.After))
}

func shortHash(h plumbing.Hash) string {
	s := h.String()
	if len(s) > 7 {
		return s[:7]
	}
	return s
}

// Syncer fetches and fast-forwards one working copy.
type Syncer struct {
	repo   *git.Repository
	remote string
	auth   transport.AuthMethod
}

// Open finds the working copy containing root.
func Open(root string, cfg Config) (*Syncer, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if stderrors.Is(err, git.ErrRepositoryNotExists) {
		return nil, ErrNotRepository
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeSync, "open working copy at %s", root)
	}

	remote := cfg.Remote
	if remote == "" {
		remote = git.DefaultRemoteName
	}
	if _, err := repo.Remote(remote); err != nil {
		return nil, errors.Wrapf(err, errors.CodeSync, "remote %q", remote)
	}

	auth, err := authMethod(cfg)
	if err != nil {
		return nil, err
	}

	return &Syncer{repo: repo, remote: remote, auth: auth}, nil
}

func authMethod(cfg Config) (transport.AuthMethod, error) {
	switch {
	case cfg.SSHKeyPath != "":
		user := cfg.Username
		if user == "" {
			user = "git"
		}
		auth, err := gitssh.NewPublicKeysFromFile(user, cfg.SSHKeyPath, cfg.Password)
		if err != nil {
			return nil, errors.Wrapf(err, errors.CodeValidation, "load ssh key %s", cfg.SSHKeyPath)
		}
		return auth, nil
	case cfg.Password != "":
		return &http.BasicAuth{Username: cfg.Username, Password: cfg.Password}, nil
	default:
		return nil, nil
	}
}

// Remote returns the remote name in use.
func (s *Syncer) Remote() string {
	return s.remote
}

// Fetch updates the remote-tracking references, forcing non-fast-forward
// updates. changed is true when any reference moved.
func (s *Syncer) Fetch(ctx context.Context) (changed bool, err error) {
	err = s.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: s.remote,
		Auth:       s.auth,
		Force:      true,
	})
	if stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, errors.CodeSync, "fetch %s", s.remote)
	}
	return true, nil
}

// Pull fast-forwards the checked out branch to its remote counterpart.
//
// A working copy with local modifications to tracked files is left alone and
// a SYNC error is returned; untracked files do not block the pull. If the
// pull fails after the branch reference was moved, the reference is put back
// so HEAD, index and worktree stay on the same commit.
func (s *Syncer) Pull(ctx context.Context) (PullSummary, error) {
	var summary PullSummary

	head, err := s.repo.Head()
	if err != nil {
		return summary, errors.Wrap(err, errors.CodeSync, "resolve HEAD")
	}
	summary.Before = head.Hash()
	summary.After = head.Hash()

	wt, err := s.repo.Worktree()
	if err != nil {
		return summary, errors.Wrap(err, errors.CodeSync, "open worktree")
	}

	status, err := wt.Status()
	if err != nil {
		return summary, errors.Wrap(err, errors.CodeSync, "read worktree status")
	}
	if files := modifiedFiles(status); len(files) > 0 {
		return summary, errors.Syncf("working copy has local changes: %s", strings.Join(files, ", ")).
			WithDetails(files)
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    s.remote,
		ReferenceName: head.Name(),
		Auth:          s.auth,
	})
	if stderrors.Is(err, git.NoErrAlreadyUpToDate) {
		return summary, nil
	}
	if err != nil {
		if restoreErr := s.restoreHead(head); restoreErr != nil {
			err = stderrors.Join(err, restoreErr)
		}
		return summary, errors.Wrapf(err, errors.CodeSync, "pull %s", s.remote)
	}

	head, err = s.repo.Head()
	if err != nil {
		return summary, errors.Wrap(err, errors.CodeSync, "resolve HEAD")
	}
	summary.After = head.Hash()
	summary.Updated = summary.After != summary.Before
	return summary, nil
}

// restoreHead points the branch of head back at its commit if a failed pull
// moved it.
func (s *Syncer) restoreHead(head *plumbing.Reference) error {
	current, err := s.repo.Reference(head.Name(), false)
	if err != nil {
		return fmt.Errorf("read %s: %w", head.Name(), err)
	}
	if current.Hash() == head.Hash() {
		return nil
	}
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(head.Name(), head.Hash())); err != nil {
		return fmt.Errorf("restore %s to %s: %w", head.Name(), shortHash(head.Hash()), err)
	}
	return nil
}

// modifiedFiles lists tracked files with staged or unstaged changes, sorted.
func modifiedFiles(status git.Status) []string {
	var files []string
	for path, st := range status {
		if changed(st.Staging) || changed(st.Worktree) {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files
}

func changed(code git.StatusCode) bool {
	return code != git.Unmodified && code != git.Untracked
}
