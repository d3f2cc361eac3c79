package watcher

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Backend names.
const (
	BackendAuto     = "auto"
	BackendInotify  = "inotify"
	BackendFsnotify = "fsnotify"
)

// Options configures the watcher behavior.
type Options struct {
	// Backend selects the notification backend. Auto picks inotify on Linux.
	Backend string
	// IgnorePatterns are glob patterns. A pattern without a slash matches the
	// entry name; one with a slash matches the full path and understands **.
	IgnorePatterns []string
	IgnoreHidden   bool
}

// setDefaults applies default values to unset options.
func (o *Options) setDefaults() {
	if o.Backend == "" {
		o.Backend = BackendAuto
	}

	if o.IgnorePatterns == nil {
		o.IgnorePatterns = []string{".git", "*.swp", "*~"}
	}
}

// matcher is the compiled form of the ignore options.
type matcher struct {
	names  []glob.Glob
	paths  []glob.Glob
	hidden bool
}

func newMatcher(opts Options) (*matcher, error) {
	m := &matcher{hidden: opts.IgnoreHidden}
	for _, pattern := range opts.IgnorePatterns {
		g, err := glob.Compile(pattern, filepath.Separator)
		if err != nil {
			return nil, fmt.Errorf("invalid ignore pattern %q: %w", pattern, err)
		}
		if strings.ContainsRune(pattern, filepath.Separator) {
			m.paths = append(m.paths, g)
		} else {
			m.names = append(m.names, g)
		}
	}
	return m, nil
}

// shouldIgnore checks if a path matches ignore patterns. Only the last
// element is tested for hidden names; ancestors were filtered when their
// directories were registered.
func (m *matcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	if m.hidden && strings.HasPrefix(base, ".") && base != "." && base != ".." {
		return true
	}

	for _, g := range m.names {
		if g.Match(base) {
			return true
		}
	}
	for _, g := range m.paths {
		if g.Match(path) {
			return true
		}
	}

	return false
}
