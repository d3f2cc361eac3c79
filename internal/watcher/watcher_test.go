package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/semodwatch/internal/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backends lists the backends available on this platform.
func backends() []string {
	if runtime.GOOS == "linux" {
		return []string{BackendInotify, BackendFsnotify}
	}
	return []string{BackendFsnotify}
}

func startWatcher(t *testing.T, backendName, root string, recursive bool) *Watcher {
	t.Helper()
	w, err := New(testLogger(), Options{Backend: backendName})
	require.NoError(t, err)
	require.NoError(t, w.Start(root, recursive))
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// waitFor calls Next until match accepts an event or the deadline passes.
func waitFor(t *testing.T, w *Watcher, match func(Event) bool) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		events, err := w.Next(ctx)
		require.NoError(t, err, "no matching event before deadline")
		for _, e := range events {
			if match(e) {
				return e
			}
		}
	}
}

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Created, "created"},
		{Modified, "modified"},
		{Deleted, "deleted"},
		{Overflow, "overflow"},
		{Kind(42), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.String())
		})
	}
}

func TestEvent_Path(t *testing.T) {
	assert.Equal(t, "/pkg/mod/rule.te", Event{Dir: "/pkg/mod", Name: "rule.te"}.Path())
	assert.Equal(t, "/pkg/mod", Event{Dir: "/pkg/mod"}.Path())
}

func TestOptions_Defaults(t *testing.T) {
	opts := Options{}
	opts.setDefaults()

	assert.Equal(t, BackendAuto, opts.Backend)
	assert.Equal(t, []string{".git", "*.swp", "*~"}, opts.IgnorePatterns)
	assert.False(t, opts.IgnoreHidden)
}

func TestMatcher_ShouldIgnore(t *testing.T) {
	m, err := newMatcher(Options{
		IgnoreHidden:   true,
		IgnorePatterns: []string{"*.swp", ".git", "/srv/**/build"},
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		expect bool
	}{
		{"hidden file", "/pkg/.rule.te", true},
		{"git directory", "/pkg/.git", true},
		{"swap file", "/pkg/mod/.rule.te.swp", true},
		{"path pattern", "/srv/policy/mod/build", true},
		{"policy source", "/pkg/mod/rule.te", false},
		{"nested source", "/srv/policy/mod/rule.if", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, m.shouldIgnore(tt.path))
		})
	}
}

func TestMatcher_HiddenAllowed(t *testing.T) {
	m, err := newMatcher(Options{IgnorePatterns: []string{}})
	require.NoError(t, err)

	assert.False(t, m.shouldIgnore("/pkg/.hidden.te"))
}

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(testLogger(), Options{IgnorePatterns: []string{"[unterminated"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestStart_MissingRoot(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)

	err = w.Start(filepath.Join(t.TempDir(), "missing"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestStart_RootIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "rule.te")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	w, err := New(testLogger(), Options{})
	require.NoError(t, err)

	err = w.Start(file, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestStart_UnknownBackend(t *testing.T) {
	w, err := New(testLogger(), Options{Backend: "kqueue"})
	require.NoError(t, err)

	err = w.Start(t.TempDir(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrWatchRegistration)
}

func TestStart_NextBeforeStart(t *testing.T) {
	w, err := New(testLogger(), Options{})
	require.NoError(t, err)

	_, err = w.Next(context.Background())
	assert.ErrorIs(t, err, errors.ErrInternal)
	assert.NoError(t, w.Close())
}

func TestWatcher_Backends(t *testing.T) {
	for _, name := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("registers tree recursively", func(t *testing.T) {
				root := t.TempDir()
				require.NoError(t, os.MkdirAll(filepath.Join(root, "mod", "nested"), 0o755))
				require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

				w := startWatcher(t, name, root, true)

				paths := make([]string, 0, w.Len())
				for _, r := range w.Registrations() {
					paths = append(paths, r.Path)
				}
				assert.Equal(t, []string{root, filepath.Join(root, "mod"), filepath.Join(root, "mod", "nested")}, paths)
			})

			t.Run("non-recursive registers root only", func(t *testing.T) {
				root := t.TempDir()
				require.NoError(t, os.Mkdir(filepath.Join(root, "mod"), 0o755))

				w := startWatcher(t, name, root, false)
				assert.Equal(t, 1, w.Len())
				assert.False(t, w.Recursive())
			})

			t.Run("reports file creation", func(t *testing.T) {
				root := t.TempDir()
				w := startWatcher(t, name, root, true)

				require.NoError(t, os.WriteFile(filepath.Join(root, "rule.te"), []byte("module rule 1.0;"), 0o644))

				event := waitFor(t, w, func(e Event) bool { return e.Kind == Created })
				assert.Equal(t, root, event.Dir)
				assert.Equal(t, "rule.te", event.Name)
				assert.False(t, event.IsDir)
			})

			t.Run("reports modification", func(t *testing.T) {
				root := t.TempDir()
				file := filepath.Join(root, "rule.if")
				require.NoError(t, os.WriteFile(file, []byte("## interface"), 0o644))
				w := startWatcher(t, name, root, true)

				f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o644)
				require.NoError(t, err)
				_, err = f.WriteString("\ninterface(`rule_read',`')")
				require.NoError(t, err)
				require.NoError(t, f.Close())

				event := waitFor(t, w, func(e Event) bool { return e.Kind == Modified })
				assert.Equal(t, file, event.Path())
			})

			t.Run("registered subdirectory is observed", func(t *testing.T) {
				root := t.TempDir()
				w := startWatcher(t, name, root, true)

				sub := filepath.Join(root, "mod")
				require.NoError(t, os.Mkdir(sub, 0o755))
				created := waitFor(t, w, func(e Event) bool { return e.Kind == Created && e.Name == "mod" })
				w.Register(created.Path())
				assert.Equal(t, 2, w.Len())

				require.NoError(t, os.WriteFile(filepath.Join(sub, "rule.te"), nil, 0o644))
				event := waitFor(t, w, func(e Event) bool { return e.Kind == Created && e.Name == "rule.te" })
				assert.Equal(t, sub, event.Dir)
			})

			t.Run("ignored names are dropped", func(t *testing.T) {
				root := t.TempDir()
				w := startWatcher(t, name, root, true)

				require.NoError(t, os.WriteFile(filepath.Join(root, "rule.te.swp"), nil, 0o644))
				require.NoError(t, os.WriteFile(filepath.Join(root, "rule.te"), nil, 0o644))

				event := waitFor(t, w, func(e Event) bool { return true })
				assert.Equal(t, "rule.te", event.Name)
			})

			t.Run("deleted subdirectory is unregistered", func(t *testing.T) {
				root := t.TempDir()
				sub := filepath.Join(root, "mod")
				require.NoError(t, os.Mkdir(sub, 0o755))
				w := startWatcher(t, name, root, true)
				require.Equal(t, 2, w.Len())

				require.NoError(t, os.Remove(sub))
				waitFor(t, w, func(e Event) bool { return e.Kind == Deleted && e.Name == "mod" })

				require.Eventually(t, func() bool {
					ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
					defer cancel()
					_, _ = w.Next(ctx)
					return w.Len() == 1
				}, 5*time.Second, 10*time.Millisecond)
			})

			t.Run("stops when root is deleted", func(t *testing.T) {
				root := filepath.Join(t.TempDir(), "root")
				require.NoError(t, os.Mkdir(root, 0o755))
				w := startWatcher(t, name, root, true)

				require.NoError(t, os.Remove(root))

				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				var err error
				for err == nil {
					_, err = w.Next(ctx)
				}
				require.ErrorIs(t, err, ErrStopped)
				require.NoError(t, ctx.Err(), "watch should end before the deadline")
				assert.Zero(t, w.Len())

				_, err = w.Next(context.Background())
				assert.ErrorIs(t, err, ErrStopped)
			})

			t.Run("cancellation interrupts next", func(t *testing.T) {
				w := startWatcher(t, name, t.TempDir(), false)

				ctx, cancel := context.WithCancel(context.Background())
				go func() {
					time.Sleep(50 * time.Millisecond)
					cancel()
				}()

				_, err := w.Next(ctx)
				assert.ErrorIs(t, err, ErrStopped)
			})

			t.Run("close interrupts next", func(t *testing.T) {
				w := startWatcher(t, name, t.TempDir(), false)

				done := make(chan error, 1)
				go func() {
					_, err := w.Next(context.Background())
					done <- err
				}()

				time.Sleep(50 * time.Millisecond)
				require.NoError(t, w.Close())

				select {
				case err := <-done:
					assert.ErrorIs(t, err, ErrStopped)
				case <-time.After(5 * time.Second):
					t.Fatal("Next did not return after Close")
				}
			})
		})
	}
}

func TestWatcher_RegisterMissingPathIsBestEffort(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, BackendAuto, root, true)

	w.Register(filepath.Join(root, "vanished"))
	assert.Equal(t, 1, w.Len())
}
